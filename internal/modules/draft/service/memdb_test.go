package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"anoa.com/studentportfolio/internal/entity"
	"anoa.com/studentportfolio/internal/modules/draft/repository"
	settingDto "anoa.com/studentportfolio/internal/modules/setting/dto"
	"anoa.com/studentportfolio/pkg/apperror"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// memDB backs every collaborator of the draft service. Transactions hold
// txMu for their whole duration and restore a snapshot on error, which is
// the behaviour row locks plus rollback give in Postgres.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	drafts   map[uuid.UUID]entity.Draft
	reviews  []entity.DraftReview
	students map[string]entity.Student
	answers  map[string]entity.QAAnswer
	users    map[uuid.UUID]entity.User
	schema   settingDto.QASchema

	failStudentUpdate error
	// raceOnCreate is inserted by the next Create, which then fails the way a
	// concurrent insert on the unique index would. The rival row belongs to
	// another transaction, so it survives the rollback.
	raceOnCreate *entity.Draft
	committed    []entity.Draft
}

type memSnapshot struct {
	drafts   map[uuid.UUID]entity.Draft
	reviews  []entity.DraftReview
	students map[string]entity.Student
	answers  map[string]entity.QAAnswer
}

func newMemDB() *memDB {
	return &memDB{
		drafts:   map[uuid.UUID]entity.Draft{},
		students: map[string]entity.Student{},
		answers:  map[string]entity.QAAnswer{},
		users:    map[uuid.UUID]entity.User{},
		schema:   settingDto.QASchema{},
	}
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := memSnapshot{
		drafts:   make(map[uuid.UUID]entity.Draft, len(db.drafts)),
		reviews:  append([]entity.DraftReview(nil), db.reviews...),
		students: make(map[string]entity.Student, len(db.students)),
		answers:  make(map[string]entity.QAAnswer, len(db.answers)),
	}
	for k, v := range db.drafts {
		s.drafts[k] = v
	}
	for k, v := range db.students {
		s.students[k] = v
	}
	for k, v := range db.answers {
		s.answers[k] = v
	}
	return s
}

func (db *memDB) restore(s memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.drafts = s.drafts
	db.reviews = s.reviews
	db.students = s.students
	db.answers = s.answers
	for _, d := range db.committed {
		db.drafts[d.ID] = d
	}
	db.committed = nil
}

func (db *memDB) draftOf(studentID string) (entity.Draft, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, d := range db.drafts {
		if d.StudentID == studentID && d.VersionType == entity.VersionTypeDraft {
			return d, true
		}
	}
	return entity.Draft{}, false
}

func (db *memDB) put(d entity.Draft) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.drafts[d.ID] = d
}

func (db *memDB) student(studentID string) entity.Student {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.students[studentID]
}

func (db *memDB) reviewCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.reviews)
}

// memTx implements database.Transactor.
type memTx struct{ db *memDB }

func (t memTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()

	snap := t.db.snapshot()
	if err := fn(ctx); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

// memDrafts implements repository.DraftRepository.
type memDrafts struct{ db *memDB }

func (r memDrafts) Create(_ context.Context, d *entity.Draft) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.raceOnCreate != nil {
		rival := *db.raceOnCreate
		db.raceOnCreate = nil
		db.drafts[rival.ID] = rival
		db.committed = append(db.committed, rival)
		return gorm.ErrDuplicatedKey
	}
	for _, existing := range db.drafts {
		if existing.StudentID == d.StudentID && existing.VersionType == d.VersionType {
			return gorm.ErrDuplicatedKey
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Version == 0 {
		d.Version = 1
	}
	if d.ChangedFields == nil {
		d.ChangedFields = pq.StringArray{}
	}
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	db.drafts[d.ID] = *d
	return nil
}

func (r memDrafts) FindByID(_ context.Context, id uuid.UUID) (*entity.Draft, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.drafts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &d, nil
}

func (r memDrafts) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Draft, error) {
	return r.FindByID(ctx, id)
}

func (r memDrafts) FindByStudentID(_ context.Context, studentID string, vt entity.VersionType) (*entity.Draft, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, d := range r.db.drafts {
		if d.StudentID == studentID && d.VersionType == vt {
			return &d, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memDrafts) FindByStudentIDForUpdate(ctx context.Context, studentID string, vt entity.VersionType) (*entity.Draft, error) {
	return r.FindByStudentID(ctx, studentID, vt)
}

func (r memDrafts) Save(_ context.Context, d *entity.Draft, expected int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.drafts[d.ID]
	if !ok || stored.Version != expected {
		return fmt.Errorf("draft %s at version %d: %w", d.ID, expected, apperror.ErrConflict)
	}
	if d.ChangedFields == nil {
		d.ChangedFields = pq.StringArray{}
	}
	d.Version = expected + 1
	d.UpdatedAt = time.Now()
	r.db.drafts[d.ID] = *d
	return nil
}

func (r memDrafts) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.drafts[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.db.drafts, id)
	return nil
}

func (r memDrafts) List(_ context.Context, f repository.DraftFilter) ([]entity.Draft, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var all []entity.Draft
	for _, d := range r.db.drafts {
		if f.Status == "" || d.Status == f.Status {
			all = append(all, d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	total := int64(len(all))
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[f.Offset:end], total, nil
}

func (r memDrafts) CountByStatus(_ context.Context, statuses ...entity.DraftStatus) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, d := range r.db.drafts {
		for _, s := range statuses {
			if d.Status == s {
				n++
			}
		}
	}
	return n, nil
}

func (r memDrafts) CreateReview(_ context.Context, review *entity.DraftReview) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	review.ID = uuid.New()
	review.CreatedAt = time.Now()
	r.db.reviews = append(r.db.reviews, *review)
	return nil
}

func (r memDrafts) ListReviews(_ context.Context, draftID uuid.UUID) ([]entity.DraftReview, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []entity.DraftReview
	for _, rv := range r.db.reviews {
		if rv.DraftID == draftID {
			out = append(out, rv)
		}
	}
	return out, nil
}

// memStudents implements the student repository.
type memStudents struct{ db *memDB }

func (r memStudents) FindByStudentID(_ context.Context, id string) (*entity.Student, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.students[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &s, nil
}

func (r memStudents) Updates(_ context.Context, id string, updates map[string]any) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failStudentUpdate != nil {
		return r.db.failStudentUpdate
	}
	s, ok := r.db.students[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for col, v := range updates {
		switch col {
		case "visibility":
			s.Visibility = v.(bool)
		case "self_introduction":
			s.SelfIntroduction = strPtrOrNil(v)
		case "hobbies":
			s.Hobbies = strPtrOrNil(v)
		case "special_skills":
			s.SpecialSkills = strPtrOrNil(v)
		case "other_information":
			s.OtherInformation = strPtrOrNil(v)
		case "gallery":
			s.Gallery = jsonOrNil(v)
		case "skills":
			s.Skills = jsonOrNil(v)
		case "it_skills":
			s.ITSkills = jsonOrNil(v)
		case "deliverables":
			s.Deliverables = jsonOrNil(v)
		}
	}
	r.db.students[id] = s
	return nil
}

func (r memStudents) SetVisibility(_ context.Context, id string, visible bool) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.students[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.Visibility = visible
	r.db.students[id] = s
	return nil
}

func (r memStudents) FindQAAnswers(_ context.Context, id string) ([]entity.QAAnswer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []entity.QAAnswer
	for _, a := range r.db.answers {
		if a.StudentID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r memStudents) UpsertQAAnswers(_ context.Context, answers []entity.QAAnswer) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, a := range answers {
		r.db.answers[a.StudentID+"/"+a.Category+"/"+a.QuestionKey] = a
	}
	return nil
}

func strPtrOrNil(v any) *string {
	if v == nil {
		return nil
	}
	s := v.(string)
	return &s
}

func jsonOrNil(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	return v.(datatypes.JSON)
}

type memUsers struct{ db *memDB }

func (u memUsers) FindByID(_ context.Context, id string) (*entity.User, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}
	user, ok := u.db.users[uid]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &user, nil
}

type memSchema struct{ db *memDB }

func (s memSchema) GetStudentQASchema(context.Context) (settingDto.QASchema, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.schema, nil
}

type sentNotification struct {
	UserID    uuid.UUID
	Role      string
	Type      string
	Message   string
	RelatedID *string
	Broadcast bool
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	fail error
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, role, notifType, message string, relatedID *string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Role: role, Type: notifType, Message: message, RelatedID: relatedID})
	return n.fail
}

func (n *recordingNotifier) NotifyRole(_ context.Context, role, notifType, message string, relatedID *string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Role: role, Type: notifType, Message: message, RelatedID: relatedID, Broadcast: true})
	return n.fail
}

func (n *recordingNotifier) all() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

type fakeImages struct {
	mu      sync.Mutex
	uploads []string
	deleted []string
}

func (f *fakeImages) UploadImage(_ context.Context, _ io.Reader, folder, fileName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := fmt.Sprintf("https://res.cloudinary.com/demo/image/upload/v1/%s/%d-%s", folder, len(f.uploads), fileName)
	f.uploads = append(f.uploads, url)
	return url, nil
}

func (f *fakeImages) DeleteImage(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return nil
}

type fakeIndexer struct {
	mu      sync.Mutex
	indexed []string
	removed []string
}

func (f *fakeIndexer) IndexStudent(s *entity.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, s.StudentID)
	return nil
}

func (f *fakeIndexer) DeleteStudent(studentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, studentID)
	return nil
}
