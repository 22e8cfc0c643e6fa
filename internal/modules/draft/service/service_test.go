package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"anoa.com/studentportfolio/internal/entity"
	"anoa.com/studentportfolio/internal/modules/draft/dto"
	settingDto "anoa.com/studentportfolio/internal/modules/setting/dto"
	student "anoa.com/studentportfolio/internal/modules/student/service"
	"anoa.com/studentportfolio/pkg/apperror"
	commonDto "anoa.com/studentportfolio/pkg/dto"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStudentID = "S1"

type fixture struct {
	db       *memDB
	svc      DraftService
	notifier *recordingNotifier
	images   *fakeImages
	indexer  *fakeIndexer

	studentUser entity.User
	staffUser   entity.User
	adminUser   entity.User
	student     entity.Actor
	staff       entity.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newMemDB()
	f := &fixture{
		db:       db,
		notifier: &recordingNotifier{},
		images:   &fakeImages{},
		indexer:  &fakeIndexer{},
	}

	f.studentUser = entity.User{ID: uuid.New(), Username: "aiko", FullName: "Aiko Tanaka", Role: entity.Role{Name: entity.RoleStudent}}
	f.staffUser = entity.User{ID: uuid.New(), Username: "sato", FullName: "Kenji Sato", Role: entity.Role{Name: entity.RoleStaff}}
	f.adminUser = entity.User{ID: uuid.New(), Username: "admin", Role: entity.Role{Name: entity.RoleAdmin}}
	for _, u := range []entity.User{f.studentUser, f.staffUser, f.adminUser} {
		db.users[u.ID] = u
	}

	intro := "old intro"
	userID := f.studentUser.ID
	db.students[testStudentID] = entity.Student{
		ID:               uuid.New(),
		StudentID:        testStudentID,
		UserID:           &userID,
		FullName:         "Aiko Tanaka",
		SelfIntroduction: &intro,
		Visibility:       true,
	}

	f.student = entity.Actor{UserID: f.studentUser.ID, Role: entity.RoleStudent, StudentID: testStudentID}
	f.staff = entity.Actor{UserID: f.staffUser.ID, Role: entity.RoleStaff}

	students := memStudents{db: db}
	f.svc = NewDraftService(
		memDrafts{db: db},
		student.NewStudentService(students),
		student.NewProfileMerger(students),
		memSchema{db: db},
		memUsers{db: db},
		f.notifier,
		f.images,
		f.indexer,
		memTx{db: db},
	)
	return f
}

func (f *fixture) upsert(t *testing.T, data map[string]any) *dto.UpsertDraftResponse {
	t.Helper()
	res, err := f.svc.UpsertDraft(context.Background(), testStudentID, f.student, dto.UpsertDraftRequest{ProfileData: data})
	require.NoError(t, err)
	return res
}

func (f *fixture) submit(t *testing.T, id uuid.UUID) *entity.Draft {
	t.Helper()
	d, err := f.svc.SubmitForReview(context.Background(), id, f.student, nil)
	require.NoError(t, err)
	return d
}

func (f *fixture) review(t *testing.T, id uuid.UUID, status string, comments *string) *entity.Draft {
	t.Helper()
	d, err := f.svc.UpdateStatusByStaff(context.Background(), id, dto.UpdateStatusRequest{Status: status, Comments: comments}, f.staff)
	require.NoError(t, err)
	return d
}

func (f *fixture) setStatus(t *testing.T, status entity.DraftStatus) entity.Draft {
	t.Helper()
	d, ok := f.db.draftOf(testStudentID)
	require.True(t, ok)
	d.Status = status
	f.db.put(d)
	return d
}

func ptr[T any](v T) *T { return &v }

func TestUpsertDraft_CreatesDraft(t *testing.T) {
	f := newFixture(t)

	res := f.upsert(t, map[string]any{"self_introduction": "hi"})

	assert.True(t, res.Created)
	assert.Equal(t, entity.DraftStatusDraft, res.Draft.Status)
	assert.Equal(t, pq.StringArray{"self_introduction"}, res.Draft.ChangedFields)
	assert.Equal(t, 0, res.Draft.SubmitCount)
	assert.Equal(t, 1, res.Draft.Version)
	assert.Equal(t, entity.VersionTypeDraft, res.Draft.VersionType)
}

func TestUpsertDraft_AccumulatesChangedFields(t *testing.T) {
	f := newFixture(t)

	f.upsert(t, map[string]any{"self_introduction": "hi"})
	res := f.upsert(t, map[string]any{"self_introduction": "hi", "hobbies": "chess"})
	assert.False(t, res.Created)
	assert.Equal(t, pq.StringArray{"self_introduction", "hobbies"}, res.Draft.ChangedFields)

	res = f.upsert(t, map[string]any{"self_introduction": "hi", "hobbies": "chess"})
	assert.Equal(t, pq.StringArray{"self_introduction", "hobbies"}, res.Draft.ChangedFields)

	// Keys gone from the document are no longer reported.
	res = f.upsert(t, map[string]any{"hobbies": "chess"})
	assert.Equal(t, pq.StringArray{"hobbies"}, res.Draft.ChangedFields)
	assert.Equal(t, map[string]any{"hobbies": "chess"}, res.Draft.Data())
}

func TestUpsertDraft_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpsertDraft(ctx, testStudentID, f.student, dto.UpsertDraftRequest{})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = f.svc.UpsertDraft(ctx, testStudentID, f.student, dto.UpsertDraftRequest{
		ProfileData: map[string]any{"hobbies": 42.0},
	})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = f.svc.UpsertDraft(ctx, "S404", entity.Actor{UserID: uuid.New(), Role: entity.RoleStudent, StudentID: "S404"}, dto.UpsertDraftRequest{
		ProfileData: map[string]any{"hobbies": "x"},
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpsertDraft_OnlyOwner(t *testing.T) {
	f := newFixture(t)
	other := entity.Actor{UserID: uuid.New(), Role: entity.RoleStudent, StudentID: "S2"}

	_, err := f.svc.UpsertDraft(context.Background(), testStudentID, other, dto.UpsertDraftRequest{ProfileData: map[string]any{}})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.UpsertDraft(context.Background(), testStudentID, f.staff, dto.UpsertDraftRequest{ProfileData: map[string]any{}})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestUpsertDraft_EditResetsStatus(t *testing.T) {
	states := []entity.DraftStatus{
		entity.DraftStatusSubmitted,
		entity.DraftStatusChecking,
		entity.DraftStatusApproved,
		entity.DraftStatusResubmissionRequired,
		entity.DraftStatusDisapproved,
	}
	for _, status := range states {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			f.upsert(t, map[string]any{"hobbies": "go"})
			f.setStatus(t, status)

			res := f.upsert(t, map[string]any{"hobbies": "go", "self_introduction": "new"})
			assert.Equal(t, entity.DraftStatusDraft, res.Draft.Status)
			assert.Contains(t, res.Draft.ChangedFields, "self_introduction")
		})
	}
}

func TestUpsertDraft_StaleVersion(t *testing.T) {
	f := newFixture(t)
	created := f.upsert(t, map[string]any{"hobbies": "go"})
	f.upsert(t, map[string]any{"hobbies": "rust"})

	_, err := f.svc.UpsertDraft(context.Background(), testStudentID, f.student, dto.UpsertDraftRequest{
		ProfileData: map[string]any{"hobbies": "zig"},
		Version:     ptr(created.Draft.Version),
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	d, _ := f.db.draftOf(testStudentID)
	assert.Equal(t, "rust", d.Data()["hobbies"])
}

func TestUpsertDraft_CreateRaceRetriesAsUpdate(t *testing.T) {
	f := newFixture(t)
	f.db.raceOnCreate = &entity.Draft{
		ID:            uuid.New(),
		StudentID:     testStudentID,
		VersionType:   entity.VersionTypeDraft,
		ProfileData:   map[string]any{"hobbies": "chess"},
		ChangedFields: pq.StringArray{"hobbies"},
		Status:        entity.DraftStatusSubmitted,
		Version:       1,
	}

	res := f.upsert(t, map[string]any{"hobbies": "chess", "self_introduction": "hi"})

	assert.False(t, res.Created)
	assert.Equal(t, entity.DraftStatusDraft, res.Draft.Status)
	assert.Equal(t, pq.StringArray{"hobbies", "self_introduction"}, res.Draft.ChangedFields)
	assert.Equal(t, 2, res.Draft.Version)
}

func TestSubmitForReview_Success(t *testing.T) {
	f := newFixture(t)
	created := f.upsert(t, map[string]any{"self_introduction": "hi"})

	d := created.Draft
	stored, _ := f.db.draftOf(testStudentID)
	stored.Comments = ptr("fix the typo")
	f.db.put(stored)

	submitted := f.submit(t, d.ID)

	assert.Equal(t, entity.DraftStatusSubmitted, submitted.Status)
	assert.Equal(t, 1, submitted.SubmitCount)
	assert.Nil(t, submitted.Comments)
	assert.False(t, f.db.student(testStudentID).Visibility)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Broadcast)
	assert.Equal(t, entity.RoleStaff, sent[0].Role)
	assert.Equal(t, entity.NotificationDraftSubmitted, sent[0].Type)
	assert.Contains(t, sent[0].Message, "Aiko Tanaka")
	assert.Equal(t, d.ID.String(), *sent[0].RelatedID)
	assert.Equal(t, []string{testStudentID}, f.indexer.removed)
}

func TestSubmitForReview_RemovesApprovedProfileFromIndex(t *testing.T) {
	f := newFixture(t)
	d := f.upsert(t, map[string]any{"self_introduction": "hi"}).Draft
	f.submit(t, d.ID)
	f.review(t, d.ID, "approved", nil)
	require.True(t, f.db.student(testStudentID).Visibility)
	assert.Equal(t, []string{testStudentID}, f.indexer.indexed)

	d = f.upsert(t, map[string]any{"self_introduction": "hello again"}).Draft
	f.submit(t, d.ID)

	assert.False(t, f.db.student(testStudentID).Visibility)
	assert.Equal(t, []string{testStudentID, testStudentID}, f.indexer.removed)
}

func TestSubmitForReview_StaffHint(t *testing.T) {
	f := newFixture(t)
	d := f.upsert(t, map[string]any{"hobbies": "go"}).Draft

	hint := f.staffUser.ID
	_, err := f.svc.SubmitForReview(context.Background(), d.ID, f.student, &hint)
	require.NoError(t, err)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.False(t, sent[0].Broadcast)
	assert.Equal(t, f.staffUser.ID, sent[0].UserID)
}

func TestSubmitForReview_StaffHintNotStaffFallsBack(t *testing.T) {
	f := newFixture(t)
	d := f.upsert(t, map[string]any{"hobbies": "go"}).Draft

	hint := f.studentUser.ID
	_, err := f.svc.SubmitForReview(context.Background(), d.ID, f.student, &hint)
	require.NoError(t, err)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Broadcast)
}

func TestSubmitForReview_AlreadySubmitted(t *testing.T) {
	for _, status := range []entity.DraftStatus{entity.DraftStatusSubmitted, entity.DraftStatusChecking} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			f.upsert(t, map[string]any{"hobbies": "go"})
			before := f.setStatus(t, status)

			_, err := f.svc.SubmitForReview(context.Background(), before.ID, f.student, nil)
			assert.ErrorIs(t, err, apperror.ErrAlreadySubmitted)

			after, _ := f.db.draftOf(testStudentID)
			assert.Equal(t, before.Version, after.Version)
			assert.Equal(t, before.SubmitCount, after.SubmitCount)
			assert.True(t, f.db.student(testStudentID).Visibility)
			assert.Empty(t, f.notifier.all())
		})
	}
}

func TestSubmitForReview_TerminalStatus(t *testing.T) {
	f := newFixture(t)
	f.upsert(t, map[string]any{"hobbies": "go"})
	d := f.setStatus(t, entity.DraftStatusApproved)

	_, err := f.svc.SubmitForReview(context.Background(), d.ID, f.student, nil)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestSubmitForReview_MissingRequiredAnswers(t *testing.T) {
	f := newFixture(t)
	f.db.schema = settingDto.QASchema{
		"career": {
			"goal":   {Question: "What is your goal?", Required: true},
			"reason": {Question: "Why Japan?", Required: true},
			"extra":  {Question: "Anything else?"},
		},
	}
	d := f.upsert(t, map[string]any{
		"qa": map[string]any{"career": map[string]any{"goal": "engineer", "reason": "   "}},
	}).Draft

	_, err := f.svc.SubmitForReview(context.Background(), d.ID, f.student, nil)

	var missing *apperror.MissingRequiredAnswersError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, 1, missing.Count)
	assert.Equal(t, []apperror.MissingAnswer{{Category: "career", QuestionKey: "reason"}}, missing.Missing)

	after, _ := f.db.draftOf(testStudentID)
	assert.Equal(t, 0, after.SubmitCount)
	assert.Equal(t, entity.DraftStatusDraft, after.Status)
	assert.True(t, f.db.student(testStudentID).Visibility)
}

func TestSubmitForReview_UsesSavedAnswersWithoutQASection(t *testing.T) {
	f := newFixture(t)
	f.db.schema = settingDto.QASchema{"career": {"goal": {Question: "Goal?", Required: true}}}
	f.db.answers["S1/career/goal"] = entity.QAAnswer{StudentID: testStudentID, Category: "career", QuestionKey: "goal", Answer: "engineer"}
	d := f.upsert(t, map[string]any{"hobbies": "go"}).Draft

	submitted := f.submit(t, d.ID)
	assert.Equal(t, entity.DraftStatusSubmitted, submitted.Status)
}

func TestSubmitForReview_OnlyOwner(t *testing.T) {
	f := newFixture(t)
	d := f.upsert(t, map[string]any{"hobbies": "go"}).Draft
	other := entity.Actor{UserID: uuid.New(), Role: entity.RoleStudent, StudentID: "S2"}

	_, err := f.svc.SubmitForReview(context.Background(), d.ID, other, nil)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.SubmitForReview(context.Background(), uuid.New(), f.student, nil)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSubmitForReview_ConcurrentOnlyOneSucceeds(t *testing.T) {
	f := newFixture(t)
	d := f.upsert(t, map[string]any{"hobbies": "go"}).Draft

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SubmitForReview(context.Background(), d.ID, f.student, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperror.ErrAlreadySubmitted):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, rejected)
	after, _ := f.db.draftOf(testStudentID)
	assert.Equal(t, 1, after.SubmitCount)
	assert.Len(t, f.notifier.all(), 1)
}

func TestUpdateStatusByStaff_Approve(t *testing.T) {
	f := newFixture(t)
	d := f.upsert(t, map[string]any{
		"self_introduction": "hi",
		"skills":            []any{"go", "sql"},
		"qa":                map[string]any{"career": map[string]any{"goal": " engineer "}},
	}).Draft
	f.submit(t, d.ID)
	f.notifier.sent = nil

	approved := f.review(t, d.ID, "approved", nil)

	assert.Equal(t, entity.DraftStatusApproved, approved.Status)
	assert.Empty(t, approved.ChangedFields)
	assert.Equal(t, f.staff.UserID, *approved.ReviewedBy)

	live := f.db.student(testStudentID)
	assert.True(t, live.Visibility)
	snap := student.Snapshot(&live)
	assert.Equal(t, "hi", snap["self_introduction"])
	assert.Equal(t, []any{"go", "sql"}, snap["skills"])
	assert.Equal(t, "engineer", f.db.answers["S1/career/goal"].Answer)

	reviews, err := f.svc.ListReviews(context.Background(), d.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, entity.DraftStatusSubmitted, reviews[0].FromStatus)
	assert.Equal(t, entity.DraftStatusApproved, reviews[0].Status)
	assert.Equal(t, 1, reviews[0].Round)
	assert.ElementsMatch(t, []string{"self_introduction", "skills", "qa"}, []string(reviews[0].ChangedFields))

	sent := f.notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, f.studentUser.ID, sent[0].UserID)
	assert.Equal(t, entity.NotificationDraftApproved, sent[0].Type)
	assert.Contains(t, sent[0].Message, "Kenji Sato")
	assert.True(t, sent[1].Broadcast)
	assert.Equal(t, entity.RoleAdmin, sent[1].Role)

	assert.Equal(t, []string{testStudentID}, f.indexer.indexed)
}

func TestUpdateStatusByStaff_ResubmissionRequired(t *testing.T) {
	f := newFixture(t)
	d := f.upsert(t, map[string]any{"self_introduction": "hi"}).Draft
	f.submit(t, d.ID)
	f.notifier.sent = nil
	before := f.db.student(testStudentID)

	reviewed := f.review(t, d.ID, "resubmission_required", ptr("<b>fix X</b>"))

	assert.Equal(t, entity.DraftStatusResubmissionRequired, reviewed.Status)
	assert.Empty(t, reviewed.ChangedFields)
	require.NotNil(t, reviewed.Comments)
	assert.Equal(t, "fix X", *reviewed.Comments)

	after := f.db.student(testStudentID)
	assert.Equal(t, before.SelfIntroduction, after.SelfIntroduction)
	assert.False(t, after.Visibility)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, f.studentUser.ID, sent[0].UserID)
	assert.Equal(t, entity.NotificationDraftReviewed, sent[0].Type)
	assert.Contains(t, sent[0].Message, "resubmission required")
	assert.Contains(t, sent[0].Message, "fix X")
	assert.Empty(t, f.indexer.indexed)
}

func TestUpdateStatusByStaff_CheckingThenDisapproved(t *testing.T) {
	f := newFixture(t)
	d := f.upsert(t, map[string]any{"hobbies": "go"}).Draft
	f.submit(t, d.ID)
	f.notifier.sent = nil

	checking := f.review(t, d.ID, "checking", nil)
	assert.Equal(t, entity.DraftStatusChecking, checking.Status)
	assert.Equal(t, pq.StringArray{"hobbies"}, checking.ChangedFields)
	assert.Empty(t, f.notifier.all())

	disapproved := f.review(t, d.ID, "disapproved", ptr("   "))
	assert.Equal(t, entity.DraftStatusDisapproved, disapproved.Status)
	assert.Nil(t, disapproved.Comments)
	assert.Len(t, f.notifier.all(), 1)
	assert.Equal(t, 2, f.db.reviewCount())
}

func TestUpdateStatusByStaff_InvalidStatus(t *testing.T) {
	f := newFixture(t)
	d := f.upsert(t, map[string]any{"hobbies": "go"}).Draft
	f.submit(t, d.ID)

	for _, status := range []string{"draft", "submitted", "bogus", ""} {
		_, err := f.svc.UpdateStatusByStaff(context.Background(), d.ID, dto.UpdateStatusRequest{Status: status}, f.staff)
		assert.ErrorIs(t, err, apperror.ErrInvalidStatus, status)
	}

	_, err := f.svc.UpdateStatusByStaff(context.Background(), uuid.New(), dto.UpdateStatusRequest{Status: "approved"}, f.staff)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.svc.UpdateStatusByStaff(context.Background(), d.ID, dto.UpdateStatusRequest{Status: "approved"}, f.student)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestUpdateStatusByStaff_EditedAfterSubmit(t *testing.T) {
	f := newFixture(t)
	d := f.upsert(t, map[string]any{"hobbies": "go"}).Draft
	f.submit(t, d.ID)
	f.upsert(t, map[string]any{"hobbies": "rust"})

	_, err := f.svc.UpdateStatusByStaff(context.Background(), d.ID, dto.UpdateStatusRequest{Status: "approved"}, f.staff)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	assert.Nil(t, f.db.student(testStudentID).Hobbies)
}

func TestUpdateStatusByStaff_StaleVersion(t *testing.T) {
	f := newFixture(t)
	d := f.upsert(t, map[string]any{"hobbies": "go"}).Draft
	f.submit(t, d.ID)

	_, err := f.svc.UpdateStatusByStaff(context.Background(), d.ID, dto.UpdateStatusRequest{
		Status:  "approved",
		Version: ptr(d.Version),
	}, f.staff)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	after, _ := f.db.draftOf(testStudentID)
	assert.Equal(t, entity.DraftStatusSubmitted, after.Status)
}

func TestUpdateStatusByStaff_MergeFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	d := f.upsert(t, map[string]any{"hobbies": "go"}).Draft
	f.submit(t, d.ID)
	f.notifier.sent = nil
	f.db.failStudentUpdate = errors.New("connection reset")

	_, err := f.svc.UpdateStatusByStaff(context.Background(), d.ID, dto.UpdateStatusRequest{Status: "approved"}, f.staff)
	require.Error(t, err)

	after, _ := f.db.draftOf(testStudentID)
	assert.Equal(t, entity.DraftStatusSubmitted, after.Status)
	assert.Equal(t, pq.StringArray{"hobbies"}, after.ChangedFields)
	assert.Nil(t, after.ReviewedBy)
	assert.Zero(t, f.db.reviewCount())
	assert.Empty(t, f.notifier.all())
	assert.Empty(t, f.indexer.indexed)
}

func TestUpdateStatusByStaff_NotificationFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	d := f.upsert(t, map[string]any{"hobbies": "go"}).Draft
	f.submit(t, d.ID)
	f.notifier.fail = errors.New("redis down")

	approved := f.review(t, d.ID, "approved", nil)
	assert.Equal(t, entity.DraftStatusApproved, approved.Status)

	after, _ := f.db.draftOf(testStudentID)
	assert.Equal(t, entity.DraftStatusApproved, after.Status)
}

func TestDeliverables(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	image := &commonDto.ImageFile{Reader: strings.NewReader("png"), FileName: "shot.png"}
	d, err := f.svc.AddDeliverable(ctx, testStudentID, f.student, dto.DeliverableInput{
		Title: "Portfolio site",
		Link:  "https://example.com",
	}, image)
	require.NoError(t, err)

	// The draft is seeded from the live profile.
	assert.Equal(t, "old intro", d.Data()["self_introduction"])
	assert.Equal(t, pq.StringArray{"deliverables"}, d.ChangedFields)
	items := d.Data()["deliverables"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "Portfolio site", item["title"])
	assert.Equal(t, f.images.uploads[0], item["image_url"])
	id := item["id"].(string)

	replacement := &commonDto.ImageFile{Reader: strings.NewReader("png"), FileName: "new.png"}
	d, err = f.svc.UpdateDeliverable(ctx, testStudentID, f.student, id, dto.DeliverableInput{Title: "Renamed"}, replacement)
	require.NoError(t, err)
	item = d.Data()["deliverables"].([]any)[0].(map[string]any)
	assert.Equal(t, "Renamed", item["title"])
	assert.Equal(t, f.images.uploads[1], item["image_url"])
	assert.Equal(t, []string{f.images.uploads[0]}, f.images.deleted)

	d, err = f.svc.RemoveDeliverable(ctx, testStudentID, f.student, id, nil)
	require.NoError(t, err)
	assert.Empty(t, d.Data()["deliverables"])
	assert.Equal(t, pq.StringArray{"deliverables"}, d.ChangedFields)
	assert.Equal(t, []string{f.images.uploads[0], f.images.uploads[1]}, f.images.deleted)
}

func TestDeliverables_UnknownIDCleansUpUpload(t *testing.T) {
	f := newFixture(t)
	image := &commonDto.ImageFile{Reader: strings.NewReader("png"), FileName: "shot.png"}

	_, err := f.svc.UpdateDeliverable(context.Background(), testStudentID, f.student, "missing", dto.DeliverableInput{Title: "x"}, image)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, f.images.uploads, f.images.deleted)

	_, ok := f.db.draftOf(testStudentID)
	assert.False(t, ok)
}

func TestDeliverables_KeepsImageUsedByLiveProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.AddDeliverable(ctx, testStudentID, f.student, dto.DeliverableInput{Title: "App"},
		&commonDto.ImageFile{Reader: strings.NewReader("png"), FileName: "app.png"})
	require.NoError(t, err)
	f.submit(t, d.ID)
	f.review(t, d.ID, "approved", nil)

	id := d.Data()["deliverables"].([]any)[0].(map[string]any)["id"].(string)
	d, err = f.svc.RemoveDeliverable(ctx, testStudentID, f.student, id, nil)
	require.NoError(t, err)

	assert.Equal(t, entity.DraftStatusDraft, d.Status)
	assert.Empty(t, f.images.deleted)
}

func TestGetByStudentID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.GetByStudentID(ctx, testStudentID, f.student)
	require.NoError(t, err)
	assert.Nil(t, d)

	f.upsert(t, map[string]any{"hobbies": "go"})
	d, err = f.svc.GetByStudentID(ctx, testStudentID, f.staff)
	require.NoError(t, err)
	require.NotNil(t, d)

	_, err = f.svc.GetByStudentID(ctx, testStudentID, entity.Actor{Role: entity.RoleStudent, StudentID: "S2"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestListDraftsAndCountPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.upsert(t, map[string]any{"hobbies": "go"}).Draft
	f.submit(t, d.ID)

	res, err := f.svc.ListDrafts(ctx, dto.DraftListQuery{Status: "submitted"})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, int64(1), res.Meta.TotalItems)
	assert.Equal(t, 1, res.Meta.CurrentPage)

	res, err = f.svc.ListDrafts(ctx, dto.DraftListQuery{Status: "approved"})
	require.NoError(t, err)
	assert.Empty(t, res.Data)

	n, err := f.svc.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeleteDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.upsert(t, map[string]any{"hobbies": "go"}).Draft

	deleted, err := f.svc.DeleteDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, deleted.ID)

	_, err = f.svc.GetByID(ctx, d.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.svc.DeleteDraft(ctx, d.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
