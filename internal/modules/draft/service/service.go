package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"

	"anoa.com/studentportfolio/internal/entity"
	"anoa.com/studentportfolio/internal/modules/draft/dto"
	"anoa.com/studentportfolio/internal/modules/draft/repository"
	notification "anoa.com/studentportfolio/internal/modules/notification/service"
	search "anoa.com/studentportfolio/internal/modules/search/service"
	settingDto "anoa.com/studentportfolio/internal/modules/setting/dto"
	student "anoa.com/studentportfolio/internal/modules/student/service"
	"anoa.com/studentportfolio/pkg/apperror"
	"anoa.com/studentportfolio/pkg/changeset"
	"anoa.com/studentportfolio/pkg/database"
	commonDto "anoa.com/studentportfolio/pkg/dto"
	"anoa.com/studentportfolio/pkg/metrics"
	"anoa.com/studentportfolio/pkg/storage"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

// errCreateRace marks a lost race on the (student_id, version_type) index.
var errCreateRace = errors.New("draft created concurrently")

type DraftService interface {
	UpsertDraft(ctx context.Context, studentID string, actor entity.Actor, req dto.UpsertDraftRequest) (*dto.UpsertDraftResponse, error)
	SubmitForReview(ctx context.Context, draftID uuid.UUID, actor entity.Actor, staffIDHint *uuid.UUID) (*entity.Draft, error)
	UpdateStatusByStaff(ctx context.Context, draftID uuid.UUID, req dto.UpdateStatusRequest, reviewer entity.Actor) (*entity.Draft, error)
	GetByStudentID(ctx context.Context, studentID string, actor entity.Actor) (*entity.Draft, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Draft, error)
	ListDrafts(ctx context.Context, q dto.DraftListQuery) (*dto.DraftListResponse, error)
	ListReviews(ctx context.Context, draftID uuid.UUID) ([]entity.DraftReview, error)
	DeleteDraft(ctx context.Context, id uuid.UUID) (*entity.Draft, error)
	CountPending(ctx context.Context) (int64, error)

	AddDeliverable(ctx context.Context, studentID string, actor entity.Actor, input dto.DeliverableInput, image *commonDto.ImageFile) (*entity.Draft, error)
	UpdateDeliverable(ctx context.Context, studentID string, actor entity.Actor, deliverableID string, input dto.DeliverableInput, image *commonDto.ImageFile) (*entity.Draft, error)
	RemoveDeliverable(ctx context.Context, studentID string, actor entity.Actor, deliverableID string, version *int) (*entity.Draft, error)
}

// QASchemaProvider returns the current questionnaire schema.
type QASchemaProvider interface {
	GetStudentQASchema(ctx context.Context) (settingDto.QASchema, error)
}

// UserFinder resolves reviewer names and staff hints.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*entity.User, error)
}

type draftService struct {
	repo     repository.DraftRepository
	students student.StudentService
	merger   student.ProfileMerger
	settings QASchemaProvider
	users    UserFinder
	notifier notification.Notifier
	images   storage.ImageStorage
	indexer  search.StudentIndexer
	tx       database.Transactor
	policy   *bluemonday.Policy
}

func NewDraftService(
	repo repository.DraftRepository,
	students student.StudentService,
	merger student.ProfileMerger,
	settings QASchemaProvider,
	users UserFinder,
	notifier notification.Notifier,
	images storage.ImageStorage,
	indexer search.StudentIndexer,
	tx database.Transactor,
) DraftService {
	return &draftService{
		repo:     repo,
		students: students,
		merger:   merger,
		settings: settings,
		users:    users,
		notifier: notifier,
		images:   images,
		indexer:  indexer,
		tx:       tx,
		policy:   bluemonday.StrictPolicy(),
	}
}

func requireOwner(actor entity.Actor, studentID string) error {
	if !actor.IsStudent() || actor.StudentID == "" || actor.StudentID != studentID {
		return fmt.Errorf("only the owning student may change this draft: %w", apperror.ErrForbidden)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, apperror.ErrNotFound)
	}
	return err
}

func checkVersion(expected *int, actual int) error {
	if expected != nil && *expected != actual {
		return fmt.Errorf("draft is at version %d, request was based on %d: %w", actual, *expected, apperror.ErrConflict)
	}
	return nil
}

// mutation describes one student edit. build returns the next document from
// the current one and must not modify its argument.
type mutation struct {
	op      string
	version *int
	build   func(current map[string]any) (map[string]any, error)
	// always lists fields recorded as changed even when their value is equal.
	always []string
	// seedFromProfile starts a missing draft from the live profile instead of
	// an empty document.
	seedFromProfile bool
}

type mutationResult struct {
	draft   *entity.Draft
	created bool
	from    entity.DraftStatus
}

// mutate is the single write path for student edits. It locks the draft,
// accumulates changed_fields and resets status through Transition.
func (s *draftService) mutate(ctx context.Context, studentID string, m mutation) (*mutationResult, error) {
	var res *mutationResult

	attempt := func(ctx context.Context) error {
		d, err := s.repo.FindByStudentIDForUpdate(ctx, studentID, entity.VersionTypeDraft)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if d == nil {
			profile, err := s.students.FindByStudentID(ctx, studentID)
			if err != nil {
				return err
			}
			if m.version != nil && *m.version != 0 {
				return fmt.Errorf("draft no longer exists: %w", apperror.ErrConflict)
			}

			base := map[string]any{}
			if m.seedFromProfile {
				base = student.Snapshot(profile)
			}
			doc, err := m.build(base)
			if err != nil {
				return err
			}

			var changed []string
			if m.seedFromProfile {
				changed = changeset.ChangedKeys(doc, base)
			} else {
				changed = changeset.Keys(doc)
			}
			changed = changeset.Retain(changeset.Union(changed, m.always...), doc)

			d = &entity.Draft{
				StudentID:     studentID,
				VersionType:   entity.VersionTypeDraft,
				ProfileData:   doc,
				ChangedFields: pq.StringArray(changed),
				Status:        entity.DraftStatusDraft,
				Version:       1,
			}
			if err := s.repo.Create(ctx, d); err != nil {
				if database.IsUniqueViolation(err) {
					return errCreateRace
				}
				return err
			}
			res = &mutationResult{draft: d, created: true, from: entity.DraftStatusDraft}
			return nil
		}

		if err := checkVersion(m.version, d.Version); err != nil {
			return err
		}

		current := d.Data()
		doc, err := m.build(current)
		if err != nil {
			return err
		}

		changed := changeset.Union(d.ChangedFields, changeset.ChangedKeys(doc, current)...)
		changed = changeset.Retain(changeset.Union(changed, m.always...), doc)

		from := d.Status
		next, err := Transition(from, EventEdit, "")
		if err != nil {
			return err
		}

		d.ProfileData = doc
		d.ChangedFields = pq.StringArray(changed)
		d.Status = next
		if err := s.repo.Save(ctx, d, d.Version); err != nil {
			return err
		}
		res = &mutationResult{draft: d, from: from}
		return nil
	}

	err := s.tx.WithinTransaction(ctx, attempt)
	if errors.Is(err, errCreateRace) {
		// The row exists now; the retry takes its lock and merges into it.
		metrics.ObserveConflict(m.op)
		err = s.tx.WithinTransaction(ctx, attempt)
	}
	if err != nil {
		if errors.Is(err, errCreateRace) {
			return nil, fmt.Errorf("%v: %w", err, apperror.ErrConflict)
		}
		if errors.Is(err, apperror.ErrConflict) {
			metrics.ObserveConflict(m.op)
		}
		return nil, err
	}

	if res.from != res.draft.Status {
		metrics.ObserveTransition(string(res.from), string(res.draft.Status))
	}
	return res, nil
}

func (s *draftService) UpsertDraft(ctx context.Context, studentID string, actor entity.Actor, req dto.UpsertDraftRequest) (*dto.UpsertDraftResponse, error) {
	if err := requireOwner(actor, studentID); err != nil {
		return nil, err
	}
	if req.ProfileData == nil {
		return nil, fmt.Errorf("profile_data is required: %w", apperror.ErrInvalidInput)
	}
	if err := student.ValidateProfileData(req.ProfileData); err != nil {
		return nil, err
	}

	res, err := s.mutate(ctx, studentID, mutation{
		op:      "upsert",
		version: req.Version,
		build: func(map[string]any) (map[string]any, error) {
			return copyDoc(req.ProfileData), nil
		},
	})
	if err != nil {
		return nil, err
	}

	return &dto.UpsertDraftResponse{Draft: res.draft, Created: res.created}, nil
}

func (s *draftService) SubmitForReview(ctx context.Context, draftID uuid.UUID, actor entity.Actor, staffIDHint *uuid.UUID) (*entity.Draft, error) {
	var (
		submitted *entity.Draft
		from      entity.DraftStatus
	)

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		d, err := s.repo.FindByIDForUpdate(ctx, draftID)
		if err != nil {
			return notFound(err, "draft "+draftID.String())
		}
		if err := requireOwner(actor, d.StudentID); err != nil {
			return err
		}

		next, err := Transition(d.Status, EventSubmit, "")
		if err != nil {
			return err
		}
		if err := s.checkRequiredAnswers(ctx, d); err != nil {
			return err
		}

		from = d.Status
		d.Status = next
		d.SubmitCount++
		d.Comments = nil
		if err := s.repo.Save(ctx, d, d.Version); err != nil {
			return err
		}

		// A profile pending review must not stay public.
		if err := s.students.SetVisibility(ctx, d.StudentID, false); err != nil {
			return err
		}

		submitted = d
		return nil
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			metrics.ObserveConflict("submit")
		}
		return nil, err
	}

	metrics.ObserveTransition(string(from), string(submitted.Status))
	log.Printf("[Draft] %s submitted draft %s (round %d)", submitted.StudentID, submitted.ID, submitted.SubmitCount)

	s.notifySubmitted(ctx, submitted, staffIDHint)
	s.unindex(submitted.StudentID)
	return submitted, nil
}

func (s *draftService) UpdateStatusByStaff(ctx context.Context, draftID uuid.UUID, req dto.UpdateStatusRequest, reviewer entity.Actor) (*entity.Draft, error) {
	if !reviewer.IsStaff() {
		return nil, fmt.Errorf("only staff may review drafts: %w", apperror.ErrForbidden)
	}
	requested, ok := entity.ParseDraftStatus(req.Status)
	if !ok {
		return nil, fmt.Errorf("unknown status %q: %w", req.Status, apperror.ErrInvalidStatus)
	}

	var (
		reviewed *entity.Draft
		from     entity.DraftStatus
	)

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		d, err := s.repo.FindByIDForUpdate(ctx, draftID)
		if err != nil {
			return notFound(err, "draft "+draftID.String())
		}
		if err := checkVersion(req.Version, d.Version); err != nil {
			return err
		}

		next, err := Transition(d.Status, EventReview, requested)
		if err != nil {
			return err
		}

		from = d.Status
		reviewedFields := append(pq.StringArray{}, d.ChangedFields...)

		d.Status = next
		d.Comments = s.sanitizeComments(req.Comments)
		reviewerID := reviewer.UserID
		d.ReviewedBy = &reviewerID
		if next.IsTerminal() {
			d.ChangedFields = pq.StringArray{}
		}
		if err := s.repo.Save(ctx, d, d.Version); err != nil {
			return err
		}

		if err := s.repo.CreateReview(ctx, &entity.DraftReview{
			DraftID:       d.ID,
			StudentID:     d.StudentID,
			Round:         d.SubmitCount,
			FromStatus:    from,
			Status:        next,
			Comments:      d.Comments,
			ReviewerID:    reviewerID,
			ChangedFields: reviewedFields,
		}); err != nil {
			return fmt.Errorf("failed to record review: %w", err)
		}

		if next == entity.DraftStatusApproved {
			if err := s.merger.Apply(ctx, d.StudentID, d.Data()); err != nil {
				return fmt.Errorf("failed to apply approved draft: %w", err)
			}
		}

		reviewed = d
		return nil
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			metrics.ObserveConflict("review")
		}
		return nil, err
	}

	metrics.ObserveTransition(string(from), string(reviewed.Status))
	log.Printf("[Draft] %s moved draft %s from %s to %s", reviewer.UserID, reviewed.ID, from, reviewed.Status)

	if reviewed.Status.IsTerminal() {
		s.notifyReviewed(ctx, reviewed, reviewer)
	}
	return reviewed, nil
}

func (s *draftService) GetByStudentID(ctx context.Context, studentID string, actor entity.Actor) (*entity.Draft, error) {
	if !actor.IsStaff() && actor.StudentID != studentID {
		return nil, apperror.ErrForbidden
	}

	d, err := s.repo.FindByStudentID(ctx, studentID, entity.VersionTypeDraft)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func (s *draftService) GetByID(ctx context.Context, id uuid.UUID) (*entity.Draft, error) {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "draft "+id.String())
	}
	return d, nil
}

func (s *draftService) ListDrafts(ctx context.Context, q dto.DraftListQuery) (*dto.DraftListResponse, error) {
	q.Normalize()
	drafts, total, err := s.repo.List(ctx, repository.DraftFilter{
		Status: entity.DraftStatus(q.Status),
		Limit:  q.Limit,
		Offset: q.Offset(),
	})
	if err != nil {
		return nil, err
	}
	if drafts == nil {
		drafts = []entity.Draft{}
	}
	return &dto.DraftListResponse{
		Data: drafts,
		Meta: commonDto.NewPaginationMeta(q.Page, q.Limit, total),
	}, nil
}

func (s *draftService) ListReviews(ctx context.Context, draftID uuid.UUID) ([]entity.DraftReview, error) {
	if _, err := s.GetByID(ctx, draftID); err != nil {
		return nil, err
	}
	return s.repo.ListReviews(ctx, draftID)
}

func (s *draftService) DeleteDraft(ctx context.Context, id uuid.UUID) (*entity.Draft, error) {
	var deleted *entity.Draft
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		d, err := s.repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "draft "+id.String())
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return notFound(err, "draft "+id.String())
		}
		deleted = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Draft] deleted draft %s of %s", deleted.ID, deleted.StudentID)
	return deleted, nil
}

func (s *draftService) CountPending(ctx context.Context) (int64, error) {
	return s.repo.CountByStatus(ctx, entity.DraftStatusSubmitted, entity.DraftStatusChecking)
}

func (s *draftService) sanitizeComments(in *string) *string {
	if in == nil {
		return nil
	}
	clean := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(*in)))
	if clean == "" {
		return nil
	}
	return &clean
}

func copyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
