package repository

import (
	"context"
	"fmt"
	"time"

	"anoa.com/studentportfolio/internal/entity"
	"anoa.com/studentportfolio/pkg/apperror"
	"anoa.com/studentportfolio/pkg/database"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DraftFilter struct {
	Status entity.DraftStatus
	Limit  int
	Offset int
}

// DraftRepository persists drafts and their review history. Every method
// joins the transaction carried by ctx.
type DraftRepository interface {
	Create(ctx context.Context, draft *entity.Draft) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Draft, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Draft, error)
	FindByStudentID(ctx context.Context, studentID string, versionType entity.VersionType) (*entity.Draft, error)
	FindByStudentIDForUpdate(ctx context.Context, studentID string, versionType entity.VersionType) (*entity.Draft, error)
	// Save writes draft only if the stored version still equals expectedVersion,
	// then bumps draft.Version. A lost race returns apperror.ErrConflict.
	Save(ctx context.Context, draft *entity.Draft, expectedVersion int) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter DraftFilter) ([]entity.Draft, int64, error)
	CountByStatus(ctx context.Context, statuses ...entity.DraftStatus) (int64, error)
	CreateReview(ctx context.Context, review *entity.DraftReview) error
	ListReviews(ctx context.Context, draftID uuid.UUID) ([]entity.DraftReview, error)
}

type draftRepository struct {
	db *gorm.DB
}

func NewDraftRepository(db *gorm.DB) DraftRepository {
	return &draftRepository{db: db}
}

func (r *draftRepository) Create(ctx context.Context, draft *entity.Draft) error {
	if draft.ChangedFields == nil {
		draft.ChangedFields = pq.StringArray{}
	}
	if draft.Version == 0 {
		draft.Version = 1
	}
	return database.Conn(ctx, r.db).Create(draft).Error
}

func (r *draftRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Draft, error) {
	var draft entity.Draft
	if err := database.Conn(ctx, r.db).First(&draft, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *draftRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Draft, error) {
	var draft entity.Draft
	if err := database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&draft, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *draftRepository) FindByStudentID(ctx context.Context, studentID string, versionType entity.VersionType) (*entity.Draft, error) {
	var draft entity.Draft
	if err := database.Conn(ctx, r.db).
		Where("student_id = ? AND version_type = ?", studentID, versionType).
		First(&draft).Error; err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *draftRepository) FindByStudentIDForUpdate(ctx context.Context, studentID string, versionType entity.VersionType) (*entity.Draft, error) {
	var draft entity.Draft
	if err := database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_id = ? AND version_type = ?", studentID, versionType).
		First(&draft).Error; err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *draftRepository) Save(ctx context.Context, draft *entity.Draft, expectedVersion int) error {
	changed := draft.ChangedFields
	if changed == nil {
		changed = pq.StringArray{}
	}

	now := time.Now()
	res := database.Conn(ctx, r.db).Model(&entity.Draft{}).
		Where("id = ? AND version = ?", draft.ID, expectedVersion).
		Updates(map[string]any{
			"profile_data":   draft.ProfileData,
			"changed_fields": changed,
			"status":         draft.Status,
			"submit_count":   draft.SubmitCount,
			"comments":       draft.Comments,
			"reviewed_by":    draft.ReviewedBy,
			"version":        expectedVersion + 1,
			"updated_at":     now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("draft %s at version %d: %w", draft.ID, expectedVersion, apperror.ErrConflict)
	}

	draft.ChangedFields = changed
	draft.Version = expectedVersion + 1
	draft.UpdatedAt = now
	return nil
}

func (r *draftRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := database.Conn(ctx, r.db).Delete(&entity.Draft{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *draftRepository) List(ctx context.Context, filter DraftFilter) ([]entity.Draft, int64, error) {
	var (
		drafts []entity.Draft
		total  int64
	)

	query := database.Conn(ctx, r.db).Model(&entity.Draft{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("updated_at desc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&drafts).Error; err != nil {
		return nil, 0, err
	}
	return drafts, total, nil
}

func (r *draftRepository) CountByStatus(ctx context.Context, statuses ...entity.DraftStatus) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&entity.Draft{}).
		Where("status IN ?", statuses).
		Count(&count).Error
	return count, err
}

func (r *draftRepository) CreateReview(ctx context.Context, review *entity.DraftReview) error {
	return database.Conn(ctx, r.db).Create(review).Error
}

func (r *draftRepository) ListReviews(ctx context.Context, draftID uuid.UUID) ([]entity.DraftReview, error) {
	var reviews []entity.DraftReview
	err := database.Conn(ctx, r.db).
		Where("draft_id = ?", draftID).
		Order("created_at asc").
		Find(&reviews).Error
	return reviews, err
}
