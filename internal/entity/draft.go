package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DraftStatus string

const (
	DraftStatusDraft                DraftStatus = "draft"
	DraftStatusSubmitted            DraftStatus = "submitted"
	DraftStatusChecking             DraftStatus = "checking"
	DraftStatusApproved             DraftStatus = "approved"
	DraftStatusResubmissionRequired DraftStatus = "resubmission_required"
	DraftStatusDisapproved          DraftStatus = "disapproved"
)

// ParseDraftStatus accepts only the known status values.
func ParseDraftStatus(s string) (DraftStatus, bool) {
	switch st := DraftStatus(s); st {
	case DraftStatusDraft, DraftStatusSubmitted, DraftStatusChecking,
		DraftStatusApproved, DraftStatusResubmissionRequired, DraftStatusDisapproved:
		return st, true
	}
	return "", false
}

// IsTerminal reports whether the status closes a review cycle.
func (s DraftStatus) IsTerminal() bool {
	return s == DraftStatusApproved || s == DraftStatusResubmissionRequired || s == DraftStatusDisapproved
}

type VersionType string

const (
	VersionTypeDraft   VersionType = "draft"
	VersionTypePending VersionType = "pending"
)

// Draft stages a student's edits until staff approve them.
// (student_id, version_type) is unique.
type Draft struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID     string            `gorm:"size:50;not null;uniqueIndex:idx_drafts_student_version,priority:1" json:"student_id"`
	VersionType   VersionType       `gorm:"size:20;not null;default:draft;uniqueIndex:idx_drafts_student_version,priority:2" json:"version_type"`
	ProfileData   datatypes.JSONMap `gorm:"type:jsonb;not null" json:"profile_data"`
	ChangedFields pq.StringArray    `gorm:"type:text[];not null;default:'{}'" json:"changed_fields"`
	Status        DraftStatus       `gorm:"size:30;not null;default:draft;index" json:"status"`
	SubmitCount   int               `gorm:"not null;default:0" json:"submit_count"`
	Comments      *string           `gorm:"type:text" json:"comments"`
	ReviewedBy    *uuid.UUID        `gorm:"type:uuid" json:"reviewed_by"`
	Version       int               `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d *Draft) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == uuid.Nil {
		d.ID, err = uuid.NewV7()
	}
	return
}

// Data returns profile_data as a plain map, never nil.
func (d *Draft) Data() map[string]any {
	if d.ProfileData == nil {
		return map[string]any{}
	}
	return map[string]any(d.ProfileData)
}

// DraftReview records one staff decision. Rows are never updated, so the
// history survives resubmissions.
type DraftReview struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DraftID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"draft_id"`
	StudentID     string         `gorm:"size:50;not null;index" json:"student_id"`
	Round         int            `gorm:"not null" json:"round"`
	FromStatus    DraftStatus    `gorm:"size:30;not null" json:"from_status"`
	Status        DraftStatus    `gorm:"size:30;not null" json:"status"`
	Comments      *string        `gorm:"type:text" json:"comments"`
	ReviewerID    uuid.UUID      `gorm:"type:uuid;not null" json:"reviewer_id"`
	ChangedFields pq.StringArray `gorm:"type:text[]" json:"changed_fields"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (r *DraftReview) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID, err = uuid.NewV7()
	}
	return
}
