package dto

import (
	"anoa.com/studentportfolio/internal/entity"
	commonDto "anoa.com/studentportfolio/pkg/dto"
)

type UpsertDraftRequest struct {
	ProfileData map[string]any `json:"profile_data" binding:"required"`
	// Version is the draft version the client last read. Omit to skip the check.
	Version *int `json:"version"`
}

type UpsertDraftResponse struct {
	Draft   *entity.Draft `json:"draft"`
	Created bool          `json:"created"`
}

type SubmitDraftRequest struct {
	StaffID *string `json:"staff_id" binding:"omitempty,uuid"`
}

type UpdateStatusRequest struct {
	Status   string  `json:"status" binding:"required"`
	Comments *string `json:"comments" binding:"omitempty,max=5000"`
	Version  *int    `json:"version"`
}

type DeliverableInput struct {
	Title       string `form:"title" json:"title" binding:"required,max=200"`
	Link        string `form:"link" json:"link" binding:"omitempty,url"`
	Description string `form:"description" json:"description" binding:"max=2000"`
	RemoveImage bool   `form:"remove_image" json:"remove_image"`
	Version     *int   `form:"version" json:"version"`
}

type DraftListQuery struct {
	commonDto.PaginationQuery
	Status string `form:"status" binding:"omitempty,oneof=draft submitted checking approved resubmission_required disapproved"`
}

type DraftListResponse struct {
	Data []entity.Draft           `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}
