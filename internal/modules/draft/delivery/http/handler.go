package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"anoa.com/studentportfolio/internal/entity"
	"anoa.com/studentportfolio/internal/middleware"
	"anoa.com/studentportfolio/internal/modules/draft/dto"
	draft "anoa.com/studentportfolio/internal/modules/draft/service"
	"anoa.com/studentportfolio/pkg/apperror"
	commonDto "anoa.com/studentportfolio/pkg/dto"
	"anoa.com/studentportfolio/pkg/response"
	"anoa.com/studentportfolio/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxImageSize = 5 << 20

type DraftHandler struct {
	service draft.DraftService
}

func NewDraftHandler(service draft.DraftService) *DraftHandler {
	return &DraftHandler{service: service}
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
}

// studentActor returns the caller when it is a student bound to a profile.
func studentActor(c *gin.Context) (entity.Actor, bool) {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return entity.Actor{}, false
	}
	if !actor.IsStudent() || actor.StudentID == "" {
		response.ResponseError(c, apperror.New(http.StatusForbidden, "no student profile linked to this account", apperror.ErrForbidden))
		return entity.Actor{}, false
	}
	return actor, true
}

func (h *DraftHandler) GetMyDraft(c *gin.Context) {
	actor, ok := studentActor(c)
	if !ok {
		return
	}

	d, err := h.service.GetByStudentID(c.Request.Context(), actor.StudentID, actor)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": d})
}

func (h *DraftHandler) UpsertMyDraft(c *gin.Context) {
	actor, ok := studentActor(c)
	if !ok {
		return
	}

	var req dto.UpsertDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.service.UpsertDraft(c.Request.Context(), actor.StudentID, actor, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": res.Draft, "created": res.Created})
}

func (h *DraftHandler) Submit(c *gin.Context) {
	actor, ok := studentActor(c)
	if !ok {
		return
	}

	id, err := response.ParseUUIDParam(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	// The body is optional and may arrive chunked.
	var req dto.SubmitDraftRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			bindError(c, err)
			return
		}
	}

	var hint *uuid.UUID
	if req.StaffID != nil {
		staffID, err := uuid.Parse(*req.StaffID)
		if err != nil {
			response.ResponseError(c, apperror.New(http.StatusBadRequest, "invalid staff_id", apperror.ErrBadRequest))
			return
		}
		hint = &staffID
	}

	d, err := h.service.SubmitForReview(c.Request.Context(), id, actor, hint)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "draft submitted for review", "data": d})
}

func (h *DraftHandler) AddDeliverable(c *gin.Context) {
	actor, ok := studentActor(c)
	if !ok {
		return
	}

	var input dto.DeliverableInput
	if err := c.ShouldBind(&input); err != nil {
		bindError(c, err)
		return
	}

	image, ok := readImage(c)
	if !ok {
		return
	}
	defer closeImage(image)

	d, err := h.service.AddDeliverable(c.Request.Context(), actor.StudentID, actor, input, image)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": d})
}

func (h *DraftHandler) UpdateDeliverable(c *gin.Context) {
	actor, ok := studentActor(c)
	if !ok {
		return
	}

	var input dto.DeliverableInput
	if err := c.ShouldBind(&input); err != nil {
		bindError(c, err)
		return
	}

	image, ok := readImage(c)
	if !ok {
		return
	}
	defer closeImage(image)

	d, err := h.service.UpdateDeliverable(c.Request.Context(), actor.StudentID, actor, c.Param("deliverable_id"), input, image)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": d})
}

func (h *DraftHandler) RemoveDeliverable(c *gin.Context) {
	actor, ok := studentActor(c)
	if !ok {
		return
	}

	var q struct {
		Version *int `form:"version"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	d, err := h.service.RemoveDeliverable(c.Request.Context(), actor.StudentID, actor, c.Param("deliverable_id"), q.Version)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": d})
}

func (h *DraftHandler) ListDrafts(c *gin.Context) {
	var q dto.DraftListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.service.ListDrafts(c.Request.Context(), q)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *DraftHandler) GetDraft(c *gin.Context) {
	id, err := response.ParseUUIDParam(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	d, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": d})
}

func (h *DraftHandler) ListReviews(c *gin.Context) {
	id, err := response.ParseUUIDParam(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	reviews, err := h.service.ListReviews(c.Request.Context(), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reviews})
}

func (h *DraftHandler) GetStudentDraft(c *gin.Context) {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	d, err := h.service.GetByStudentID(c.Request.Context(), c.Param("student_id"), actor)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": d})
}

func (h *DraftHandler) UpdateStatus(c *gin.Context) {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	id, err := response.ParseUUIDParam(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	d, err := h.service.UpdateStatusByStaff(c.Request.Context(), id, req, actor)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "draft status updated", "data": d})
}

func (h *DraftHandler) DeleteDraft(c *gin.Context) {
	id, err := response.ParseUUIDParam(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	d, err := h.service.DeleteDraft(c.Request.Context(), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "draft deleted", "data": d})
}

func closeImage(image *commonDto.ImageFile) {
	if image == nil {
		return
	}
	if closer, ok := image.Reader.(io.Closer); ok {
		closer.Close()
	}
}

// readImage returns the optional "image" form file. A JSON request carries
// no image. It writes the error response itself and reports false on failure.
func readImage(c *gin.Context) (*commonDto.ImageFile, bool) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, true
		}
		response.ResponseError(c, apperror.New(http.StatusBadRequest, "invalid image upload", apperror.ErrBadRequest))
		return nil, false
	}

	if fileHeader.Size > maxImageSize {
		response.ResponseError(c, apperror.New(http.StatusBadRequest, "image must be 5MB or smaller", apperror.ErrBadRequest))
		return nil, false
	}

	switch strings.ToLower(filepath.Ext(fileHeader.Filename)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
	default:
		response.ResponseError(c, apperror.New(http.StatusBadRequest, "unsupported image type", apperror.ErrBadRequest))
		return nil, false
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.ResponseError(c, err)
		return nil, false
	}
	return &commonDto.ImageFile{Reader: file, FileName: fileHeader.Filename}, true
}
