package handler

import (
	"net/http"

	setting "anoa.com/studentportfolio/internal/modules/setting/service"
	"anoa.com/studentportfolio/pkg/apperror"
	"anoa.com/studentportfolio/pkg/response"
	"github.com/gin-gonic/gin"
)

type SettingHandler struct {
	service setting.SettingService
}

func NewSettingHandler(service setting.SettingService) *SettingHandler {
	return &SettingHandler{service: service}
}

func (h *SettingHandler) GetSetting(c *gin.Context) {
	s, err := h.service.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s})
}

func (h *SettingHandler) PutSetting(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		response.ResponseError(c, apperror.New(http.StatusBadRequest, "request body is required", apperror.ErrBadRequest))
		return
	}

	s, err := h.service.Put(c.Request.Context(), c.Param("key"), body)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "setting saved", "data": s})
}
