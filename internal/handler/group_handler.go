package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
	"github.com/acadplan/timetable-api/pkg/response"
)

type groupProvisioner interface {
	CreateBatch(ctx context.Context, req dto.CreateGroupBatchRequest) (*dto.CreateGroupBatchResult, error)
	UpdateTeacher(ctx context.Context, groupID string, req dto.UpdateGroupTeacherRequest) (*models.GroupDetail, error)
	Delete(ctx context.Context, groupID string) error
}

// GroupHandler exposes group lifecycle endpoints.
type GroupHandler struct {
	service groupProvisioner
}

// NewGroupHandler constructs the handler.
func NewGroupHandler(service groupProvisioner) *GroupHandler {
	return &GroupHandler{service: service}
}

// CreateBatch godoc
// @Summary Provision a batch of groups for an opened course
// @Description Creates the groups with letter names, their sessions and the empty timetable skeleton of their shift.
// @Tags Groups
// @Accept json
// @Produce json
// @Param payload body dto.CreateGroupBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Router /groups/batch [post]
func (h *GroupHandler) CreateBatch(c *gin.Context) {
	var req dto.CreateGroupBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid group batch payload"))
		return
	}
	result, err := h.service.CreateBatch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// UpdateTeacher godoc
// @Summary Rebind a group's teacher
// @Description Checks the incoming teacher's weekly cap and recomputes availability for both teachers.
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body dto.UpdateGroupTeacherRequest true "Teacher payload"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/teacher [put]
func (h *GroupHandler) UpdateTeacher(c *gin.Context) {
	var req dto.UpdateGroupTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid teacher payload"))
		return
	}
	group, err := h.service.UpdateTeacher(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Delete godoc
// @Summary Deactivate a group and release its schedule
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 204
// @Router /groups/{id} [delete]
func (h *GroupHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
