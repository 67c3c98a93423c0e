package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acadplan/timetable-api/internal/dto"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
	"github.com/acadplan/timetable-api/pkg/response"
)

type availabilityReader interface {
	GetAvailability(ctx context.Context, teacherID, periodID string) (*dto.TeacherAvailabilityResponse, error)
}

// TeacherHandler exposes teacher capacity endpoints.
type TeacherHandler struct {
	capacity availabilityReader
}

// NewTeacherHandler constructs the handler.
func NewTeacherHandler(capacity availabilityReader) *TeacherHandler {
	return &TeacherHandler{capacity: capacity}
}

// Availability godoc
// @Summary Get a teacher's load within a period
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher ID"
// @Param periodId query string true "Period ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability [get]
func (h *TeacherHandler) Availability(c *gin.Context) {
	periodID := c.Query("periodId")
	if periodID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "periodId is required"))
		return
	}
	availability, err := h.capacity.GetAvailability(c.Request.Context(), c.Param("id"), periodID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, availability, nil)
}
