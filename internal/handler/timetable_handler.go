package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
	"github.com/acadplan/timetable-api/pkg/response"
)

type placementOperator interface {
	Validate(ctx context.Context, req dto.ValidatePlacementRequest) (*dto.ValidatePlacementResponse, error)
	Assign(ctx context.Context, req dto.AssignPlacementRequest) (*models.ScheduleEntry, error)
	Clear(ctx context.Context, req dto.ClearPlacementRequest) error
}

type timetableGenerator interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	Commit(ctx context.Context, req dto.CommitTimetableRequest) (*dto.CommitTimetableResult, error)
}

type gridReader interface {
	GetGrid(ctx context.Context, periodID string) ([]models.ScheduleEntryDetail, error)
	Export(ctx context.Context, periodID, format string) ([]byte, string, string, error)
}

// TimetableHandler exposes the timetable grid, validation and generation
// endpoints.
type TimetableHandler struct {
	placements placementOperator
	generator  timetableGenerator
	grid       gridReader
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(placements placementOperator, generator timetableGenerator, grid gridReader) *TimetableHandler {
	return &TimetableHandler{placements: placements, generator: generator, grid: grid}
}

// Get godoc
// @Summary Get the timetable grid of a period
// @Tags Timetable
// @Produce json
// @Param periodId query string true "Period ID"
// @Success 200 {object} response.Envelope
// @Router /timetable [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	entries, err := h.grid.GetGrid(c.Request.Context(), c.Query("periodId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Validate godoc
// @Summary Validate a candidate placement without committing it
// @Description Returns every violated rule at once; legal is false when any blocking reason remains.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.ValidatePlacementRequest true "Placement payload"
// @Success 200 {object} response.Envelope
// @Router /timetable/validate [post]
func (h *TimetableHandler) Validate(c *gin.Context) {
	var req dto.ValidatePlacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid placement payload"))
		return
	}
	result, err := h.placements.Validate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Assign godoc
// @Summary Assign a session to a grid cell
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.AssignPlacementRequest true "Placement payload"
// @Success 200 {object} response.Envelope
// @Router /timetable/assign [post]
func (h *TimetableHandler) Assign(c *gin.Context) {
	var req dto.AssignPlacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid placement payload"))
		return
	}
	entry, err := h.placements.Assign(c.Request.Context(), req)
	if err != nil {
		respondPlacementError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Clear godoc
// @Summary Reset a grid cell to its empty state
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.ClearPlacementRequest true "Clear payload"
// @Success 204
// @Router /timetable/clear [post]
func (h *TimetableHandler) Clear(c *gin.Context) {
	var req dto.ClearPlacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid clear payload"))
		return
	}
	if err := h.placements.Clear(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Generate godoc
// @Summary Generate a timetable proposal for a period
// @Description Runs the greedy allocator over pending sessions. Unplaced sessions are part of the normal result.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation payload"
// @Success 200 {object} response.Envelope
// @Router /timetable/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation payload"))
		return
	}
	result, err := h.generator.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Commit godoc
// @Summary Commit a generated proposal to the grid
// @Description Re-validates every cell against the live grid; placements the grid outran are reported as rejected.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.CommitTimetableRequest true "Commit payload"
// @Success 200 {object} response.Envelope
// @Router /timetable/commit [post]
func (h *TimetableHandler) Commit(c *gin.Context) {
	var req dto.CommitTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid commit payload"))
		return
	}
	result, err := h.generator.Commit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export a period's timetable
// @Tags Timetable
// @Produce text/csv,application/pdf
// @Param periodId query string true "Period ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} byte
// @Router /timetable/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	payload, contentType, filename, err := h.grid.Export(c.Request.Context(), c.Query("periodId"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

// respondPlacementError keeps the full reason list in the error payload
// when an assignment is rejected by validation.
func respondPlacementError(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	var conflict *models.PlacementConflictError
	if errors.As(err, &conflict) {
		c.Header("Cache-Control", "no-store")
		c.JSON(appErr.Status, response.Envelope{
			Error: appErr,
			Meta:  map[string]interface{}{"reasons": conflict.Reasons},
		})
		return
	}
	response.Error(c, err)
}
