package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
	"github.com/acadplan/timetable-api/pkg/export"
)

type gridEntryLister interface {
	ListActiveByPeriod(ctx context.Context, periodID string) ([]models.ScheduleEntryDetail, error)
}

// TimetableService serves the period grid read model and its exports.
type TimetableService struct {
	periods     periodReader
	entries     gridEntryLister
	cache       *CacheService
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	exportTitle string
	logger      *zap.Logger
}

// NewTimetableService wires grid read dependencies.
func NewTimetableService(periods periodReader, entries gridEntryLister, cache *CacheService, exportTitle string, logger *zap.Logger) *TimetableService {
	if exportTitle == "" {
		exportTitle = "Timetable"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		periods:     periods,
		entries:     entries,
		cache:       cache,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		exportTitle: exportTitle,
		logger:      logger,
	}
}

// GetGrid returns every active cell of a period, occupied and empty, with
// session and block context resolved. Results are served from the Redis
// cache when fresh.
func (s *TimetableService) GetGrid(ctx context.Context, periodID string) ([]models.ScheduleEntryDetail, error) {
	if periodID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "periodId is required")
	}

	var cached []models.ScheduleEntryDetail
	if s.cache.GetPeriodGrid(ctx, periodID, &cached) {
		return cached, nil
	}

	if _, err := s.periods.FindByID(ctx, periodID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}

	entries, err := s.entries.ListActiveByPeriod(ctx, periodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period grid")
	}

	s.cache.SetPeriodGrid(ctx, periodID, entries)
	return entries, nil
}

// Export renders a period's occupied cells to CSV or PDF and returns the
// payload with its content type and suggested file name.
func (s *TimetableService) Export(ctx context.Context, periodID, format string) ([]byte, string, string, error) {
	entries, err := s.GetGrid(ctx, periodID)
	if err != nil {
		return nil, "", "", err
	}

	dataset := buildGridDataset(entries)
	switch strings.ToLower(format) {
	case "csv", "":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", fmt.Sprintf("timetable-%s.csv", periodID), nil
	case "pdf":
		payload, err := s.pdf.Render(dataset, s.exportTitle)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", fmt.Sprintf("timetable-%s.pdf", periodID), nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

var weekdayNames = map[int]string{
	1: "Monday",
	2: "Tuesday",
	3: "Wednesday",
	4: "Thursday",
	5: "Friday",
	6: "Saturday",
	7: "Sunday",
}

func buildGridDataset(entries []models.ScheduleEntryDetail) export.Dataset {
	headers := []string{"Day", "Start", "End", "Cycle", "Group", "Course", "Kind", "Room"}
	rows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		if entry.SessionID == nil {
			continue
		}
		row := map[string]string{
			"Day":   weekdayNames[entry.Weekday],
			"Start": entry.BlockStart,
			"End":   entry.BlockEnd,
			"Cycle": fmt.Sprintf("%d", entry.Cycle),
			"Group": entry.GroupLabel,
		}
		if entry.CourseName != nil {
			row["Course"] = *entry.CourseName
		}
		if entry.SessionKind != nil {
			row["Kind"] = *entry.SessionKind
		}
		if entry.RoomName != nil {
			row["Room"] = *entry.RoomName
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
