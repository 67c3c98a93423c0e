package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/acadplan/timetable-api/internal/models"
)

// BlockRepository provides persistence for shift time blocks.
type BlockRepository struct {
	db *sqlx.DB
}

// NewBlockRepository creates a new block repository.
func NewBlockRepository(db *sqlx.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// FindByID loads a block.
func (r *BlockRepository) FindByID(ctx context.Context, id string) (*models.Block, error) {
	const query = `SELECT id, shift_id, weekday, start_time, end_time, block_order, active, created_at FROM blocks WHERE id = $1`
	var block models.Block
	if err := r.db.GetContext(ctx, &block, query, id); err != nil {
		return nil, err
	}
	return &block, nil
}

// ListActiveByShift returns a shift's active blocks ordered by weekday and
// position; the skeleton carved for a new group covers exactly these.
func (r *BlockRepository) ListActiveByShift(ctx context.Context, shiftID string) ([]models.Block, error) {
	const query = `SELECT id, shift_id, weekday, start_time, end_time, block_order, active, created_at FROM blocks WHERE shift_id = $1 AND active ORDER BY weekday ASC, block_order ASC`
	var blocks []models.Block
	if err := r.db.SelectContext(ctx, &blocks, query, shiftID); err != nil {
		return nil, fmt.Errorf("list blocks by shift: %w", err)
	}
	return blocks, nil
}

// FindByPosition resolves the concrete block at (shift, weekday, order),
// used when a generated placement is translated back into grid cells.
func (r *BlockRepository) FindByPosition(ctx context.Context, shiftID string, weekday, order int) (*models.Block, error) {
	const query = `SELECT id, shift_id, weekday, start_time, end_time, block_order, active, created_at FROM blocks WHERE shift_id = $1 AND weekday = $2 AND block_order = $3 AND active`
	var block models.Block
	if err := r.db.GetContext(ctx, &block, query, shiftID, weekday, order); err != nil {
		return nil, err
	}
	return &block, nil
}

// ShiftWeekdayMap returns the sorted weekdays on which each shift has at
// least one active block.
func (r *BlockRepository) ShiftWeekdayMap(ctx context.Context) (map[string][]int, error) {
	const query = `SELECT DISTINCT shift_id, weekday FROM blocks WHERE active ORDER BY shift_id, weekday`
	var rows []struct {
		ShiftID string `db:"shift_id"`
		Weekday int    `db:"weekday"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("load shift weekdays: %w", err)
	}
	result := make(map[string][]int)
	for _, row := range rows {
		result[row.ShiftID] = append(result[row.ShiftID], row.Weekday)
	}
	return result, nil
}

// ShiftBlockMap builds the explicit shift -> ordered block-order mapping
// the generator consumes. Orders are de-duplicated across weekdays and
// sorted ascending.
func (r *BlockRepository) ShiftBlockMap(ctx context.Context) (models.ShiftBlockMap, error) {
	const query = `SELECT id, shift_id, weekday, start_time, end_time, block_order, active, created_at FROM blocks WHERE active`
	var blocks []models.Block
	if err := r.db.SelectContext(ctx, &blocks, query); err != nil {
		return nil, fmt.Errorf("load blocks for shift map: %w", err)
	}

	seen := make(map[string]map[int]struct{})
	for _, block := range blocks {
		if seen[block.ShiftID] == nil {
			seen[block.ShiftID] = make(map[int]struct{})
		}
		seen[block.ShiftID][block.Order] = struct{}{}
	}

	result := make(models.ShiftBlockMap, len(seen))
	for shiftID, orders := range seen {
		list := make([]int, 0, len(orders))
		for order := range orders {
			list = append(list, order)
		}
		sort.Ints(list)
		result[shiftID] = list
	}
	return result, nil
}
