package models

import "time"

// Shift is a named daily time window (morning, afternoon, evening) that owns
// an ordered list of blocks. The blocks usable by a group are exactly the
// blocks of the group's shift, resolved by id, never by the shift's name.
type Shift struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Block is the smallest schedulable unit inside a shift, ordered by Order
// within a weekday. Contiguity of a multi-hour session is defined purely in
// terms of consecutive Order values on the same shift and weekday.
type Block struct {
	ID        string    `db:"id" json:"id"`
	ShiftID   string    `db:"shift_id" json:"shift_id"`
	Weekday   int       `db:"weekday" json:"weekday"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	Order     int       `db:"block_order" json:"order"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ShiftBlockMap resolves a shift id to its sorted, de-duplicated block
// orders. It is precomputed by the storage layer and handed to the
// generator; the core never derives it from shift names.
type ShiftBlockMap map[string][]int
