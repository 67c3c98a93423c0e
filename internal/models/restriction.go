package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RestrictionKind enumerates the supported scheduling rules.
type RestrictionKind string

const (
	// RestrictionDayBlocked forbids placements on a weekday for the target.
	RestrictionDayBlocked RestrictionKind = "DAY_BLOCKED"
)

// RestrictionTarget identifies what entity a restriction constrains.
type RestrictionTarget string

const (
	TargetTeacher RestrictionTarget = "TEACHER"
	TargetRoom    RestrictionTarget = "ROOM"
	TargetSystem  RestrictionTarget = "SYSTEM"
)

// HardWeight is the threshold at or above which a restriction blocks a
// placement instead of merely warning.
const HardWeight = 100

// Restriction is a read-only scheduling rule. Rule holds a kind-specific
// JSON payload; for DAY_BLOCKED it is {"weekday": n}.
type Restriction struct {
	ID         string            `db:"id" json:"id"`
	Kind       RestrictionKind   `db:"kind" json:"kind"`
	TargetKind RestrictionTarget `db:"target_kind" json:"target_kind"`
	TargetID   string            `db:"target_id" json:"target_id"`
	PeriodID   *string           `db:"period_id" json:"period_id,omitempty"`
	Rule       types.JSONText    `db:"rule" json:"rule"`
	Weight     int               `db:"weight" json:"weight"`
	Active     bool              `db:"active" json:"active"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
}

// Hard reports whether the restriction blocks rather than advises.
func (r Restriction) Hard() bool {
	return r.Weight >= HardWeight
}

// DayBlockedRule is the payload of a DAY_BLOCKED restriction.
type DayBlockedRule struct {
	Weekday int `json:"weekday"`
}

// BlockedWeekday decodes the rule payload. The second return is false when
// the restriction is not a decodable DAY_BLOCKED rule.
func (r Restriction) BlockedWeekday() (int, bool) {
	if r.Kind != RestrictionDayBlocked || len(r.Rule) == 0 {
		return 0, false
	}
	var rule DayBlockedRule
	if err := json.Unmarshal(r.Rule, &rule); err != nil {
		return 0, false
	}
	if rule.Weekday < 1 || rule.Weekday > 7 {
		return 0, false
	}
	return rule.Weekday, true
}
