package models

import "fmt"

// CapacityExceededError reports a rejected assignment together with the
// numbers that caused it, so the caller can render the full picture.
type CapacityExceededError struct {
	TeacherID  string `json:"teacher_id"`
	PeriodID   string `json:"period_id"`
	Current    int    `json:"current"`
	Additional int    `json:"additional"`
	Cap        int    `json:"cap"`
}

// Error implements the error interface.
func (e *CapacityExceededError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("teacher %s would hold %d of %d weekly hours (%d assigned, %d requested)",
		e.TeacherID, e.Current+e.Additional, e.Cap, e.Current, e.Additional)
}
