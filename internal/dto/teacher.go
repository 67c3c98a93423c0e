package dto

// TeacherAvailabilityResponse reports a teacher's load within a period
// against the active contract's weekly cap.
type TeacherAvailabilityResponse struct {
	TeacherID      string `json:"teacherId"`
	PeriodID       string `json:"periodId"`
	AssignedHours  int    `json:"assignedHours"`
	WeeklyHourCap  int    `json:"weeklyHourCap"`
	RemainingHours int    `json:"remainingHours"`
	HasContract    bool   `json:"hasContract"`
}
