package dto

// RunAlertsQuery binds the query string of an alert run.
type RunAlertsQuery struct {
	CourseID  string `form:"courseId" validate:"omitempty,max=64"`
	Reminders string `form:"reminders" validate:"omitempty,oneof=0 1"`
}

// IncludeReminders reports whether the stale-case sweep was requested.
func (q RunAlertsQuery) IncludeReminders() bool {
	return q.Reminders == "1"
}
