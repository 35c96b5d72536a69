package models

// Rule identifiers tag automated cases and form part of their dedup key.
const (
	RuleAttendanceConsecutiveAbsences = "attendance_3_absences"
	RuleAttendanceBelow80             = "attendance_below_80"
	RulePartialsLowScores             = "partials_low_scores"
	RuleBehaviorRepeated              = "behavior_2_30d"
	RuleReportCardExamBelow5          = "reportcard_exam_lt5"
)

// AlertRuleIDs lists every rule in evaluation order.
var AlertRuleIDs = []string{
	RuleAttendanceConsecutiveAbsences,
	RuleAttendanceBelow80,
	RulePartialsLowScores,
	RuleBehaviorRepeated,
	RuleReportCardExamBelow5,
}

// RunScope selects what one alert run evaluates. An empty CourseID means every
// course of the current calendar year.
type RunScope struct {
	CourseID         string
	IncludeReminders bool
}

// RunResult summarises an alert run.
type RunResult struct {
	OK        bool `json:"ok"`
	Scanned   int  `json:"scanned"`
	Created   int  `json:"created"`
	Reminders int  `json:"reminders"`
}

// AutomatedCaseInput carries what the engine knows when a rule fires.
type AutomatedCaseInput struct {
	StudentID   string
	CourseID    *string
	Title       string
	Description string
	Category    CaseCategory
	Severity    CaseSeverity
	RuleID      string
	CreatedBy   string
}
