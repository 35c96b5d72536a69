package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// CaseCategory classifies the concern a case tracks.
type CaseCategory string

const (
	CaseCategoryAcademicDifficulty CaseCategory = "ACADEMIC_DIFFICULTY"
	CaseCategoryBehavior           CaseCategory = "BEHAVIOR"
	CaseCategoryAttendance         CaseCategory = "ATTENDANCE"
	CaseCategoryAdmin              CaseCategory = "ADMIN"
	CaseCategoryOther              CaseCategory = "OTHER"
)

// CaseSeverity ranks how urgent a case is.
type CaseSeverity string

const (
	CaseSeverityLow    CaseSeverity = "LOW"
	CaseSeverityMedium CaseSeverity = "MEDIUM"
	CaseSeverityHigh   CaseSeverity = "HIGH"
)

// CaseStatus is the lifecycle state of a case. Cases are never deleted.
type CaseStatus string

const (
	CaseStatusOpen       CaseStatus = "OPEN"
	CaseStatusInProgress CaseStatus = "IN_PROGRESS"
	CaseStatusResolved   CaseStatus = "RESOLVED"
	CaseStatusArchived   CaseStatus = "ARCHIVED"
)

var caseTransitions = map[CaseStatus][]CaseStatus{
	CaseStatusOpen:       {CaseStatusInProgress, CaseStatusResolved, CaseStatusArchived},
	CaseStatusInProgress: {CaseStatusOpen, CaseStatusResolved, CaseStatusArchived},
	CaseStatusResolved:   {CaseStatusOpen, CaseStatusArchived},
}

// CanTransition reports whether a case may move from s to next.
func (s CaseStatus) CanTransition(next CaseStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range caseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CaseSource records who opened a case.
type CaseSource string

const (
	CaseSourceManual     CaseSource = "MANUAL"
	CaseSourceAutomation CaseSource = "AUTOMATION"
)

// ChecklistItem is a labelled sub-task of a case.
type ChecklistItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// Checklist is persisted as a JSONB array.
type Checklist []ChecklistItem

// Value marshals the checklist for persistence.
func (c Checklist) Value() (driver.Value, error) {
	if c == nil {
		c = Checklist{}
	}
	data, err := json.Marshal([]ChecklistItem(c))
	if err != nil {
		return nil, fmt.Errorf("marshal checklist: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB checklist.
func (c *Checklist) Scan(value interface{}) error {
	if value == nil {
		*c = Checklist{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported checklist type %T", value)
	}
	items := []ChecklistItem{}
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("unmarshal checklist: %w", err)
	}
	*c = items
	return nil
}

// Case tracks a concern about a student. Automated cases carry the RuleID
// that opened them; at most one OPEN automated case exists per
// (student, course, rule).
type Case struct {
	ID             string         `db:"id" json:"id"`
	StudentID      string         `db:"student_id" json:"student_id"`
	CourseID       *string        `db:"course_id" json:"course_id,omitempty"`
	RuleID         *string        `db:"rule_id" json:"rule_id,omitempty"`
	Category       CaseCategory   `db:"category" json:"category"`
	Severity       CaseSeverity   `db:"severity" json:"severity"`
	Status         CaseStatus     `db:"status" json:"status"`
	Source         CaseSource     `db:"source" json:"source"`
	Title          string         `db:"title" json:"title"`
	Description    string         `db:"description" json:"description"`
	Checklist      Checklist      `db:"checklist" json:"checklist"`
	CreatedBy      string         `db:"created_by" json:"created_by"`
	AssigneeID     *string        `db:"assignee_id" json:"assignee_id,omitempty"`
	Watchers       pq.StringArray `db:"watchers" json:"watchers"`
	LastRemindedAt *time.Time     `db:"last_reminded_at" json:"last_reminded_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// ReminderTarget returns who should be nudged about the case: the assignee,
// else the first watcher, else "".
func (c *Case) ReminderTarget() string {
	if c.AssigneeID != nil && *c.AssigneeID != "" {
		return *c.AssigneeID
	}
	for _, w := range c.Watchers {
		if w != "" {
			return w
		}
	}
	return ""
}

// HasWatcher reports whether userID already watches the case.
func (c *Case) HasWatcher(userID string) bool {
	for _, w := range c.Watchers {
		if w == userID {
			return true
		}
	}
	return false
}

// CaseReply is a message in a case's discussion thread.
type CaseReply struct {
	ID        string    `db:"id" json:"id"`
	CaseID    string    `db:"case_id" json:"case_id"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CaseFilter scopes case listings.
type CaseFilter struct {
	Status     CaseStatus
	Category   CaseCategory
	Source     CaseSource
	StudentID  string
	CourseID   string
	AssigneeID string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// CaseSummaryRow counts cases per status and category.
type CaseSummaryRow struct {
	Status   CaseStatus   `db:"status" json:"status"`
	Category CaseCategory `db:"category" json:"category"`
	Total    int          `db:"total" json:"total"`
}
