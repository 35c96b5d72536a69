package dto

import (
	"time"

	"github.com/noah-isme/sma-case-api/internal/models"
)

// CreateCaseRequest opens a manual case.
type CreateCaseRequest struct {
	StudentID   string              `json:"studentId" validate:"required,max=64"`
	CourseID    *string             `json:"courseId" validate:"omitempty,max=64"`
	Category    models.CaseCategory `json:"category" validate:"required,oneof=ACADEMIC_DIFFICULTY BEHAVIOR ATTENDANCE ADMIN OTHER"`
	Severity    models.CaseSeverity `json:"severity" validate:"required,oneof=LOW MEDIUM HIGH"`
	Title       string              `json:"title" validate:"required,max=200"`
	Description string              `json:"description" validate:"max=5000"`
	AssigneeID  *string             `json:"assigneeId" validate:"omitempty,max=64"`
	Checklist   []string            `json:"checklist" validate:"omitempty,max=50,dive,required,max=200"`
}

// UpdateCaseRequest patches mutable case fields. Nil fields are left as is.
type UpdateCaseRequest struct {
	Status      *models.CaseStatus   `json:"status" validate:"omitempty,oneof=OPEN IN_PROGRESS RESOLVED ARCHIVED"`
	Severity    *models.CaseSeverity `json:"severity" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	Category    *models.CaseCategory `json:"category" validate:"omitempty,oneof=ACADEMIC_DIFFICULTY BEHAVIOR ATTENDANCE ADMIN OTHER"`
	Title       *string              `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string              `json:"description" validate:"omitempty,max=5000"`
	AssigneeID  *string              `json:"assigneeId" validate:"omitempty,max=64"`
}

// AddChecklistItemRequest appends a checklist entry.
type AddChecklistItemRequest struct {
	Label string `json:"label" validate:"required,max=200"`
}

// ToggleChecklistItemRequest marks a checklist entry done or undone.
type ToggleChecklistItemRequest struct {
	Done *bool `json:"done" validate:"required"`
}

// AddWatcherRequest subscribes a user to a case.
type AddWatcherRequest struct {
	UserID string `json:"userId" validate:"required,max=64"`
}

// CaseReplyRequest posts to a case thread.
type CaseReplyRequest struct {
	Body string `json:"body" validate:"required,max=5000"`
}

// CaseListQuery binds list and export filters from the query string.
type CaseListQuery struct {
	Status     string `form:"status" validate:"omitempty,oneof=OPEN IN_PROGRESS RESOLVED ARCHIVED"`
	Category   string `form:"category" validate:"omitempty,oneof=ACADEMIC_DIFFICULTY BEHAVIOR ATTENDANCE ADMIN OTHER"`
	Source     string `form:"source" validate:"omitempty,oneof=MANUAL AUTOMATION"`
	StudentID  string `form:"studentId"`
	CourseID   string `form:"courseId"`
	AssigneeID string `form:"assigneeId"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
	PageSize   int    `form:"pageSize" validate:"omitempty,min=1,max=200"`
	SortBy     string `form:"sortBy" validate:"omitempty,oneof=created_at updated_at severity status"`
	SortOrder  string `form:"sortOrder" validate:"omitempty,oneof=asc desc ASC DESC"`
	Format     string `form:"format" validate:"omitempty,oneof=csv pdf"`
}

// Filter converts the query into a repository filter.
func (q CaseListQuery) Filter() models.CaseFilter {
	return models.CaseFilter{
		Status:     models.CaseStatus(q.Status),
		Category:   models.CaseCategory(q.Category),
		Source:     models.CaseSource(q.Source),
		StudentID:  q.StudentID,
		CourseID:   q.CourseID,
		AssigneeID: q.AssigneeID,
		Page:       q.Page,
		PageSize:   q.PageSize,
		SortBy:     q.SortBy,
		SortOrder:  q.SortOrder,
	}
}

// CaseSummary reports active case counts.
type CaseSummary struct {
	Total       int                     `json:"total"`
	ByStatus    map[string]int          `json:"byStatus"`
	ByCategory  map[string]int          `json:"byCategory"`
	Rows        []models.CaseSummaryRow `json:"rows"`
	GeneratedAt time.Time               `json:"generatedAt"`
}

// CaseExport is a rendered case export.
type CaseExport struct {
	Filename    string
	ContentType string
	Body        []byte
}
