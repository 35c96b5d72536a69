package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-case-api/internal/dto"
	"github.com/noah-isme/sma-case-api/internal/models"
	"github.com/noah-isme/sma-case-api/internal/repository"
	appErrors "github.com/noah-isme/sma-case-api/pkg/errors"
	"github.com/noah-isme/sma-case-api/pkg/export"
)

const (
	caseSummaryCacheKey     = "case:summary"
	caseSummaryCachePattern = "case:summary*"
	defaultExportMaxRows    = 1000
)

type caseStore interface {
	Create(ctx context.Context, c *models.Case) error
	FindByID(ctx context.Context, id string) (*models.Case, error)
	List(ctx context.Context, filter models.CaseFilter) ([]models.Case, int, error)
	Update(ctx context.Context, c *models.Case) error
	AddReply(ctx context.Context, reply *models.CaseReply) error
	ListReplies(ctx context.Context, caseID string) ([]models.CaseReply, error)
	Summary(ctx context.Context) ([]models.CaseSummaryRow, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// CaseConfig tunes summary caching and exports.
type CaseConfig struct {
	SummaryCacheTTL time.Duration
	ExportMaxRows   int
}

// CaseService implements the staff-facing case workflow: manual cases,
// updates, checklists, watchers, reply threads, summaries and exports.
type CaseService struct {
	repo      caseStore
	cache     *CacheService
	csv       csvRenderer
	pdf       pdfRenderer
	validator *validator.Validate
	logger    *zap.Logger
	config    CaseConfig
	now       func() time.Time
}

// NewCaseService constructs a CaseService.
func NewCaseService(repo caseStore, cache *CacheService, validate *validator.Validate, logger *zap.Logger, config CaseConfig) *CaseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ExportMaxRows <= 0 {
		config.ExportMaxRows = defaultExportMaxRows
	}
	return &CaseService{
		repo:      repo,
		cache:     cache,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

func requireStaff(auth models.AuthContext) error {
	if !auth.Authenticated() {
		return appErrors.ErrUnauthorized
	}
	if !auth.HasRole(models.StaffRoles...) {
		return appErrors.Clone(appErrors.ErrForbidden, "cases are restricted to staff")
	}
	return nil
}

// Create opens a manual case. The creator watches it, as does the assignee when given.
func (s *CaseService) Create(ctx context.Context, auth models.AuthContext, req dto.CreateCaseRequest) (*models.Case, error) {
	if err := requireStaff(auth); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid case payload")
	}

	now := s.now().UTC()
	c := &models.Case{
		ID:          uuid.NewString(),
		StudentID:   req.StudentID,
		CourseID:    nonEmpty(req.CourseID),
		Category:    req.Category,
		Severity:    req.Severity,
		Status:      models.CaseStatusOpen,
		Source:      models.CaseSourceManual,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Checklist:   models.Checklist{},
		CreatedBy:   auth.UserID,
		AssigneeID:  nonEmpty(req.AssigneeID),
		Watchers:    pq.StringArray{auth.UserID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, label := range req.Checklist {
		c.Checklist = append(c.Checklist, models.ChecklistItem{ID: uuid.NewString(), Label: strings.TrimSpace(label)})
	}
	if c.AssigneeID != nil {
		addWatcher(c, *c.AssigneeID)
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, appErrors.Internal(err, "failed to create case")
	}
	s.invalidateSummary(ctx)
	s.logger.Info("case created", zap.String("case_id", c.ID), zap.String("actor", auth.UserID), zap.String("category", string(c.Category)))
	return c, nil
}

// Get returns one case.
func (s *CaseService) Get(ctx context.Context, auth models.AuthContext, id string) (*models.Case, error) {
	if err := requireStaff(auth); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// List returns a page of cases and its pagination metadata.
func (s *CaseService) List(ctx context.Context, auth models.AuthContext, filter models.CaseFilter) ([]models.Case, *models.Pagination, error) {
	if err := requireStaff(auth); err != nil {
		return nil, nil, err
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	cases, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list cases")
	}
	return cases, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Update patches a case. Status changes must follow the case lifecycle and
// archived cases are read-only.
func (s *CaseService) Update(ctx context.Context, auth models.AuthContext, id string, req dto.UpdateCaseRequest) (*models.Case, error) {
	if err := requireStaff(auth); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid case update payload")
	}
	c, err := s.loadMutable(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Status != nil {
		if !c.Status.CanTransition(*req.Status) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move case from %s to %s", c.Status, *req.Status))
		}
		c.Status = *req.Status
	}
	if req.Severity != nil {
		c.Severity = *req.Severity
	}
	if req.Category != nil {
		c.Category = *req.Category
	}
	if req.Title != nil {
		c.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.AssigneeID != nil {
		// An empty assignee clears the assignment.
		c.AssigneeID = nonEmpty(req.AssigneeID)
		if c.AssigneeID != nil {
			addWatcher(c, *c.AssigneeID)
		}
	}

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("case updated", zap.String("case_id", c.ID), zap.String("actor", auth.UserID), zap.String("status", string(c.Status)))
	return c, nil
}

// AddChecklistItem appends an unchecked item to the case checklist.
func (s *CaseService) AddChecklistItem(ctx context.Context, auth models.AuthContext, id string, req dto.AddChecklistItemRequest) (*models.Case, error) {
	if err := requireStaff(auth); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checklist item")
	}
	c, err := s.loadMutable(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Checklist = append(c.Checklist, models.ChecklistItem{ID: uuid.NewString(), Label: strings.TrimSpace(req.Label)})
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ToggleChecklist sets the done flag of one checklist item.
func (s *CaseService) ToggleChecklist(ctx context.Context, auth models.AuthContext, id, itemID string, req dto.ToggleChecklistItemRequest) (*models.Case, error) {
	if err := requireStaff(auth); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checklist toggle")
	}
	c, err := s.loadMutable(ctx, id)
	if err != nil {
		return nil, err
	}
	found := false
	for i := range c.Checklist {
		if c.Checklist[i].ID == itemID {
			c.Checklist[i].Done = *req.Done
			found = true
			break
		}
	}
	if !found {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "checklist item not found")
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddWatcher subscribes a user to the case. Adding an existing watcher is a no-op.
func (s *CaseService) AddWatcher(ctx context.Context, auth models.AuthContext, id string, req dto.AddWatcherRequest) (*models.Case, error) {
	if err := requireStaff(auth); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid watcher payload")
	}
	c, err := s.loadMutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.HasWatcher(req.UserID) {
		return c, nil
	}
	addWatcher(c, req.UserID)
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Reply posts to the case thread and counts as activity on the case.
func (s *CaseService) Reply(ctx context.Context, auth models.AuthContext, id string, req dto.CaseReplyRequest) (*models.CaseReply, error) {
	if err := requireStaff(auth); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reply payload")
	}
	if _, err := s.loadMutable(ctx, id); err != nil {
		return nil, err
	}
	reply := &models.CaseReply{
		ID:        uuid.NewString(),
		CaseID:    id,
		AuthorID:  auth.UserID,
		Body:      strings.TrimSpace(req.Body),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.AddReply(ctx, reply); err != nil {
		return nil, appErrors.Internal(err, "failed to add case reply")
	}
	return reply, nil
}

// ListReplies returns the case thread oldest first.
func (s *CaseService) ListReplies(ctx context.Context, auth models.AuthContext, id string) ([]models.CaseReply, error) {
	if err := requireStaff(auth); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	replies, err := s.repo.ListReplies(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list case replies")
	}
	if replies == nil {
		replies = []models.CaseReply{}
	}
	return replies, nil
}

// Summary counts OPEN and IN_PROGRESS cases per status and category.
func (s *CaseService) Summary(ctx context.Context, auth models.AuthContext) (*dto.CaseSummary, error) {
	if err := requireStaff(auth); err != nil {
		return nil, err
	}
	var cached dto.CaseSummary
	if hit, _ := s.cache.Get(ctx, caseSummaryCacheKey, &cached); hit {
		return &cached, nil
	}

	rows, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to summarise cases")
	}
	summary := &dto.CaseSummary{
		ByStatus:    map[string]int{},
		ByCategory:  map[string]int{},
		Rows:        rows,
		GeneratedAt: s.now().UTC(),
	}
	if summary.Rows == nil {
		summary.Rows = []models.CaseSummaryRow{}
	}
	for _, row := range rows {
		summary.Total += row.Total
		summary.ByStatus[string(row.Status)] += row.Total
		summary.ByCategory[string(row.Category)] += row.Total
	}
	// A failed write only costs the next caller a store query.
	s.cache.Set(ctx, caseSummaryCacheKey, summary, s.config.SummaryCacheTTL) //nolint:errcheck
	return summary, nil
}

// Export renders the cases matching filter as CSV or PDF.
func (s *CaseService) Export(ctx context.Context, auth models.AuthContext, filter models.CaseFilter, format export.Format) (*dto.CaseExport, error) {
	if err := requireStaff(auth); err != nil {
		return nil, err
	}
	if format == "" {
		format = export.FormatCSV
	}
	if format != export.FormatCSV && format != export.FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	filter.Page = 1
	filter.PageSize = s.config.ExportMaxRows
	cases, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load cases for export")
	}

	data := caseDataset(cases)
	var body []byte
	if format == export.FormatPDF {
		body, err = s.pdf.Render(data, "Student cases")
	} else {
		body, err = s.csv.Render(data)
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render case export")
	}

	s.logger.Info("cases exported", zap.String("actor", auth.UserID), zap.String("format", string(format)), zap.Int("rows", len(cases)))
	return &dto.CaseExport{
		Filename:    fmt.Sprintf("cases-%s.%s", s.now().UTC().Format("20060102-150405"), format),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}

var caseExportHeaders = []string{"ID", "Student", "Course", "Category", "Severity", "Status", "Source", "Rule", "Title", "Assignee", "Checklist", "Updated"}

func caseDataset(cases []models.Case) export.Dataset {
	data := export.Dataset{Headers: caseExportHeaders, Rows: make([]map[string]string, 0, len(cases))}
	for _, c := range cases {
		done := 0
		for _, item := range c.Checklist {
			if item.Done {
				done++
			}
		}
		data.Rows = append(data.Rows, map[string]string{
			"ID":        c.ID,
			"Student":   c.StudentID,
			"Course":    derefOr(c.CourseID, ""),
			"Category":  string(c.Category),
			"Severity":  string(c.Severity),
			"Status":    string(c.Status),
			"Source":    string(c.Source),
			"Rule":      derefOr(c.RuleID, ""),
			"Title":     c.Title,
			"Assignee":  derefOr(c.AssigneeID, ""),
			"Checklist": fmt.Sprintf("%d/%d", done, len(c.Checklist)),
			"Updated":   c.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return data
}

func (s *CaseService) load(ctx context.Context, id string) (*models.Case, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "case not found")
		}
		return nil, appErrors.Internal(err, "failed to load case")
	}
	return c, nil
}

func (s *CaseService) loadMutable(ctx context.Context, id string) (*models.Case, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CaseStatusArchived {
		return nil, appErrors.Clone(appErrors.ErrConflict, "archived cases are read-only")
	}
	return c, nil
}

func (s *CaseService) save(ctx context.Context, c *models.Case) error {
	if err := s.repo.Update(ctx, c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "case not found")
		}
		// Reopening an automated case collides with a newer open one for the same rule.
		if repository.IsUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "an open automated case already exists for this student, course and rule")
		}
		return appErrors.Internal(err, "failed to update case")
	}
	s.invalidateSummary(ctx)
	return nil
}

// invalidateSummary is best-effort; CacheService logs failures.
func (s *CaseService) invalidateSummary(ctx context.Context) {
	s.cache.Invalidate(ctx, caseSummaryCachePattern) //nolint:errcheck
}

func addWatcher(c *models.Case, userID string) {
	if userID == "" || c.HasWatcher(userID) {
		return
	}
	c.Watchers = append(c.Watchers, userID)
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
