package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-case-api/internal/models"
)

const caseColumns = `id, student_id, course_id, rule_id, category, severity, status, source, title, description,
checklist, created_by, assignee_id, watchers, last_reminded_at, created_at, updated_at`

// CaseRepository persists cases and their reply threads.
type CaseRepository struct {
	db *sqlx.DB
}

// NewCaseRepository constructs the repository.
func NewCaseRepository(db *sqlx.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func prepareCase(c *models.Case) {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.Checklist == nil {
		c.Checklist = models.Checklist{}
	}
	if c.Watchers == nil {
		c.Watchers = pq.StringArray{}
	}
}

// InsertAutomatedIfAbsent inserts an OPEN automated case unless one already
// exists for the same student, course and rule. The check and the insert are a
// single statement guarded by the uq_cases_open_automation partial index, so
// concurrent runs cannot produce duplicates. It returns the stored case and
// whether it was created by this call.
func (r *CaseRepository) InsertAutomatedIfAbsent(ctx context.Context, c *models.Case) (*models.Case, bool, error) {
	if c.RuleID == nil || *c.RuleID == "" {
		return nil, false, fmt.Errorf("insert automated case: rule id required")
	}
	c.Status = models.CaseStatusOpen
	c.Source = models.CaseSourceAutomation
	prepareCase(c)

	query := `INSERT INTO cases (` + caseColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (student_id, (COALESCE(course_id, '')), rule_id) WHERE status = 'OPEN' AND source = 'AUTOMATION'
DO NOTHING
RETURNING ` + caseColumns

	// A matching case may be closed between the skipped insert and the
	// lookup; one more insert attempt covers that window.
	for attempt := 0; attempt < 2; attempt++ {
		var stored models.Case
		err := r.db.GetContext(ctx, &stored, query,
			c.ID, c.StudentID, c.CourseID, c.RuleID, c.Category, c.Severity, c.Status, c.Source, c.Title, c.Description,
			c.Checklist, c.CreatedBy, c.AssigneeID, c.Watchers, c.LastRemindedAt, c.CreatedAt, c.UpdatedAt)
		if err == nil {
			return &stored, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("insert automated case: %w", err)
		}
		existing, err := r.FindOpenAutomated(ctx, c.StudentID, c.CourseID, *c.RuleID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("load existing automated case: %w", err)
		}
	}
	return nil, false, fmt.Errorf("insert automated case: conflicting case for rule %s vanished twice", *c.RuleID)
}

// FindOpenAutomated returns the OPEN automated case for the dedup key, or sql.ErrNoRows.
func (r *CaseRepository) FindOpenAutomated(ctx context.Context, studentID string, courseID *string, ruleID string) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases
WHERE student_id = $1 AND COALESCE(course_id, '') = COALESCE($2, '') AND rule_id = $3 AND status = $4 AND source = $5
LIMIT 1`
	var c models.Case
	if err := r.db.GetContext(ctx, &c, query, studentID, courseID, ruleID, models.CaseStatusOpen, models.CaseSourceAutomation); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create persists a new case as given.
func (r *CaseRepository) Create(ctx context.Context, c *models.Case) error {
	prepareCase(c)
	query := `INSERT INTO cases (` + caseColumns + `)
VALUES (:id, :student_id, :course_id, :rule_id, :category, :severity, :status, :source, :title, :description,
:checklist, :created_by, :assignee_id, :watchers, :last_reminded_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("create case: %w", err)
	}
	return nil
}

// FindByID returns a case or sql.ErrNoRows.
func (r *CaseRepository) FindByID(ctx context.Context, id string) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	var c models.Case
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns cases filtered by the provided criteria with the total count.
func (r *CaseRepository) List(ctx context.Context, filter models.CaseFilter) ([]models.Case, int, error) {
	var conditions []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	if filter.Category != "" {
		add("category", filter.Category)
	}
	if filter.Source != "" {
		add("source", filter.Source)
	}
	if filter.StudentID != "" {
		add("student_id", filter.StudentID)
	}
	if filter.CourseID != "" {
		add("course_id", filter.CourseID)
	}
	if filter.AssigneeID != "" {
		add("assignee_id", filter.AssigneeID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "created_at",
		"updated_at": "updated_at",
		"severity":   "severity",
		"status":     "status",
	}
	orderBy, ok := allowedSorts[filter.SortBy]
	if !ok {
		orderBy = "updated_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 1000 {
		size = 20
	}

	query := fmt.Sprintf(`SELECT %s FROM cases%s ORDER BY %s %s, id LIMIT %d OFFSET %d`,
		caseColumns, clause, orderBy, order, size, (page-1)*size)
	var cases []models.Case
	if err := r.db.SelectContext(ctx, &cases, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list cases: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM cases"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count cases: %w", err)
	}
	return cases, total, nil
}

// Update writes the mutable fields of a case and bumps updated_at.
func (r *CaseRepository) Update(ctx context.Context, c *models.Case) error {
	c.UpdatedAt = time.Now().UTC()
	const query = `UPDATE cases SET category = :category, severity = :severity, status = :status, title = :title,
description = :description, checklist = :checklist, assignee_id = :assignee_id, watchers = :watchers, updated_at = :updated_at
WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, c)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListStale returns OPEN cases not updated since cutoff that have not been
// reminded since cutoff either.
func (r *CaseRepository) ListStale(ctx context.Context, cutoff time.Time) ([]models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases
WHERE status = $1 AND updated_at < $2 AND (last_reminded_at IS NULL OR last_reminded_at < $2)
ORDER BY updated_at`
	var cases []models.Case
	if err := r.db.SelectContext(ctx, &cases, query, models.CaseStatusOpen, cutoff); err != nil {
		return nil, fmt.Errorf("list stale cases: %w", err)
	}
	return cases, nil
}

// MarkReminded records when a reminder was last sent. updated_at is left untouched.
func (r *CaseRepository) MarkReminded(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE cases SET last_reminded_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark case reminded: %w", err)
	}
	return nil
}

// AddReply stores a reply and bumps the case's updated_at in one transaction.
func (r *CaseRepository) AddReply(ctx context.Context, reply *models.CaseReply) error {
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	if reply.CreatedAt.IsZero() {
		reply.CreatedAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin case reply: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const insert = `INSERT INTO case_replies (id, case_id, author_id, body, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, insert, reply.ID, reply.CaseID, reply.AuthorID, reply.Body, reply.CreatedAt); err != nil {
		return fmt.Errorf("insert case reply: %w", err)
	}
	const touch = `UPDATE cases SET updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, touch, reply.CaseID, reply.CreatedAt); err != nil {
		return fmt.Errorf("touch case: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit case reply: %w", err)
	}
	return nil
}

// ListReplies returns a case's replies oldest first.
func (r *CaseRepository) ListReplies(ctx context.Context, caseID string) ([]models.CaseReply, error) {
	const query = `SELECT id, case_id, author_id, body, created_at FROM case_replies WHERE case_id = $1 ORDER BY created_at, id`
	var replies []models.CaseReply
	if err := r.db.SelectContext(ctx, &replies, query, caseID); err != nil {
		return nil, fmt.Errorf("list case replies: %w", err)
	}
	return replies, nil
}

// Summary counts active cases per status and category.
func (r *CaseRepository) Summary(ctx context.Context) ([]models.CaseSummaryRow, error) {
	const query = `SELECT status, category, COUNT(*) AS total FROM cases
WHERE status IN ($1, $2)
GROUP BY status, category
ORDER BY status, category`
	var rows []models.CaseSummaryRow
	if err := r.db.SelectContext(ctx, &rows, query, models.CaseStatusOpen, models.CaseStatusInProgress); err != nil {
		return nil, fmt.Errorf("summarise cases: %w", err)
	}
	return rows, nil
}
