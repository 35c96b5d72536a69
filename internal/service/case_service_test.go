package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-case-api/internal/dto"
	"github.com/noah-isme/sma-case-api/internal/models"
	appErrors "github.com/noah-isme/sma-case-api/pkg/errors"
	"github.com/noah-isme/sma-case-api/pkg/export"
)

type caseStoreMock struct {
	cases        map[string]*models.Case
	replies      []models.CaseReply
	summaryRows  []models.CaseSummaryRow
	summaryCalls int
	lastFilter   models.CaseFilter
	updateErr    error
}

func newCaseStoreMock() *caseStoreMock {
	return &caseStoreMock{cases: map[string]*models.Case{}}
}

func (m *caseStoreMock) Create(_ context.Context, c *models.Case) error {
	stored := *c
	m.cases[c.ID] = &stored
	return nil
}

func (m *caseStoreMock) FindByID(_ context.Context, id string) (*models.Case, error) {
	c, ok := m.cases[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	copied.Watchers = append(pq.StringArray{}, c.Watchers...)
	copied.Checklist = append(models.Checklist{}, c.Checklist...)
	return &copied, nil
}

func (m *caseStoreMock) List(_ context.Context, filter models.CaseFilter) ([]models.Case, int, error) {
	m.lastFilter = filter
	var out []models.Case
	for _, c := range m.cases {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *caseStoreMock) Update(_ context.Context, c *models.Case) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.cases[c.ID]; !ok {
		return sql.ErrNoRows
	}
	stored := *c
	m.cases[c.ID] = &stored
	return nil
}

func (m *caseStoreMock) AddReply(_ context.Context, reply *models.CaseReply) error {
	m.replies = append(m.replies, *reply)
	m.cases[reply.CaseID].UpdatedAt = reply.CreatedAt
	return nil
}

func (m *caseStoreMock) ListReplies(_ context.Context, caseID string) ([]models.CaseReply, error) {
	var out []models.CaseReply
	for _, r := range m.replies {
		if r.CaseID == caseID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *caseStoreMock) Summary(context.Context) ([]models.CaseSummaryRow, error) {
	m.summaryCalls++
	return m.summaryRows, nil
}

var teacher = models.AuthContext{UserID: "teacher-1", Role: models.RoleTeacher}

func newCaseServiceForTest(store *caseStoreMock, cache *CacheService) *CaseService {
	svc := NewCaseService(store, cache, nil, nil, CaseConfig{})
	svc.now = func() time.Time { return alertClock }
	return svc
}

func seedCase(store *caseStoreMock, id string, status models.CaseStatus) *models.Case {
	c := &models.Case{
		ID: id, StudentID: "s1", Category: models.CaseCategoryBehavior, Severity: models.CaseSeverityLow,
		Status: status, Source: models.CaseSourceManual, Title: "Disruptive in class", CreatedBy: "coord-1",
		Watchers:  pq.StringArray{"coord-1"},
		Checklist: models.Checklist{{ID: "item-1", Label: "Call parents"}},
		UpdatedAt: alertClock.AddDate(0, 0, -3),
	}
	store.cases[id] = c
	return c
}

func TestCaseServiceCreate(t *testing.T) {
	store := newCaseStoreMock()
	svc := newCaseServiceForTest(store, nil)
	assignee := "teacher-2"

	c, err := svc.Create(context.Background(), teacher, dto.CreateCaseRequest{
		StudentID:  "s1",
		Category:   models.CaseCategoryAcademicDifficulty,
		Severity:   models.CaseSeverityMedium,
		Title:      "  Struggling with reading ",
		AssigneeID: &assignee,
		Checklist:  []string{"Meet student", "Plan tutoring"},
	})

	require.NoError(t, err)
	assert.Equal(t, models.CaseSourceManual, c.Source)
	assert.Equal(t, models.CaseStatusOpen, c.Status)
	assert.Equal(t, "Struggling with reading", c.Title)
	assert.Nil(t, c.RuleID)
	assert.Equal(t, pq.StringArray{"teacher-1", "teacher-2"}, c.Watchers)
	require.Len(t, c.Checklist, 2)
	assert.NotEmpty(t, c.Checklist[0].ID)
	assert.False(t, c.Checklist[1].Done)
	assert.Contains(t, store.cases, c.ID)
}

func TestCaseServiceCreateValidation(t *testing.T) {
	svc := newCaseServiceForTest(newCaseStoreMock(), nil)

	_, err := svc.Create(context.Background(), teacher, dto.CreateCaseRequest{
		StudentID: "s1", Category: "SOMETHING", Severity: models.CaseSeverityLow, Title: "x",
	})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCaseServiceRejectsStudents(t *testing.T) {
	svc := newCaseServiceForTest(newCaseStoreMock(), nil)

	_, err := svc.Get(context.Background(), models.AuthContext{UserID: "st-1", Role: models.RoleStudent}, "case-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, _, err = svc.List(context.Background(), models.AuthContext{}, models.CaseFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestCaseServiceGetNotFound(t *testing.T) {
	svc := newCaseServiceForTest(newCaseStoreMock(), nil)
	_, err := svc.Get(context.Background(), teacher, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCaseServiceListDefaults(t *testing.T) {
	store := newCaseStoreMock()
	seedCase(store, "case-1", models.CaseStatusOpen)
	seedCase(store, "case-2", models.CaseStatusResolved)
	svc := newCaseServiceForTest(store, nil)

	cases, pagination, err := svc.List(context.Background(), teacher, models.CaseFilter{Status: models.CaseStatusOpen})
	require.NoError(t, err)
	assert.Len(t, cases, 1)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, pagination)
}

func TestCaseServiceUpdateTransitions(t *testing.T) {
	store := newCaseStoreMock()
	seedCase(store, "case-1", models.CaseStatusOpen)
	svc := newCaseServiceForTest(store, nil)
	ctx := context.Background()

	resolved := models.CaseStatusResolved
	c, err := svc.Update(ctx, teacher, "case-1", dto.UpdateCaseRequest{Status: &resolved})
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusResolved, c.Status)

	progress := models.CaseStatusInProgress
	_, err = svc.Update(ctx, teacher, "case-1", dto.UpdateCaseRequest{Status: &progress})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	archived := models.CaseStatusArchived
	_, err = svc.Update(ctx, teacher, "case-1", dto.UpdateCaseRequest{Status: &archived})
	require.NoError(t, err)

	open := models.CaseStatusOpen
	_, err = svc.Update(ctx, teacher, "case-1", dto.UpdateCaseRequest{Status: &open})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestCaseServiceUpdateAssignee(t *testing.T) {
	store := newCaseStoreMock()
	seedCase(store, "case-1", models.CaseStatusOpen)
	svc := newCaseServiceForTest(store, nil)
	ctx := context.Background()

	assignee := "teacher-7"
	c, err := svc.Update(ctx, teacher, "case-1", dto.UpdateCaseRequest{AssigneeID: &assignee})
	require.NoError(t, err)
	assert.Equal(t, "teacher-7", *c.AssigneeID)
	assert.Equal(t, pq.StringArray{"coord-1", "teacher-7"}, c.Watchers)

	unassign := ""
	c, err = svc.Update(ctx, teacher, "case-1", dto.UpdateCaseRequest{AssigneeID: &unassign})
	require.NoError(t, err)
	assert.Nil(t, c.AssigneeID)
	assert.Equal(t, pq.StringArray{"coord-1", "teacher-7"}, c.Watchers)
}

func TestCaseServiceChecklist(t *testing.T) {
	store := newCaseStoreMock()
	seedCase(store, "case-1", models.CaseStatusOpen)
	svc := newCaseServiceForTest(store, nil)
	ctx := context.Background()

	done := true
	c, err := svc.ToggleChecklist(ctx, teacher, "case-1", "item-1", dto.ToggleChecklistItemRequest{Done: &done})
	require.NoError(t, err)
	assert.True(t, c.Checklist[0].Done)
	assert.True(t, store.cases["case-1"].Checklist[0].Done)

	_, err = svc.ToggleChecklist(ctx, teacher, "case-1", "nope", dto.ToggleChecklistItemRequest{Done: &done})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.ToggleChecklist(ctx, teacher, "case-1", "item-1", dto.ToggleChecklistItemRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	c, err = svc.AddChecklistItem(ctx, teacher, "case-1", dto.AddChecklistItemRequest{Label: "Follow up"})
	require.NoError(t, err)
	require.Len(t, c.Checklist, 2)
	assert.Equal(t, "Follow up", c.Checklist[1].Label)
}

func TestCaseServiceAddWatcherIsIdempotent(t *testing.T) {
	store := newCaseStoreMock()
	seedCase(store, "case-1", models.CaseStatusOpen)
	svc := newCaseServiceForTest(store, nil)
	ctx := context.Background()

	_, err := svc.AddWatcher(ctx, teacher, "case-1", dto.AddWatcherRequest{UserID: "teacher-3"})
	require.NoError(t, err)
	c, err := svc.AddWatcher(ctx, teacher, "case-1", dto.AddWatcherRequest{UserID: "teacher-3"})
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"coord-1", "teacher-3"}, c.Watchers)
}

func TestCaseServiceReplies(t *testing.T) {
	store := newCaseStoreMock()
	seedCase(store, "case-1", models.CaseStatusOpen)
	svc := newCaseServiceForTest(store, nil)
	ctx := context.Background()

	reply, err := svc.Reply(ctx, teacher, "case-1", dto.CaseReplyRequest{Body: " Spoke with the student. "})
	require.NoError(t, err)
	assert.Equal(t, "Spoke with the student.", reply.Body)
	assert.Equal(t, "teacher-1", reply.AuthorID)
	assert.Equal(t, alertClock, store.cases["case-1"].UpdatedAt)

	replies, err := svc.ListReplies(ctx, teacher, "case-1")
	require.NoError(t, err)
	assert.Len(t, replies, 1)

	_, err = svc.Reply(ctx, teacher, "missing", dto.CaseReplyRequest{Body: "hi"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCaseServiceSummaryIsCached(t *testing.T) {
	store := newCaseStoreMock()
	seedCase(store, "case-1", models.CaseStatusOpen)
	store.summaryRows = []models.CaseSummaryRow{
		{Status: models.CaseStatusOpen, Category: models.CaseCategoryAttendance, Total: 3},
		{Status: models.CaseStatusInProgress, Category: models.CaseCategoryAttendance, Total: 1},
		{Status: models.CaseStatusOpen, Category: models.CaseCategoryBehavior, Total: 2},
	}
	cacheRepo := newMemoryCache()
	svc := newCaseServiceForTest(store, NewCacheService(cacheRepo, nil, time.Minute, nil, true))
	ctx := context.Background()

	summary, err := svc.Summary(ctx, teacher)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Total)
	assert.Equal(t, 5, summary.ByStatus["OPEN"])
	assert.Equal(t, 4, summary.ByCategory["ATTENDANCE"])

	_, err = svc.Summary(ctx, teacher)
	require.NoError(t, err)
	assert.Equal(t, 1, store.summaryCalls)

	high := models.CaseSeverityHigh
	_, err = svc.Update(ctx, teacher, "case-1", dto.UpdateCaseRequest{Severity: &high})
	require.NoError(t, err)
	assert.Contains(t, cacheRepo.invalidated, caseSummaryCachePattern)

	_, err = svc.Summary(ctx, teacher)
	require.NoError(t, err)
	assert.Equal(t, 2, store.summaryCalls)
}

func TestCaseServiceExport(t *testing.T) {
	store := newCaseStoreMock()
	seedCase(store, "case-1", models.CaseStatusOpen)
	svc := newCaseServiceForTest(store, nil)
	ctx := context.Background()

	csvExport, err := svc.Export(ctx, teacher, models.CaseFilter{}, export.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", csvExport.ContentType)
	assert.True(t, strings.HasSuffix(csvExport.Filename, ".csv"))
	lines := strings.Split(strings.TrimSpace(string(csvExport.Body)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID,Student,Course"))
	assert.Contains(t, lines[1], "Disruptive in class")
	assert.Contains(t, lines[1], "0/1")
	assert.Equal(t, defaultExportMaxRows, store.lastFilter.PageSize)

	pdfExport, err := svc.Export(ctx, teacher, models.CaseFilter{}, export.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdfExport.ContentType)
	assert.True(t, bytes.HasPrefix(pdfExport.Body, []byte("%PDF")))

	_, err = svc.Export(ctx, teacher, models.CaseFilter{}, export.Format("xlsx"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCaseServiceUpdateStoreFailure(t *testing.T) {
	store := newCaseStoreMock()
	seedCase(store, "case-1", models.CaseStatusOpen)
	store.updateErr = errors.New("db down")
	svc := newCaseServiceForTest(store, nil)

	high := models.CaseSeverityHigh
	_, err := svc.Update(context.Background(), teacher, "case-1", dto.UpdateCaseRequest{Severity: &high})
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestCaseServiceReopenCollidesWithOpenAutomatedCase(t *testing.T) {
	store := newCaseStoreMock()
	seedCase(store, "case-1", models.CaseStatusResolved)
	store.updateErr = fmt.Errorf("update case: %w", &pq.Error{Code: "23505"})
	svc := newCaseServiceForTest(store, nil)

	open := models.CaseStatusOpen
	_, err := svc.Update(context.Background(), teacher, "case-1", dto.UpdateCaseRequest{Status: &open})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	appErr := appErrors.FromError(err)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "an open automated case already exists for this student, course and rule", appErr.Message)
}

func TestCaseServiceSummarySurvivesCacheWriteFailure(t *testing.T) {
	store := newCaseStoreMock()
	store.summaryRows = []models.CaseSummaryRow{
		{Status: models.CaseStatusOpen, Category: models.CaseCategoryBehavior, Total: 2},
	}
	cacheRepo := newMemoryCache()
	cacheRepo.setErr = errors.New("redis down")
	svc := newCaseServiceForTest(store, NewCacheService(cacheRepo, nil, time.Minute, nil, true))

	summary, err := svc.Summary(context.Background(), teacher)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Empty(t, cacheRepo.entries)
}
