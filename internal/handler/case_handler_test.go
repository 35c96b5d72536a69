package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-case-api/internal/dto"
	"github.com/noah-isme/sma-case-api/internal/middleware"
	"github.com/noah-isme/sma-case-api/internal/models"
	appErrors "github.com/noah-isme/sma-case-api/pkg/errors"
	"github.com/noah-isme/sma-case-api/pkg/export"
)

type caseServiceMock struct {
	item       *models.Case
	err        error
	lastAuth   models.AuthContext
	lastID     string
	lastItemID string
	lastFilter models.CaseFilter
	lastFormat export.Format
	lastCreate dto.CreateCaseRequest
	lastToggle dto.ToggleChecklistItemRequest
}

func (m *caseServiceMock) Create(_ context.Context, auth models.AuthContext, req dto.CreateCaseRequest) (*models.Case, error) {
	m.lastAuth, m.lastCreate = auth, req
	return m.item, m.err
}

func (m *caseServiceMock) Get(_ context.Context, auth models.AuthContext, id string) (*models.Case, error) {
	m.lastAuth, m.lastID = auth, id
	return m.item, m.err
}

func (m *caseServiceMock) List(_ context.Context, auth models.AuthContext, filter models.CaseFilter) ([]models.Case, *models.Pagination, error) {
	m.lastAuth, m.lastFilter = auth, filter
	if m.err != nil {
		return nil, nil, m.err
	}
	return []models.Case{*m.item}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (m *caseServiceMock) Update(_ context.Context, auth models.AuthContext, id string, _ dto.UpdateCaseRequest) (*models.Case, error) {
	m.lastAuth, m.lastID = auth, id
	return m.item, m.err
}

func (m *caseServiceMock) AddChecklistItem(_ context.Context, auth models.AuthContext, id string, _ dto.AddChecklistItemRequest) (*models.Case, error) {
	m.lastAuth, m.lastID = auth, id
	return m.item, m.err
}

func (m *caseServiceMock) ToggleChecklist(_ context.Context, auth models.AuthContext, id, itemID string, req dto.ToggleChecklistItemRequest) (*models.Case, error) {
	m.lastAuth, m.lastID, m.lastItemID, m.lastToggle = auth, id, itemID, req
	return m.item, m.err
}

func (m *caseServiceMock) AddWatcher(_ context.Context, auth models.AuthContext, id string, _ dto.AddWatcherRequest) (*models.Case, error) {
	m.lastAuth, m.lastID = auth, id
	return m.item, m.err
}

func (m *caseServiceMock) Reply(_ context.Context, auth models.AuthContext, id string, req dto.CaseReplyRequest) (*models.CaseReply, error) {
	m.lastAuth, m.lastID = auth, id
	if m.err != nil {
		return nil, m.err
	}
	return &models.CaseReply{ID: "reply-1", CaseID: id, Body: req.Body}, nil
}

func (m *caseServiceMock) ListReplies(_ context.Context, auth models.AuthContext, id string) ([]models.CaseReply, error) {
	m.lastAuth, m.lastID = auth, id
	return []models.CaseReply{}, m.err
}

func (m *caseServiceMock) Summary(_ context.Context, auth models.AuthContext) (*dto.CaseSummary, error) {
	m.lastAuth = auth
	return &dto.CaseSummary{Total: 4}, m.err
}

func (m *caseServiceMock) Export(_ context.Context, auth models.AuthContext, filter models.CaseFilter, format export.Format) (*dto.CaseExport, error) {
	m.lastAuth, m.lastFilter, m.lastFormat = auth, filter, format
	if m.err != nil {
		return nil, m.err
	}
	return &dto.CaseExport{Filename: "cases.csv", ContentType: "text/csv", Body: []byte("ID\n")}, nil
}

func caseContext(method, target, body string, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = params
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})
	return c, w
}

func TestCaseHandlerCreate(t *testing.T) {
	svc := &caseServiceMock{item: &models.Case{ID: "case-1"}}
	h := NewCaseHandler(svc, nil)
	c, w := caseContext(http.MethodPost, "/cases", `{"studentId":"s1","category":"BEHAVIOR","severity":"LOW","title":"Late again"}`)

	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "s1", svc.lastCreate.StudentID)
	assert.Equal(t, models.CaseCategoryBehavior, svc.lastCreate.Category)
	assert.Equal(t, "teacher-1", svc.lastAuth.UserID)
}

func TestCaseHandlerCreateInvalidBody(t *testing.T) {
	h := NewCaseHandler(&caseServiceMock{}, nil)
	c, w := caseContext(http.MethodPost, "/cases", `{"studentId":`)

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCaseHandlerListBindsFilters(t *testing.T) {
	svc := &caseServiceMock{item: &models.Case{ID: "case-1"}}
	h := NewCaseHandler(svc, nil)
	c, w := caseContext(http.MethodGet, "/cases?status=OPEN&source=AUTOMATION&page=2&pageSize=5&sortBy=severity", "")

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CaseStatusOpen, svc.lastFilter.Status)
	assert.Equal(t, models.CaseSourceAutomation, svc.lastFilter.Source)
	assert.Equal(t, 2, svc.lastFilter.Page)
	assert.Equal(t, 5, svc.lastFilter.PageSize)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func TestCaseHandlerListRejectsUnknownStatus(t *testing.T) {
	h := NewCaseHandler(&caseServiceMock{}, nil)
	c, w := caseContext(http.MethodGet, "/cases?status=CLOSED", "")

	h.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCaseHandlerGetMapsNotFound(t *testing.T) {
	svc := &caseServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "case not found")}
	h := NewCaseHandler(svc, nil)
	c, w := caseContext(http.MethodGet, "/cases/x", "", gin.Param{Key: "id", Value: "x"})

	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "x", svc.lastID)
}

func TestCaseHandlerToggleChecklist(t *testing.T) {
	svc := &caseServiceMock{item: &models.Case{ID: "case-1"}}
	h := NewCaseHandler(svc, nil)
	c, w := caseContext(http.MethodPatch, "/cases/case-1/checklist/item-1", `{"done":true}`,
		gin.Param{Key: "id", Value: "case-1"}, gin.Param{Key: "itemId", Value: "item-1"})

	h.ToggleChecklist(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "item-1", svc.lastItemID)
	require.NotNil(t, svc.lastToggle.Done)
	assert.True(t, *svc.lastToggle.Done)
}

func TestCaseHandlerUpdateInvalidTransition(t *testing.T) {
	svc := &caseServiceMock{err: appErrors.ErrInvalidTransition}
	h := NewCaseHandler(svc, nil)
	c, w := caseContext(http.MethodPatch, "/cases/case-1", `{"status":"OPEN"}`, gin.Param{Key: "id", Value: "case-1"})

	h.Update(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCaseHandlerUpdateReopenConflict(t *testing.T) {
	svc := &caseServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "an open automated case already exists for this student, course and rule")}
	h := NewCaseHandler(svc, nil)
	c, w := caseContext(http.MethodPatch, "/cases/case-1", `{"status":"OPEN"}`, gin.Param{Key: "id", Value: "case-1"})

	h.Update(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONFLICT")
	assert.Contains(t, w.Body.String(), "an open automated case already exists")
}

func TestCaseHandlerReply(t *testing.T) {
	svc := &caseServiceMock{}
	h := NewCaseHandler(svc, nil)
	c, w := caseContext(http.MethodPost, "/cases/case-1/replies", `{"body":"Met the family"}`, gin.Param{Key: "id", Value: "case-1"})

	h.Reply(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Met the family")
}

func TestCaseHandlerExport(t *testing.T) {
	svc := &caseServiceMock{}
	h := NewCaseHandler(svc, nil)
	c, w := caseContext(http.MethodGet, "/cases/export?format=csv&status=OPEN", "")

	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.FormatCSV, svc.lastFormat)
	assert.Equal(t, models.CaseStatusOpen, svc.lastFilter.Status)
	assert.Equal(t, `attachment; filename="cases.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "ID\n", w.Body.String())
}

func TestCaseHandlerExportRejectsFormat(t *testing.T) {
	svc := &caseServiceMock{}
	h := NewCaseHandler(svc, nil)
	c, w := caseContext(http.MethodGet, "/cases/export?format=xlsx", "")

	h.Export(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.lastFormat)
}

func TestCaseHandlerSummary(t *testing.T) {
	svc := &caseServiceMock{}
	h := NewCaseHandler(svc, nil)
	c, w := caseContext(http.MethodGet, "/cases/summary", "")

	h.Summary(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":4`)
}
