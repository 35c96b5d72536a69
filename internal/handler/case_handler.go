package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-case-api/internal/dto"
	"github.com/noah-isme/sma-case-api/internal/models"
	appErrors "github.com/noah-isme/sma-case-api/pkg/errors"
	"github.com/noah-isme/sma-case-api/pkg/export"
	"github.com/noah-isme/sma-case-api/pkg/response"
)

type caseService interface {
	Create(ctx context.Context, auth models.AuthContext, req dto.CreateCaseRequest) (*models.Case, error)
	Get(ctx context.Context, auth models.AuthContext, id string) (*models.Case, error)
	List(ctx context.Context, auth models.AuthContext, filter models.CaseFilter) ([]models.Case, *models.Pagination, error)
	Update(ctx context.Context, auth models.AuthContext, id string, req dto.UpdateCaseRequest) (*models.Case, error)
	AddChecklistItem(ctx context.Context, auth models.AuthContext, id string, req dto.AddChecklistItemRequest) (*models.Case, error)
	ToggleChecklist(ctx context.Context, auth models.AuthContext, id, itemID string, req dto.ToggleChecklistItemRequest) (*models.Case, error)
	AddWatcher(ctx context.Context, auth models.AuthContext, id string, req dto.AddWatcherRequest) (*models.Case, error)
	Reply(ctx context.Context, auth models.AuthContext, id string, req dto.CaseReplyRequest) (*models.CaseReply, error)
	ListReplies(ctx context.Context, auth models.AuthContext, id string) ([]models.CaseReply, error)
	Summary(ctx context.Context, auth models.AuthContext) (*dto.CaseSummary, error)
	Export(ctx context.Context, auth models.AuthContext, filter models.CaseFilter, format export.Format) (*dto.CaseExport, error)
}

// CaseHandler exposes case management endpoints.
type CaseHandler struct {
	service   caseService
	validator *validator.Validate
}

// NewCaseHandler builds a new handler.
func NewCaseHandler(service caseService, validate *validator.Validate) *CaseHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &CaseHandler{service: service, validator: validate}
}

func (h *CaseHandler) bindListQuery(c *gin.Context) (dto.CaseListQuery, bool) {
	var query dto.CaseListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid case query"))
		return query, false
	}
	if err := h.validator.Struct(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid case query"))
		return query, false
	}
	return query, true
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

// List godoc
// @Summary List cases
// @Tags Cases
// @Produce json
// @Param status query string false "Status filter"
// @Param category query string false "Category filter"
// @Param source query string false "MANUAL or AUTOMATION"
// @Param studentId query string false "Student ID"
// @Param courseId query string false "Course ID"
// @Param assigneeId query string false "Assignee ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Param sortBy query string false "created_at, updated_at, severity or status"
// @Param sortOrder query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /cases [get]
func (h *CaseHandler) List(c *gin.Context) {
	query, ok := h.bindListQuery(c)
	if !ok {
		return
	}
	cases, pagination, err := h.service.List(c.Request.Context(), authFromContext(c), query.Filter())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cases, pagination)
}

// Create godoc
// @Summary Open a manual case
// @Tags Cases
// @Accept json
// @Produce json
// @Param payload body dto.CreateCaseRequest true "Case payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /cases [post]
func (h *CaseHandler) Create(c *gin.Context) {
	var req dto.CreateCaseRequest
	if !bindJSON(c, &req, "invalid case payload") {
		return
	}
	item, err := h.service.Create(c.Request.Context(), authFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Get godoc
// @Summary Get a case
// @Tags Cases
// @Produce json
// @Param id path string true "Case ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /cases/{id} [get]
func (h *CaseHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), authFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Update godoc
// @Summary Update a case
// @Tags Cases
// @Accept json
// @Produce json
// @Param id path string true "Case ID"
// @Param payload body dto.UpdateCaseRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /cases/{id} [patch]
func (h *CaseHandler) Update(c *gin.Context) {
	var req dto.UpdateCaseRequest
	if !bindJSON(c, &req, "invalid case update payload") {
		return
	}
	item, err := h.service.Update(c.Request.Context(), authFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// AddChecklistItem godoc
// @Summary Add a checklist item
// @Tags Cases
// @Accept json
// @Produce json
// @Param id path string true "Case ID"
// @Param payload body dto.AddChecklistItemRequest true "Checklist item"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /cases/{id}/checklist [post]
func (h *CaseHandler) AddChecklistItem(c *gin.Context) {
	var req dto.AddChecklistItemRequest
	if !bindJSON(c, &req, "invalid checklist item") {
		return
	}
	item, err := h.service.AddChecklistItem(c.Request.Context(), authFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// ToggleChecklist godoc
// @Summary Mark a checklist item done or undone
// @Tags Cases
// @Accept json
// @Produce json
// @Param id path string true "Case ID"
// @Param itemId path string true "Checklist item ID"
// @Param payload body dto.ToggleChecklistItemRequest true "Done flag"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /cases/{id}/checklist/{itemId} [patch]
func (h *CaseHandler) ToggleChecklist(c *gin.Context) {
	var req dto.ToggleChecklistItemRequest
	if !bindJSON(c, &req, "invalid checklist toggle") {
		return
	}
	item, err := h.service.ToggleChecklist(c.Request.Context(), authFromContext(c), c.Param("id"), c.Param("itemId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// AddWatcher godoc
// @Summary Watch a case
// @Tags Cases
// @Accept json
// @Produce json
// @Param id path string true "Case ID"
// @Param payload body dto.AddWatcherRequest true "Watcher"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /cases/{id}/watchers [post]
func (h *CaseHandler) AddWatcher(c *gin.Context) {
	var req dto.AddWatcherRequest
	if !bindJSON(c, &req, "invalid watcher payload") {
		return
	}
	item, err := h.service.AddWatcher(c.Request.Context(), authFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Reply godoc
// @Summary Reply on a case thread
// @Tags Cases
// @Accept json
// @Produce json
// @Param id path string true "Case ID"
// @Param payload body dto.CaseReplyRequest true "Reply"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /cases/{id}/replies [post]
func (h *CaseHandler) Reply(c *gin.Context) {
	var req dto.CaseReplyRequest
	if !bindJSON(c, &req, "invalid reply payload") {
		return
	}
	reply, err := h.service.Reply(c.Request.Context(), authFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reply)
}

// ListReplies godoc
// @Summary List a case thread
// @Tags Cases
// @Produce json
// @Param id path string true "Case ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /cases/{id}/replies [get]
func (h *CaseHandler) ListReplies(c *gin.Context) {
	replies, err := h.service.ListReplies(c.Request.Context(), authFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, replies, nil)
}

// Summary godoc
// @Summary Active case counts
// @Tags Cases
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /cases/summary [get]
func (h *CaseHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), authFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Export cases
// @Tags Cases
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param status query string false "Status filter"
// @Param category query string false "Category filter"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /cases/export [get]
func (h *CaseHandler) Export(c *gin.Context) {
	query, ok := h.bindListQuery(c)
	if !ok {
		return
	}
	file, err := h.service.Export(c.Request.Context(), authFromContext(c), query.Filter(), export.Format(query.Format))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
