package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-case-api/internal/dto"
	"github.com/noah-isme/sma-case-api/internal/models"
	appErrors "github.com/noah-isme/sma-case-api/pkg/errors"
	"github.com/noah-isme/sma-case-api/pkg/response"
)

type alertService interface {
	RunAlerts(ctx context.Context, auth models.AuthContext, scope models.RunScope) (*models.RunResult, error)
}

// AlertHandler exposes the case alert engine.
type AlertHandler struct {
	service   alertService
	validator *validator.Validate
}

// NewAlertHandler builds a new handler.
func NewAlertHandler(service alertService, validate *validator.Validate) *AlertHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &AlertHandler{service: service, validator: validate}
}

// Run godoc
// @Summary Run case alert rules
// @Description Evaluates attendance, partial grade, behavior and report card rules and opens at most one automated case per student, course and rule.
// @Tags Alerts
// @Produce json
// @Param courseId query string false "Course ID (defaults to every course of the current year)"
// @Param reminders query string false "Send reminders for stale cases (0 or 1)"
// @Success 200 {object} models.RunResult
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /alerts/run [post]
func (h *AlertHandler) Run(c *gin.Context) {
	var query dto.RunAlertsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid alert run query"))
		return
	}
	if err := h.validator.Struct(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "reminders must be 0 or 1"))
		return
	}

	result, err := h.service.RunAlerts(c.Request.Context(), authFromContext(c), models.RunScope{
		CourseID:         query.CourseID,
		IncludeReminders: query.IncludeReminders(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
