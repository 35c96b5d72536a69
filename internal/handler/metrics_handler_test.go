package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-case-api/internal/service"
)

type pingerStub struct{ err error }

func (p pingerStub) PingContext(context.Context) error { return p.err }

func metricsContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

func TestMetricsHandlerHealth(t *testing.T) {
	c, w := metricsContext("/health")
	NewMetricsHandler(service.NewMetricsService(), pingerStub{}).Health(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = metricsContext("/health")
	NewMetricsHandler(service.NewMetricsService(), pingerStub{err: errors.New("down")}).Health(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordAlertCaseCreated("behavior_2_30d")

	c, w := metricsContext("/metrics")
	NewMetricsHandler(metrics, nil).Prometheus(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `alert_cases_created_total{rule="behavior_2_30d"} 1`)
}

func TestMetricsHandlerSnapshot(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordReminderSent()

	c, w := metricsContext("/metrics/summary")
	NewMetricsHandler(metrics, nil).Snapshot(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alert_reminders_sent":1`)
}
