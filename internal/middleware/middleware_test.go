package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-case-api/internal/models"
	"github.com/noah-isme/sma-case-api/internal/service"
	appErrors "github.com/noah-isme/sma-case-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
	seen   string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.seen = token
	return v.claims, v.err
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/cases/:id", handlers...)
	return r
}

func serve(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/cases/case-1", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTRejectsMissingOrMalformedHeader(t *testing.T) {
	stub := &validatorStub{claims: &models.JWTClaims{UserID: "u", Role: models.RoleAdmin}}
	r := newRouter(JWT(stub))

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer ").Code)
	assert.Empty(t, stub.seen)
}

func TestJWTPropagatesValidationError(t *testing.T) {
	stub := &validatorStub{err: appErrors.Wrap(errors.New("expired"), appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")}
	r := newRouter(JWT(stub))

	rec := serve(r, "Bearer abc")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "abc", stub.seen)
}

func TestRequireRoles(t *testing.T) {
	cases := []struct {
		role models.UserRole
		want int
	}{
		{models.RoleCoordinator, http.StatusNoContent},
		{models.RoleAdmin, http.StatusNoContent},
		{models.RoleTeacher, http.StatusForbidden},
		{models.RoleStudent, http.StatusForbidden},
	}
	for _, tc := range cases {
		stub := &validatorStub{claims: &models.JWTClaims{UserID: "u", Role: tc.role}}
		r := newRouter(JWT(stub), RequireRoles(models.RoleCoordinator, models.RoleAdmin))
		assert.Equal(t, tc.want, serve(r, "bearer token").Code, tc.role)
	}
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	r := newRouter(RequireRoles(models.RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
}

func TestAuditLogsSuccessfulRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	stub := &validatorStub{claims: &models.JWTClaims{UserID: "coord-1", Role: models.RoleCoordinator}}
	r := newRouter(JWT(stub), Audit(zap.New(core), "case.update"))

	serve(r, "Bearer ok")

	entries := logs.FilterMessage("audit").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "case.update", fields["action"])
		assert.Equal(t, "case-1", fields["resource_id"])
		assert.Equal(t, "coord-1", fields["actor"])
	}

	serve(r, "")
	assert.Len(t, logs.FilterMessage("audit").All(), 1)
}

func TestMetricsMiddlewareRecordsRoute(t *testing.T) {
	metrics := service.NewMetricsService()
	r := newRouter(Metrics(metrics))

	serve(r, "")
	assert.Equal(t, uint64(1), metrics.Snapshot().RequestsTotal)
}
