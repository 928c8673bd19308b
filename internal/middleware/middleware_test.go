package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/internal/service"
	appErrors "github.com/noah-isme/class-roster-api/pkg/errors"
	"github.com/noah-isme/class-roster-api/pkg/logger"
)

type fakeValidator struct {
	claims *models.JWTClaims
	err    error
	token  string
}

func (f *fakeValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	f.token = token
	return f.claims, f.err
}

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.PUT("/enrollments/:id/status", handlers...)
	return r
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	validator := &fakeValidator{}
	r := newTestRouter(JWT(validator), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, header := range []string{"", "Token abc", "Bearer "} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/enrollments/e1/status", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}

	validator.err = appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/enrollments/e1/status", nil)
	req.Header.Set("Authorization", "Bearer abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "abc", validator.token)
}

func TestJWTAndRBACAllowPermittedRole(t *testing.T) {
	validator := &fakeValidator{claims: &models.JWTClaims{StaffID: "staff-1", Role: models.RoleTeacher}}
	var staffID string
	r := newTestRouter(JWT(validator), RBAC(models.RoleAdmin, models.RoleTeacher), func(c *gin.Context) {
		staffID = c.GetString(logger.StaffIDKey)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/enrollments/e1/status", nil)
	req.Header.Set("Authorization", "Bearer good")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "staff-1", staffID)
}

func TestRBACForbidsOtherRoles(t *testing.T) {
	validator := &fakeValidator{claims: &models.JWTClaims{StaffID: "staff-1", Role: models.RoleTeacher}}
	r := newTestRouter(JWT(validator), RBAC(models.RoleAdmin, models.RoleStaff), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/enrollments/e1/status", nil)
	req.Header.Set("Authorization", "Bearer good")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuditLogsSuccessfulChangesOnly(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	validator := &fakeValidator{claims: &models.JWTClaims{StaffID: "staff-7", Role: models.RoleStaff}}
	status := http.StatusNoContent
	r := newTestRouter(JWT(validator), Audit(zap.New(core), "attendance.set", "enrollment"), func(c *gin.Context) { c.Status(status) })

	do := func() {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/enrollments/e1/status", nil)
		req.Header.Set("Authorization", "Bearer good")
		r.ServeHTTP(w, req)
	}
	do()
	status = http.StatusLocked
	do()

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "e1", fields["resource_id"])
	assert.Equal(t, "staff-7", fields["staff_id"])
	assert.Equal(t, "attendance.set", fields["action"])
}

func TestResponseMetaCarriesProcessingTime(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var meta map[string]interface{}
	r.GET("/x", WithResponseMeta(), func(c *gin.Context) {
		SetMeta(c, "locked", true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NotNil(t, meta)
	assert.Equal(t, true, meta["locked"])
	assert.Contains(t, meta, "processing_time_ms")
	assert.Nil(t, ExtractMeta(nil))
}

func TestMetricsLabelsRouteTemplateAndSkipsHealthEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metricsSvc := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metricsSvc))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/sessions/:id/roster", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/health", "/sessions/s1/roster", "/sessions/s2/roster", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	families, err := metricsSvc.Registry().Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" {
					counts[label.GetValue()] += metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"/sessions/:id/roster": 2, "unmatched": 1}, counts)
}
