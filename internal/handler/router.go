package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/class-roster-api/internal/middleware"
	"github.com/noah-isme/class-roster-api/internal/models"
)

// Handlers groups every HTTP handler mounted by RegisterRoutes.
type Handlers struct {
	Roster       *RosterHandler
	Enrollments  *EnrollmentHandler
	Attendance   *AttendanceHandler
	Entitlements *EntitlementHandler
	Participants *ParticipantHandler
	Metrics      *MetricsHandler
}

// RegisterRoutes mounts the roster API under prefix. Health and metrics
// endpoints stay at the root and are unauthenticated.
func RegisterRoutes(r *gin.Engine, prefix string, auth middleware.TokenValidator, h Handlers, log *zap.Logger) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.Use(middleware.JWT(auth))

	anyStaff := middleware.RBAC(models.RoleAdmin, models.RoleStaff, models.RoleTeacher)
	desk := middleware.RBAC(models.RoleAdmin, models.RoleStaff)

	api.GET("/metrics/summary", middleware.RBAC(models.RoleAdmin), h.Metrics.Snapshot)

	sessions := api.Group("/sessions/:id")
	sessions.GET("/roster", anyStaff, middleware.WithResponseMeta(), h.Roster.Get)
	sessions.GET("/roster.pdf", anyStaff, h.Roster.PDF)
	sessions.POST("/enrollments", desk, middleware.Audit(log, "enrollment.create", "class_session"), h.Enrollments.Create)
	sessions.POST("/close", anyStaff, middleware.Audit(log, "session.close", "class_session"), h.Attendance.Close)

	enrollments := api.Group("/enrollments/:id")
	enrollments.DELETE("", desk, middleware.Audit(log, "enrollment.cancel", "enrollment"), h.Enrollments.Cancel)
	enrollments.PUT("/status", anyStaff, middleware.Audit(log, "attendance.set", "enrollment"), h.Attendance.SetStatus)

	api.GET("/customers/:id/entitlements", desk, h.Entitlements.ListByCustomer)
	api.GET("/participants", desk, h.Participants.Lookup)
}
