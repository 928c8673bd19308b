package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/internal/service"
	appErrors "github.com/noah-isme/class-roster-api/pkg/errors"
	"github.com/noah-isme/class-roster-api/pkg/response"
)

type attendanceService interface {
	SetStatus(ctx context.Context, req service.SetStatusRequest) (*models.Enrollment, error)
	BatchComplete(ctx context.Context, sessionID, staffID string) (*service.BatchResult, error)
}

// AttendanceHandler exposes roll-call endpoints.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// SetStatus godoc
// @Summary Record attendance outcome
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.SetStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /enrollments/{id}/status [put]
func (h *AttendanceHandler) SetStatus(c *gin.Context) {
	var req service.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.Status = models.EnrollmentStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	req.EnrollmentID = c.Param("id")
	req.StaffID = staffIDFromContext(c)

	enrollment, err := h.attendance.SetStatus(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Close godoc
// @Summary Close class
// @Description Marks every still-enrolled participant as completed. Per-item failures are reported in the result.
// @Tags Attendance
// @Produce json
// @Param id path string true "Class session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /sessions/{id}/close [post]
func (h *AttendanceHandler) Close(c *gin.Context) {
	result, err := h.attendance.BatchComplete(c.Request.Context(), c.Param("id"), staffIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{"partial": result.Failed > 0})
}
