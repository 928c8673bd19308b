package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-roster-api/internal/middleware"
	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/pkg/response"
)

type rosterViewService interface {
	GetRosterView(ctx context.Context, sessionID string) (*models.RosterView, error)
}

type rollCallRenderer interface {
	RenderPDF(ctx context.Context, sessionID string) ([]byte, string, error)
}

// RosterHandler exposes the seat map of class sessions.
type RosterHandler struct {
	roster rosterViewService
	export rollCallRenderer
}

// NewRosterHandler constructs RosterHandler.
func NewRosterHandler(roster rosterViewService, export rollCallRenderer) *RosterHandler {
	return &RosterHandler{roster: roster, export: export}
}

// Get godoc
// @Summary Get class session roster
// @Description Seat map of the session; the Nth enrollment occupies seat N-1 in row-major order.
// @Tags Roster
// @Produce json
// @Param id path string true "Class session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/roster [get]
func (h *RosterHandler) Get(c *gin.Context) {
	view, err := h.roster.GetRosterView(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "locked", view.Locked)
	response.JSON(c, http.StatusOK, view, nil, middleware.ExtractMeta(c))
}

// PDF godoc
// @Summary Download roll-call sheet
// @Tags Roster
// @Produce application/pdf
// @Param id path string true "Class session ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/roster.pdf [get]
func (h *RosterHandler) PDF(c *gin.Context) {
	payload, filename, err := h.export.RenderPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "application/pdf", filename, payload)
}
