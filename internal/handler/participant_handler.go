package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/pkg/response"
)

type participantService interface {
	Lookup(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, *models.Pagination, error)
}

// ParticipantHandler exposes participant directory search.
type ParticipantHandler struct {
	participants participantService
}

// NewParticipantHandler constructs ParticipantHandler.
func NewParticipantHandler(participants participantService) *ParticipantHandler {
	return &ParticipantHandler{participants: participants}
}

// Lookup godoc
// @Summary Search participants by name
// @Tags Participants
// @Produce json
// @Param q query string false "Name fragment"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /participants [get]
func (h *ParticipantHandler) Lookup(c *gin.Context) {
	filter := models.ParticipantFilter{Query: c.Query("q")}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	participants, pagination, err := h.participants.Lookup(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participants, pagination)
}
