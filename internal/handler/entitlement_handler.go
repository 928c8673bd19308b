package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/pkg/response"
)

type entitlementService interface {
	CustomerSummaries(ctx context.Context, customerID string) ([]models.EntitlementSummary, error)
}

// EntitlementHandler exposes a customer's usable membership credits.
type EntitlementHandler struct {
	entitlements entitlementService
}

// NewEntitlementHandler constructs EntitlementHandler.
func NewEntitlementHandler(entitlements entitlementService) *EntitlementHandler {
	return &EntitlementHandler{entitlements: entitlements}
}

// ListByCustomer godoc
// @Summary List consumable entitlements of a customer
// @Description Soonest-expiring first, then fewest remaining uses.
// @Tags Entitlements
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {object} response.Envelope
// @Router /customers/{id}/entitlements [get]
func (h *EntitlementHandler) ListByCustomer(c *gin.Context) {
	summaries, err := h.entitlements.CustomerSummaries(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summaries, nil)
}
