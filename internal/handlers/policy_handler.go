package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/civicledger/civic-ledger/internal/dto"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

type PolicySource interface {
	Policy() lifecycle.Policy
}

// PolicyHandler publishes the threshold policy so relays and voters can see
// how many votes move a report.
type PolicyHandler struct {
	ledger PolicySource
}

func NewPolicyHandler(ledger PolicySource) *PolicyHandler {
	return &PolicyHandler{ledger: ledger}
}

// GetPolicy returns the active thresholds (public).
func (h *PolicyHandler) GetPolicy(c *fiber.Ctx) error {
	c.Set("Cache-Control", "public, max-age=60")
	return c.JSON(dto.NewPolicyResponse(h.ledger.Policy()))
}
