package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/civicledger/civic-ledger/internal/dto"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
	"github.com/civicledger/civic-ledger/internal/services"
)

type RoleHandler struct {
	ledger *services.LedgerService
}

func NewRoleHandler(ledger *services.LedgerService) *RoleHandler {
	return &RoleHandler{ledger: ledger}
}

func (h *RoleHandler) Grant(c *fiber.Ctx) error {
	return h.change(c, true)
}

func (h *RoleHandler) Revoke(c *fiber.Ctx) error {
	return h.change(c, false)
}

func (h *RoleHandler) change(c *fiber.Ctx, grant bool) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	target := lifecycle.Principal(c.Params("principal"))
	if target == "" {
		return badRequest(c, "Invalid principal")
	}
	capability := c.Params("capability")

	var err error
	if grant {
		err = h.ledger.GrantCapability(c.UserContext(), p, target, capability)
	} else {
		err = h.ledger.RevokeCapability(c.UserContext(), p, target, capability)
	}
	if err != nil {
		return respondError(c, err)
	}

	c.Set("Cache-Control", "no-store")
	return c.JSON(dto.GrantResponse{
		Principal:  string(target),
		Capability: capability,
		Granted:    grant,
	})
}
