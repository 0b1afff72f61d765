package middleware

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/civicledger/civic-ledger/internal/dto"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

// CapabilityChecker answers role queries. *services.LedgerService satisfies it.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, p lifecycle.Principal, c lifecycle.Capability) (bool, error)
}

// CapabilityRequired rejects callers without capability before the request
// reaches the ledger. The ledger repeats the check when the command applies.
func CapabilityRequired(checker CapabilityChecker, capability lifecycle.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := GetPrincipal(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized", Code: "UNAUTHORIZED",
			})
		}

		has, err := checker.HasCapability(c.UserContext(), p, capability)
		if err != nil {
			slog.Error("capability check failed", "principal", string(p), "capability", capability.String(), "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Error: true, Message: "Ledger unavailable", Code: "UNAVAILABLE",
			})
		}
		if !has {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: true, Message: capability.String() + " capability required", Code: lifecycle.ErrorCode(lifecycle.ErrAccessDenied),
			})
		}
		return c.Next()
	}
}
