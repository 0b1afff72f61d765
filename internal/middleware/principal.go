package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/civicledger/civic-ledger/internal/dto"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

const principalKey = "principal"

var (
	ErrNoToken    = errors.New("invalid token in context")
	ErrNoSubClaim = errors.New("missing sub claim")
)

// principalFromToken reads the caller principal from the sub claim of the
// verified JWT.
func principalFromToken(c *fiber.Ctx) (lifecycle.Principal, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return "", ErrNoToken
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", ErrNoSubClaim
	}
	return lifecycle.Principal(sub), nil
}

// RequirePrincipal resolves the caller once per request. It must run after
// JWTProtected.
func RequirePrincipal() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := principalFromToken(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized: " + err.Error(), Code: "UNAUTHORIZED",
			})
		}
		c.Locals(principalKey, p)
		return c.Next()
	}
}

// GetPrincipal returns the caller stored by RequirePrincipal.
func GetPrincipal(c *fiber.Ctx) (lifecycle.Principal, bool) {
	p, ok := c.Locals(principalKey).(lifecycle.Principal)
	return p, ok && p != ""
}
