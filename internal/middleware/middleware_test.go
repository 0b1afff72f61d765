package middleware

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicledger/civic-ledger/internal/config"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

const secret = "test-secret"

type staticChecker struct {
	grants map[lifecycle.Principal]lifecycle.Capability
	err    error
}

func (s staticChecker) HasCapability(_ context.Context, p lifecycle.Principal, c lifecycle.Capability) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	got, ok := s.grants[p]
	return ok && got == c, nil
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newApp(checker CapabilityChecker) *fiber.App {
	app := fiber.New()
	api := app.Group("/api", JWTProtected(&config.Config{JWTSecret: secret}), RequirePrincipal())
	api.Get("/whoami", func(c *fiber.Ctx) error {
		p, _ := GetPrincipal(c)
		return c.SendString(string(p))
	})
	api.Get("/admin", CapabilityRequired(checker, lifecycle.CapabilityAdmin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAuthChain(t *testing.T) {
	checker := staticChecker{grants: map[lifecycle.Principal]lifecycle.Capability{"root": lifecycle.CapabilityAdmin}}
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		path   string
		token  string
		status int
		body   string
	}{
		{"missing token", "/api/whoami", "", fiber.StatusUnauthorized, ""},
		{"bad signature", "/api/whoami", "Bearer abc.def.ghi", fiber.StatusUnauthorized, ""},
		{"principal from sub", "/api/whoami", "Bearer " + signToken(t, jwt.MapClaims{"sub": "relay", "exp": exp}), fiber.StatusOK, "relay"},
		{"token without sub", "/api/whoami", "Bearer " + signToken(t, jwt.MapClaims{"exp": exp}), fiber.StatusUnauthorized, ""},
		{"admin allowed", "/api/admin", "Bearer " + signToken(t, jwt.MapClaims{"sub": "root", "exp": exp}), fiber.StatusOK, "ok"},
		{"admin denied", "/api/admin", "Bearer " + signToken(t, jwt.MapClaims{"sub": "relay", "exp": exp}), fiber.StatusForbidden, ""},
	}

	app := newApp(checker)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", tt.token)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.body != "" {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, tt.body, string(body))
			}
		})
	}
}

func TestCapabilityCheckFailure(t *testing.T) {
	app := newApp(staticChecker{err: errors.New("sequencer: stopped")})
	req := httptest.NewRequest("GET", "/api/admin", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "root", "exp": time.Now().Add(time.Hour).Unix()}))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
