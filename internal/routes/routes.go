package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/civicledger/civic-ledger/internal/config"
	"github.com/civicledger/civic-ledger/internal/handlers"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
	"github.com/civicledger/civic-ledger/internal/middleware"
)

type Handlers struct {
	Reports    *handlers.ReportHandler
	Roles      *handlers.RoleHandler
	Moderation *handlers.ModerationHandler
	Health     *handlers.HealthHandler
	Policy     *handlers.PolicyHandler
	Metrics    fiber.Handler
}

func Setup(app *fiber.App, cfg *config.Config, checker middleware.CapabilityChecker, h Handlers) {
	if h.Metrics != nil {
		app.Get("/metrics", h.Metrics)
	}

	api := app.Group("/api")

	// Health (no auth)
	api.Get("/health", h.Health.Check)

	// Threshold policy (public)
	api.Get("/policy", h.Policy.GetPolicy)

	// General API rate limiter per IP
	api.Use(limiter.New(limiter.Config{
		Max:               cfg.RateLimitMax,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	// Moderation oracle (public, stricter limit)
	api.Post("/moderate", limiter.New(limiter.Config{
		Max:               20,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}), h.Moderation.Moderate)

	// Ledger routes (JWT required, sub is the caller)
	authed := []fiber.Handler{middleware.JWTProtected(cfg), middleware.RequirePrincipal()}

	reports := api.Group("/reports", authed...)
	reports.Post("/", h.Reports.Submit)
	reports.Get("/", h.Reports.List)
	reports.Get("/:id", h.Reports.Get)
	reports.Get("/:id/events", h.Reports.Events)
	reports.Post("/:id/votes", h.Reports.Vote)
	reports.Post("/:id/solve", middleware.CapabilityRequired(checker, lifecycle.CapabilityAuthority), h.Reports.Solve)
	reports.Post("/:id/reject", middleware.CapabilityRequired(checker, lifecycle.CapabilityAuthority), h.Reports.Reject)

	// Role administration (Admin capability)
	admin := api.Group("/admin", append(authed, middleware.CapabilityRequired(checker, lifecycle.CapabilityAdmin))...)
	admin.Put("/roles/:principal/:capability", h.Roles.Grant)
	admin.Delete("/roles/:principal/:capability", h.Roles.Revoke)
}
