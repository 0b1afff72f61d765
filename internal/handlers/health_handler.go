package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/civicledger/civic-ledger/internal/database"
	"github.com/civicledger/civic-ledger/internal/dto"
	"github.com/civicledger/civic-ledger/internal/journal"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

type StatsSource interface {
	Stats(ctx context.Context) (lifecycle.Stats, error)
}

// HeadSource reports the journal position. *journal.Journal satisfies it.
type HeadSource interface {
	Head() journal.Head
}

type HealthHandler struct {
	ledger  StatsSource
	journal HeadSource
	ping    func() error
}

func NewHealthHandler(ledger StatsSource, journal HeadSource) *HealthHandler {
	return &HealthHandler{ledger: ledger, journal: journal, ping: database.Ping}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	resp := dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        "ok",
	}

	// The ledger keeps serving without the read model, so a failed ping
	// degrades the status but keeps 200.
	if err := h.ping(); err != nil {
		resp.Status = "degraded"
		resp.DB = "unhealthy: " + err.Error()
	}

	if h.journal != nil {
		head := h.journal.Head()
		resp.JournalHead = head.Seq
		if head.Seq > 0 {
			resp.JournalHash = head.Hash.String()
		}
	}

	stats, err := h.ledger.Stats(c.UserContext())
	if err != nil {
		resp.Status = "unavailable"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	resp.Reports = stats.Reports
	resp.Grants = stats.Grants
	resp.ByStatus = make(map[string]int, len(stats.ByStatus))
	for s, n := range stats.ByStatus {
		resp.ByStatus[s.String()] = n
	}

	return c.JSON(resp)
}
