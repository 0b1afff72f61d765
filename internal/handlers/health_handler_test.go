package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicledger/civic-ledger/internal/dto"
	"github.com/civicledger/civic-ledger/internal/journal"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

type stubStats struct {
	stats lifecycle.Stats
	err   error
}

func (s stubStats) Stats(context.Context) (lifecycle.Stats, error) { return s.stats, s.err }

type stubHead journal.Head

func (h stubHead) Head() journal.Head { return journal.Head(h) }

func TestHealthCheck(t *testing.T) {
	stats := lifecycle.Stats{
		Reports:  2,
		ByStatus: map[lifecycle.Status]int{lifecycle.StatusPendingValidation: 1, lifecycle.StatusClosed: 1},
		Grants:   3,
	}

	tests := []struct {
		name   string
		ledger StatsSource
		ping   func() error
		code   int
		status string
		db     string
	}{
		{"healthy", stubStats{stats: stats}, func() error { return nil }, fiber.StatusOK, "ok", "ok"},
		{"read model down", stubStats{stats: stats}, func() error { return errors.New("connection refused") },
			fiber.StatusOK, "degraded", "unhealthy: connection refused"},
		{"ledger unavailable", stubStats{err: errors.New("sequencer: not started")}, func() error { return nil },
			fiber.StatusServiceUnavailable, "unavailable", "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &HealthHandler{ledger: tt.ledger, journal: stubHead{Seq: 7}, ping: tt.ping}
			app := fiber.New()
			app.Get("/health", h.Check)

			resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)

			var body dto.HealthResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.status, body.Status)
			assert.Equal(t, tt.db, body.DB)
			assert.Equal(t, uint64(7), body.JournalHead)
			if tt.code == fiber.StatusOK {
				assert.Equal(t, 2, body.Reports)
				assert.Equal(t, 3, body.Grants)
				assert.Equal(t, 1, body.ByStatus[lifecycle.StatusClosed.String()])
			}
		})
	}
}
