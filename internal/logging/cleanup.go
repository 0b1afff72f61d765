package logging

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/civicledger/civic-ledger/internal/models"
)

const cleanupInterval = 24 * time.Hour

// StartCleanup purges system_logs older than retention once at start and then
// daily until done is closed.
func StartCleanup(db *gorm.DB, retention time.Duration, done <-chan struct{}) {
	run := func() {
		deleted, err := Purge(db, time.Now().Add(-retention))
		if err != nil {
			slog.Error("log cleanup failed", "error", err)
			return
		}
		if deleted > 0 {
			slog.Info("log cleanup completed", "deleted", deleted, "retention", retention.String())
		}
	}

	go func() {
		run()
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				run()
			case <-done:
				return
			}
		}
	}()
}

// Purge deletes system logs recorded before cutoff.
func Purge(db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
	return result.RowsAffected, result.Error
}
