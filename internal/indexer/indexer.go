// Package indexer projects lifecycle events into PostgreSQL so reports can be
// listed and their history browsed without going through the command lane.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
	"github.com/civicledger/civic-ledger/internal/models"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Indexer struct {
	db  *gorm.DB
	ttl time.Duration
}

// New returns an indexer writing to db. ttl is the ledger's expiration
// timeout, used to fill in ExpiresAt for newly created reports.
func New(db *gorm.DB, ttl time.Duration) *Indexer {
	return &Indexer{db: db, ttl: ttl}
}

func (ix *Indexer) Models() []interface{} {
	return []interface{}{&models.ReportView{}, &models.LifecycleEvent{}}
}

func (ix *Indexer) Name() string { return "indexer" }

// Deliver records e and applies it to the report projection in one
// transaction.
func (ix *Indexer) Deliver(ctx context.Context, e lifecycle.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("indexer: encode %s: %w", e.Kind(), err)
	}
	row := models.LifecycleEvent{
		Kind:       string(e.Kind()),
		OccurredAt: e.OccurredAt(),
		Payload:    datatypes.JSON(payload),
	}

	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch ev := e.(type) {
		case lifecycle.ReportCreated:
			row.ReportID = reportID(ev.ID)
			view := models.ReportView{
				ID:                uint64(ev.ID),
				EvidenceReference: ev.EvidenceReference,
				Status:            lifecycle.StatusPendingValidation.String(),
				ActionedBy:        lifecycle.AutomaticActor.String(),
				SubmittedAt:       ev.Timestamp,
				ExpiresAt:         ev.Timestamp.Add(ix.ttl),
				LastEventAt:       ev.Timestamp,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&view).Error; err != nil {
				return fmt.Errorf("indexer: create view %d: %w", ev.ID, err)
			}
		case lifecycle.StatusChanged:
			row.ReportID = reportID(ev.ID)
			row.Actor = ev.Actor.String()
			updates := map[string]interface{}{
				"status":        ev.NewStatus.String(),
				"actioned_by":   ev.Actor.String(),
				"reopen_count":  ev.ReopenCount,
				"last_event_at": ev.Timestamp,
			}
			if !ev.Actor.IsAutomatic() {
				updates["votes_for"] = 0
				updates["votes_against"] = 0
			}
			if err := ix.updateView(tx, ev.ID, updates); err != nil {
				return err
			}
		case lifecycle.VoteCast:
			row.ReportID = reportID(ev.ID)
			column := "votes_against"
			if ev.Support {
				column = "votes_for"
			}
			updates := map[string]interface{}{
				column:          gorm.Expr(column + " + 1"),
				"last_event_at": ev.Timestamp,
			}
			if err := ix.updateView(tx, ev.ID, updates); err != nil {
				return err
			}
		case lifecycle.CapabilityChanged:
			row.Actor = ev.Actor.String()
		}

		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("indexer: record %s: %w", e.Kind(), err)
		}
		return nil
	})
}

func (ix *Indexer) updateView(tx *gorm.DB, id lifecycle.ReportID, updates map[string]interface{}) error {
	result := tx.Model(&models.ReportView{}).Where("id = ?", uint64(id)).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("indexer: update view %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("indexer: update view %d: %w", id, lifecycle.ErrReportNotFound)
	}
	return nil
}

type ListFilter struct {
	Status *lifecycle.Status
	Limit  int
	Offset int
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ListReports returns a page of report views, newest first, and the total
// number matching the filter.
func (ix *Indexer) ListReports(ctx context.Context, filter ListFilter) ([]models.ReportView, int64, error) {
	filter = filter.normalized()
	var (
		reports []models.ReportView
		total   int64
	)

	query := ix.db.WithContext(ctx).Model(&models.ReportView{}).Scopes(WithStatus(filter.Status))
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("submitted_at DESC").Order("id DESC").Scopes(Paginate(filter.Limit, filter.Offset)).Find(&reports).Error; err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// History returns the recorded events for one report in the order they
// occurred.
func (ix *Indexer) History(ctx context.Context, id lifecycle.ReportID, limit int) ([]models.LifecycleEvent, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}
	var events []models.LifecycleEvent
	err := ix.db.WithContext(ctx).
		Scopes(ForReport(id)).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func reportID(id lifecycle.ReportID) *uint64 {
	v := uint64(id)
	return &v
}
