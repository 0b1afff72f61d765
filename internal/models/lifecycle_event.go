package models

import (
	"time"

	"gorm.io/datatypes"
)

// LifecycleEvent is one published ledger event, kept for report history. ID
// follows publication order.
type LifecycleEvent struct {
	ID         uint64         `gorm:"primaryKey" json:"id"`
	ReportID   *uint64        `gorm:"index" json:"report_id,omitempty"`
	Kind       string         `gorm:"size:32;not null;index" json:"kind"`
	Actor      string         `gorm:"size:255" json:"actor,omitempty"`
	OccurredAt time.Time      `gorm:"not null;index" json:"occurred_at"`
	Payload    datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
}
