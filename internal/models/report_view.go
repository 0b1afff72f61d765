package models

import "time"

// ReportView is the queryable projection of a report, maintained from
// lifecycle events. The ledger itself stays authoritative.
type ReportView struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	EvidenceReference string    `gorm:"type:text;not null" json:"evidence_reference"`
	Status            string    `gorm:"size:32;not null;index" json:"status"`
	ActionedBy        string    `gorm:"size:255;not null" json:"actioned_by"`
	VotesFor          uint32    `gorm:"not null" json:"votes_for"`
	VotesAgainst      uint32    `gorm:"not null" json:"votes_against"`
	ReopenCount       uint32    `gorm:"not null" json:"reopen_count"`
	SubmittedAt       time.Time `gorm:"not null;index" json:"submitted_at"`
	ExpiresAt         time.Time `gorm:"not null" json:"expires_at"`
	LastEventAt       time.Time `gorm:"not null" json:"last_event_at"`
}
