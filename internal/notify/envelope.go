// Package notify delivers lifecycle events to external sinks off the
// command lane, in the order the engine emitted them.
package notify

import (
	"encoding/json"
	"time"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

// Envelope is the wire form of an event published to sinks outside the
// process.
type Envelope struct {
	Kind       lifecycle.EventKind `json:"kind"`
	OccurredAt time.Time           `json:"occurred_at"`
	ReportID   lifecycle.ReportID  `json:"report_id,omitempty"`
	Event      lifecycle.Event     `json:"event"`
}

func Wrap(e lifecycle.Event) Envelope {
	id, _ := ReportIDOf(e)
	return Envelope{Kind: e.Kind(), OccurredAt: e.OccurredAt(), ReportID: id, Event: e}
}

func Encode(e lifecycle.Event) ([]byte, error) {
	return json.Marshal(Wrap(e))
}

// ReportIDOf returns the report an event concerns. Capability events concern
// no report.
func ReportIDOf(e lifecycle.Event) (lifecycle.ReportID, bool) {
	switch ev := e.(type) {
	case lifecycle.ReportCreated:
		return ev.ID, true
	case lifecycle.StatusChanged:
		return ev.ID, true
	case lifecycle.VoteCast:
		return ev.ID, true
	default:
		return 0, false
	}
}
