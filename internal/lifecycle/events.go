package lifecycle

import "time"

type EventKind string

const (
	EventReportCreated     EventKind = "ReportCreated"
	EventStatusChanged     EventKind = "StatusChanged"
	EventVoteCast          EventKind = "VoteCast"
	EventCapabilityGranted EventKind = "CapabilityGranted"
	EventCapabilityRevoked EventKind = "CapabilityRevoked"
)

// Event is a lifecycle notification for external indexers. The engine never
// reads events back.
type Event interface {
	Kind() EventKind
	OccurredAt() time.Time
}

type ReportCreated struct {
	ID                ReportID  `json:"id"`
	EvidenceReference string    `json:"evidence_reference"`
	Timestamp         time.Time `json:"timestamp"`
}

// StatusChanged carries the report's reopen count after the transition, so
// a forced closure at the reopen limit is visible to indexers.
type StatusChanged struct {
	ID          ReportID  `json:"id"`
	OldStatus   Status    `json:"old_status"`
	NewStatus   Status    `json:"new_status"`
	Actor       Actor     `json:"actor"`
	ReopenCount uint32    `json:"reopen_count"`
	Timestamp   time.Time `json:"timestamp"`
}

type VoteCast struct {
	ID              ReportID  `json:"id"`
	Phase           Phase     `json:"phase"`
	Support         bool      `json:"support"`
	ResultingStatus Status    `json:"resulting_status"`
	Timestamp       time.Time `json:"timestamp"`
}

type CapabilityChanged struct {
	Principal  Principal  `json:"principal"`
	Capability Capability `json:"capability"`
	Granted    bool       `json:"granted"`
	Actor      Actor      `json:"actor"`
	Timestamp  time.Time  `json:"timestamp"`
}

func (ReportCreated) Kind() EventKind { return EventReportCreated }
func (StatusChanged) Kind() EventKind { return EventStatusChanged }
func (VoteCast) Kind() EventKind      { return EventVoteCast }

func (e CapabilityChanged) Kind() EventKind {
	if e.Granted {
		return EventCapabilityGranted
	}
	return EventCapabilityRevoked
}

func (e ReportCreated) OccurredAt() time.Time     { return e.Timestamp }
func (e StatusChanged) OccurredAt() time.Time     { return e.Timestamp }
func (e VoteCast) OccurredAt() time.Time          { return e.Timestamp }
func (e CapabilityChanged) OccurredAt() time.Time { return e.Timestamp }

// Notifier receives events after an operation has fully applied.
type Notifier interface {
	Notify(Event)
}

type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type discardNotifier struct{}

func (discardNotifier) Notify(Event) {}

// Discard drops every event.
var Discard Notifier = discardNotifier{}
