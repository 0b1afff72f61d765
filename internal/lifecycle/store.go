package lifecycle

import (
	"fmt"
	"time"
)

// ReportStore is the append-only report table. Identifiers are sequential
// from 1 and never reused.
type ReportStore struct {
	reports map[ReportID]*Report
	nextID  ReportID
}

func NewReportStore() *ReportStore {
	return &ReportStore{
		reports: make(map[ReportID]*Report),
		nextID:  1,
	}
}

func (s *ReportStore) create(evidence string, nullifier Nullifier, now time.Time, ttl time.Duration) Report {
	r := &Report{
		ID:                  s.nextID,
		EvidenceReference:   evidence,
		SubmissionNullifier: nullifier,
		Status:              StatusPendingValidation,
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
		ActionedBy:          AutomaticActor,
	}
	s.reports[r.ID] = r
	s.nextID++
	return *r
}

func (s *ReportStore) Get(id ReportID) (Report, bool) {
	r, ok := s.reports[id]
	if !ok {
		return Report{}, false
	}
	return *r, true
}

// mutate applies f to the stored record and returns the updated copy.
func (s *ReportStore) mutate(id ReportID, f func(*Report)) (Report, error) {
	r, ok := s.reports[id]
	if !ok {
		return Report{}, fmt.Errorf("%w: %d", ErrReportNotFound, id)
	}
	f(r)
	return *r, nil
}

func (s *ReportStore) Len() int { return len(s.reports) }

// CountByStatus returns the number of reports in each status.
func (s *ReportStore) CountByStatus() map[Status]int {
	out := make(map[Status]int, len(statusNames))
	for _, r := range s.reports {
		out[r.Status]++
	}
	return out
}
