package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/civicledger/civic-ledger/internal/dto"
	"github.com/civicledger/civic-ledger/internal/indexer"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
	"github.com/civicledger/civic-ledger/internal/models"
	"github.com/civicledger/civic-ledger/internal/sequencer"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrModerationRequired = errors.New("description must carry a valid moderation signature")
)

// ReportIndex is the queryable read model. *indexer.Indexer satisfies it.
type ReportIndex interface {
	ListReports(ctx context.Context, filter indexer.ListFilter) ([]models.ReportView, int64, error)
	History(ctx context.Context, id lifecycle.ReportID, limit int) ([]models.LifecycleEvent, error)
}

// LedgerService translates relay requests into ledger commands. Writes and
// authoritative reads go through the sequencer; listings come from the index.
type LedgerService struct {
	seq               *sequencer.Sequencer
	index             ReportIndex
	moderation        *ModerationService
	requireModeration bool
}

func NewLedgerService(seq *sequencer.Sequencer, index ReportIndex, moderation *ModerationService, requireModeration bool) *LedgerService {
	return &LedgerService{
		seq:               seq,
		index:             index,
		moderation:        moderation,
		requireModeration: requireModeration,
	}
}

func (s *LedgerService) SubmitReport(ctx context.Context, caller lifecycle.Principal, req *dto.SubmitReportRequest) (lifecycle.ReportID, error) {
	n, err := lifecycle.ParseNullifier(req.SubmissionNullifier)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if s.requireModeration {
		if req.Description == "" || s.moderation == nil || !s.moderation.VerifySignature(req.Description, req.ModerationSignature) {
			return 0, ErrModerationRequired
		}
	}

	res, err := s.seq.Execute(ctx, sequencer.Submit(caller, req.EvidenceReference, n))
	if err != nil {
		return 0, err
	}
	return res.Report.ID, nil
}

func (s *LedgerService) Vote(ctx context.Context, caller lifecycle.Principal, id lifecycle.ReportID, req *dto.VoteRequest) (lifecycle.Report, error) {
	n, err := lifecycle.ParseNullifier(req.VotingNullifier)
	if err != nil {
		return lifecycle.Report{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	phase, err := lifecycle.ParsePhase(req.Phase)
	if err != nil {
		return lifecycle.Report{}, err
	}
	return s.report(s.seq.Execute(ctx, sequencer.Vote(caller, id, req.Support, n, phase)))
}

func (s *LedgerService) MarkAsSolved(ctx context.Context, caller lifecycle.Principal, id lifecycle.ReportID) (lifecycle.Report, error) {
	return s.report(s.seq.Execute(ctx, sequencer.Solve(caller, id)))
}

func (s *LedgerService) RejectIssue(ctx context.Context, caller lifecycle.Principal, id lifecycle.ReportID) (lifecycle.Report, error) {
	return s.report(s.seq.Execute(ctx, sequencer.Reject(caller, id)))
}

func (s *LedgerService) report(res sequencer.Result, err error) (lifecycle.Report, error) {
	if err != nil {
		return lifecycle.Report{}, err
	}
	if res.Report == nil {
		return lifecycle.Report{}, fmt.Errorf("sequencer returned no report for seq %d", res.Seq)
	}
	return *res.Report, nil
}

// GetReport reads the authoritative report from the ledger.
func (s *LedgerService) GetReport(ctx context.Context, id lifecycle.ReportID) (lifecycle.Report, error) {
	r, ok, err := s.seq.Report(ctx, id)
	if err != nil {
		return lifecycle.Report{}, err
	}
	if !ok {
		return lifecycle.Report{}, lifecycle.ErrReportNotFound
	}
	return r, nil
}

func (s *LedgerService) ListReports(ctx context.Context, status string, limit, offset int) ([]models.ReportView, int64, error) {
	filter := indexer.ListFilter{Limit: limit, Offset: offset}
	if status != "" {
		st, err := lifecycle.ParseStatus(status)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		filter.Status = &st
	}
	return s.index.ListReports(ctx, filter)
}

func (s *LedgerService) History(ctx context.Context, id lifecycle.ReportID, limit int) ([]models.LifecycleEvent, error) {
	return s.index.History(ctx, id, limit)
}

func (s *LedgerService) GrantCapability(ctx context.Context, caller, target lifecycle.Principal, capability string) error {
	c, err := lifecycle.ParseCapability(capability)
	if err != nil {
		return err
	}
	_, err = s.seq.Execute(ctx, sequencer.GrantCapability(caller, target, c))
	return err
}

func (s *LedgerService) RevokeCapability(ctx context.Context, caller, target lifecycle.Principal, capability string) error {
	c, err := lifecycle.ParseCapability(capability)
	if err != nil {
		return err
	}
	_, err = s.seq.Execute(ctx, sequencer.RevokeCapability(caller, target, c))
	return err
}

func (s *LedgerService) HasCapability(ctx context.Context, p lifecycle.Principal, c lifecycle.Capability) (bool, error) {
	return s.seq.HasCapability(ctx, p, c)
}

func (s *LedgerService) Policy() lifecycle.Policy {
	return s.seq.Policy()
}

func (s *LedgerService) Stats(ctx context.Context) (lifecycle.Stats, error) {
	return s.seq.Stats(ctx)
}
