package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicledger/civic-ledger/internal/dto"
	"github.com/civicledger/civic-ledger/internal/indexer"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
	"github.com/civicledger/civic-ledger/internal/models"
	"github.com/civicledger/civic-ledger/internal/sequencer"
)

const (
	relay     lifecycle.Principal = "relay"
	authority lifecycle.Principal = "city-works"
	admin     lifecycle.Principal = "admin"
)

type fakeIndex struct {
	filter indexer.ListFilter
}

func (f *fakeIndex) ListReports(_ context.Context, filter indexer.ListFilter) ([]models.ReportView, int64, error) {
	f.filter = filter
	return []models.ReportView{{ID: 1, Status: "Open"}}, 1, nil
}

func (f *fakeIndex) History(_ context.Context, id lifecycle.ReportID, _ int) ([]models.LifecycleEvent, error) {
	rid := uint64(id)
	return []models.LifecycleEvent{{ID: 1, ReportID: &rid, Kind: "ReportCreated"}}, nil
}

func hexNullifier(b byte) string {
	return fmt.Sprintf("0x%064x", b)
}

func newLedgerService(t *testing.T, moderation *ModerationService, gate bool) (*LedgerService, *fakeIndex) {
	t.Helper()
	engine, err := lifecycle.NewEngine(lifecycle.DefaultPolicy(), nil,
		lifecycle.Grant{Principal: relay, Capability: lifecycle.CapabilitySubmit},
		lifecycle.Grant{Principal: authority, Capability: lifecycle.CapabilityAuthority},
		lifecycle.Grant{Principal: admin, Capability: lifecycle.CapabilityAdmin},
	)
	require.NoError(t, err)
	seq := sequencer.New(engine, nil)
	_, err = seq.Start()
	require.NoError(t, err)
	t.Cleanup(seq.Stop)

	index := &fakeIndex{}
	return NewLedgerService(seq, index, moderation, gate), index
}

func TestLedgerServiceLifecycle(t *testing.T) {
	svc, _ := newLedgerService(t, nil, false)
	ctx := context.Background()

	id, err := svc.SubmitReport(ctx, relay, &dto.SubmitReportRequest{
		EvidenceReference:   "ipfs://streetlight",
		SubmissionNullifier: hexNullifier(1),
	})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ReportID(1), id)

	var r lifecycle.Report
	for i := byte(0); i < 3; i++ {
		r, err = svc.Vote(ctx, relay, id, &dto.VoteRequest{Support: true, VotingNullifier: hexNullifier(10 + i), Phase: "Validation"})
		require.NoError(t, err)
	}
	assert.Equal(t, lifecycle.StatusOpen, r.Status)

	r, err = svc.MarkAsSolved(ctx, authority, id)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPendingVerification, r.Status)
	assert.Equal(t, "manual:city-works", r.ActionedBy.String())

	got, err := svc.GetReport(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = svc.GetReport(ctx, 42)
	assert.ErrorIs(t, err, lifecycle.ErrReportNotFound)

	_, err = svc.RejectIssue(ctx, relay, id)
	assert.ErrorIs(t, err, lifecycle.ErrAccessDenied)
}

func TestLedgerServiceRejectsBadInput(t *testing.T) {
	svc, _ := newLedgerService(t, nil, false)
	ctx := context.Background()

	_, err := svc.SubmitReport(ctx, relay, &dto.SubmitReportRequest{EvidenceReference: "x", SubmissionNullifier: "0x12"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Vote(ctx, relay, 1, &dto.VoteRequest{VotingNullifier: hexNullifier(2), Phase: "Closing"})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidPhase)

	err = svc.GrantCapability(ctx, admin, "inspector", "Superuser")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidCapability)

	_, _, err = svc.ListReports(ctx, "Archived", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLedgerServiceCapabilities(t *testing.T) {
	svc, _ := newLedgerService(t, nil, false)
	ctx := context.Background()

	require.NoError(t, svc.GrantCapability(ctx, admin, "inspector", "authority"))
	ok, err := svc.HasCapability(ctx, "inspector", lifecycle.CapabilityAuthority)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.RevokeCapability(ctx, admin, "inspector", "Authority"))
	ok, err = svc.HasCapability(ctx, "inspector", lifecycle.CapabilityAuthority)
	require.NoError(t, err)
	assert.False(t, ok)

	err = svc.GrantCapability(ctx, relay, relay, "Admin")
	assert.ErrorIs(t, err, lifecycle.ErrAccessDenied)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Grants)
}

func TestLedgerServiceModerationGate(t *testing.T) {
	moderation := newModeration(t, []byte("relay-signing-key"))
	svc, _ := newLedgerService(t, moderation, true)
	ctx := context.Background()

	description := "Streetlight on Lake Road has been out for two weeks"
	req := &dto.SubmitReportRequest{
		EvidenceReference:   "ipfs://streetlight",
		SubmissionNullifier: hexNullifier(3),
		Description:         description,
	}

	_, err := svc.SubmitReport(ctx, relay, req)
	assert.ErrorIs(t, err, ErrModerationRequired)

	req.ModerationSignature = moderation.Moderate(description).Signature
	id, err := svc.SubmitReport(ctx, relay, req)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ReportID(1), id)
}

func TestLedgerServiceListing(t *testing.T) {
	svc, index := newLedgerService(t, nil, false)
	ctx := context.Background()

	reports, total, err := svc.ListReports(ctx, "open", 10, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, reports, 1)
	require.NotNil(t, index.filter.Status)
	assert.Equal(t, lifecycle.StatusOpen, *index.filter.Status)
	assert.Equal(t, 10, index.filter.Limit)
	assert.Equal(t, 5, index.filter.Offset)

	events, err := svc.History(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(7), *events[0].ReportID)
}
