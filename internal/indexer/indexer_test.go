package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

var t0 = time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

func newMockIndexer(t *testing.T) (*Indexer, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return New(db, 24*time.Hour), mock
}

func expectEventInsert(mock sqlmock.Sqlmock, id int64) {
	mock.ExpectQuery(`INSERT INTO "lifecycle_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
}

func TestDeliver(t *testing.T) {
	tests := []struct {
		name      string
		event     lifecycle.Event
		setupMock func(sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name:  "report created inserts view",
			event: lifecycle.ReportCreated{ID: 4, EvidenceReference: "ipfs://pothole", Timestamp: t0},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO "report_views" .* ON CONFLICT DO NOTHING`).
					WillReturnResult(sqlmock.NewResult(0, 1))
				expectEventInsert(mock, 1)
				mock.ExpectCommit()
			},
		},
		{
			name:  "supporting vote increments tally",
			event: lifecycle.VoteCast{ID: 4, Phase: lifecycle.PhaseValidation, Support: true, ResultingStatus: lifecycle.StatusPendingValidation, Timestamp: t0},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE "report_views" SET .*"votes_for"=votes_for \+ 1.* WHERE id = \$\d`).
					WillReturnResult(sqlmock.NewResult(0, 1))
				expectEventInsert(mock, 2)
				mock.ExpectCommit()
			},
		},
		{
			name:  "manual transition resets tallies",
			event: lifecycle.StatusChanged{ID: 4, OldStatus: lifecycle.StatusOpen, NewStatus: lifecycle.StatusPendingVerification, Actor: lifecycle.ManualActor("city-works"), Timestamp: t0},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE "report_views" SET .*"votes_against"=\$\d.*"votes_for"=\$\d`).
					WillReturnResult(sqlmock.NewResult(0, 1))
				expectEventInsert(mock, 3)
				mock.ExpectCommit()
			},
		},
		{
			name:  "reopen records count",
			event: lifecycle.StatusChanged{ID: 4, OldStatus: lifecycle.StatusPendingVerification, NewStatus: lifecycle.StatusReopened, Actor: lifecycle.AutomaticActor, ReopenCount: 2, Timestamp: t0},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE "report_views" SET .*"reopen_count"=\$3,"status"=\$4 WHERE id = \$5`).
					WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 2, "Reopened", 4).
					WillReturnResult(sqlmock.NewResult(0, 1))
				expectEventInsert(mock, 4)
				mock.ExpectCommit()
			},
		},
		{
			name:  "forced closure at the limit records count",
			event: lifecycle.StatusChanged{ID: 4, OldStatus: lifecycle.StatusPendingVerification, NewStatus: lifecycle.StatusClosed, Actor: lifecycle.AutomaticActor, ReopenCount: 3, Timestamp: t0},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE "report_views" SET .*"reopen_count"=\$3,"status"=\$4 WHERE id = \$5`).
					WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 3, "Closed", 4).
					WillReturnResult(sqlmock.NewResult(0, 1))
				expectEventInsert(mock, 5)
				mock.ExpectCommit()
			},
		},
		{
			name:  "status change for unknown report rolls back",
			event: lifecycle.StatusChanged{ID: 99, NewStatus: lifecycle.StatusOpen, Actor: lifecycle.AutomaticActor, Timestamp: t0},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE "report_views"`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			wantErr: lifecycle.ErrReportNotFound,
		},
		{
			name:  "capability change only records event",
			event: lifecycle.CapabilityChanged{Principal: "inspector", Capability: lifecycle.CapabilityAuthority, Granted: true, Actor: lifecycle.ManualActor("admin"), Timestamp: t0},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				expectEventInsert(mock, 5)
				mock.ExpectCommit()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, mock := newMockIndexer(t)
			tt.setupMock(mock)

			err := ix.Deliver(context.Background(), tt.event)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListReports(t *testing.T) {
	ix, mock := newMockIndexer(t)
	open := lifecycle.StatusOpen

	mock.ExpectQuery(`SELECT count\(\*\) FROM "report_views" WHERE status = \$1`).
		WithArgs("Open").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT \* FROM "report_views" WHERE status = \$1 ORDER BY submitted_at DESC,id DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "evidence_reference", "status", "actioned_by", "votes_for", "votes_against", "reopen_count", "submitted_at", "expires_at", "last_event_at"}).
			AddRow(2, "ipfs://b", "Open", "automatic", 3, 0, 0, t0.Add(time.Hour), t0.Add(25*time.Hour), t0.Add(time.Hour)).
			AddRow(1, "ipfs://a", "Open", "automatic", 3, 1, 0, t0, t0.Add(24*time.Hour), t0))

	reports, total, err := ix.ListReports(context.Background(), ListFilter{Status: &open, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, reports, 2)
	assert.Equal(t, uint64(2), reports[0].ID)
	assert.Equal(t, uint32(1), reports[1].VotesAgainst)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory(t *testing.T) {
	ix, mock := newMockIndexer(t)

	mock.ExpectQuery(`SELECT \* FROM "lifecycle_events" WHERE report_id = \$1 ORDER BY id ASC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "report_id", "kind", "actor", "occurred_at", "payload"}).
			AddRow(10, 7, "ReportCreated", "", t0, []byte(`{"id":7}`)).
			AddRow(11, 7, "StatusChanged", "automatic", t0, []byte(`{"id":7}`)))

	events, err := ix.History(context.Background(), 7, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ReportCreated", events[0].Kind)
	assert.Equal(t, "automatic", events[1].Actor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListFilterNormalized(t *testing.T) {
	assert.Equal(t, ListFilter{Limit: DefaultLimit}, ListFilter{}.normalized())
	assert.Equal(t, ListFilter{Limit: MaxLimit}, ListFilter{Limit: 1000, Offset: -3}.normalized())
}
