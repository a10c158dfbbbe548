package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/transfer-market/internal/events"
	"github.com/cuongbtq/transfer-market/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStorage(postgresql.NewFromDB(sqlx.NewDb(db, "sqlmock"), logger), logger), mock
}

var insertEvent = regexp.QuoteMeta("INSERT INTO job_events")

func TestRecordEvent(t *testing.T) {
	e := events.New(events.JobPurchased)
	e.JobID = "8a4c9b2e-7f15-4d0c-a2f7-3e1f5c6d7b80"
	e.Status = "pending_approval"
	e.ActorID = "buyer-1"
	e.SellerID = "seller-1"
	e.BuyerID = "buyer-1"

	tests := []struct {
		name     string
		result   sqlmockResult
		wantNew  bool
		wantFail bool
	}{
		{name: "first delivery inserts", result: sqlmockResult{rows: 1}, wantNew: true},
		{name: "redelivery is ignored", result: sqlmockResult{rows: 0}, wantNew: false},
		{name: "database error", result: sqlmockResult{err: errors.New("connection reset")}, wantFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)

			exp := mock.ExpectExec(insertEvent).
				WithArgs(e.ID, "job.purchased", e.JobID, nil, "pending_approval", "buyer-1", "seller-1", "buyer-1", e.OccurredAt)
			if tt.result.err != nil {
				exp.WillReturnError(tt.result.err)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, tt.result.rows))
			}

			inserted, err := s.RecordEvent(context.Background(), &e)
			if tt.wantFail {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantNew, inserted)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

type sqlmockResult struct {
	rows int64
	err  error
}
