package storage

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/cuongbtq/transfer-market/internal/ledger"
	"github.com/cuongbtq/transfer-market/internal/marketplace"
	"github.com/cuongbtq/transfer-market/internal/settings"
	"github.com/cuongbtq/transfer-market/internal/topup"
	"github.com/cuongbtq/transfer-market/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ marketplace.Store = (*Storage)(nil)
	_ topup.Store       = (*Storage)(nil)
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := postgresql.NewFromDB(sqlx.NewDb(db, "sqlmock"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewStorage(client), mock
}

var jobColumnNames = []string{
	"id", "seller_id", "buyer_id", "from_location", "to_location", "vehicle_type",
	"buyer_profit", "customer_total", "seller_profit", "commission_percentage", "commission_amount",
	"payment_type", "status", "buyer_phone", "buyer_phone_revealed",
	"seller_iban", "buyer_iban", "seller_account_name", "buyer_account_name", "iban_revealed",
	"job_datetime", "purchased_at", "approved_at", "completed_at", "created_at", "updated_at",
}

func jobRow(id, status string, buyerID interface{}, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(jobColumnNames).AddRow(
		id, "seller-1", buyerID, "Istanbul Airport", "Taksim", "vito",
		"1500.00", "2500.00", "1000.00", "10.00", "150.00",
		"cash", status, "+905551112233", false,
		nil, nil, nil, nil, false,
		now, nil, nil, nil, now, now,
	)
}

func TestGetJob(t *testing.T) {
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).
			WithArgs("job-1").
			WillReturnRows(jobRow("job-1", "available", nil, now))

		job, err := s.GetJob(context.Background(), "job-1")
		require.NoError(t, err)
		assert.Equal(t, marketplace.StatusAvailable, job.Status)
		assert.Equal(t, marketplace.PaymentCash, job.PaymentType)
		assert.True(t, decimal.NewFromInt(150).Equal(job.CommissionAmount))
		assert.Nil(t, job.BuyerID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).
			WithArgs("job-1").
			WillReturnError(sql.ErrNoRows)

		_, err := s.GetJob(context.Background(), "job-1")
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	})

	t.Run("driver failure stays untyped", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).
			WillReturnError(errors.New("connection reset"))

		_, err := s.GetJob(context.Background(), "job-1")
		require.Error(t, err)
		assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	})
}

func TestMarkPurchased(t *testing.T) {
	now := time.Now().UTC()

	t.Run("conditional update wins", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND status = 'available' AND seller_id <> $2 RETURNING")).
			WithArgs("job-1", "buyer-1", now).
			WillReturnRows(jobRow("job-1", "pending_approval", "buyer-1", now))

		job, err := s.MarkPurchased(context.Background(), "job-1", "buyer-1", now)
		require.NoError(t, err)
		assert.Equal(t, marketplace.StatusPendingApproval, job.Status)
		assert.Equal(t, "buyer-1", job.Buyer())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no row matched", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE jobs")).
			WithArgs("job-1", "buyer-1", now).
			WillReturnRows(sqlmock.NewRows(jobColumnNames))

		_, err := s.MarkPurchased(context.Background(), "job-1", "buyer-1", now)
		assert.ErrorIs(t, err, marketplace.ErrStateChanged)
	})
}

func TestSaveIBAN_UsesSideColumns(t *testing.T) {
	now := time.Now().UTC()
	s, mock := newMockStorage(t)
	mock.ExpectQuery(regexp.QuoteMeta("SET buyer_iban = $2, buyer_account_name = $3, iban_revealed = TRUE")).
		WithArgs("job-1", "TR330006100519786457841326", "Ayse", now).
		WillReturnRows(jobRow("job-1", "approved", "buyer-1", now))

	_, err := s.SaveIBAN(context.Background(), "job-1", marketplace.SideBuyer, "TR330006100519786457841326", "Ayse", now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobs_BuildsKeysetQuery(t *testing.T) {
	now := time.Now().UTC()
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("AND status = $1 AND vehicle_type = $2 AND (created_at, id) < ($3, $4) ORDER BY created_at DESC, id DESC LIMIT $5")).
		WithArgs("available", "vito", now, "job-9", 21).
		WillReturnRows(jobRow("job-1", "available", nil, now))

	jobs, err := s.ListJobs(context.Background(), marketplace.JobFilter{
		Status:      marketplace.StatusAvailable,
		VehicleType: "vito",
		PageSize:    20,
		Cursor:      &marketplace.JobCursor{CreatedAt: now, JobID: "job-9"},
	})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitBalance(t *testing.T) {
	now := time.Now().UTC()
	balanceCols := []string{"user_id", "balance", "opening_balance", "updated_at"}
	amount := decimal.NewFromInt(150)

	t.Run("covered", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $2 AND balance >= $1")).
			WithArgs(amount, "u-1").
			WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("u-1", "350.00", "500.00", now))

		bal, err := s.DebitBalance(context.Background(), "u-1", amount)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(350).Equal(bal.Balance))
	})

	t.Run("insufficient", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE user_balances")).
			WillReturnRows(sqlmock.NewRows(balanceCols))
		mock.ExpectQuery(regexp.QuoteMeta("FROM user_balances")).
			WithArgs("u-1").
			WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("u-1", "100.00", "100.00", now))

		_, err := s.DebitBalance(context.Background(), "u-1", amount)
		assert.True(t, apperr.IsKind(err, apperr.KindInsufficientBalance))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no balance row", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE user_balances")).
			WillReturnRows(sqlmock.NewRows(balanceCols))
		mock.ExpectQuery(regexp.QuoteMeta("FROM user_balances")).
			WillReturnRows(sqlmock.NewRows(balanceCols))

		_, err := s.DebitBalance(context.Background(), "u-1", amount)
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	})

	t.Run("zero debit without balance row", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE user_balances")).
			WithArgs(decimal.Zero, "u-new").
			WillReturnRows(sqlmock.NewRows(balanceCols))
		mock.ExpectQuery(regexp.QuoteMeta("FROM user_balances")).
			WithArgs("u-new").
			WillReturnRows(sqlmock.NewRows(balanceCols))

		bal, err := s.DebitBalance(context.Background(), "u-new", decimal.Zero)
		require.NoError(t, err)
		assert.True(t, bal.Balance.IsZero())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListTransactions_BuildsKeysetQuery(t *testing.T) {
	now := time.Now().UTC()
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("AND type = $2 AND (created_at, id) < ($3, $4) ORDER BY created_at DESC, id DESC LIMIT $5")).
		WithArgs("u-1", "commission", now, "tx-9", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "type", "description", "job_id", "status", "created_at"}).
			AddRow("tx-8", "u-1", "-150.00", "commission", "Commission", nil, "completed", now))

	txs, err := s.ListTransactions(context.Background(), ledger.TransactionFilter{
		UserID:   "u-1",
		Type:     ledger.TxTypeCommission,
		PageSize: 20,
		Cursor:   &ledger.TransactionCursor{CreatedAt: now, ID: "tx-9"},
	})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "tx-8", txs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx(t *testing.T) {
	t.Run("commits and joins the transaction", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO balance_transactions")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(amount), 0)")).
			WithArgs("u-1").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("-150.00"))
		mock.ExpectCommit()

		err := s.WithinTx(context.Background(), func(ctx context.Context) error {
			err := s.InsertTransaction(ctx, &ledger.Transaction{
				ID:     "tx-1",
				UserID: "u-1",
				Amount: decimal.NewFromInt(-150),
				Type:   ledger.TxTypeCommission,
				Status: ledger.TxStatusCompleted,
			})
			if err != nil {
				return err
			}
			sum, err := s.SumTransactions(ctx, "u-1")
			if err != nil {
				return err
			}
			assert.True(t, decimal.NewFromInt(-150).Equal(sum))
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := apperr.InsufficientBalance("nope")
		err := s.WithinTx(context.Background(), func(ctx context.Context) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetSettings(t *testing.T) {
	now := time.Now().UTC()
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM marketplace_settings")).
		WithArgs(settings.Key).
		WillReturnRows(sqlmock.NewRows([]string{"enabled", "commission_percentage", "minimum_balance", "cancellation_hours", "updated_at"}).
			AddRow(true, "10.00", "50.00", 24, now))

	cfg, err := s.GetSettings(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.True(t, decimal.NewFromInt(10).Equal(cfg.CommissionPercentage))
	assert.Equal(t, 24, cfg.CancellationHours)
}

func TestMarkReviewed_AlreadyReviewed(t *testing.T) {
	now := time.Now().UTC()
	cols := []string{"id", "user_id", "amount", "reference", "status", "reviewed_by", "review_note", "created_at", "reviewed_at"}
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE topups")).
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(regexp.QuoteMeta("FROM topups WHERE id = $1")).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("t-1", "u-1", "200.00", "EFT", "approved", "admin-1", nil, now, now))

	_, err := s.MarkReviewed(context.Background(), "t-1", topup.StatusApproved, "admin-1", nil, now)
	assert.ErrorIs(t, err, topup.ErrAlreadyReviewed)
	require.NoError(t, mock.ExpectationsWereMet())
}
