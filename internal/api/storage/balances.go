package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/cuongbtq/transfer-market/internal/ledger"
	"github.com/shopspring/decimal"
)

func (s *Storage) GetBalance(ctx context.Context, userID string) (*ledger.Balance, error) {
	var bal ledger.Balance
	query := `
		SELECT user_id, balance, opening_balance, updated_at
		FROM user_balances
		WHERE user_id = $1
	`

	err := s.q(ctx).GetContext(ctx, &bal, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no balance for user %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	return &bal, nil
}

// DebitBalance decrements only when the balance covers the amount, in one
// statement. A zero debit against a missing row succeeds without creating it.
func (s *Storage) DebitBalance(ctx context.Context, userID string, amount decimal.Decimal) (*ledger.Balance, error) {
	var bal ledger.Balance
	query := `
		UPDATE user_balances
		SET balance = balance - $1, updated_at = NOW()
		WHERE user_id = $2 AND balance >= $1
		RETURNING user_id, balance, opening_balance, updated_at
	`

	err := s.q(ctx).GetContext(ctx, &bal, query, amount, userID)
	if err == nil {
		return &bal, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}

	current, err := s.GetBalance(ctx, userID)
	if apperr.IsKind(err, apperr.KindNotFound) && amount.IsZero() {
		// nothing to take from a user who was never funded
		return &ledger.Balance{UserID: userID, Balance: decimal.Zero, OpeningBalance: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, apperr.InsufficientBalance("balance %s is below %s", current.Balance.StringFixed(2), amount.StringFixed(2))
}

// CreditBalance increments the balance, creating the row on first credit
func (s *Storage) CreditBalance(ctx context.Context, userID string, amount decimal.Decimal) (*ledger.Balance, error) {
	var bal ledger.Balance
	query := `
		INSERT INTO user_balances (user_id, balance, opening_balance, updated_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET balance = user_balances.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING user_id, balance, opening_balance, updated_at
	`

	if err := s.q(ctx).GetContext(ctx, &bal, query, userID, amount); err != nil {
		return nil, fmt.Errorf("failed to credit balance: %w", err)
	}
	return &bal, nil
}

func (s *Storage) InsertTransaction(ctx context.Context, tx *ledger.Transaction) error {
	query := `
		INSERT INTO balance_transactions (
			id, user_id, amount, type, description, job_id, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := s.q(ctx).ExecContext(
		ctx,
		query,
		tx.ID,
		tx.UserID,
		tx.Amount,
		tx.Type,
		tx.Description,
		tx.JobID,
		tx.Status,
		tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert balance transaction: %w", err)
	}
	return nil
}

func (s *Storage) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	query := `
		SELECT id, user_id, amount, type, description, job_id, status, created_at
		FROM balance_transactions
		WHERE user_id = $1
	`
	args := []interface{}{filter.UserID}
	argIdx := 2

	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, filter.Type)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
		argIdx += 2
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIdx)
	args = append(args, filter.PageSize)

	var txs []ledger.Transaction
	if err := s.q(ctx).SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list balance transactions: %w", err)
	}
	return txs, nil
}

func (s *Storage) SumTransactions(ctx context.Context, userID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	query := `SELECT COALESCE(SUM(amount), 0) FROM balance_transactions WHERE user_id = $1`

	if err := s.q(ctx).GetContext(ctx, &sum, query, userID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum balance transactions: %w", err)
	}
	return sum, nil
}
