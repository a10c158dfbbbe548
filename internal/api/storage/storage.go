package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/cuongbtq/transfer-market/internal/marketplace"
	"github.com/cuongbtq/transfer-market/shared/postgresql"
)

const jobColumns = `
	id, seller_id, buyer_id, from_location, to_location, vehicle_type,
	buyer_profit, customer_total, seller_profit, commission_percentage, commission_amount,
	payment_type, status, buyer_phone, buyer_phone_revealed,
	seller_iban, buyer_iban, seller_account_name, buyer_account_name, iban_revealed,
	job_datetime, purchased_at, approved_at, completed_at, created_at, updated_at`

// Storage is the PostgreSQL implementation of the marketplace, ledger,
// settings and topup stores. Calls made with a ctx from WithinTx join that transaction.
type Storage struct {
	pg *postgresql.Client
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{pg: pg}
}

func (s *Storage) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.pg.WithinTx(ctx, fn)
}

func (s *Storage) q(ctx context.Context) postgresql.Querier {
	return s.pg.Conn(ctx)
}

func (s *Storage) InsertJob(ctx context.Context, job *marketplace.Job) error {
	query := `
		INSERT INTO jobs (
			id, seller_id, from_location, to_location, vehicle_type,
			buyer_profit, customer_total, seller_profit, commission_percentage, commission_amount,
			payment_type, status, buyer_phone, job_datetime, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16
		)
	`

	_, err := s.q(ctx).ExecContext(
		ctx,
		query,
		job.ID,
		job.SellerID,
		job.FromLocation,
		job.ToLocation,
		job.VehicleType,
		job.BuyerProfit,
		job.CustomerTotal,
		job.SellerProfit,
		job.CommissionPercentage,
		job.CommissionAmount,
		job.PaymentType,
		job.Status,
		job.BuyerPhone,
		job.JobDatetime,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Storage) GetJob(ctx context.Context, jobID string) (*marketplace.Job, error) {
	var job marketplace.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	err := s.q(ctx).GetContext(ctx, &job, query, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

func (s *Storage) ListJobs(ctx context.Context, filter marketplace.JobFilter) ([]marketplace.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.SellerID != "" {
		query += fmt.Sprintf(" AND seller_id = $%d", argIdx)
		args = append(args, filter.SellerID)
		argIdx++
	}

	if filter.BuyerID != "" {
		query += fmt.Sprintf(" AND buyer_id = $%d", argIdx)
		args = append(args, filter.BuyerID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.VehicleType != "" {
		query += fmt.Sprintf(" AND vehicle_type = $%d", argIdx)
		args = append(args, filter.VehicleType)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"

	// one extra row tells the caller whether another page exists
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []marketplace.Job
	if err := s.q(ctx).SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// transition runs a conditional UPDATE ... RETURNING; no row means the
// expected state no longer holds.
func (s *Storage) transition(ctx context.Context, op, query string, args ...interface{}) (*marketplace.Job, error) {
	var job marketplace.Job
	err := s.q(ctx).GetContext(ctx, &job, query+` RETURNING `+jobColumns, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, marketplace.ErrStateChanged
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s job: %w", op, err)
	}
	return &job, nil
}

func (s *Storage) MarkPurchased(ctx context.Context, jobID, buyerID string, at time.Time) (*marketplace.Job, error) {
	return s.transition(ctx, "purchase", `
		UPDATE jobs
		SET buyer_id = $2, status = 'pending_approval', purchased_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'available' AND seller_id <> $2`,
		jobID, buyerID, at,
	)
}

func (s *Storage) MarkApproved(ctx context.Context, jobID, buyerID string, at time.Time) (*marketplace.Job, error) {
	return s.transition(ctx, "approve", `
		UPDATE jobs
		SET status = 'approved', buyer_phone_revealed = TRUE, approved_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'pending_approval' AND buyer_id = $2`,
		jobID, buyerID, at,
	)
}

func (s *Storage) ReleaseToAvailable(ctx context.Context, jobID, buyerID string, at time.Time) (*marketplace.Job, error) {
	return s.transition(ctx, "release", `
		UPDATE jobs
		SET status = 'available', buyer_id = NULL, purchased_at = NULL, updated_at = $3
		WHERE id = $1 AND status = 'pending_approval' AND buyer_id = $2`,
		jobID, buyerID, at,
	)
}

func (s *Storage) SaveIBAN(ctx context.Context, jobID string, side marketplace.Side, iban, accountName string, at time.Time) (*marketplace.Job, error) {
	set := "seller_iban = $2, seller_account_name = $3"
	if side == marketplace.SideBuyer {
		set = "buyer_iban = $2, buyer_account_name = $3"
	}
	return s.transition(ctx, "share iban for", `
		UPDATE jobs
		SET `+set+`, iban_revealed = TRUE, updated_at = $4
		WHERE id = $1 AND status = 'approved'`,
		jobID, iban, accountName, at,
	)
}

func (s *Storage) MarkCompleted(ctx context.Context, jobID string, at time.Time) (*marketplace.Job, error) {
	return s.transition(ctx, "complete", `
		UPDATE jobs
		SET status = 'completed', completed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'approved' AND iban_revealed`,
		jobID, at,
	)
}

func (s *Storage) MarkCancelled(ctx context.Context, jobID string, at time.Time) (*marketplace.Job, error) {
	return s.transition(ctx, "cancel", `
		UPDATE jobs
		SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status = 'available'`,
		jobID, at,
	)
}
