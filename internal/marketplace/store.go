package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/cuongbtq/transfer-market/internal/ledger"
	"github.com/cuongbtq/transfer-market/internal/settings"
)

// ErrStateChanged is returned by the conditional job updates when the row no
// longer matches the expected state, i.e. another request won the race.
var ErrStateChanged = errors.New("job state changed concurrently")

// Store is the persistence the engine needs. Every Mark*/Release/Save method is
// a single conditional update keyed on the job's current status and parties;
// it returns ErrStateChanged when nothing matched.
//
// WithinTx runs fn in one transaction; store calls made with the ctx passed to
// fn join that transaction.
type Store interface {
	ledger.Store
	settings.Store

	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	InsertJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]Job, error)

	// available -> pending_approval, only for a buyer other than the seller
	MarkPurchased(ctx context.Context, jobID, buyerID string, at time.Time) (*Job, error)
	// pending_approval -> approved for the given buyer; reveals buyer_phone
	MarkApproved(ctx context.Context, jobID, buyerID string, at time.Time) (*Job, error)
	// pending_approval -> available for the given buyer; clears buyer_id and purchased_at
	ReleaseToAvailable(ctx context.Context, jobID, buyerID string, at time.Time) (*Job, error)
	// approved: stores one side's banking details and sets iban_revealed
	SaveIBAN(ctx context.Context, jobID string, side Side, iban, accountName string, at time.Time) (*Job, error)
	// approved with iban_revealed -> completed
	MarkCompleted(ctx context.Context, jobID string, at time.Time) (*Job, error)
	// available -> cancelled
	MarkCancelled(ctx context.Context, jobID string, at time.Time) (*Job, error)
}
