// Package memstore keeps marketplace state in process memory. It backs local
// runs with database.driver=memory and the engine tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/cuongbtq/transfer-market/internal/ledger"
	"github.com/cuongbtq/transfer-market/internal/marketplace"
	"github.com/cuongbtq/transfer-market/internal/settings"
	"github.com/cuongbtq/transfer-market/internal/topup"
	"github.com/shopspring/decimal"
)

type txKey struct{}

type state struct {
	jobs         map[string]marketplace.Job
	balances     map[string]ledger.Balance
	transactions []ledger.Transaction
	settings     *settings.Settings
	topups       map[string]topup.Topup
}

func (s *state) clone() state {
	c := state{
		jobs:         make(map[string]marketplace.Job, len(s.jobs)),
		balances:     make(map[string]ledger.Balance, len(s.balances)),
		transactions: append([]ledger.Transaction(nil), s.transactions...),
		topups:       make(map[string]topup.Topup, len(s.topups)),
	}
	for k, v := range s.jobs {
		c.jobs[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.topups {
		c.topups[k] = v
	}
	if s.settings != nil {
		cfg := *s.settings
		c.settings = &cfg
	}
	return c
}

// Store serializes every operation behind one mutex. WithinTx holds the mutex
// for the whole callback and restores a snapshot when the callback fails.
type Store struct {
	mu    sync.Mutex
	state state
}

func New() *Store {
	return &Store{
		state: state{
			jobs:     map[string]marketplace.Job{},
			balances: map[string]ledger.Balance{},
			topups:   map[string]topup.Topup{},
		},
	}
}

// SetBalance seeds a user's balance; it also becomes the opening balance
func (s *Store) SetBalance(userID string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.balances[userID] = ledger.Balance{
		UserID:         userID,
		Balance:        amount,
		OpeningBalance: amount,
		UpdatedAt:      time.Now().UTC(),
	}
}

func (s *Store) owns(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// do runs fn under the mutex unless ctx already holds it through WithinTx
func (s *Store) do(ctx context.Context, fn func() error) error {
	if !s.owns(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.owns(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// settings

func (s *Store) GetSettings(ctx context.Context) (*settings.Settings, error) {
	var out *settings.Settings
	err := s.do(ctx, func() error {
		if s.state.settings == nil {
			return apperr.NotFound("marketplace settings %q not found", settings.Key)
		}
		cfg := *s.state.settings
		out = &cfg
		return nil
	})
	return out, err
}

func (s *Store) SaveSettings(ctx context.Context, cfg *settings.Settings) error {
	return s.do(ctx, func() error {
		c := *cfg
		s.state.settings = &c
		return nil
	})
}

// ledger

func (s *Store) GetBalance(ctx context.Context, userID string) (*ledger.Balance, error) {
	var out *ledger.Balance
	err := s.do(ctx, func() error {
		bal, ok := s.state.balances[userID]
		if !ok {
			return apperr.NotFound("no balance for user %s", userID)
		}
		out = &bal
		return nil
	})
	return out, err
}

func (s *Store) DebitBalance(ctx context.Context, userID string, amount decimal.Decimal) (*ledger.Balance, error) {
	var out *ledger.Balance
	err := s.do(ctx, func() error {
		bal, ok := s.state.balances[userID]
		if !ok && amount.IsZero() {
			out = &ledger.Balance{UserID: userID, Balance: decimal.Zero, OpeningBalance: decimal.Zero}
			return nil
		}
		if !ok {
			return apperr.NotFound("no balance for user %s", userID)
		}
		if bal.Balance.LessThan(amount) {
			return apperr.InsufficientBalance("balance %s is below %s", bal.Balance.StringFixed(2), amount.StringFixed(2))
		}
		bal.Balance = bal.Balance.Sub(amount)
		bal.UpdatedAt = time.Now().UTC()
		s.state.balances[userID] = bal
		out = &bal
		return nil
	})
	return out, err
}

func (s *Store) CreditBalance(ctx context.Context, userID string, amount decimal.Decimal) (*ledger.Balance, error) {
	var out *ledger.Balance
	err := s.do(ctx, func() error {
		bal, ok := s.state.balances[userID]
		if !ok {
			bal = ledger.Balance{UserID: userID, Balance: decimal.Zero, OpeningBalance: decimal.Zero}
		}
		bal.Balance = bal.Balance.Add(amount)
		bal.UpdatedAt = time.Now().UTC()
		s.state.balances[userID] = bal
		out = &bal
		return nil
	})
	return out, err
}

func (s *Store) InsertTransaction(ctx context.Context, tx *ledger.Transaction) error {
	return s.do(ctx, func() error {
		s.state.transactions = append(s.state.transactions, *tx)
		return nil
	})
}

func (s *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	err := s.do(ctx, func() error {
		for _, tx := range s.state.transactions {
			if tx.UserID != filter.UserID {
				continue
			}
			if filter.Type != "" && tx.Type != filter.Type {
				continue
			}
			if c := filter.Cursor; c != nil && !txBefore(tx, c.CreatedAt, c.ID) {
				continue
			}
			out = append(out, tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return txBefore(out[j], out[i].CreatedAt, out[i].ID)
	})
	if filter.PageSize > 0 && len(out) > filter.PageSize {
		out = out[:filter.PageSize]
	}
	return out, nil
}

// txBefore reports whether tx sorts after (createdAt, id) in DESC order
func txBefore(tx ledger.Transaction, createdAt time.Time, id string) bool {
	if tx.CreatedAt.Equal(createdAt) {
		return tx.ID < id
	}
	return tx.CreatedAt.Before(createdAt)
}

func (s *Store) SumTransactions(ctx context.Context, userID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := s.do(ctx, func() error {
		for _, tx := range s.state.transactions {
			if tx.UserID == userID {
				sum = sum.Add(tx.Amount)
			}
		}
		return nil
	})
	return sum, err
}

// jobs

func (s *Store) InsertJob(ctx context.Context, job *marketplace.Job) error {
	return s.do(ctx, func() error {
		s.state.jobs[job.ID] = *job
		return nil
	})
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*marketplace.Job, error) {
	var out *marketplace.Job
	err := s.do(ctx, func() error {
		job, ok := s.state.jobs[jobID]
		if !ok {
			return apperr.NotFound("job %s not found", jobID)
		}
		out = &job
		return nil
	})
	return out, err
}

func (s *Store) ListJobs(ctx context.Context, filter marketplace.JobFilter) ([]marketplace.Job, error) {
	var out []marketplace.Job
	err := s.do(ctx, func() error {
		for _, job := range s.state.jobs {
			if filter.SellerID != "" && job.SellerID != filter.SellerID {
				continue
			}
			if filter.BuyerID != "" && job.Buyer() != filter.BuyerID {
				continue
			}
			if filter.Status != "" && job.Status != filter.Status {
				continue
			}
			if filter.VehicleType != "" && job.VehicleType != filter.VehicleType {
				continue
			}
			if c := filter.Cursor; c != nil && !before(job, c.CreatedAt, c.JobID) {
				continue
			}
			out = append(out, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return before(out[j], out[i].CreatedAt, out[i].ID)
	})
	if limit := filter.PageSize + 1; filter.PageSize > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// before reports whether job sorts after (createdAt, id) in DESC order
func before(job marketplace.Job, createdAt time.Time, id string) bool {
	if job.CreatedAt.Equal(createdAt) {
		return job.ID < id
	}
	return job.CreatedAt.Before(createdAt)
}

// update applies mutate when match holds, otherwise reports ErrStateChanged
func (s *Store) update(ctx context.Context, jobID string, match func(marketplace.Job) bool, mutate func(*marketplace.Job)) (*marketplace.Job, error) {
	var out *marketplace.Job
	err := s.do(ctx, func() error {
		job, ok := s.state.jobs[jobID]
		if !ok || !match(job) {
			return marketplace.ErrStateChanged
		}
		mutate(&job)
		s.state.jobs[jobID] = job
		out = &job
		return nil
	})
	return out, err
}

func (s *Store) MarkPurchased(ctx context.Context, jobID, buyerID string, at time.Time) (*marketplace.Job, error) {
	return s.update(ctx, jobID,
		func(j marketplace.Job) bool {
			return j.Status == marketplace.StatusAvailable && j.SellerID != buyerID
		},
		func(j *marketplace.Job) {
			buyer := buyerID
			j.BuyerID = &buyer
			j.Status = marketplace.StatusPendingApproval
			j.PurchasedAt = &at
			j.UpdatedAt = at
		})
}

func (s *Store) MarkApproved(ctx context.Context, jobID, buyerID string, at time.Time) (*marketplace.Job, error) {
	return s.update(ctx, jobID,
		func(j marketplace.Job) bool {
			return j.Status == marketplace.StatusPendingApproval && j.Buyer() == buyerID
		},
		func(j *marketplace.Job) {
			j.Status = marketplace.StatusApproved
			j.BuyerPhoneRevealed = true
			j.ApprovedAt = &at
			j.UpdatedAt = at
		})
}

func (s *Store) ReleaseToAvailable(ctx context.Context, jobID, buyerID string, at time.Time) (*marketplace.Job, error) {
	return s.update(ctx, jobID,
		func(j marketplace.Job) bool {
			return j.Status == marketplace.StatusPendingApproval && j.Buyer() == buyerID
		},
		func(j *marketplace.Job) {
			j.Status = marketplace.StatusAvailable
			j.BuyerID = nil
			j.PurchasedAt = nil
			j.UpdatedAt = at
		})
}

func (s *Store) SaveIBAN(ctx context.Context, jobID string, side marketplace.Side, iban, accountName string, at time.Time) (*marketplace.Job, error) {
	return s.update(ctx, jobID,
		func(j marketplace.Job) bool {
			return j.Status == marketplace.StatusApproved
		},
		func(j *marketplace.Job) {
			ib, name := iban, accountName
			if side == marketplace.SideSeller {
				j.SellerIBAN, j.SellerAccountName = &ib, &name
			} else {
				j.BuyerIBAN, j.BuyerAccountName = &ib, &name
			}
			j.IBANRevealed = true
			j.UpdatedAt = at
		})
}

func (s *Store) MarkCompleted(ctx context.Context, jobID string, at time.Time) (*marketplace.Job, error) {
	return s.update(ctx, jobID,
		func(j marketplace.Job) bool {
			return j.Status == marketplace.StatusApproved && j.IBANRevealed
		},
		func(j *marketplace.Job) {
			j.Status = marketplace.StatusCompleted
			j.CompletedAt = &at
			j.UpdatedAt = at
		})
}

func (s *Store) MarkCancelled(ctx context.Context, jobID string, at time.Time) (*marketplace.Job, error) {
	return s.update(ctx, jobID,
		func(j marketplace.Job) bool {
			return j.Status == marketplace.StatusAvailable
		},
		func(j *marketplace.Job) {
			j.Status = marketplace.StatusCancelled
			j.UpdatedAt = at
		})
}

// topups

func (s *Store) InsertTopup(ctx context.Context, t *topup.Topup) error {
	return s.do(ctx, func() error {
		s.state.topups[t.ID] = *t
		return nil
	})
}

func (s *Store) GetTopup(ctx context.Context, id string) (*topup.Topup, error) {
	var out *topup.Topup
	err := s.do(ctx, func() error {
		t, ok := s.state.topups[id]
		if !ok {
			return apperr.NotFound("topup %s not found", id)
		}
		out = &t
		return nil
	})
	return out, err
}

func (s *Store) ListTopups(ctx context.Context, filter topup.Filter) ([]topup.Topup, error) {
	var out []topup.Topup
	err := s.do(ctx, func() error {
		for _, t := range s.state.topups {
			if filter.UserID != "" && t.UserID != filter.UserID {
				continue
			}
			if filter.Status != "" && t.Status != filter.Status {
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.PageSize > 0 && len(out) > filter.PageSize {
		out = out[:filter.PageSize]
	}
	return out, nil
}

func (s *Store) MarkReviewed(ctx context.Context, id string, status topup.Status, reviewer string, note *string, at time.Time) (*topup.Topup, error) {
	var out *topup.Topup
	err := s.do(ctx, func() error {
		t, ok := s.state.topups[id]
		if !ok {
			return apperr.NotFound("topup %s not found", id)
		}
		if t.Status != topup.StatusPending {
			return topup.ErrAlreadyReviewed
		}
		t.Status = status
		t.ReviewedBy = &reviewer
		t.ReviewNote = note
		t.ReviewedAt = &at
		s.state.topups[id] = t
		out = &t
		return nil
	})
	return out, err
}
