package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/cuongbtq/transfer-market/internal/auth"
	"github.com/cuongbtq/transfer-market/internal/events"
	"github.com/cuongbtq/transfer-market/internal/ledger"
	"github.com/cuongbtq/transfer-market/internal/metrics"
	"github.com/cuongbtq/transfer-market/internal/settings"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config holds engine dependencies
type Config struct {
	Store     Store
	Publisher events.Publisher
	Metrics   *metrics.Marketplace
	Logger    *slog.Logger
}

// Engine owns every job transition and the commission debit tied to approval
type Engine struct {
	store     Store
	ledger    *ledger.Ledger
	publisher events.Publisher
	metrics   *metrics.Marketplace
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a new marketplace engine
func NewEngine(cfg *Config) *Engine {
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Engine{
		store:     cfg.Store,
		ledger:    ledger.New(cfg.Store, cfg.Logger),
		publisher: publisher,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Ledger exposes the balance ledger bound to the engine's store
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// CreateJobInput is what a seller provides when listing a job
type CreateJobInput struct {
	FromLocation  string
	ToLocation    string
	VehicleType   string
	BuyerProfit   decimal.Decimal
	CustomerTotal decimal.Decimal
	PaymentType   PaymentType
	BuyerPhone    string
	JobDatetime   time.Time
}

func (in *CreateJobInput) validate() error {
	var missing []string
	if strings.TrimSpace(in.FromLocation) == "" {
		missing = append(missing, "from_location")
	}
	if strings.TrimSpace(in.ToLocation) == "" {
		missing = append(missing, "to_location")
	}
	if strings.TrimSpace(in.VehicleType) == "" {
		missing = append(missing, "vehicle_type")
	}
	if strings.TrimSpace(in.BuyerPhone) == "" {
		missing = append(missing, "buyer_phone")
	}
	if in.JobDatetime.IsZero() {
		missing = append(missing, "job_datetime")
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}

	if !in.PaymentType.IsValid() {
		return apperr.Validation("payment_type must be %q or %q", PaymentCash, PaymentPrepaid)
	}
	if !in.BuyerProfit.IsPositive() || !in.CustomerTotal.IsPositive() {
		return apperr.Validation("buyer_profit and customer_total must be positive")
	}
	if !in.BuyerProfit.LessThan(in.CustomerTotal) {
		return apperr.Validation("buyer_profit must be less than customer_total")
	}
	return nil
}

// CreateJob lists a new job in the available state. Commission is computed
// from the settings read in the same transaction as the insert.
func (e *Engine) CreateJob(ctx context.Context, actor auth.Actor, in CreateJobInput) (*Job, error) {
	const op = "create"

	if actor.UserID == "" {
		return nil, e.fail(op, "", apperr.Authorization("caller identity is required"))
	}
	if err := in.validate(); err != nil {
		return nil, e.fail(op, "", err)
	}

	buyerProfit := in.BuyerProfit.Round(2)
	customerTotal := in.CustomerTotal.Round(2)

	var created *Job
	err := e.store.WithinTx(ctx, func(ctx context.Context) error {
		cfg, err := e.openSettings(ctx)
		if err != nil {
			return err
		}

		commission := Commission(buyerProfit, cfg.CommissionPercentage)
		required := decimal.Max(cfg.MinimumBalance, commission)
		if err := e.requireBalance(ctx, actor.UserID, required); err != nil {
			return err
		}

		now := e.now().UTC()
		job := &Job{
			ID:                   uuid.NewString(),
			SellerID:             actor.UserID,
			FromLocation:         strings.TrimSpace(in.FromLocation),
			ToLocation:           strings.TrimSpace(in.ToLocation),
			VehicleType:          strings.TrimSpace(in.VehicleType),
			BuyerProfit:          buyerProfit,
			CustomerTotal:        customerTotal,
			SellerProfit:         SellerProfit(customerTotal, buyerProfit),
			CommissionPercentage: cfg.CommissionPercentage,
			CommissionAmount:     commission,
			PaymentType:          in.PaymentType,
			Status:               StatusAvailable,
			BuyerPhone:           strings.TrimSpace(in.BuyerPhone),
			JobDatetime:          in.JobDatetime.UTC(),
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := e.store.InsertJob(ctx, job); err != nil {
			return err
		}
		created = job
		return nil
	})
	if err != nil {
		return nil, e.fail(op, "", err)
	}

	e.succeed(ctx, op, events.JobCreated, actor, created)
	return created, nil
}

// PurchaseJob moves an available job to pending_approval for the caller.
// Exactly one of several concurrent purchasers wins; the rest get
// invalid_state_transition.
func (e *Engine) PurchaseJob(ctx context.Context, actor auth.Actor, jobID string) (*Job, error) {
	const op = "purchase"

	var purchased *Job
	err := e.store.WithinTx(ctx, func(ctx context.Context) error {
		cfg, err := e.openSettings(ctx)
		if err != nil {
			return err
		}

		job, err := e.loadJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.SellerID == actor.UserID {
			return apperr.Authorization("sellers cannot purchase their own job")
		}
		if _, err := Next(job.Status, ActionPurchase); err != nil {
			return err
		}

		required := decimal.Max(cfg.MinimumBalance, job.CommissionAmount)
		if err := e.requireBalance(ctx, actor.UserID, required); err != nil {
			return err
		}

		purchased, err = e.store.MarkPurchased(ctx, job.ID, actor.UserID, e.now().UTC())
		return e.conditional(err, job.ID, ActionPurchase)
	})
	if err != nil {
		return nil, e.fail(op, jobID, err)
	}

	e.succeed(ctx, op, events.JobPurchased, actor, purchased)
	return purchased, nil
}

// ApproveJob accepts the pending buyer. The status change, the phone reveal,
// the commission debit and its ledger row commit together or not at all.
func (e *Engine) ApproveJob(ctx context.Context, actor auth.Actor, jobID string) (*Job, error) {
	const op = "approve"

	var approved *Job
	err := e.store.WithinTx(ctx, func(ctx context.Context) error {
		job, err := e.loadJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.SellerID != actor.UserID {
			return apperr.Authorization("only the seller can approve a purchase")
		}
		if _, err := Next(job.Status, ActionApprove); err != nil {
			return err
		}

		buyerID := job.Buyer()
		approved, err = e.store.MarkApproved(ctx, job.ID, buyerID, e.now().UTC())
		if err := e.conditional(err, job.ID, ActionApprove); err != nil {
			return err
		}

		_, err = e.ledger.Charge(ctx, ledger.Entry{
			UserID:      buyerID,
			Amount:      job.CommissionAmount,
			Type:        ledger.TxTypeCommission,
			Description: fmt.Sprintf("Commission for job %s (%s -> %s)", job.ID, job.FromLocation, job.ToLocation),
			JobID:       job.ID,
		})
		return err
	})
	if err != nil {
		return nil, e.fail(op, jobID, err)
	}

	commission, _ := approved.CommissionAmount.Float64()
	e.metrics.AddCommission(commission)
	e.succeed(ctx, op, events.JobApproved, actor, approved)
	return approved, nil
}

// RejectJob sends a pending job back to the board, discarding the buyer
func (e *Engine) RejectJob(ctx context.Context, actor auth.Actor, jobID string) (*Job, error) {
	return e.release(ctx, "reject", ActionReject, events.JobRejected, actor, jobID)
}

// CancelJob lets the pending buyer back out; the job returns to the board
func (e *Engine) CancelJob(ctx context.Context, actor auth.Actor, jobID string) (*Job, error) {
	return e.release(ctx, "cancel", ActionCancel, events.JobCancelled, actor, jobID)
}

func (e *Engine) release(ctx context.Context, op string, action Action, eventType events.Type, actor auth.Actor, jobID string) (*Job, error) {
	var released *Job
	err := e.store.WithinTx(ctx, func(ctx context.Context) error {
		job, err := e.loadJob(ctx, jobID)
		if err != nil {
			return err
		}

		switch action {
		case ActionReject:
			if job.SellerID != actor.UserID {
				return apperr.Authorization("only the seller can reject a purchase")
			}
		case ActionCancel:
			if job.Buyer() == "" || job.Buyer() != actor.UserID {
				return apperr.Authorization("only the buyer can cancel a purchase")
			}
		}
		if _, err := Next(job.Status, action); err != nil {
			return err
		}

		released, err = e.store.ReleaseToAvailable(ctx, job.ID, job.Buyer(), e.now().UTC())
		return e.conditional(err, job.ID, action)
	})
	if err != nil {
		return nil, e.fail(op, jobID, err)
	}

	e.succeed(ctx, op, eventType, actor, released)
	return released, nil
}

// ShareIBANInput carries one party's banking details
type ShareIBANInput struct {
	IBAN        string
	AccountName string
}

// ShareIBAN stores the caller's banking details. For cash jobs only the seller
// may share, for prepaid jobs only the buyer. The first share reveals the IBAN.
func (e *Engine) ShareIBAN(ctx context.Context, actor auth.Actor, jobID string, in ShareIBANInput) (*Job, error) {
	const op = "share_iban"

	iban := NormalizeIBAN(in.IBAN)
	accountName := strings.TrimSpace(in.AccountName)
	if !ValidIBAN(iban) {
		return nil, e.fail(op, jobID, apperr.Validation("iban is not valid"))
	}
	if accountName == "" {
		return nil, e.fail(op, jobID, apperr.Validation("account_name is required"))
	}

	var shared *Job
	err := e.store.WithinTx(ctx, func(ctx context.Context) error {
		job, err := e.loadJob(ctx, jobID)
		if err != nil {
			return err
		}

		side, party := job.SideOf(actor.UserID)
		if !party {
			return apperr.Authorization("only the seller or buyer can share an IBAN")
		}
		if want := job.PaymentType.IBANSharer(); side != want {
			return apperr.Authorization("the %s shares the IBAN on %s jobs", want, job.PaymentType)
		}
		if _, err := Next(job.Status, ActionShareIBAN); err != nil {
			return err
		}

		shared, err = e.store.SaveIBAN(ctx, job.ID, side, iban, accountName, e.now().UTC())
		return e.conditional(err, job.ID, ActionShareIBAN)
	})
	if err != nil {
		return nil, e.fail(op, jobID, err)
	}

	e.succeed(ctx, op, events.JobIBANShared, actor, shared)
	return shared, nil
}

// CompleteJob closes an approved job once banking details were exchanged and
// the caller confirms the off-platform payment happened.
func (e *Engine) CompleteJob(ctx context.Context, actor auth.Actor, jobID string, paymentConfirmed bool) (*Job, error) {
	const op = "complete"

	if !paymentConfirmed {
		return nil, e.fail(op, jobID, apperr.Validation("payment must be confirmed before completing the job"))
	}

	var completed *Job
	err := e.store.WithinTx(ctx, func(ctx context.Context) error {
		job, err := e.loadJob(ctx, jobID)
		if err != nil {
			return err
		}
		if _, party := job.SideOf(actor.UserID); !party {
			return apperr.Authorization("only the seller or buyer can complete a job")
		}
		if _, err := Next(job.Status, ActionComplete); err != nil {
			return err
		}
		if !job.IBANRevealed {
			return apperr.InvalidTransition("the IBAN must be shared before the job can be completed")
		}

		completed, err = e.store.MarkCompleted(ctx, job.ID, e.now().UTC())
		return e.conditional(err, job.ID, ActionComplete)
	})
	if err != nil {
		return nil, e.fail(op, jobID, err)
	}

	e.succeed(ctx, op, events.JobCompleted, actor, completed)
	return completed, nil
}

// WithdrawJob takes an unsold listing off the board for good
func (e *Engine) WithdrawJob(ctx context.Context, actor auth.Actor, jobID string) (*Job, error) {
	const op = "withdraw"

	var withdrawn *Job
	err := e.store.WithinTx(ctx, func(ctx context.Context) error {
		job, err := e.loadJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.SellerID != actor.UserID {
			return apperr.Authorization("only the seller can withdraw a job")
		}
		if _, err := Next(job.Status, ActionWithdraw); err != nil {
			return err
		}

		withdrawn, err = e.store.MarkCancelled(ctx, job.ID, e.now().UTC())
		return e.conditional(err, job.ID, ActionWithdraw)
	})
	if err != nil {
		return nil, e.fail(op, jobID, err)
	}

	e.succeed(ctx, op, events.JobWithdrawn, actor, withdrawn)
	return withdrawn, nil
}

// GetJob returns a job as the caller is allowed to see it
func (e *Engine) GetJob(ctx context.Context, actor auth.Actor, jobID string) (*Job, error) {
	job, err := e.loadJob(ctx, jobID)
	if err != nil {
		return nil, classify(err, "failed to load job")
	}
	view := job.ViewFor(actor.UserID, actor.IsAdmin())
	return &view, nil
}

// ListJobsInput selects a page of jobs for the caller
type ListJobsInput struct {
	Scope       JobScope
	Status      Status
	VehicleType string
	PageSize    int
	Cursor      *JobCursor
}

// ListJobs returns one page plus whether more rows follow
func (e *Engine) ListJobs(ctx context.Context, actor auth.Actor, in ListJobsInput) ([]Job, bool, error) {
	if in.Scope == "" {
		in.Scope = ScopeBoard
	}
	if !in.Scope.IsValid() {
		return nil, false, apperr.Validation("unknown scope %q", in.Scope)
	}
	if in.Status != "" && !in.Status.IsValid() {
		return nil, false, apperr.Validation("unknown status %q", in.Status)
	}
	if in.PageSize <= 0 {
		in.PageSize = 20
	}
	if in.PageSize > 100 {
		in.PageSize = 100
	}

	filter := JobFilter{
		Status:      in.Status,
		VehicleType: in.VehicleType,
		PageSize:    in.PageSize,
		Cursor:      in.Cursor,
	}
	switch in.Scope {
	case ScopeBoard:
		filter.Status = StatusAvailable
	case ScopeSelling:
		filter.SellerID = actor.UserID
	case ScopeBuying:
		filter.BuyerID = actor.UserID
	}

	if filter.Status == StatusAvailable && in.Scope == ScopeBoard {
		cfg, err := e.store.GetSettings(ctx)
		if err != nil {
			return nil, false, classify(err, "failed to load marketplace settings")
		}
		if !cfg.Enabled {
			return nil, false, apperr.New(apperr.KindMarketplaceDisabled, "the job marketplace is disabled")
		}
	}

	jobs, err := e.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, false, classify(err, "failed to list jobs")
	}

	hasMore := len(jobs) > in.PageSize
	if hasMore {
		jobs = jobs[:in.PageSize]
	}
	for i := range jobs {
		jobs[i] = jobs[i].ViewFor(actor.UserID, actor.IsAdmin())
	}
	return jobs, hasMore, nil
}

func (e *Engine) openSettings(ctx context.Context) (*settings.Settings, error) {
	cfg, err := e.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, apperr.New(apperr.KindMarketplaceDisabled, "the job marketplace is disabled")
	}
	return cfg, nil
}

func (e *Engine) loadJob(ctx context.Context, jobID string) (*Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, apperr.Validation("job_id must be a valid UUID")
	}
	return e.store.GetJob(ctx, jobID)
}

// requireBalance is a read-only pre-check; the binding floor check happens in the debit.
// A user without a balance row has a balance of zero.
func (e *Engine) requireBalance(ctx context.Context, userID string, required decimal.Decimal) error {
	current := decimal.Zero
	bal, err := e.store.GetBalance(ctx, userID)
	switch {
	case apperr.IsKind(err, apperr.KindNotFound):
	case err != nil:
		return err
	default:
		current = bal.Balance
	}
	if current.LessThan(required) {
		return apperr.InsufficientBalance("balance %s is below the required %s", current.StringFixed(2), required.StringFixed(2))
	}
	return nil
}

func (e *Engine) conditional(err error, jobID string, action Action) error {
	if errors.Is(err, ErrStateChanged) {
		return apperr.InvalidTransition("job %s changed before it could %s", jobID, action)
	}
	return err
}

func (e *Engine) fail(op, jobID string, err error) error {
	err = classify(err, "marketplace store failure")
	kind := apperr.KindOf(err)
	e.metrics.ObserveTransition(op, string(kind))

	attrs := []any{
		slog.String("operation", op),
		slog.String("job_id", jobID),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	}
	if kind == apperr.KindTransient || kind == apperr.KindInternal {
		e.logger.Error("Marketplace operation failed", attrs...)
	} else {
		e.logger.Info("Marketplace operation rejected", attrs...)
	}
	return err
}

func (e *Engine) succeed(ctx context.Context, op string, eventType events.Type, actor auth.Actor, job *Job) {
	e.metrics.ObserveTransition(op, "ok")
	e.logger.Info("Marketplace operation applied",
		slog.String("operation", op),
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
		slog.String("actor_id", actor.UserID),
	)

	evt := events.New(eventType)
	evt.JobID = job.ID
	evt.Status = string(job.Status)
	evt.ActorID = actor.UserID
	evt.SellerID = job.SellerID
	evt.BuyerID = job.Buyer()
	if eventType == events.JobApproved {
		evt.UserID = job.Buyer()
		evt.Amount = job.CommissionAmount.StringFixed(2)
	}
	// Publish errors are logged by the publisher; the transition is already committed
	// and must reach subscribers even if the caller has gone away.
	_ = e.publisher.Publish(context.WithoutCancel(ctx), evt)
}

// classify turns untyped store failures into retryable transient errors
func classify(err error, message string) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		return apperr.Transient(err, message)
	}
	return err
}
