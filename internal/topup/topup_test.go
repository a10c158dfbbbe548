package topup_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/cuongbtq/transfer-market/internal/auth"
	"github.com/cuongbtq/transfer-market/internal/events"
	"github.com/cuongbtq/transfer-market/internal/ledger"
	"github.com/cuongbtq/transfer-market/internal/memstore"
	"github.com/cuongbtq/transfer-market/internal/topup"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	driver = auth.Actor{UserID: "driver-1", Role: auth.RoleUser}
	admin  = auth.Actor{UserID: "admin-1", Role: auth.RoleAdmin}
)

func newService(t *testing.T) (*topup.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return topup.NewService(store, nil, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestRequest(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		amount    decimal.Decimal
		reference string
		kind      apperr.Kind
	}{
		{"valid", decimal.RequireFromString("250.005"), "EFT-20260301-001", ""},
		{"zero amount", decimal.Zero, "EFT-1", apperr.KindValidation},
		{"negative amount", decimal.NewFromInt(-5), "EFT-1", apperr.KindValidation},
		{"missing reference", decimal.NewFromInt(5), "  ", apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Request(ctx, driver, tt.amount, tt.reference)
			if tt.kind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.kind, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, topup.StatusPending, got.Status)
			assert.True(t, decimal.RequireFromString("250.01").Equal(got.Amount))
		})
	}
}

func TestApprove_CreditsBalanceOnce(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	store.SetBalance(driver.UserID, decimal.NewFromInt(10))

	req, err := svc.Request(ctx, driver, decimal.NewFromInt(200), "EFT-42")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, driver, req.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	approved, err := svc.Approve(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, topup.StatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, admin.UserID, *approved.ReviewedBy)

	_, err = svc.Approve(ctx, admin, req.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidStateTransition))

	bal, err := store.GetBalance(ctx, driver.UserID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(210).Equal(bal.Balance))

	rec, err := ledger.New(store, slog.New(slog.NewTextHandler(io.Discard, nil))).Reconcile(ctx, driver.UserID)
	require.NoError(t, err)
	assert.True(t, rec.Balanced)
}

func TestReject(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	store.SetBalance(driver.UserID, decimal.NewFromInt(10))

	req, err := svc.Request(ctx, driver, decimal.NewFromInt(200), "EFT-43")
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, admin, req.ID, "transfer not received")
	require.NoError(t, err)
	assert.Equal(t, topup.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.ReviewNote)

	_, err = svc.Approve(ctx, admin, req.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidStateTransition))

	bal, err := store.GetBalance(ctx, driver.UserID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(bal.Balance))
}

func TestLists(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.Request(ctx, driver, decimal.NewFromInt(10), "EFT-1")
	require.NoError(t, err)
	_, err = svc.Request(ctx, driver, decimal.NewFromInt(20), "EFT-2")
	require.NoError(t, err)
	_, err = svc.Request(ctx, auth.Actor{UserID: "driver-2"}, decimal.NewFromInt(30), "EFT-3")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, admin, first.ID)
	require.NoError(t, err)

	mine, err := svc.ListMine(ctx, driver, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	pending, err := svc.ListPending(ctx, admin, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = svc.ListPending(ctx, driver, 0)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestApprove_UnknownTopup(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Approve(context.Background(), admin, "0f9a2c4e-1111-4111-8111-111111111111")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = svc.Approve(context.Background(), admin, "nope")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

type ctxPublisher struct {
	mu          sync.Mutex
	cancellable []bool
}

func (p *ctxPublisher) Publish(ctx context.Context, _ events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancellable = append(p.cancellable, ctx.Done() != nil)
	return nil
}

func TestEventsOutliveTheRequestContext(t *testing.T) {
	pub := &ctxPublisher{}
	svc := topup.NewService(memstore.New(), pub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requested, err := svc.Request(ctx, driver, decimal.NewFromInt(100), "EFT-20260301-002")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, admin, requested.ID)
	require.NoError(t, err)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, []bool{false, false}, pub.cancellable)
}
