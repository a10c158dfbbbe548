package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/transfer-market/internal/api/handler"
	"github.com/cuongbtq/transfer-market/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memIdempotencyStore struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
}

func (m *memIdempotencyStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memIdempotencyStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func newIdempotentEngine(store IdempotencyStore, status *int, calls *int) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		handler.SetActor(c, auth.Actor{UserID: c.GetHeader("X-User"), Role: auth.RoleUser})
		c.Next()
	})
	r.Use(Idempotency(store, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil))))
	r.POST("/jobs/:id/purchase", func(c *gin.Context) {
		*calls++
		body, _ := io.ReadAll(c.Request.Body)
		c.JSON(*status, gin.H{"call": *calls, "echo": string(body)})
	})
	return r
}

func send(r *gin.Engine, user, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/jobs/1/purchase", strings.NewReader(body))
	req.Header.Set("X-User", user)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := &memIdempotencyStore{values: map[string]string{}}
	status, calls := http.StatusOK, 0
	r := newIdempotentEngine(store, &status, &calls)

	first := send(r, "buyer-1", "k1", `{"a":1}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := send(r, "buyer-1", "k1", `{"a":1}`)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls)

	send(r, "buyer-2", "k1", `{"a":1}`)
	assert.Equal(t, 2, calls, "keys are scoped per caller")

	send(r, "buyer-1", "", `{"a":1}`)
	assert.Equal(t, 3, calls, "requests without a key are not deduplicated")
}

func TestIdempotency_KeyReuseWithDifferentBody(t *testing.T) {
	store := &memIdempotencyStore{values: map[string]string{}}
	status, calls := http.StatusOK, 0
	r := newIdempotentEngine(store, &status, &calls)

	send(r, "buyer-1", "k1", `{"a":1}`)
	w := send(r, "buyer-1", "k1", `{"a":2}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	store := &memIdempotencyStore{values: map[string]string{}}
	status, calls := http.StatusServiceUnavailable, 0
	r := newIdempotentEngine(store, &status, &calls)

	send(r, "buyer-1", "k1", `{}`)
	assert.Empty(t, store.values)

	status = http.StatusConflict
	send(r, "buyer-1", "k1", `{}`)
	w := send(r, "buyer-1", "k1", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotency_StoreUnavailable(t *testing.T) {
	store := &memIdempotencyStore{values: map[string]string{}, getErr: errors.New("connection refused")}
	status, calls := http.StatusOK, 0
	r := newIdempotentEngine(store, &status, &calls)

	w := send(r, "buyer-1", "k1", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 0, calls)
}
