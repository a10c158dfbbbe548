package router

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/transfer-market/internal/api/handler"
	"github.com/gin-gonic/gin"
)

const defaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore is the subset of the Redis client the middleware needs
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

type idempotencyRecord struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the stored response when a client retries a write with
// the same Idempotency-Key. Requests without a key pass through. Server
// errors are not stored so a retry after a transient failure runs again.
func Idempotency(store IdempotencyStore, ttl time.Duration, logger *slog.Logger) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	return func(c *gin.Context) {
		if store == nil || (c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut) {
			c.Next()
			return
		}

		idempotencyKey := idempotencyKeyHeader(c)
		if idempotencyKey == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, handler.ErrorBody("validation", "failed to read request body", false))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		requestHash := hashBody(body)
		key := store.IdempotencyKey(buildScope(c), idempotencyKey)
		ctx := c.Request.Context()

		stored, found, err := store.Get(ctx, key)
		if err != nil {
			logger.Error("Failed to check idempotency key", slog.String("key", key), slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, handler.ErrorBody("transient", "idempotency store unavailable", true))
			return
		}
		if found {
			var record idempotencyRecord
			if err := json.Unmarshal([]byte(stored), &record); err != nil {
				logger.Error("Failed to decode idempotency record", slog.String("key", key), slog.Any("error", err))
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, handler.ErrorBody("transient", "idempotency record unreadable", true))
				return
			}
			if record.RequestHash != requestHash {
				c.AbortWithStatusJSON(http.StatusUnprocessableEntity, handler.ErrorBody("validation", "idempotency key reused with a different request body", false))
				return
			}
			writeStoredResponse(c, &record)
			return
		}

		rec := &responseCapture{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status >= http.StatusInternalServerError {
			return
		}

		payload, err := json.Marshal(idempotencyRecord{
			Status:      status,
			Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
			ContentType: rec.Header().Get("Content-Type"),
			RequestHash: requestHash,
		})
		if err != nil {
			logger.Error("Failed to marshal idempotency record", slog.Any("error", err))
			return
		}
		if _, err := store.SetNX(ctx, key, string(payload), ttl); err != nil {
			logger.Error("Failed to persist idempotency record", slog.String("key", key), slog.Any("error", err))
		}
	}
}

func idempotencyKeyHeader(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader("Idempotency-Key")); v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader("X-Idempotency-Key"))
}

func buildScope(c *gin.Context) string {
	actor, _ := handler.ActorFrom(c)
	return strings.Join([]string{actor.UserID, c.Request.Method, c.Request.URL.Path}, "|")
}

func writeStoredResponse(c *gin.Context, record *idempotencyRecord) {
	body, err := base64.StdEncoding.DecodeString(record.Body)
	if err != nil {
		body = nil
	}
	contentType := record.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(record.Status, contentType, body)
	c.Abort()
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

type responseCapture struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *responseCapture) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}
