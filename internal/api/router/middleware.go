package router

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/transfer-market/internal/api/handler"
	"github.com/cuongbtq/transfer-market/internal/auth"
	"github.com/cuongbtq/transfer-market/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// LoggerMiddleware logs HTTP requests with slog
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		attrs := []any{
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", redactQuery(query)),
			slog.String("ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
			slog.Duration("latency", latency),
			slog.Int("body_size", c.Writer.Size()),
		}
		if actor, ok := handler.ActorFrom(c); ok {
			attrs = append(attrs, slog.String("user_id", actor.UserID))
		}
		logger.Info("HTTP Request", attrs...)

		if len(c.Errors) > 0 {
			for _, e := range c.Errors {
				logger.Error("Request error",
					slog.String("error", e.Error()),
					slog.Uint64("type", uint64(e.Type)),
				)
			}
		}
	}
}

// redactQuery hides the websocket access token from request logs
func redactQuery(query string) string {
	if !strings.Contains(query, "access_token=") {
		return query
	}
	parts := strings.Split(query, "&")
	for i, p := range parts {
		if strings.HasPrefix(p, "access_token=") {
			parts[i] = "access_token=REDACTED"
		}
	}
	return strings.Join(parts, "&")
}

// CORSMiddleware handles Cross-Origin Resource Sharing. An empty allow list
// allows any origin without credentials.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if len(allowed) == 0 {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if _, ok := allowed[origin]; ok {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, Idempotency-Key, X-Idempotency-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// AuthMiddleware verifies the bearer token and stores the caller on the
// context. Websocket upgrades may pass the token as access_token since
// browsers cannot set headers on them.
func AuthMiddleware(verifier *auth.Verifier, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && websocket.IsWebSocketUpgrade(c.Request) {
			token = c.Query("access_token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.ErrorBody("unauthenticated", "missing bearer token", false))
			return
		}

		claims, err := verifier.Parse(token)
		if err != nil {
			logger.Debug("Rejected access token", slog.String("error", err.Error()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.ErrorBody("unauthenticated", "invalid or expired token", false))
			return
		}

		handler.SetActor(c, claims.Actor())
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireRole rejects callers without the role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := handler.ActorFrom(c)
		if !ok || actor.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, handler.ErrorBody("authorization", role+" role required", false))
			return
		}
		c.Next()
	}
}

// MetricsMiddleware records request latency by route template
func MetricsMiddleware(m *metrics.Marketplace) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveRequest(c.Request.Method, c.FullPath(), strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
