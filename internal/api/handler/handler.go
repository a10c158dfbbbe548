package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/transfer-market/internal/auth"
	"github.com/cuongbtq/transfer-market/internal/ledger"
	"github.com/cuongbtq/transfer-market/internal/marketplace"
	"github.com/cuongbtq/transfer-market/internal/metrics"
	"github.com/cuongbtq/transfer-market/internal/realtime"
	"github.com/cuongbtq/transfer-market/internal/settings"
	"github.com/cuongbtq/transfer-market/internal/topup"
	"github.com/cuongbtq/transfer-market/shared/postgresql"
	"github.com/cuongbtq/transfer-market/shared/redis"
	"github.com/gin-gonic/gin"
)

// Dependencies holds all dependencies needed by handlers and the router.
// DBClient, Redis, Hub and MetricsHandler are optional.
type Dependencies struct {
	Logger   *slog.Logger
	Engine   *marketplace.Engine
	Settings *settings.Service
	Topups   *topup.Service
	Verifier *auth.Verifier
	Metrics  *metrics.Marketplace

	DBClient       *postgresql.Client
	Redis          *redis.Client
	Hub            *realtime.Hub
	MetricsHandler http.Handler

	ServiceName    string
	AllowedOrigins []string
	RateLimit      RateLimitConfig
	IdempotencyTTL time.Duration
}

// RateLimitConfig is the per-caller token bucket; zero RequestsPerSecond disables it.
// Idle limiters are swept until Done is closed.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	Done              <-chan struct{}
}

// JobHandler handles job lifecycle requests
type JobHandler struct {
	logger *slog.Logger
	engine *marketplace.Engine
}

func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{logger: deps.Logger, engine: deps.Engine}
}

// BalanceHandler serves the caller's balance and ledger
type BalanceHandler struct {
	logger *slog.Logger
	ledger *ledger.Ledger
}

func NewBalanceHandler(deps *Dependencies) *BalanceHandler {
	return &BalanceHandler{logger: deps.Logger, ledger: deps.Engine.Ledger()}
}

// TopupHandler handles user top-up requests
type TopupHandler struct {
	logger *slog.Logger
	topups *topup.Service
}

func NewTopupHandler(deps *Dependencies) *TopupHandler {
	return &TopupHandler{logger: deps.Logger, topups: deps.Topups}
}

// AdminHandler serves settings, top-up review and reconciliation
type AdminHandler struct {
	logger   *slog.Logger
	settings *settings.Service
	topups   *topup.Service
	ledger   *ledger.Ledger
}

func NewAdminHandler(deps *Dependencies) *AdminHandler {
	return &AdminHandler{
		logger:   deps.Logger,
		settings: deps.Settings,
		topups:   deps.Topups,
		ledger:   deps.Engine.Ledger(),
	}
}

const actorKey = "actor"

// SetActor stores the authenticated caller on the request
func SetActor(c *gin.Context, actor auth.Actor) {
	c.Set(actorKey, actor)
}

// ActorFrom returns the authenticated caller, if any
func ActorFrom(c *gin.Context) (auth.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return auth.Actor{}, false
	}
	actor, ok := v.(auth.Actor)
	return actor, ok && actor.UserID != ""
}

// requireActor aborts with 401 when the auth middleware did not run
func requireActor(c *gin.Context) (auth.Actor, bool) {
	actor, ok := ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody("unauthenticated", "authentication required", false))
	}
	return actor, ok
}
