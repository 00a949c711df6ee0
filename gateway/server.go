package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meritledger/core"
	"meritledger/gateway/middleware"
	"meritledger/gateway/outbox"
	"meritledger/gateway/store"
)

// Config carries the gateway's HTTP surface configuration.
type Config struct {
	ListenAddress string
	Auth          middleware.AuthConfig
	RateLimits    map[string]middleware.RateLimit
	// TrustedProxies lists peer addresses whose forwarding headers identify
	// the rate-limited client.
	TrustedProxies []string
	// ResponseHeaders are set verbatim on every response.
	ResponseHeaders map[string]string
	Observability   middleware.ObservabilityConfig
	// ReadOnly disables every mutating route.
	ReadOnly bool
}

// Server exposes the ledger node over HTTP: mutating operations, read
// projections, a websocket event feed, and operational endpoints.
type Server struct {
	node    *core.Node
	store   *store.SQLiteStore
	outbox  *outbox.Outbox
	cfg     Config
	logger  *slog.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	hub     *wsHub
}

// NewServer wires the HTTP surface over a node. The store and outbox are
// optional; without a store requests are served without idempotency caching,
// without an outbox no webhooks are delivered.
func NewServer(node *core.Node, st *store.SQLiteStore, ob *outbox.Outbox, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:    node,
		store:   st,
		outbox:  ob,
		cfg:     cfg,
		logger:  logger,
		auth:    middleware.NewAuthenticator(cfg.Auth, logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimits, cfg.TrustedProxies, logger),
		obs:     middleware.NewObservability(cfg.Observability, logger),
		hub:     newWSHub(logger),
	}
	s.bridgeEvents()
	return s
}

// Router assembles the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.obs.Middleware("root"))
	if len(s.cfg.ResponseHeaders) > 0 {
		r.Use(s.staticHeaders)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/metrics/gateway", s.obs.MetricsHandler())
	r.Get("/ws/events", s.handleEventFeed)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(reads chi.Router) {
			reads.Use(s.limiter.Middleware("reads"))
			reads.Get("/wallets/{community}/{actor}", s.handleBalance)
			reads.Get("/quotas/{community}/{actor}", s.handleQuota)
			reads.Get("/targets/{id}", s.handleTarget)
			reads.Get("/targets/{id}/score", s.handleScore)
			reads.Get("/targets/{id}/transactions", s.handleTargetTransactions)
			reads.Get("/targets/{id}/replies", s.handleReplies)
			reads.Get("/actors/{actor}/transactions", s.handleActorTransactions)
			reads.Get("/transactions/{id}", s.handleTransaction)
			reads.Get("/publications/{id}/pool", s.handlePool)
			reads.Get("/publications/{id}/closing", s.handleClosing)
		})

		if s.cfg.ReadOnly {
			return
		}
		v1.Group(func(writes chi.Router) {
			writes.Use(s.limiter.Middleware("writes"))
			writes.Use(s.auth.Middleware("ledger.write"))
			writes.Use(s.idempotency)
			writes.Post("/targets/publications", s.handleRegisterPublication)
			writes.Post("/targets/comments", s.handleRegisterComment)
			writes.Post("/targets/poll-options", s.handleRegisterPollOption)
			writes.Post("/transactions", s.handleRecord)
			writes.Post("/withdrawals", s.handleWithdraw)
			writes.Post("/transfers", s.handleTransfer)
			writes.Post("/investments", s.handleInvest)
			writes.Post("/publications/{id}/close", s.handleClose)
		})
		v1.Group(func(admin chi.Router) {
			admin.Use(s.limiter.Middleware("writes"))
			admin.Use(s.auth.Middleware("ledger.admin"))
			admin.Use(s.idempotency)
			admin.Post("/deposits", s.handleDeposit)
		})
	})
	return r
}

func (s *Server) staticHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for name, value := range s.cfg.ResponseHeaders {
			w.Header().Set(name, value)
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves until the context is cancelled, then drains with a grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("gateway listening", "address", s.cfg.ListenAddress)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
