// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/riftworks/riftpay/internal/auth"
	"github.com/riftworks/riftpay/internal/config"
	"github.com/riftworks/riftpay/internal/dispute"
	"github.com/riftworks/riftpay/internal/fees"
	"github.com/riftworks/riftpay/internal/health"
	"github.com/riftworks/riftpay/internal/ledger"
	"github.com/riftworks/riftpay/internal/logging"
	"github.com/riftworks/riftpay/internal/metrics"
	"github.com/riftworks/riftpay/internal/payout"
	"github.com/riftworks/riftpay/internal/ratelimit"
	"github.com/riftworks/riftpay/internal/realtime"
	"github.com/riftworks/riftpay/internal/reconciliation"
	"github.com/riftworks/riftpay/internal/rift"
	"github.com/riftworks/riftpay/internal/security"
	"github.com/riftworks/riftpay/internal/timeline"
	"github.com/riftworks/riftpay/internal/validation"
	"github.com/riftworks/riftpay/internal/webhooks"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	authMgr      *auth.Manager
	ledger       *ledger.Ledger
	rifts        *rift.Service
	riftStore    rift.Store
	riftTimer    *rift.Timer
	disputes     *dispute.Service
	payouts      *payout.Service
	destinations *payout.StaticDestinations
	recorder     *timeline.Recorder
	webhooks     *webhooks.Dispatcher
	webhookStore webhooks.Store
	realtimeHub  *realtime.Hub
	reconTimer   *reconciliation.Timer
	reconRunner  *reconciliation.Runner
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		ledgerStore   ledger.Store
		riftStore     rift.Store
		disputeStore  dispute.Store
		payoutStore   payout.Store
		timelineStore timeline.Store
		webhookStore  webhooks.Store
		authStore     auth.Store
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		ledgerStore = ledger.NewPostgresStore(db)
		riftStore = rift.NewPostgresStore(db)
		disputeStore = dispute.NewPostgresStore(db)
		payoutStore = payout.NewPostgresStore(db)
		timelineStore = timeline.NewPostgresStore(db)
		webhookStore = webhooks.NewPostgresStore(db)
		authStore = auth.NewPostgresStore(db)
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")

		ledgerStore = ledger.NewMemoryStore()
		riftStore = rift.NewMemoryStore()
		disputeStore = dispute.NewMemoryStore()
		payoutStore = payout.NewMemoryStore()
		timelineStore = timeline.NewMemoryStore()
		webhookStore = webhooks.NewMemoryStore()
		authStore = auth.NewMemoryStore()
	}

	s.riftStore = riftStore
	s.webhookStore = webhookStore
	s.authMgr = auth.NewManager(authStore)
	s.ledger = ledger.New(ledgerStore, cfg.Currency)

	// Realtime hub and webhook dispatcher both consume timeline events
	s.realtimeHub = realtime.NewHub(s.logger)
	s.webhooks = webhooks.NewDispatcher(webhookStore).WithRetry(3, time.Second)
	s.recorder = timeline.NewRecorder(timelineStore).
		WithLogger(s.logger).
		WithSink(s.realtimeHub).
		WithSink(webhooks.NewSink(s.webhooks, s.logger))

	// Payout processor: Stripe when configured, in-process otherwise
	s.destinations = payout.NewStaticDestinations(nil)
	var processor payout.Processor
	if cfg.StripeAPIKey != "" {
		processor = payout.NewBreakerProcessor(payout.NewStripeProcessor(cfg.StripeAPIKey, s.destinations))
		s.logger.Info("stripe payouts enabled")
	} else {
		processor = payout.NewStaticProcessor(s.destinations)
		s.logger.Info("payouts in dev mode (no external transfers)")
	}

	releaseSender := payout.NewReleaseSender(processor, cfg.Currency, cfg.PayoutTimeout).
		WithLogger(s.logger)

	calc := fees.NewCalculator(cfg.BuyerFeeBps, cfg.SellerFeeBps)
	s.rifts = rift.NewService(riftStore, calc, s.ledger).
		WithPayer(releaseSender).
		WithRecorder(s.recorder).
		WithLogger(s.logger).
		WithGraceWindows(
			time.Duration(cfg.PhysicalGraceHours)*time.Hour,
			time.Duration(cfg.NonPhysicalGraceHours)*time.Hour,
			time.Duration(cfg.MilestoneReviewDays)*24*time.Hour,
		)

	s.disputes = dispute.New(disputeStore, s.rifts, s.ledger).
		WithRecorder(s.recorder).
		WithLogger(s.logger)
	// Dispute freeze gate consulted before every payout
	s.rifts.WithFreezeChecker(s.disputes)

	s.payouts = payout.New(payoutStore, s.ledger, processor, cfg.Currency).
		WithTimeout(cfg.PayoutTimeout).
		WithLogger(s.logger)

	s.riftTimer = rift.NewTimer(s.rifts, cfg.SweepInterval, s.logger)

	s.reconRunner = reconciliation.NewRunner(s.ledger, riftStore, s.payouts, s.logger)
	s.reconTimer = reconciliation.NewTimer(s.reconRunner, s.logger).
		WithInterval(cfg.ReconcileInterval)

	// Health checks
	s.checks = health.NewRegistry()
	if s.db != nil {
		db := s.db
		s.checks.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for development - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time timeline streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/", s.infoHandler)
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate ID-shaped URL params early (no-op when param absent)
	v1.Use(validation.IDParamMiddleware("userId"))

	authHandler := auth.NewHandler(s.authMgr)
	riftHandler := rift.NewHandler(s.rifts, s.logger)
	disputeHandler := dispute.NewHandler(s.disputes, s.logger)
	ledgerHandler := ledger.NewHandler(s.ledger, s.logger)
	payoutHandler := payout.NewHandler(s.payouts, s.logger)
	timelineHandler := timeline.NewHandler(s.recorder, s.logger)
	webhookHandler := webhooks.NewHandler(s.webhookStore, s.webhooks)

	// PUBLIC ROUTES (no auth required)
	v1.GET("/platform", s.platformHandler)
	v1.GET("/auth/info", authHandler.Info)

	// REGISTRATION (public but returns API key)
	v1.POST("/users", authHandler.Register)

	// PROTECTED ROUTES (require API key)
	protected := v1.Group("")
	protected.Use(auth.Middleware(s.authMgr), auth.RequireAuth(s.authMgr))
	{
		riftHandler.RegisterRoutes(protected)
		disputeHandler.RegisterRoutes(protected)
		timelineHandler.RegisterRoutes(protected)

		// API key management
		protected.GET("/auth/keys", authHandler.ListKeys)
		protected.POST("/auth/keys", authHandler.CreateKey)
		protected.DELETE("/auth/keys/:keyId", authHandler.RevokeKey)
		protected.POST("/auth/keys/:keyId/regenerate", authHandler.RegenerateKey)
		protected.GET("/auth/me", authHandler.GetCurrentUser)
	}

	// OWNER ROUTES (require API key AND ownership of :userId)
	owned := v1.Group("")
	owned.Use(auth.Middleware(s.authMgr), auth.RequireAuth(s.authMgr),
		auth.RequireOwnership(s.authMgr, "userId"))
	{
		ledgerHandler.RegisterRoutes(owned)
		payoutHandler.RegisterRoutes(owned)
		webhookHandler.RegisterRoutes(owned)
	}

	// ADMIN ROUTES
	admin := v1.Group("")
	admin.Use(auth.Middleware(s.authMgr), auth.RequireAdmin(s.authMgr))
	{
		riftHandler.RegisterAdminRoutes(admin)
		ledgerHandler.RegisterAdminRoutes(admin)
		admin.POST("/admin/reconcile", s.reconcileHandler)
		admin.POST("/admin/destinations", s.setDestinationHandler)
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Riftpay",
		"description": "Escrow payments for peer-to-peer marketplaces",
		"version":     "0.1.0",
		"currency":    s.cfg.Currency,
	})
}

// platformHandler returns platform configuration visible to clients
func (s *Server) platformHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"platform": gin.H{
			"name":     "Riftpay",
			"version":  "0.1.0",
			"currency": s.cfg.Currency,
		},
		"fees": gin.H{
			"buyerBps":  s.cfg.BuyerFeeBps,
			"sellerBps": s.cfg.SellerFeeBps,
		},
		"autoRelease": gin.H{
			"physicalGraceHours":    s.cfg.PhysicalGraceHours,
			"nonPhysicalGraceHours": s.cfg.NonPhysicalGraceHours,
			"milestoneReviewDays":   s.cfg.MilestoneReviewDays,
		},
		"instructions": gin.H{
			"register": "POST /v1/users returns your user ID and API key",
			"create":   "POST /v1/rifts with buyer, seller, amount and item type",
			"fund":     "POST /v1/rifts/{id}/transition to awaiting_payment, then funded",
			"withdraw": "POST /v1/wallets/{userId}/withdraw with API key auth",
		},
	})
}

// reconcileHandler runs a full reconciliation pass on demand
func (s *Server) reconcileHandler(c *gin.Context) {
	report, err := s.reconRunner.RunAll(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("reconciliation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "reconciliation_failed",
			"message": "Reconciliation run failed",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// setDestinationHandler registers a seller's payout destination
func (s *Server) setDestinationHandler(c *gin.Context) {
	var req struct {
		UserID      string `json:"userId" binding:"required"`
		Destination string `json:"destination" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "userId and destination are required",
		})
		return
	}

	s.destinations.Set(req.UserID, req.Destination)
	c.JSON(http.StatusOK, gin.H{
		"userId":      req.UserID,
		"destination": req.Destination,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start auto-release sweep timer
	go s.riftTimer.Start(runCtx)

	// Start reconciliation timer
	go s.reconTimer.Start(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, timers)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop sweep timer
	if s.riftTimer != nil {
		s.riftTimer.Stop()
		s.logger.Info("auto-release timer stopped")
	}

	// Stop reconciliation timer
	if s.reconTimer != nil {
		s.reconTimer.Stop()
		s.logger.Info("reconciliation timer stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// AuthManager returns the auth manager (for bootstrap tooling)
func (s *Server) AuthManager() *auth.Manager {
	return s.authMgr
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
