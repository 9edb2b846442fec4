// Package http exposes the Luz engine over a JSON REST API under /api/v1.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/superheroes-club/luz-engine/internal/application/command"
	"github.com/superheroes-club/luz-engine/internal/application/query"
	"github.com/superheroes-club/luz-engine/internal/interface/http/handlers"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64

	// MaxUploadBytes caps multipart proof uploads, form overhead included.
	MaxUploadBytes int64

	EnableCORS     bool
	AllowedOrigins []string

	// RateLimitPerMinute - requests per minute per client IP (0 = disabled).
	RateLimitPerMinute int

	// TrustedProxies may set X-Forwarded-For / X-Real-IP.
	TrustedProxies []string

	// CatalogMaxAge is the Cache-Control max-age of catalog reads.
	CatalogMaxAge time.Duration

	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       1 << 20,
		MaxUploadBytes:     command.DefaultMaxProofBytes + 1<<20,
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
		CatalogMaxAge:      time.Minute,
		Version:            "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains the application handlers behind the routes.
type Dependencies struct {
	// Commands
	RegisterChild      *command.RegisterChildHandler
	UpdateChildProfile *command.UpdateChildProfileHandler
	DeleteChild        *command.DeleteChildHandler
	CompleteInitiation *command.CompleteInitiationHandler
	UpdateSafety       *command.UpdateSafetySettingsHandler
	ResetSafety        *command.ResetSafetySettingsHandler
	PublishMission     *command.PublishMissionHandler
	StartMission       *command.StartMissionHandler
	SubmitChallenge    *command.SubmitChallengeHandler
	ReviewSubmission   *command.ReviewSubmissionHandler
	RedeemReward       *command.RedeemRewardHandler
	AwardReward        *command.AwardRewardHandler
	UploadProof        *command.UploadProofHandler
	MarkRead           *command.MarkNotificationReadHandler
	MarkAllRead        *command.MarkAllNotificationsReadHandler

	// Queries
	Children      *query.ChildrenHandler
	Safety        *query.SafetySettingsHandler
	Missions      *query.MissionsHandler
	Progress      *query.ProgressHandler
	Submissions   *query.ListSubmissionsHandler
	Rewards       *query.RewardsHandler
	Notifications *query.NotificationsHandler

	Verifier      handlers.TokenVerifier
	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

// validate reports every missing handler at once so a wiring mistake fails
// at startup rather than on the first request.
func (d Dependencies) validate() error {
	var missing []string
	check := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}
	check("RegisterChild", d.RegisterChild != nil)
	check("UpdateChildProfile", d.UpdateChildProfile != nil)
	check("DeleteChild", d.DeleteChild != nil)
	check("CompleteInitiation", d.CompleteInitiation != nil)
	check("UpdateSafety", d.UpdateSafety != nil)
	check("ResetSafety", d.ResetSafety != nil)
	check("PublishMission", d.PublishMission != nil)
	check("StartMission", d.StartMission != nil)
	check("SubmitChallenge", d.SubmitChallenge != nil)
	check("ReviewSubmission", d.ReviewSubmission != nil)
	check("RedeemReward", d.RedeemReward != nil)
	check("AwardReward", d.AwardReward != nil)
	check("UploadProof", d.UploadProof != nil)
	check("MarkRead", d.MarkRead != nil)
	check("MarkAllRead", d.MarkAllRead != nil)
	check("Children", d.Children != nil)
	check("Safety", d.Safety != nil)
	check("Missions", d.Missions != nil)
	check("Progress", d.Progress != nil)
	check("Submissions", d.Submissions != nil)
	check("Rewards", d.Rewards != nil)
	check("Notifications", d.Notifications != nil)
	check("Verifier", d.Verifier != nil)
	if len(missing) > 0 {
		return fmt.Errorf("http: missing dependencies: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	logger     *logger.Logger

	rateLimiter *rateLimiter
	trusted     map[string]bool

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = command.DefaultMaxProofBytes + 1<<20
	}

	s := &Server{
		config:  config,
		deps:    deps,
		router:  http.NewServeMux(),
		logger:  deps.Logger,
		trusted: make(map[string]bool, len(config.TrustedProxies)),
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))
	for _, p := range config.TrustedProxies {
		s.trusted[strings.TrimSpace(p)] = true
	}
	if config.RateLimitPerMinute > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.setupRoutes()
	s.handler = s.buildMiddlewareChain(s.router)

	s.httpServer = &http.Server{
		Addr:              config.Address(),
		Handler:           s.handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}
	return s, nil
}

// Handler returns the fully wrapped handler. Tests serve it with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)
	s.router.HandleFunc("GET /{$}", s.handleRoot)
	s.router.HandleFunc("/", s.handleNotFound)

	// ─────────────────────────────────────────────────────────────────────────
	// Children & onboarding
	// ─────────────────────────────────────────────────────────────────────────
	s.private("POST /api/v1/children", s.handleRegisterChild)
	s.private("GET /api/v1/children", s.handleListChildren)
	s.private("GET /api/v1/children/{id}", s.handleGetChild)
	s.private("PATCH /api/v1/children/{id}", s.handleUpdateChild)
	s.private("DELETE /api/v1/children/{id}", s.handleDeleteChild)
	s.private("POST /api/v1/onboarding/complete", s.handleCompleteInitiation)

	// ─────────────────────────────────────────────────────────────────────────
	// Safety settings
	// ─────────────────────────────────────────────────────────────────────────
	s.private("GET /api/v1/safety-settings/{childId}", s.handleGetSafety)
	s.private("PUT /api/v1/safety-settings/{childId}", s.handleUpdateSafety)
	s.private("POST /api/v1/safety-settings/{childId}/reset", s.handleResetSafety)

	// ─────────────────────────────────────────────────────────────────────────
	// Missions & progress
	// ─────────────────────────────────────────────────────────────────────────
	s.catalog("GET /api/v1/missions/current", s.handleCurrentMission)
	s.catalog("GET /api/v1/missions/{year}/{month}", s.handleMissionByPeriod)
	s.private("POST /api/v1/missions", s.handlePublishMission)
	s.private("POST /api/v1/children/{id}/missions/{missionId}/start", s.handleStartMission)
	s.private("GET /api/v1/children/{id}/progress", s.handleProgress)

	// ─────────────────────────────────────────────────────────────────────────
	// Challenge workflow
	// ─────────────────────────────────────────────────────────────────────────
	s.upload("POST /api/v1/uploads", s.handleUpload)
	s.private("POST /api/v1/submissions", s.handleSubmit)
	s.private("PUT /api/v1/submissions/{id}/review", s.handleReview)
	s.private("GET /api/v1/children/{id}/submissions", s.handleListSubmissions)

	// ─────────────────────────────────────────────────────────────────────────
	// Rewards
	// ─────────────────────────────────────────────────────────────────────────
	s.catalog("GET /api/v1/rewards", s.handleListRewards)
	s.catalog("GET /api/v1/rewards/{id}", s.handleGetReward)
	s.private("POST /api/v1/rewards/{id}/award", s.handleAward)
	s.private("POST /api/v1/redemptions", s.handleRedeem)
	s.private("GET /api/v1/children/{id}/rewards", s.handleEarnedRewards)
	s.private("GET /api/v1/children/{id}/rewards/available", s.handleAvailableRewards)

	// ─────────────────────────────────────────────────────────────────────────
	// Notification inbox
	// ─────────────────────────────────────────────────────────────────────────
	s.private("GET /api/v1/notifications", s.handleListNotifications)
	s.private("GET /api/v1/notifications/unread", s.handleUnreadNotifications)
	s.private("PUT /api/v1/notifications/read-all", s.handleMarkAllRead)
	s.private("PUT /api/v1/notifications/{id}/read", s.handleMarkRead)
}

// private registers an authenticated route with the JSON body limit.
func (s *Server) private(pattern string, h http.HandlerFunc) {
	s.router.Handle(pattern, handlers.Chain(
		handlers.NoCache,
		handlers.RequestSizeLimit(s.config.MaxBodyBytes, s.reject),
		handlers.BearerAuth(s.deps.Verifier, s.reject),
	)(h))
}

// upload registers an authenticated route with the multipart body limit.
func (s *Server) upload(pattern string, h http.HandlerFunc) {
	s.router.Handle(pattern, handlers.Chain(
		handlers.NoCache,
		handlers.RequestSizeLimit(s.config.MaxUploadBytes, s.reject),
		handlers.BearerAuth(s.deps.Verifier, s.reject),
	)(h))
}

// catalog registers a public, cacheable read of immutable or slow-moving data.
func (s *Server) catalog(pattern string, h http.HandlerFunc) {
	s.router.Handle(pattern, handlers.CacheControl(s.config.CatalogMaxAge)(h))
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router; the first middleware is outermost.
func (s *Server) buildMiddlewareChain(h http.Handler) http.Handler {
	chain := make([]handlers.MiddlewareFunc, 0, 6)
	if s.rateLimiter != nil {
		chain = append(chain, s.rateLimitMiddleware)
	}
	if s.config.EnableCORS {
		chain = append(chain, s.corsMiddleware)
	}
	chain = append(chain,
		s.recoveryMiddleware,
		s.loggingMiddleware,
		requestIDMiddleware,
		handlers.SecurityHeaders,
	)
	return handlers.Chain(chain...)(h)
}

// requestIDMiddleware propagates or assigns X-Request-ID.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs every request. The request id is read back from the
// response header because it is assigned further down the chain.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			logger.String("ip", s.clientIP(r)),
			logger.String("request_id", rw.Header().Get("X-Request-ID")),
		}
		if rw.statusCode >= http.StatusInternalServerError {
			s.logger.Warn("http request", fields...)
			return
		}
		s.logger.Info("http request", fields...)
	})
}

// recoveryMiddleware turns a panic into a 500 envelope.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered",
					logger.Any("panic", rec),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
					logger.String("request_id", w.Header().Get("X-Request-ID")),
				)
				writeError(w, http.StatusInternalServerError, &APIError{
					Code:    codeInternal,
					Message: "an unexpected error occurred",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-Request-ID")
			h.Set("Access-Control-Max-Age", "86400")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// rateLimitMiddleware implements per-IP rate limiting.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimiter.Allow(s.clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			s.reject(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES AND FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter captures the status code for the access log.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// clientIP honours forwarding headers only from trusted proxies.
func (s *Server) clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if !s.trusted[ip] {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return ip
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// rateLimiter is a sliding-window counter per key. Idle keys are swept
// inline once per window, so it owns no goroutine.
type rateLimiter struct {
	mu        sync.Mutex
	requests  map[string][]time.Time
	limit     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		requests:  make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.window)
	if now.Sub(rl.lastSweep) > rl.window {
		rl.sweep(windowStart)
		rl.lastSweep = now
	}

	valid := prune(rl.requests[key], windowStart)
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}

func (rl *rateLimiter) sweep(windowStart time.Time) {
	for key, times := range rl.requests {
		if valid := prune(times, windowStart); len(valid) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = valid
		}
	}
}

// prune drops timestamps older than windowStart. Timestamps are appended in
// order, so the survivors are a suffix.
func prune(times []time.Time, windowStart time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(windowStart) {
		i++
	}
	return times[i:]
}
