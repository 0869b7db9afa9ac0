package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"dropin/internal/adapters/email"
	"dropin/internal/adapters/http/middleware"
	"dropin/internal/adapters/http/perf"
	"dropin/internal/adapters/metrics"
	accountStore "dropin/internal/adapters/storage/account"
	donationStore "dropin/internal/adapters/storage/donation"
	guestStore "dropin/internal/adapters/storage/guest"
	outboxStore "dropin/internal/adapters/storage/outbox"
	serviceStore "dropin/internal/adapters/storage/service"
	"dropin/internal/application/board"
	"dropin/internal/application/orchestrators"
	domainAccount "dropin/internal/domain/account"
)

// Stores holds all storage dependencies.
type Stores struct {
	Guests    guestStore.Store
	Services  serviceStore.Store
	Donations donationStore.Store
	Accounts  accountStore.Store
	Outbox    outboxStore.Store
}

// Pinger reports database reachability for /healthz.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// KVStatus reports the state of the kv boundary for /healthz.
type KVStatus interface {
	UsingFallback() bool
	Disabled() bool
}

// Deps is everything the handlers need. Sender, Outbox, Perf, Metrics, DB
// and KV are optional.
type Deps struct {
	Stores     Stores
	Board      *board.Board
	Sessions   *middleware.SessionStore
	Sender     email.Sender
	CenterName string
	Outbox     *orchestrators.OutboxProcessor
	Perf       *perf.Collector
	Metrics    *metrics.Metrics
	DB         Pinger
	KV         KVStatus
	Now        func() time.Time
}

// Options tunes the middleware chain.
type Options struct {
	CSRFKey        []byte // 32 bytes
	Secure         bool   // Secure cookies; set in production
	TrustedOrigins []string
	RateLimit      int // requests per minute per IP; 0 disables
	SlowRequest    time.Duration
}

type server struct {
	deps   Deps
	secure bool

	mu           sync.Mutex
	reservations map[string]*board.Reservation // guestID|type -> in flight
}

func (s *server) now() time.Time {
	if s.deps.Now != nil {
		return s.deps.Now()
	}
	return time.Now()
}

// NewMux wires HTTP handlers for the app. ctx bounds the rate limiter's sweeper.
func NewMux(ctx context.Context, deps Deps, opts Options) http.Handler {
	if deps.Sessions == nil {
		deps.Sessions = middleware.NewSessionStore()
	}
	s := &server{deps: deps, secure: opts.Secure, reservations: make(map[string]*board.Reservation)}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var observer middleware.RequestObserver
	if deps.Metrics != nil {
		observer = deps.Metrics
	}
	// Timing sits directly on the mux: the middlewares above it copy the
	// request, which would hide the matched pattern.
	chain := []func(http.Handler) http.Handler{
		middleware.Timing(middleware.TimingOptions{
			Collector:     deps.Perf,
			SlowThreshold: opts.SlowRequest,
			Observer:      observer,
		}),
		middleware.SecurityHeaders,
		middleware.CSRF(opts.CSRFKey, opts.Secure, opts.TrustedOrigins),
		middleware.Auth(deps.Sessions),
	}
	if opts.RateLimit > 0 {
		chain = append(chain, middleware.RateLimit(middleware.NewRateLimiter(ctx, opts.RateLimit, time.Minute)))
	}
	chain = append(chain, middleware.Recover)
	return middleware.Chain(mux, chain...)
}

func (s *server) registerRoutes(mux *http.ServeMux) {
	volunteer := middleware.RequireRole(domainAccount.RoleVolunteer)
	staff := middleware.RequireRole(domainAccount.RoleStaff)
	admin := middleware.RequireRole(domainAccount.RoleAdmin)

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.Handle("POST /api/account/password", volunteer(http.HandlerFunc(s.handleChangePassword)))

	mux.Handle("GET /api/board", volunteer(http.HandlerFunc(s.handleBoard)))
	mux.Handle("POST /api/checkins", volunteer(http.HandlerFunc(s.handleCheckIn)))
	mux.Handle("POST /api/services", volunteer(http.HandlerFunc(s.handleLogService)))
	mux.Handle("POST /api/services/batch", volunteer(http.HandlerFunc(s.handleLogBatch)))
	mux.Handle("PATCH /api/services/{id}", volunteer(http.HandlerFunc(s.handleSetStatus)))
	mux.Handle("DELETE /api/services/{id}", volunteer(http.HandlerFunc(s.handleUndo)))
	mux.Handle("POST /api/reservations", volunteer(http.HandlerFunc(s.handleReserve)))
	mux.Handle("DELETE /api/reservations", volunteer(http.HandlerFunc(s.handleCancelReservation)))

	mux.Handle("GET /api/guests", volunteer(http.HandlerFunc(s.handleListGuests)))
	mux.Handle("POST /api/guests", volunteer(http.HandlerFunc(s.handleRegisterGuest)))
	mux.Handle("POST /api/guests/import", staff(http.HandlerFunc(s.handleImportGuests)))

	mux.Handle("POST /api/donations", staff(http.HandlerFunc(s.handleRecordDonation)))
	mux.Handle("GET /api/reports/daily", staff(http.HandlerFunc(s.handleDailyReport)))

	mux.Handle("POST /api/accounts", admin(http.HandlerFunc(s.handleCreateAccount)))
	mux.Handle("GET /api/admin/outbox", admin(http.HandlerFunc(s.handleListOutbox)))
	mux.Handle("POST /api/admin/outbox/{id}/retry", admin(http.HandlerFunc(s.handleRetryOutbox)))
	mux.Handle("POST /api/admin/outbox/{id}/abandon", admin(http.HandlerFunc(s.handleAbandonOutbox)))
	mux.Handle("GET /api/admin/perf", admin(http.HandlerFunc(s.handlePerf)))

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
}
