package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	emailPkg "dropin/internal/adapters/email"
	web "dropin/internal/adapters/http"
	"dropin/internal/adapters/http/perf"
	"dropin/internal/adapters/kv"
	"dropin/internal/adapters/metrics"
	"dropin/internal/adapters/storage"
	accountStore "dropin/internal/adapters/storage/account"
	donationStore "dropin/internal/adapters/storage/donation"
	guestStore "dropin/internal/adapters/storage/guest"
	outboxStore "dropin/internal/adapters/storage/outbox"
	serviceStore "dropin/internal/adapters/storage/service"
	"dropin/internal/application/board"
	"dropin/internal/application/bulk"
	"dropin/internal/application/orchestrators"
	"dropin/internal/application/writequeue"
	"dropin/internal/config"
	"dropin/internal/domain/outbox"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const outboxInterval = time.Minute

func main() {
	configPath := flag.String("config", "dropin.yaml", "path to an optional YAML config file")
	flag.Parse()

	_ = godotenv.Load(".env")
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config_load_failed", "error", err.Error())
		os.Exit(1)
	}
	setupLogger(cfg)

	if err := run(cfg); err != nil {
		slog.Error("server_failed", "error", err.Error())
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// WAL mode, foreign keys and busy timeout
	dsn := cfg.Database.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	if err := storage.MigrateDB(db); err != nil {
		return err
	}

	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector, cfg.SlowQuery())
	m := metrics.New()

	stores := web.Stores{
		Guests:    guestStore.NewSQLiteStore(timedDB),
		Services:  serviceStore.NewSQLiteStore(timedDB),
		Donations: donationStore.NewSQLiteStore(timedDB),
		Accounts:  accountStore.NewSQLiteStore(timedDB),
		Outbox:    outboxStore.NewSQLiteStore(timedDB),
	}

	kvs, err := kv.Open(ctx, kv.Config{
		Driver:   cfg.KV.Driver,
		DSN:      cfg.KV.DSN,
		Prefix:   cfg.KV.Prefix,
		Disabled: cfg.Persistence.Disabled,
		Redis: kv.RedisConfig{
			Addr:     cfg.KV.Redis.Addr,
			Password: cfg.KV.Redis.Password,
			DB:       cfg.KV.Redis.DB,
		},
	}, timedDB, m.KVFallback)
	if err != nil {
		return err
	}
	defer kvs.Close()

	window := &bulk.Window{}
	queue := writequeue.New(kvs,
		writequeue.WithBaseDelay(cfg.BaseDelay()),
		writequeue.WithBulkDelay(cfg.BulkDelay()),
		writequeue.WithBulkSignal(window),
		writequeue.WithDisabled(cfg.Persistence.Disabled),
		writequeue.WithFlushObserver(func(r writequeue.FlushResult) {
			m.Flush(r.Keys, r.Err, r.Duration)
			collector.Record(perf.Entry{
				Kind:       perf.KindFlush,
				Path:       "writequeue",
				Items:      r.Keys,
				Failed:     r.Err != nil,
				DurationMs: float64(r.Duration.Microseconds()) / 1000.0,
				Timestamp:  time.Now(),
			})
		}),
	)

	b := board.New(board.Deps{
		Services: orchestrators.ServiceDeps{
			GuestStore:   stores.Guests,
			ServiceStore: stores.Services,
		},
		GuestStore: stores.Guests,
		Days:       stores.Services,
		Queue:      queue,
		Storage:    kvs,
		Window:     window,
		Rollbacks:  m,
		Perf:       collector,
	})
	if err := b.Hydrate(ctx); err != nil {
		return err
	}

	seedDeps := orchestrators.CreateAccountDeps{AccountStore: stores.Accounts}
	if err := orchestrators.ExecuteSeedAdmin(ctx, seedDeps, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		return err
	}

	var sender emailPkg.Sender
	if cfg.Email.ResendKey != "" {
		sender = emailPkg.NewResendSender(cfg.Email.ResendKey, cfg.Email.From)
		slog.Info("email_sender_configured", "provider", "resend")
	} else {
		sender = emailPkg.NewNoopSender()
		if cfg.IsProduction() {
			slog.Warn("email_sender_configured", "provider", "noop", "reason", "DROPIN_RESEND_KEY is not set; receipts are not delivered")
		} else {
			slog.Info("email_sender_configured", "provider", "noop")
		}
	}

	processor := orchestrators.NewOutboxProcessor(stores.Outbox, map[string]orchestrators.ActionExecutor{
		outbox.ActionTypeDonationReceipt: &orchestrators.DonationReceiptExecutor{Sender: sender},
	}, orchestrators.WithAttemptObserver(m))
	workerDone := orchestrators.StartBackgroundWorker(ctx, processor, outboxInterval)

	key, err := csrfKey(cfg)
	if err != nil {
		return err
	}
	handler := web.NewMux(ctx, web.Deps{
		Stores:     stores,
		Board:      b,
		Sender:     sender,
		CenterName: cfg.CenterName,
		Outbox:     processor,
		Perf:       collector,
		Metrics:    m,
		DB:         db,
		KV:         kvs,
	}, web.Options{
		CSRFKey:        key,
		Secure:         cfg.IsProduction(),
		TrustedOrigins: cfg.HTTP.TrustedOrigins,
		RateLimit:      cfg.HTTP.RateLimit,
		SlowRequest:    cfg.SlowRequest(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server_starting",
			"version", version,
			"addr", cfg.Addr,
			"env", cfg.Env,
			"schema", storage.LatestSchemaVersion(),
			"kv_driver", cfg.KV.Driver,
			"kv_fallback", kvs.UsingFallback(),
			"persistence_disabled", cfg.Persistence.Disabled,
		)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server_shutdown_incomplete", "error", err.Error())
	}
	// Persist whatever the board scheduled since the last flush.
	b.Persist(shutdownCtx)
	queue.Dispose(shutdownCtx)
	stop()
	<-workerDone
	slog.Info("server_stopped")
	return nil
}

// csrfKey returns the configured key, or a random one outside production.
func csrfKey(cfg *config.Config) ([]byte, error) {
	if cfg.HTTP.CSRFKey != "" {
		return []byte(cfg.HTTP.CSRFKey), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	slog.Warn("csrf_key_random", "reason", "DROPIN_CSRF_KEY is not set; CSRF tokens will not survive a restart")
	return key, nil
}
