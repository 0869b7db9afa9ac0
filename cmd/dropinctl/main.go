// Command dropinctl runs maintenance tasks against a drop-in center database:
// guest imports, daily reports and inspection of the board's kv storage.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"dropin/internal/adapters/kv"
	"dropin/internal/adapters/storage"
	donationStore "dropin/internal/adapters/storage/donation"
	guestStore "dropin/internal/adapters/storage/guest"
	serviceStore "dropin/internal/adapters/storage/service"
	"dropin/internal/application/board"
	"dropin/internal/application/bulk"
	"dropin/internal/application/orchestrators"
	"dropin/internal/application/writequeue"
	"dropin/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type globals struct {
	configPath string
	out        string // text | json
}

func main() {
	_ = godotenv.Load(".env")
	g := &globals{}

	root := &cobra.Command{
		Use:           "dropinctl",
		Short:         "Maintenance tasks for the drop-in center service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "dropin.yaml", "path to an optional YAML config file")
	root.PersistentFlags().StringVar(&g.out, "out", "text", "output format: text|json")

	root.AddCommand(
		importCmd(g),
		reportCmd(g),
		kvCmd(g),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// env is the slice of the server's wiring the commands need.
type env struct {
	cfg       *config.Config
	db        *sql.DB
	guests    *guestStore.SQLiteStore
	services  *serviceStore.SQLiteStore
	donations *donationStore.SQLiteStore
	kv        *kv.Storage
	queue     *writequeue.Queue
	board     *board.Board
}

func openEnv(ctx context.Context, g *globals) (*env, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()})))

	db, err := sql.Open("sqlite", cfg.Database.Path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, err
	}
	if err := storage.MigrateDB(db); err != nil {
		db.Close()
		return nil, err
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
	}, db, nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	e := &env{
		cfg:       cfg,
		db:        db,
		guests:    guestStore.NewSQLiteStore(db),
		services:  serviceStore.NewSQLiteStore(db),
		donations: donationStore.NewSQLiteStore(db),
		kv:        kvs,
	}
	window := &bulk.Window{}
	e.queue = writequeue.New(kvs,
		writequeue.WithBaseDelay(cfg.BaseDelay()),
		writequeue.WithBulkDelay(cfg.BulkDelay()),
		writequeue.WithBulkSignal(window),
		writequeue.WithDisabled(cfg.Persistence.Disabled),
	)
	e.board = board.New(board.Deps{
		Services:   orchestrators.ServiceDeps{GuestStore: e.guests, ServiceStore: e.services},
		GuestStore: e.guests,
		Days:       e.services,
		Queue:      e.queue,
		Storage:    kvs,
		Window:     window,
	})
	if err := e.board.Hydrate(ctx); err != nil {
		e.close(ctx)
		return nil, err
	}
	return e, nil
}

// close flushes anything the board scheduled before releasing storage.
func (e *env) close(ctx context.Context) {
	e.queue.Dispose(ctx)
	if err := e.kv.Close(); err != nil {
		slog.Warn("kv_close_failed", "error", err.Error())
	}
	e.db.Close()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
