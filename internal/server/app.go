// Package server initializes and runs the application: configuration,
// database and migrations, storage and ledger clients, services, and the
// HTTP server, with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cryptguard/cryptguard/internal/cryptox"
	"github.com/cryptguard/cryptguard/internal/ledger"
	"github.com/cryptguard/cryptguard/internal/logging"
	"github.com/cryptguard/cryptguard/internal/server/api"
	"github.com/cryptguard/cryptguard/internal/server/config"
	"github.com/cryptguard/cryptguard/internal/server/repositories/repomanager"
	"github.com/cryptguard/cryptguard/internal/server/services"
	"github.com/cryptguard/cryptguard/internal/storage"
)

const purgeInterval = time.Hour

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	tokens *services.TokenService
	server *api.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	audit := logging.NewAudit(os.Stdout)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	masterKey, err := cfg.MasterKey()
	if err != nil {
		return nil, err
	}
	vault, err := cryptox.NewKeyVault(masterKey)
	if err != nil {
		return nil, err
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	ledgerClient := ledger.NewEthClient(cfg.LedgerRPCURL, cfg.ContractAddress)

	tokens := services.NewTokenService(db, rm, cfg, audit)
	uploads := services.NewUploadService(db, rm, store, vault, cfg, logger, audit)
	verifier := services.NewVerifyService(db, rm, store, ledgerClient, vault, cfg, audit)
	files := services.NewFileService(db, rm, store, cfg, logger, audit)

	srv := api.NewServer(cfg, logger, audit, tokens, uploads, verifier, files, rm.ReplayNonces(db))

	return &App{config: cfg, logger: logger, db: db, tokens: tokens, server: srv}, nil
}

func newStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendS3:
		return storage.NewS3Store(context.Background(), storage.S3Options{
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
		})
	default:
		return storage.NewPinataStore(cfg.PinataAPIURL, cfg.PinataGatewayURL, cfg.PinataJWT), nil
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// startPurgeLoop periodically drops expired revocations and replay nonces.
func (app *App) startPurgeLoop(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(purgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := app.tokens.PurgeExpired(ctx); err != nil {
					app.logger.Warn(ctx, "purging expired entries failed", "error", err)
				}
			}
		}
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app", "addr", app.config.EndpointAddrHTTP,
		"storage", app.config.StorageBackend, "replayGuard", app.config.ReplayGuardEnabled)

	app.initSignalHandler(cancelFunc)
	app.startPurgeLoop(ctx)

	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server stopped", "error", err)
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing db", "error", err)
	}
}
