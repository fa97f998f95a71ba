package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/cmd/backoffice/cli"
	"github.com/odyssey-erp/backoffice/internal/accounts"
	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/invoices"
	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/orders"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/procurement"
	"github.com/odyssey-erp/backoffice/jobs"
	"github.com/odyssey-erp/backoffice/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		var err error
		switch os.Args[1] {
		case "jobs":
			err = runJobs(cfg, os.Args[2:])
		case "migrate":
			err = runMigrate(cfg, logger, os.Args[2:])
		case "serve":
		default:
			err = fmt.Errorf("unknown command %q", os.Args[1])
		}
		if err != nil {
			logger.Error("command failed", slog.String("command", os.Args[1]), slog.Any("error", err))
			os.Exit(1)
		}
		if os.Args[1] != "serve" {
			return
		}
	}

	if cfg.AutoMigrate {
		if err := runMigrate(cfg, logger, []string{"up"}); err != nil {
			logger.Error("auto migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, cleanup, err := app.BuildServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	inspector := asynq.NewInspector(app.RedisOpts(cfg))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		Metrics:     services.Metrics,
		Idempotency: services.Idempotency,
		Checks: map[string]app.Pinger{
			"postgres": services.Pool.Ping,
			"redis":    func(ctx context.Context) error { return services.Redis.Ping(ctx).Err() },
		},
		ProductsHandler:    products.NewHandler(logger, services.Products),
		SuppliersHandler:   suppliers.NewHandler(logger, services.Suppliers),
		OrdersHandler:      orders.NewHandler(logger, services.Orders),
		ProcurementHandler: procurement.NewHandler(logger, services.Procurement),
		InvoicesHandler:    invoices.NewHandler(logger, services.Invoices),
		AccountsHandler:    accounts.NewHandler(logger, services.Accounts),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(services.Pool))),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runJobs(cfg *app.Config, args []string) error {
	c := cli.NewJobsCLI(app.RedisOpts(cfg))
	defer func() { _ = c.Close() }()
	return c.Run(context.Background(), args, os.Stdout)
}

func runMigrate(cfg *app.Config, logger *slog.Logger, args []string) error {
	m, err := db.NewMigrator(migrations.FS, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("migrator close", slog.Any("source", srcErr), slog.Any("database", dbErr))
		}
	}()

	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}
	switch direction {
	case "up":
		err = db.MigrateUp(m)
	case "down":
		steps := 1
		if len(args) > 1 {
			if steps, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("steps must be a number: %w", err)
			}
		}
		err = db.MigrateDown(m, steps)
	default:
		return fmt.Errorf("usage: backoffice migrate up|down [steps]")
	}
	if err != nil {
		return err
	}
	version, dirty, err := m.Version()
	if err != nil {
		logger.Info("migrations applied", slog.String("direction", direction), slog.String("version", "none"))
		return nil
	}
	logger.Info("migrations applied", slog.String("direction", direction), slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}
