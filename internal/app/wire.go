package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/backoffice/internal/accounts"
	"github.com/odyssey-erp/backoffice/internal/invoices"
	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/notify"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/orders"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/procurement"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/jobs"
)

// Services holds the wired domain services shared by the API and the worker.
type Services struct {
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Metrics     *observability.Metrics
	SMTP        *notify.SMTPSender
	Queue       *jobs.Client
	Idempotency *shared.IdempotencyStore

	Products    *products.Service
	Suppliers   *suppliers.Service
	Orders      *orders.Service
	Procurement *procurement.Service
	Invoices    *invoices.Service
	Accounts    *accounts.Service
}

// RedisOpts returns the asynq connection settings for cfg.
func RedisOpts(cfg *Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// BuildServices connects to Postgres and Redis and wires every service. The returned
// cleanup closes the connections.
func BuildServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, func(), error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{
		MaxConns:        cfg.PGMaxConns,
		ApplicationName: "backoffice",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	redisClient, err := cache.New(ctx, cache.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		PoolSize:    cfg.RedisPoolSize,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	queue, err := jobs.NewClient(RedisOpts(cfg))
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("asynq client: %w", err)
	}
	cleanup := func() {
		if err := queue.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
		pool.Close()
	}

	metrics := observability.NewMetrics()
	smtp := notify.NewSMTPSender(notify.SMTPConfig{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		User:      cfg.SMTPUser,
		Pass:      cfg.SMTPPass,
		FromName:  cfg.FromName,
		FromEmail: cfg.FromEmail,
		Timeout:   cfg.SMTPTimeout,
	}, logger)
	notifyCfg := notify.NotifierConfig{AppName: cfg.AppName, FrontendURL: cfg.FrontendURL}
	if cfg.AsyncEmail {
		notifyCfg.Deferred = queue
	}
	notifier := notify.NewNotifier(smtp, notifyCfg, logger)
	audit := shared.NewAuditLogger(pool)

	productService := products.NewService(products.NewRepository(pool))
	supplierService := suppliers.NewService(suppliers.NewRepository(pool))
	orderRepo := orders.NewRepository(pool)
	orderService := orders.NewService(orderRepo, productService, notifier, logger)
	procurementService := procurement.NewService(procurement.Dependencies{
		Repo:      procurement.NewRepository(pool),
		Orders:    orderService,
		Suppliers: supplierService,
		Notifier:  notifier,
		Locker:    shared.NewLocker(redisClient),
		Audit:     audit,
		Metrics:   metrics,
		Logger:    logger,
	}, procurement.Config{
		DueIn:             cfg.PODueIn(),
		NotifyConcurrency: cfg.NotifyConcurrency,
		LockTTL:           cfg.POBatchInterval,
	})
	invoiceService := invoices.NewService(invoices.NewRepository(pool), orderService, audit, logger)
	accountService := accounts.NewService(accounts.NewRepository(pool), accounts.NewTokenStore(redisClient), notifier, audit, cfg.ResetTokenTTL, logger)

	return &Services{
		Pool:        pool,
		Redis:       redisClient,
		Metrics:     metrics,
		SMTP:        smtp,
		Queue:       queue,
		Idempotency: shared.NewIdempotencyStore(pool),
		Products:    productService,
		Suppliers:   supplierService,
		Orders:      orderService,
		Procurement: procurementService,
		Invoices:    invoiceService,
		Accounts:    accountService,
	}, cleanup, nil
}
