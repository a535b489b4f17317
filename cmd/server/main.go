package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/config"
	"github.com/elimupay/billing/internal/infrastructure/database"
	httpServer "github.com/elimupay/billing/internal/infrastructure/http"
	providerRegistry "github.com/elimupay/billing/internal/infrastructure/provider"
	"github.com/elimupay/billing/internal/notify"
	"github.com/elimupay/billing/internal/pkg/logger"
	"github.com/elimupay/billing/internal/usecase"
	"github.com/elimupay/billing/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.NewZapLogger(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		Development: cfg.Service.Environment != "production",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.NewConnection(&cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, zlog); err != nil {
			zlog.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	if err := database.Migrate(db, zlog); err != nil {
		zlog.Fatal("Failed to run database migrations", zap.Error(err))
	}

	repos := database.NewRepositories(db, zlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accounts, err := repos.ProviderAccount.ListActive(ctx)
	if err != nil {
		zlog.Fatal("Failed to load provider accounts", zap.Error(err))
	}
	registry, err := providerRegistry.NewRegistry(accounts, cfg.Service.CallbackBaseURL, zlog)
	if err != nil {
		zlog.Fatal("Failed to build provider registry", zap.Error(err))
	}

	channel := cfg.Redis.EventChannel
	if channel == "" {
		channel = "billing.events"
	}
	notifier, err := notify.NewRedisDispatcher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, channel, zlog)
	if err != nil {
		zlog.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer notifier.Close()

	ledgerSvc := usecase.NewLedgerService(repos.Ledger, zlog)
	intentSvc := usecase.NewIntentService(repos.Intent, repos.Order, repos.PaymentMethod, registry, zlog)
	webhookSvc := usecase.NewWebhookService(repos.Webhook, repos.Intent, repos.Payment, repos.Order,
		repos.Subscription, repos.RenewalAttempt, ledgerSvc, registry, notifier, zlog)
	renewalSvc := usecase.NewRenewalService(repos.Subscription, repos.RenewalAttempt, repos.Order, intentSvc, zlog)
	dunningSvc := usecase.NewDunningService(repos.Subscription, repos.RenewalAttempt, repos.DunningSchedule,
		renewalSvc, notifier, zlog)
	reconciliationSvc := usecase.NewReconciliationService(repos.Payment, repos.Intent, repos.Order,
		repos.Webhook, repos.Ledger, notifier, zlog)
	refundSvc := usecase.NewRefundService(repos.Refund, repos.Payment, repos.Order, ledgerSvc, registry, zlog)

	scheduler := worker.NewScheduler(cfg.Service.Worker, intentSvc, renewalSvc, dunningSvc, reconciliationSvc, zlog)
	scheduler.Start(ctx)

	httpSrv := httpServer.NewServer(cfg, zlog, &httpServer.Services{
		Intents:        intentSvc,
		Webhooks:       webhookSvc,
		Refunds:        refundSvc,
		Reconciliation: reconciliationSvc,
		Schedules:      repos.DunningSchedule,
	})

	go func() {
		if err := httpSrv.Start(); err != nil {
			zlog.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zlog.Info("Shutting down...")

	cancel()
	scheduler.Wait()

	if err := httpSrv.Shutdown(context.Background()); err != nil {
		zlog.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	zlog.Info("Shutdown complete")
}
