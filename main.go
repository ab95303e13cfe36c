package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/tlemoine/peatrack/config"
	"github.com/tlemoine/peatrack/internal/alphavantage"
	"github.com/tlemoine/peatrack/internal/cache"
	"github.com/tlemoine/peatrack/internal/database"
	"github.com/tlemoine/peatrack/internal/handlers"
	"github.com/tlemoine/peatrack/internal/marketcal"
	"github.com/tlemoine/peatrack/internal/middleware"
	"github.com/tlemoine/peatrack/internal/notify"
	"github.com/tlemoine/peatrack/internal/repository"
	"github.com/tlemoine/peatrack/internal/scheduler"
	"github.com/tlemoine/peatrack/internal/services"
)

// syncJob adapts the sync service to the scheduler's Job interface
type syncJob struct {
	svc *services.SyncService
}

func (j *syncJob) Name() string { return "daily-sync" }

func (j *syncJob) Run(ctx context.Context) error {
	_, err := j.svc.RunDailySync(ctx, time.Now().UTC())
	return err
}

func main() {
	// A missing .env is fine in production; variables come from the host
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	db, err := database.New(ctx, cfg.PGURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	avClient := alphavantage.NewClient(cfg.AVKey, cfg.ProviderTimeout)
	memCache := cache.NewMemoryCache(5 * time.Minute)

	// Repositories
	tickerRepo := repository.NewTickerRepository(db.Pool)
	ledgerRepo := repository.NewLedgerRepository(db.Pool)
	priceRepo := repository.NewPriceRepository(db.Pool)
	backfillRepo := repository.NewBackfillRepository(db.Pool)
	alertRepo := repository.NewAlertRepository(db.Pool)
	snapshotRepo := repository.NewSnapshotRepository(db.Pool)
	notificationRepo := repository.NewNotificationRepository(db.Pool)

	// Services
	backfillSvc := services.NewBackfillService(
		backfillRepo, priceRepo, tickerRepo, avClient,
		cfg.BackfillWorkers, cfg.BackfillMaxAttempts, cfg.BackfillBackoff,
	)
	ledgerSvc := services.NewLedgerService(ledgerRepo, priceRepo, backfillSvc)
	valuationSvc := services.NewValuationService(ledgerRepo, priceRepo, tickerRepo, memCache)
	snapshotSvc := services.NewSnapshotService(snapshotRepo, ledgerRepo, priceRepo)
	alertSvc := services.NewAlertService(alertRepo, priceRepo, tickerRepo, notificationRepo, notify.NewSlackNotifier())
	syncSvc := services.NewSyncService(
		marketcal.WeekdayCalendar{}, tickerRepo, avClient, priceRepo,
		backfillSvc, alertSvc, snapshotSvc, ledgerRepo, memCache,
	)

	// Handlers
	transactionHandler := handlers.NewTransactionHandler(ledgerSvc, ledgerRepo, tickerRepo)
	portfolioHandler := handlers.NewPortfolioHandler(valuationSvc, snapshotSvc)
	alertHandler := handlers.NewAlertHandler(alertRepo, tickerRepo)
	tickerHandler := handlers.NewTickerHandler(avClient, tickerRepo, memCache)
	adminHandler := handlers.NewAdminHandler(syncSvc, backfillRepo)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo)

	// Setup Gin router
	router := gin.Default()
	router.Use(middleware.RequestID())
	router.Use(middleware.ValidateUser())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := router.Group("/", middleware.RequireAuth())
	{
		authed.POST("/transactions", transactionHandler.Create)
		authed.GET("/transactions", transactionHandler.List)
		authed.DELETE("/transactions/:id", transactionHandler.Delete)
		authed.POST("/transactions/import", transactionHandler.Import)

		authed.GET("/portfolio", portfolioHandler.Summary)
		authed.GET("/portfolio/history", portfolioHandler.History)

		authed.POST("/alerts", alertHandler.Create)
		authed.GET("/alerts", alertHandler.List)
		authed.POST("/alerts/:id/acknowledge", alertHandler.Acknowledge)
		authed.POST("/alerts/:id/rearm", alertHandler.Rearm)
		authed.DELETE("/alerts/:id", alertHandler.Delete)

		authed.GET("/notifications", notificationHandler.Get)
		authed.PUT("/notifications", notificationHandler.Update)
	}

	router.GET("/tickers/search", tickerHandler.Search)
	router.GET("/tickers/:id/quote", tickerHandler.Quote)
	router.POST("/admin/sync", adminHandler.TriggerSync)
	router.GET("/admin/backfill", adminHandler.ListBackfills)

	// Daily sync on the configured cron schedule
	sched := scheduler.New()
	if err := sched.Register(cfg.SyncSchedule, &syncJob{svc: syncSvc}, 30*time.Minute); err != nil {
		log.Fatalf("Failed to register sync job: %v", err)
	}
	sched.Start()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}
