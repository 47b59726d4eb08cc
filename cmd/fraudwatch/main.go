package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/velobank/fraudwatch/internal/audit"
	"github.com/velobank/fraudwatch/internal/config"
	"github.com/velobank/fraudwatch/internal/detector"
	"github.com/velobank/fraudwatch/internal/geo"
	"github.com/velobank/fraudwatch/internal/ledger"
	"github.com/velobank/fraudwatch/internal/store"
	"github.com/velobank/fraudwatch/internal/worker"
	"github.com/velobank/fraudwatch/pkg/logger"
	"github.com/velobank/fraudwatch/pkg/models"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fraudwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&models.Account{}, &models.Transaction{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	var geoCache redis.UniversalClient
	if cfg.Redis.Enabled {
		geoCache = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer geoCache.Close()
	}
	geocoder := geo.NewService(cfg.Geo, geoCache, log)

	accounts := store.NewAccountStore(db, log)
	transactions := store.NewTransactionStore(db, log)

	sugar := log.Sugar()
	orchestrator := detector.NewOrchestrator(log,
		detector.NewDrainDetector(cfg.Detectors.Drain, accounts, sugar),
		detector.NewFastTravelDetector(cfg.Detectors.FastTravel, transactions, geocoder, sugar),
		detector.NewFrequencyDetector(cfg.Detectors.Frequency, transactions, sugar),
		detector.NewGeoDistanceDetector(cfg.Detectors.GeoDistance, geocoder, sugar),
		detector.NewLowAmountDetector(cfg.Detectors.LowAmount, sugar),
	)

	engine := ledger.NewSettlementEngine(db, log)

	var sink audit.Sink = audit.NopSink{}
	if cfg.Kafka.Enabled {
		kafkaSink := audit.NewKafkaSink(cfg.Kafka.Audit, log)
		defer kafkaSink.Close()
		sink = kafkaSink
	}

	w := worker.New(worker.Config{PollInterval: cfg.Worker.PollInterval},
		transactions, orchestrator, engine, sink, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{
		Addr:    cfg.Worker.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		log.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	w.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return metricsServer.Shutdown(shutdownCtx)
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres", "":
		return gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
