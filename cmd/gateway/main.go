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

	"github.com/sirupsen/logrus"

	"facility-report-pipeline/internal/api"
	"facility-report-pipeline/internal/config"
	"facility-report-pipeline/internal/photos"
	"facility-report-pipeline/internal/queue"
	"facility-report-pipeline/internal/search"
	"facility-report-pipeline/internal/store"
)

// GatewayService is the HTTP façade in front of the pipeline.
type GatewayService struct {
	config   *config.Config
	server   *api.Server
	producer queue.Producer
	store    *store.Client
	logger   *logrus.Logger
}

func main() {
	var (
		logLevel   = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		healthPort = flag.String("health-port", "", "Health check port override")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *healthPort != "" {
		cfg.Metrics.Port = *healthPort
	}

	logger := setupLogging(cfg)
	logger.WithFields(logrus.Fields{
		"service": "gateway",
		"version": cfg.Service.Version,
	}).Info("Starting Report Gateway Service")

	service, err := NewGatewayService(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create gateway service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go StartHealthServer(ctx, cfg, logger, "gateway")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("Shutdown signal received, starting graceful shutdown...")
		cancel()
	}()

	if err := service.Start(ctx); err != nil {
		logger.Fatalf("Service failed: %v", err)
	}
	logger.Info("Report Gateway Service stopped gracefully")
}

// NewGatewayService connects every backend the façade fronts.
func NewGatewayService(cfg *config.Config, logger *logrus.Logger) (*GatewayService, error) {
	client, err := store.NewClient(store.Config{
		ConnectionString: cfg.Couchbase.ConnectionString,
		Username:         cfg.Couchbase.Username,
		Password:         cfg.Couchbase.Password,
		BucketName:       cfg.Couchbase.Bucket,
		ScopeName:        cfg.Couchbase.Scope,
		CollectionName:   cfg.Couchbase.Collection,
		OperationTimeout: cfg.Couchbase.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect entity store: %w", err)
	}

	// Best-effort index creation: the membership query needs the groupID
	// index, and creation is safe to retry when already present.
	if err := client.CreateIndexes(); err != nil {
		logger.WithError(err).Warn("Failed to create some indexes")
	}

	index, err := search.NewClient(search.Config{
		Addresses: cfg.Search.Addresses,
		Username:  cfg.Search.Username,
		Password:  cfg.Search.Password,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect search cluster: %w", err)
	}

	photoStore, err := photos.NewStorage(photos.Config{
		Endpoint:  cfg.Photos.Endpoint,
		AccessKey: cfg.Photos.AccessKey,
		SecretKey: cfg.Photos.SecretKey,
		Bucket:    cfg.Photos.Bucket,
		UseSSL:    cfg.Photos.UseSSL,
		URLExpiry: cfg.Photos.URLExpiry,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect photo storage: %w", err)
	}

	producer, err := queue.NewProducer(queue.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		RetryAttempts: cfg.Kafka.RetryAttempts,
		FlushTimeout:  cfg.Kafka.FlushTimeout,
		BatchSize:     cfg.Kafka.BatchSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	pipeline := queue.NewPipeline(producer, queue.Topics{
		ReportOps: cfg.Kafka.ReportOpsTopic,
		GroupOps:  cfg.Kafka.GroupOpsTopic,
		Keywords:  cfg.Kafka.KeywordsTopic,
		Changes:   cfg.Kafka.ChangesTopic,
	})

	repo := store.NewEntityRepository(client, logger)
	server := api.NewServer(repo, index, pipeline, pipeline, photoStore, api.AuthConfig{
		SigningSecret: cfg.Auth.SigningSecret,
		AdminPool:     cfg.Auth.AdminPool,
		UserPool:      cfg.Auth.UserPool,
	}, logger)

	return &GatewayService{
		config:   cfg,
		server:   server,
		producer: producer,
		store:    client,
		logger:   logger,
	}, nil
}

// Start serves HTTP until the context is cancelled, then drains in-flight
// requests and closes the backends.
func (s *GatewayService) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.config.Service.Port,
		Handler:           s.server.Router(),
		ReadTimeout:       s.config.Service.Timeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.config.Service.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("port", s.config.Service.Port).Info("Gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.cleanup()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Gateway shutdown error")
	}
	s.cleanup()
	return nil
}

func (s *GatewayService) cleanup() {
	if err := s.producer.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close producer")
	}
	if err := s.store.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close entity store")
	}
}
