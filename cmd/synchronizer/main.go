package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"facility-report-pipeline/internal/config"
	"facility-report-pipeline/internal/queue"
	"facility-report-pipeline/internal/search"
	syncer "facility-report-pipeline/internal/sync"
)

// SynchronizerService drains the change topic and mirrors each event into
// the search indexes.
type SynchronizerService struct {
	config       *config.Config
	synchronizer *syncer.Synchronizer
	consumer     queue.Consumer
	logger       *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
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
		"service": "synchronizer",
		"version": cfg.Service.Version,
	}).Info("Starting Index Synchronizer Service")

	service, err := NewSynchronizerService(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create synchronizer service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	service.ctx = ctx
	service.cancel = cancel

	go StartHealthServer(ctx, cfg, logger, "synchronizer")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("Shutdown signal received, starting graceful shutdown...")
		cancel()
	}()

	if err := service.Start(); err != nil {
		logger.Fatalf("Service failed: %v", err)
	}
	logger.Info("Index Synchronizer Service stopped gracefully")
}

// NewSynchronizerService connects the search cluster and Kafka.
func NewSynchronizerService(cfg *config.Config, logger *logrus.Logger) (*SynchronizerService, error) {
	index, err := search.NewClient(search.Config{
		Addresses: cfg.Search.Addresses,
		Username:  cfg.Search.Username,
		Password:  cfg.Search.Password,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect search cluster: %w", err)
	}

	// Mappings for the term-filtered fields must exist before the first
	// document lands, or dynamic mapping types them as analyzed text.
	ensureCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := index.EnsureIndexes(ensureCtx); err != nil {
		return nil, fmt.Errorf("failed to ensure search indexes: %w", err)
	}

	svc := &SynchronizerService{
		config:       cfg,
		synchronizer: syncer.NewSynchronizer(index, logger),
		logger:       logger,
	}

	handler := func(ctx context.Context, message *sarama.ConsumerMessage) error {
		return svc.synchronizer.HandleMessage(ctx, message.Value)
	}
	consumer, err := queue.NewConsumer(queue.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		GroupID:       cfg.Kafka.ConsumerGroup + "-synchronizer",
		RetryAttempts: cfg.Kafka.RetryAttempts,
	}, handler, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	svc.consumer = consumer
	return svc, nil
}

// Start runs the consume loop and blocks until shutdown.
func (s *SynchronizerService) Start() error {
	s.logger.WithField("changes_topic", s.config.Kafka.ChangesTopic).Info("Starting index synchronizer")

	topics := []string{s.config.Kafka.ChangesTopic}
	if err := s.consumer.Start(s.ctx, topics); err != nil {
		s.logger.WithError(err).Error("Consumer failed")
		return err
	}
	return nil
}
