package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"facility-report-pipeline/internal/config"
	"facility-report-pipeline/internal/ops"
	"facility-report-pipeline/internal/photos"
	"facility-report-pipeline/internal/queue"
	"facility-report-pipeline/internal/store"
)

// ProcessorService drains the operation topics and applies each lifecycle
// operation against the entity store.
type ProcessorService struct {
	config    *config.Config
	processor *ops.Processor
	consumer  queue.Consumer
	producer  queue.Producer
	store     *store.Client
	logger    *logrus.Logger

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
		"service": "processor",
		"version": cfg.Service.Version,
	}).Info("Starting Report Operation Processor")

	service, err := NewProcessorService(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create processor service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	service.ctx = ctx
	service.cancel = cancel

	go StartHealthServer(ctx, cfg, logger, "processor")

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
	logger.Info("Report Operation Processor stopped gracefully")
}

// NewProcessorService connects the store, object storage, and Kafka, and
// builds the operation processor around them.
func NewProcessorService(cfg *config.Config, logger *logrus.Logger) (*ProcessorService, error) {
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
	processor := ops.NewProcessor(repo, photoStore, pipeline, pipeline, logger)

	svc := &ProcessorService{
		config:    cfg,
		processor: processor,
		producer:  producer,
		store:     client,
		logger:    logger,
	}

	handler := func(ctx context.Context, message *sarama.ConsumerMessage) error {
		return svc.processor.HandleMessage(ctx, message.Value)
	}
	consumer, err := queue.NewConsumer(queue.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		GroupID:       cfg.Kafka.ConsumerGroup + "-processor",
		RetryAttempts: cfg.Kafka.RetryAttempts,
	}, handler, logger)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	svc.consumer = consumer
	return svc, nil
}

// Start runs the consume loop and blocks until shutdown, then cleans up.
func (s *ProcessorService) Start() error {
	s.logger.WithFields(logrus.Fields{
		"report_ops_topic": s.config.Kafka.ReportOpsTopic,
		"group_ops_topic":  s.config.Kafka.GroupOpsTopic,
	}).Info("Starting operation processor")

	topics := []string{s.config.Kafka.ReportOpsTopic, s.config.Kafka.GroupOpsTopic}
	if err := s.consumer.Start(s.ctx, topics); err != nil {
		s.logger.WithError(err).Error("Consumer failed")
		return err
	}

	s.cleanup()
	return nil
}

func (s *ProcessorService) cleanup() {
	if err := s.producer.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close producer")
	}
	if err := s.store.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close entity store")
	}
}
