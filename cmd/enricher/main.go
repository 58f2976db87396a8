package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"facility-report-pipeline/internal/config"
	"facility-report-pipeline/internal/enrich"
	"facility-report-pipeline/internal/photos"
	"facility-report-pipeline/internal/queue"
	"facility-report-pipeline/internal/store"
)

// EnricherService runs the keyword worker off the keyword command topic and
// the photo-label worker off object-created notifications.
type EnricherService struct {
	config   *config.Config
	keywords *enrich.KeywordWorker
	labels   *enrich.PhotoLabelWorker
	consumer queue.Consumer
	producer queue.Producer
	photos   *photos.Storage
	store    *store.Client
	logger   *logrus.Logger

	wg     sync.WaitGroup
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
		"service": "enricher",
		"version": cfg.Service.Version,
	}).Info("Starting Report Enricher Service")

	service, err := NewEnricherService(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create enricher service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	service.ctx = ctx
	service.cancel = cancel

	go StartHealthServer(ctx, cfg, logger, "enricher")

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
	logger.Info("Report Enricher Service stopped gracefully")
}

// NewEnricherService wires the detectors, store, object storage, and Kafka.
func NewEnricherService(cfg *config.Config, logger *logrus.Logger) (*EnricherService, error) {
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

	detector := enrich.NewHTTPDetector(enrich.DetectorConfig{
		KeyPhrasesURL: cfg.Detection.KeyPhrasesURL,
		LabelsURL:     cfg.Detection.LabelsURL,
		Timeout:       cfg.Detection.Timeout,
	})

	repo := store.NewEntityRepository(client, logger)
	svc := &EnricherService{
		config:   cfg,
		keywords: enrich.NewKeywordWorker(detector, repo, pipeline, logger),
		labels:   enrich.NewPhotoLabelWorker(detector, repo, pipeline, cfg.Detection.MaxLabels, logger),
		producer: producer,
		photos:   photoStore,
		store:    client,
		logger:   logger,
	}

	handler := func(ctx context.Context, message *sarama.ConsumerMessage) error {
		return svc.keywords.HandleMessage(ctx, message.Value)
	}
	consumer, err := queue.NewConsumer(queue.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		GroupID:       cfg.Kafka.ConsumerGroup + "-enricher",
		RetryAttempts: cfg.Kafka.RetryAttempts,
	}, handler, logger)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	svc.consumer = consumer
	return svc, nil
}

// Start runs both workers and blocks until shutdown, then cleans up.
func (s *EnricherService) Start() error {
	s.logger.WithFields(logrus.Fields{
		"keywords_topic": s.config.Kafka.KeywordsTopic,
		"photo_bucket":   s.photos.Bucket(),
	}).Info("Starting enricher workers")

	// Photo labels arrive as bucket notifications rather than Kafka
	// messages, so they get their own goroutine.
	s.wg.Add(1)
	go s.runPhotoWorker()

	topics := []string{s.config.Kafka.KeywordsTopic}
	if err := s.consumer.Start(s.ctx, topics); err != nil {
		s.logger.WithError(err).Error("Consumer failed")
		s.cancel()
		s.wg.Wait()
		s.cleanup()
		return err
	}

	s.wg.Wait()
	s.cleanup()
	return nil
}

// runPhotoWorker feeds object-created notifications to the label worker
// until the context is cancelled.
func (s *EnricherService) runPhotoWorker() {
	defer s.wg.Done()

	for created := range s.photos.ListenCreated(s.ctx) {
		if err := s.labels.HandleObjectCreated(s.ctx, created.Bucket, created.Key); err != nil {
			s.logger.WithError(err).WithField("key", created.Key).Error("Failed to label photo")
		}
	}
}

func (s *EnricherService) cleanup() {
	if err := s.producer.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close producer")
	}
	if err := s.store.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close entity store")
	}
}
