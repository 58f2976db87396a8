package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"facility-report-pipeline/internal/metrics"
	"facility-report-pipeline/internal/models"
	"facility-report-pipeline/internal/store"

	"github.com/sirupsen/logrus"
)

// DefaultMaxLabels caps how many top labels the detector returns per image.
const DefaultMaxLabels = 5

// PhotoLabelWorker fires once per uploaded image, triggered by the object
// store's object-created notifications.
type PhotoLabelWorker struct {
	detector  LabelDetector
	store     ReportMerger
	changes   ChangePublisher
	logger    *logrus.Logger
	maxLabels int
}

// NewPhotoLabelWorker wires a PhotoLabelWorker.
func NewPhotoLabelWorker(detector LabelDetector, merger ReportMerger, changes ChangePublisher, maxLabels int, logger *logrus.Logger) *PhotoLabelWorker {
	if maxLabels <= 0 {
		maxLabels = DefaultMaxLabels
	}
	return &PhotoLabelWorker{
		detector:  detector,
		store:     merger,
		changes:   changes,
		logger:    logger,
		maxLabels: maxLabels,
	}
}

// ReportIDFromKey extracts the owning report's ID from an image object key
// of the form {reportID}/{imageName}.
func ReportIDFromKey(key string) (string, error) {
	reportID, _, found := strings.Cut(key, "/")
	if !found || !models.IsReportID(reportID) {
		return "", fmt.Errorf("object key %q does not carry a report prefix", key)
	}
	return reportID, nil
}

// HandleObjectCreated processes one uploaded image: detect labels, normalize
// them like keywords, and union them into the report's photoLabels set.
func (w *PhotoLabelWorker) HandleObjectCreated(ctx context.Context, bucket, key string) error {
	reportID, err := ReportIDFromKey(key)
	if err != nil {
		w.logger.WithError(err).WithField("key", key).Warn("ignoring object outside report folders")
		return nil
	}

	w.logger.WithFields(logrus.Fields{
		"report_id": reportID,
		"key":       key,
	}).Info("processing uploaded image")

	labels, err := w.detector.DetectLabels(ctx, bucket, key, w.maxLabels)
	if err != nil {
		return fmt.Errorf("labels for %s: %w", key, err)
	}

	tokens := NormalizeTokens(labels)
	if len(tokens) == 0 {
		w.logger.WithField("key", key).Info("no labels detected")
		return nil
	}

	if err := w.store.AddToSet(ctx, reportID, PhotoLabelsField, tokens); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Report deleted between upload and label completion.
			w.logger.WithField("report_id", reportID).
				Warn("dropping photo labels for missing report")
			metrics.EnrichmentDropped.WithLabelValues(PhotoLabelsField).Inc()
			return nil
		}
		return err
	}

	w.logger.WithFields(logrus.Fields{
		"report_id": reportID,
		"labels":    len(tokens),
	}).Info("photo labels merged")
	metrics.EnrichmentMerges.WithLabelValues(PhotoLabelsField).Inc()

	emitReportSnapshot(ctx, w.store, w.changes, w.logger, reportID)
	return nil
}
