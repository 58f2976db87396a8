// Package enrich implements the enrichment dispatcher: independent workers
// that derive keywords and photo labels for a report and merge them into the
// entity store without clobbering each other.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"facility-report-pipeline/internal/metrics"
	"facility-report-pipeline/internal/models"
	"facility-report-pipeline/internal/store"

	"github.com/sirupsen/logrus"
)

// Set-valued report fields the workers merge into.
const (
	KeywordsField    = "keywords"
	PhotoLabelsField = "photoLabels"
)

// ReportMerger is the slice of the repository the workers need: an atomic
// add-to-set merge plus a snapshot read for the change event.
type ReportMerger interface {
	AddToSet(ctx context.Context, id, field string, tokens []string) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
}

// ChangePublisher emits a change event after a merge so the index catches up.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev models.ChangeEvent) error
}

// KeywordWorker reacts to keyword-extraction commands enqueued after report
// creation.
type KeywordWorker struct {
	detector KeyPhraseDetector
	store    ReportMerger
	changes  ChangePublisher
	logger   *logrus.Logger
}

// NewKeywordWorker wires a KeywordWorker.
func NewKeywordWorker(detector KeyPhraseDetector, merger ReportMerger, changes ChangePublisher, logger *logrus.Logger) *KeywordWorker {
	return &KeywordWorker{detector: detector, store: merger, changes: changes, logger: logger}
}

// HandleMessage decodes one keyword command and applies it. Malformed
// payloads are dropped; transient failures are returned so the consumer
// retries.
func (w *KeywordWorker) HandleMessage(ctx context.Context, payload []byte) error {
	var cmd models.KeywordCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		w.logger.WithError(err).Error("dropping malformed keyword command")
		return nil
	}
	if cmd.ReportID == "" {
		w.logger.Error("dropping keyword command without report ID")
		return nil
	}
	return w.Process(ctx, cmd)
}

// Process detects key phrases in the description, normalizes them into
// tokens, and adds them to the report's keywords set. Tokens contributed by
// the photo-label worker or a previous run are never overwritten because
// the merge is a set union.
func (w *KeywordWorker) Process(ctx context.Context, cmd models.KeywordCommand) error {
	phrases, err := w.detector.DetectKeyPhrases(ctx, cmd.Description)
	if err != nil {
		return fmt.Errorf("keywords for %s: %w", cmd.ReportID, err)
	}

	tokens := NormalizeTokens(phrases)
	if len(tokens) == 0 {
		w.logger.WithField("report_id", cmd.ReportID).Info("no keywords detected")
		return nil
	}

	if err := w.store.AddToSet(ctx, cmd.ReportID, KeywordsField, tokens); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Report deleted between creation and detection; drop the result
			// rather than recreating the record.
			w.logger.WithField("report_id", cmd.ReportID).
				Warn("dropping keywords for missing report")
			metrics.EnrichmentDropped.WithLabelValues(KeywordsField).Inc()
			return nil
		}
		return err
	}

	w.logger.WithFields(logrus.Fields{
		"report_id": cmd.ReportID,
		"keywords":  len(tokens),
	}).Info("keywords merged")
	metrics.EnrichmentMerges.WithLabelValues(KeywordsField).Inc()

	emitReportSnapshot(ctx, w.store, w.changes, w.logger, cmd.ReportID)
	return nil
}

// emitReportSnapshot publishes the report's current image as an UPSERT
// change event. Shared by both workers.
func emitReportSnapshot(ctx context.Context, merger ReportMerger, changes ChangePublisher, logger *logrus.Logger, reportID string) {
	report, err := merger.GetReport(ctx, reportID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.WithError(err).WithField("report_id", reportID).
				Warn("failed to snapshot report for change event")
		}
		return
	}

	ev, err := models.NewUpsertEvent(reportID, report)
	if err != nil {
		logger.WithError(err).WithField("report_id", reportID).Error("failed to build change event")
		return
	}
	if err := changes.PublishChange(ctx, ev); err != nil {
		logger.WithError(err).WithField("report_id", reportID).Error("failed to publish change event")
	}
}
