// Package sync projects primary-store change events into the search index.
// It is the only writer of index documents; processing is last-delivered-
// wins, with per-key ordering inherited from the keyed change topic.
package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"facility-report-pipeline/internal/metrics"
	"facility-report-pipeline/internal/models"
	"facility-report-pipeline/internal/search"

	"github.com/sirupsen/logrus"
)

// Indexer is the slice of the search client the synchronizer writes through.
type Indexer interface {
	Index(ctx context.Context, index, id string, doc any) error
	Delete(ctx context.Context, index, id string) error
}

// Synchronizer applies change events to the search index.
type Synchronizer struct {
	index  Indexer
	logger *logrus.Logger
}

// NewSynchronizer wires a Synchronizer.
func NewSynchronizer(index Indexer, logger *logrus.Logger) *Synchronizer {
	return &Synchronizer{index: index, logger: logger}
}

// HandleMessage decodes and applies one change event. Malformed events are
// dropped; index failures are returned so the consumer retries.
func (s *Synchronizer) HandleMessage(ctx context.Context, payload []byte) error {
	ev, err := models.ParseChangeEvent(payload)
	if err != nil {
		s.logger.WithError(err).Error("dropping malformed change event")
		return nil
	}
	return s.Apply(ctx, ev)
}

// Apply dispatches the event by its entity ID prefix.
func (s *Synchronizer) Apply(ctx context.Context, ev *models.ChangeEvent) error {
	switch {
	case models.IsReportID(ev.ID):
		return s.applyReport(ctx, ev)
	case models.IsGroupID(ev.ID):
		return s.applyGroup(ctx, ev)
	default:
		s.logger.WithField("entity_id", ev.ID).Warn("skipping change event with unknown prefix")
		return nil
	}
}

func (s *Synchronizer) applyReport(ctx context.Context, ev *models.ChangeEvent) error {
	if ev.EventName == models.ChangeRemove {
		if err := s.index.Delete(ctx, search.ReportsIndex, ev.ID); err != nil {
			return err
		}
		s.logger.WithField("report_id", ev.ID).Info("report removed from index")
		metrics.ChangeEventsApplied.WithLabelValues("remove").Inc()
		return nil
	}

	doc, err := projectReport(ev)
	if err != nil {
		s.logger.WithError(err).WithField("report_id", ev.ID).
			Error("dropping unprojectable report event")
		return nil
	}
	if err := s.index.Index(ctx, search.ReportsIndex, ev.ID, doc); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"report_id": ev.ID,
		"status":    doc.Status,
	}).Info("report projected to index")
	metrics.ChangeEventsApplied.WithLabelValues("upsert").Inc()
	return nil
}

func (s *Synchronizer) applyGroup(ctx context.Context, ev *models.ChangeEvent) error {
	if ev.EventName == models.ChangeRemove {
		if err := s.index.Delete(ctx, search.GroupsIndex, ev.ID); err != nil {
			return err
		}
		s.logger.WithField("group_id", ev.ID).Info("group removed from index")
		metrics.ChangeEventsApplied.WithLabelValues("remove").Inc()
		return nil
	}

	doc, err := projectGroup(ev)
	if err != nil {
		s.logger.WithError(err).WithField("group_id", ev.ID).
			Error("dropping unprojectable group event")
		return nil
	}
	if err := s.index.Index(ctx, search.GroupsIndex, ev.ID, doc); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"group_id": ev.ID,
		"status":   doc.Status,
	}).Info("group projected to index")
	metrics.ChangeEventsApplied.WithLabelValues("upsert").Inc()
	return nil
}

// projectReport flattens a report's new image into its index document.
// Set-valued fields become single space-joined strings; groupID is carried
// only when present, and the whole-document index replace clears any stale
// value when it is not.
func projectReport(ev *models.ChangeEvent) (models.ReportDocument, error) {
	var report models.Report
	if err := json.Unmarshal(ev.NewImage, &report); err != nil {
		return models.ReportDocument{}, fmt.Errorf("decode report image: %w", err)
	}

	return models.ReportDocument{
		ReportID:    ev.ID,
		UserID:      report.UserID,
		Title:       report.Title,
		Building:    report.Building,
		Description: report.Description,
		Status:      string(report.Status),
		CreatedDate: report.CreatedDate,
		GroupID:     report.GroupID,
		Keywords:    report.Keywords.JoinTokens(),
		PhotoLabels: report.PhotoLabels.JoinTokens(),
	}, nil
}

// projectGroup flattens a group's new image into its index document.
func projectGroup(ev *models.ChangeEvent) (models.GroupDocument, error) {
	var group models.Group
	if err := json.Unmarshal(ev.NewImage, &group); err != nil {
		return models.GroupDocument{}, fmt.Errorf("decode group image: %w", err)
	}

	return models.GroupDocument{
		GroupID:     ev.ID,
		Title:       group.Title,
		Building:    group.Building,
		Description: group.Description,
		Status:      string(group.Status),
	}, nil
}
