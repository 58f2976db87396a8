// Package ops implements the operation queue processor: it consumes tagged
// command messages and applies idempotent mutations to the entity store,
// emitting a change event for every successful mutation.
package ops

import (
	"context"
	"errors"
	"fmt"

	"facility-report-pipeline/internal/metrics"
	"facility-report-pipeline/internal/models"
	"facility-report-pipeline/internal/store"

	"github.com/sirupsen/logrus"
)

// EntityStore is the slice of the repository the processor mutates.
type EntityStore interface {
	GetReport(ctx context.Context, id string) (*models.Report, error)
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	UpsertReport(ctx context.Context, report *models.Report) error
	UpsertGroup(ctx context.Context, group *models.Group) error
	SetStatus(ctx context.Context, id string, status models.Status) error
	SetGroup(ctx context.Context, reportID, groupID string, status models.Status) error
	ClearGroup(ctx context.Context, reportID string) error
	RemoveReport(ctx context.Context, id string) (*models.Report, error)
	RemoveGroup(ctx context.Context, id string) error
}

// PhotoStore deletes stored report images.
type PhotoStore interface {
	RemoveImages(ctx context.Context, keys []string) error
}

// CommandPublisher enqueues follow-up commands back onto the pipeline.
type CommandPublisher interface {
	PublishKeywordCommand(ctx context.Context, cmd models.KeywordCommand) error
}

// ChangePublisher emits synthesized primary-store change events.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev models.ChangeEvent) error
}

// Processor dispatches operation messages to their handlers.
type Processor struct {
	store    EntityStore
	photos   PhotoStore
	commands CommandPublisher
	changes  ChangePublisher
	logger   *logrus.Logger
}

// NewProcessor wires a Processor.
func NewProcessor(entities EntityStore, photos PhotoStore, commands CommandPublisher, changes ChangePublisher, logger *logrus.Logger) *Processor {
	return &Processor{
		store:    entities,
		photos:   photos,
		commands: commands,
		changes:  changes,
		logger:   logger,
	}
}

// HandleMessage decodes and dispatches one operation message. Failures are
// logged and swallowed: the message is considered consumed either way, and
// recovery relies on the queue's redelivery policy plus handler idempotency.
// Malformed messages are dropped.
func (p *Processor) HandleMessage(ctx context.Context, payload []byte) error {
	msg, err := models.ParseOperationMessage(payload)
	if err != nil {
		p.logger.WithError(err).WithField("message_size", len(payload)).
			Error("dropping malformed operation message")
		metrics.OperationErrors.WithLabelValues("malformed").Inc()
		return nil
	}

	p.logger.WithFields(logrus.Fields{
		"operation": msg.Operation,
		"reports":   len(msg.ReportOperands()),
	}).Info("processing operation")

	if err := p.Apply(ctx, msg); err != nil {
		p.logger.WithError(err).WithField("operation", msg.Operation).
			Error("operation failed")
		metrics.OperationErrors.WithLabelValues(string(msg.Operation)).Inc()
		return nil
	}

	metrics.OperationsProcessed.WithLabelValues(string(msg.Operation)).Inc()
	return nil
}

// Apply runs the handler for msg's operation kind. The switch is exhaustive
// over the closed OperationKind set.
func (p *Processor) Apply(ctx context.Context, msg *models.OperationMessage) error {
	switch msg.Operation {
	case models.OpCreateReport:
		return p.forEachReport(ctx, msg, p.createReport)
	case models.OpDeleteReport:
		return p.forEachReport(ctx, msg, p.deleteReport)
	case models.OpUpdateReport:
		return p.forEachReport(ctx, msg, p.updateReport)
	case models.OpGroupReport:
		return p.forEachReport(ctx, msg, p.groupReport)
	case models.OpUngroupReport:
		return p.forEachReport(ctx, msg, p.ungroupReport)
	case models.OpCreateGroup:
		return p.createGroup(ctx, msg.Group)
	case models.OpUpdateGroup:
		return p.updateGroup(ctx, msg.Group)
	case models.OpDeleteGroup:
		return p.deleteGroup(ctx, msg.Group)
	default:
		return fmt.Errorf("unhandled operation %q", msg.Operation)
	}
}

// forEachReport applies handle to every report operand, keeping the
// enqueuer's ordering. The first failure stops the batch; already-applied
// operands are safe to re-apply on redelivery.
func (p *Processor) forEachReport(ctx context.Context, msg *models.OperationMessage, handle func(context.Context, models.ReportOperand) error) error {
	for _, operand := range msg.ReportOperands() {
		if err := handle(ctx, operand); err != nil {
			return err
		}
	}
	return nil
}

// createReport writes the full report record in SUBMITTED status and, only
// once the store write is durable, enqueues the keyword-extraction command.
func (p *Processor) createReport(ctx context.Context, operand models.ReportOperand) error {
	report := &models.Report{
		ReportID:    operand.ReportID,
		UserID:      operand.UserID,
		Title:       operand.Title,
		Building:    operand.Building,
		Description: operand.Description,
		CreatedDate: operand.CreatedDate,
		ImageKeys:   operand.ImageKeys,
		Status:      models.StatusSubmitted,
	}
	if err := report.Validate(); err != nil {
		return fmt.Errorf("invalid create payload: %w", err)
	}

	if err := p.store.UpsertReport(ctx, report); err != nil {
		return err
	}
	p.emitUpsert(ctx, report.ReportID, report)

	// The store write above must have completed before this enqueue: no
	// extraction on a report that doesn't yet exist.
	cmd := models.KeywordCommand{ReportID: report.ReportID, Description: report.Description}
	if err := p.commands.PublishKeywordCommand(ctx, cmd); err != nil {
		return fmt.Errorf("enqueue keyword command for %s: %w", report.ReportID, err)
	}
	return nil
}

// deleteReport reads-then-deletes. An absent report is a silent no-op.
// Photo deletion is best-effort: logged on failure, never retried here.
func (p *Processor) deleteReport(ctx context.Context, operand models.ReportOperand) error {
	deleted, err := p.store.RemoveReport(ctx, operand.ReportID)
	if err != nil {
		return err
	}
	if deleted == nil {
		p.logger.WithField("report_id", operand.ReportID).
			Info("report already absent, nothing to delete")
		return nil
	}

	if len(deleted.ImageKeys) > 0 {
		if err := p.photos.RemoveImages(ctx, deleted.ImageKeys); err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"report_id": operand.ReportID,
				"images":    len(deleted.ImageKeys),
			}).Warn("failed to delete report images")
		}
	}

	p.emitRemove(ctx, operand.ReportID)
	return nil
}

// updateReport overwrites the report's status unconditionally. A missing
// report is skip-and-log, not a failure.
func (p *Processor) updateReport(ctx context.Context, operand models.ReportOperand) error {
	if !operand.Status.IsValid() {
		return fmt.Errorf("invalid status %q for %s", operand.Status, operand.ReportID)
	}

	if err := p.store.SetStatus(ctx, operand.ReportID, operand.Status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.WithField("report_id", operand.ReportID).
				Warn("skipping status update for missing report")
			return nil
		}
		return err
	}

	p.emitSnapshot(ctx, operand.ReportID)
	return nil
}

// groupReport attaches a report to a group, copying the group's current
// status. A missing group logs and skips, leaving the report ungrouped
// rather than pointing at a nonexistent group.
func (p *Processor) groupReport(ctx context.Context, operand models.ReportOperand) error {
	group, err := p.store.GetGroup(ctx, operand.GroupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.WithFields(logrus.Fields{
				"report_id": operand.ReportID,
				"group_id":  operand.GroupID,
			}).Warn("skipping grouping, group does not exist")
			return nil
		}
		return err
	}

	if err := p.store.SetGroup(ctx, operand.ReportID, group.GroupID, group.Status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.WithField("report_id", operand.ReportID).
				Warn("skipping grouping for missing report")
			return nil
		}
		return err
	}

	p.emitSnapshot(ctx, operand.ReportID)
	return nil
}

// ungroupReport removes the group back-reference; idempotent if absent.
func (p *Processor) ungroupReport(ctx context.Context, operand models.ReportOperand) error {
	if err := p.store.ClearGroup(ctx, operand.ReportID); err != nil {
		return err
	}
	p.emitSnapshot(ctx, operand.ReportID)
	return nil
}

// createGroup writes the group record in CREATED status and fans the
// initial membership out to the member reports.
func (p *Processor) createGroup(ctx context.Context, operand *models.GroupOperand) error {
	if operand == nil {
		return fmt.Errorf("CREATE_GROUP carries no group payload")
	}

	group := &models.Group{
		GroupID:     operand.GroupID,
		Title:       operand.Title,
		Building:    operand.Building,
		Description: operand.Description,
		Status:      models.StatusCreated,
	}
	if err := group.Validate(); err != nil {
		return fmt.Errorf("invalid create payload: %w", err)
	}

	if err := p.store.UpsertGroup(ctx, group); err != nil {
		return err
	}
	p.emitUpsert(ctx, group.GroupID, group)

	for _, reportID := range operand.Reports {
		operand := models.ReportOperand{ReportID: reportID, GroupID: group.GroupID}
		if err := p.groupReport(ctx, operand); err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"report_id": reportID,
				"group_id":  group.GroupID,
			}).Error("failed to attach report to new group")
		}
	}
	return nil
}

// updateGroup overwrites the group's status unconditionally.
func (p *Processor) updateGroup(ctx context.Context, operand *models.GroupOperand) error {
	if operand == nil {
		return fmt.Errorf("UPDATE_GROUP carries no group payload")
	}
	if !operand.Status.IsValid() {
		return fmt.Errorf("invalid status %q for %s", operand.Status, operand.GroupID)
	}

	if err := p.store.SetStatus(ctx, operand.GroupID, operand.Status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.WithField("group_id", operand.GroupID).
				Warn("skipping status update for missing group")
			return nil
		}
		return err
	}

	p.emitSnapshot(ctx, operand.GroupID)
	return nil
}

// deleteGroup removes the group record only. Membership discovery needs a
// secondary-index query outside this single-message scope, so ungrouping or
// cascading member reports is the enqueuer's responsibility.
func (p *Processor) deleteGroup(ctx context.Context, operand *models.GroupOperand) error {
	if operand == nil {
		return fmt.Errorf("DELETE_GROUP carries no group payload")
	}

	if err := p.store.RemoveGroup(ctx, operand.GroupID); err != nil {
		return err
	}
	p.emitRemove(ctx, operand.GroupID)
	return nil
}

// emitUpsert publishes an UPSERT change event from an in-hand record.
func (p *Processor) emitUpsert(ctx context.Context, id string, entity any) {
	ev, err := models.NewUpsertEvent(id, entity)
	if err != nil {
		p.logger.WithError(err).WithField("entity_id", id).Error("failed to build change event")
		return
	}
	p.publishChange(ctx, ev)
}

// emitSnapshot re-reads an entity after a partial-field mutation and
// publishes its full current image. A record deleted in between is fine;
// its own REMOVE event is already on the topic behind this one.
func (p *Processor) emitSnapshot(ctx context.Context, id string) {
	var (
		entity any
		err    error
	)
	if models.IsGroupID(id) {
		entity, err = p.store.GetGroup(ctx, id)
	} else {
		entity, err = p.store.GetReport(ctx, id)
	}
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.WithError(err).WithField("entity_id", id).Warn("failed to snapshot entity for change event")
		}
		return
	}
	p.emitUpsert(ctx, id, entity)
}

// emitRemove publishes a REMOVE change event.
func (p *Processor) emitRemove(ctx context.Context, id string) {
	p.publishChange(ctx, models.NewRemoveEvent(id))
}

// publishChange pushes the event onto the change topic. A publish failure
// is logged but does not fail the already-durable store mutation; the index
// stays stale until the next event for that entity.
func (p *Processor) publishChange(ctx context.Context, ev models.ChangeEvent) {
	if err := p.changes.PublishChange(ctx, ev); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"entity_id": ev.ID,
			"event":     ev.EventName,
		}).Error("failed to publish change event")
		return
	}
	metrics.ChangeEventsEmitted.WithLabelValues(string(ev.EventName)).Inc()
}
