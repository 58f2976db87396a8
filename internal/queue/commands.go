package queue

import (
	"context"

	"facility-report-pipeline/internal/models"
)

// Topics names the pipeline's Kafka topics.
type Topics struct {
	ReportOps string
	GroupOps  string
	Keywords  string
	Changes   string
}

// Pipeline publishes the pipeline's message types onto their topics. It is
// the single seam between components and the queue: the gateway enqueues
// operation messages, the processor enqueues keyword commands and change
// events, and the enrichment workers enqueue change events.
type Pipeline struct {
	producer Producer
	topics   Topics
}

// NewPipeline wires a Pipeline over a producer.
func NewPipeline(producer Producer, topics Topics) *Pipeline {
	return &Pipeline{producer: producer, topics: topics}
}

// PublishReportOps enqueues an operation message on the report command
// topic, keyed by the first affected report so operations on one report
// stay ordered.
func (p *Pipeline) PublishReportOps(ctx context.Context, msg models.OperationMessage) error {
	return p.producer.Publish(ctx, p.topics.ReportOps, opKey(&msg), &msg)
}

// PublishGroupOps enqueues an operation message on the group command topic.
func (p *Pipeline) PublishGroupOps(ctx context.Context, msg models.OperationMessage) error {
	return p.producer.Publish(ctx, p.topics.GroupOps, opKey(&msg), &msg)
}

// PublishKeywordCommand enqueues a keyword-extraction command.
func (p *Pipeline) PublishKeywordCommand(ctx context.Context, cmd models.KeywordCommand) error {
	return p.producer.Publish(ctx, p.topics.Keywords, cmd.ReportID, &cmd)
}

// PublishChange emits a change event keyed by entity ID; the key is what
// gives the synchronizer per-entity ordering.
func (p *Pipeline) PublishChange(ctx context.Context, ev models.ChangeEvent) error {
	return p.producer.Publish(ctx, p.topics.Changes, ev.ID, &ev)
}

// opKey picks the partition key for an operation message.
func opKey(msg *models.OperationMessage) string {
	if msg.Group != nil {
		return msg.Group.GroupID
	}
	if operands := msg.ReportOperands(); len(operands) > 0 {
		return operands[0].ReportID
	}
	return string(msg.Operation)
}
