package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facility-report-pipeline/internal/models"
)

type published struct {
	topic string
	key   string
	value interface{}
}

type fakeProducer struct {
	records []published
}

func (f *fakeProducer) Publish(_ context.Context, topic, key string, value interface{}) error {
	f.records = append(f.records, published{topic: topic, key: key, value: value})
	return nil
}

func (f *fakeProducer) Close() error { return nil }

var testTopics = Topics{
	ReportOps: "reports.ops",
	GroupOps:  "groups.ops",
	Keywords:  "reports.keywords",
	Changes:   "entities.changes",
}

func TestPublishReportOpsKeyedByFirstReport(t *testing.T) {
	producer := &fakeProducer{}
	pipeline := NewPipeline(producer, testTopics)

	err := pipeline.PublishReportOps(context.Background(), models.OperationMessage{
		Operation: models.OpUpdateReport,
		Reports: []models.ReportOperand{
			{ReportID: "RPT-1", Status: models.StatusResolved},
			{ReportID: "RPT-2", Status: models.StatusResolved},
		},
	})
	require.NoError(t, err)

	require.Len(t, producer.records, 1)
	assert.Equal(t, "reports.ops", producer.records[0].topic)
	assert.Equal(t, "RPT-1", producer.records[0].key)
}

func TestPublishGroupOpsKeyedByGroup(t *testing.T) {
	producer := &fakeProducer{}
	pipeline := NewPipeline(producer, testTopics)

	err := pipeline.PublishGroupOps(context.Background(), models.OperationMessage{
		Operation: models.OpUpdateGroup,
		Group:     &models.GroupOperand{GroupID: "GRP-1", Status: models.StatusResolved},
	})
	require.NoError(t, err)

	require.Len(t, producer.records, 1)
	assert.Equal(t, "groups.ops", producer.records[0].topic)
	assert.Equal(t, "GRP-1", producer.records[0].key)
}

func TestPublishKeywordCommandKeyedByReport(t *testing.T) {
	producer := &fakeProducer{}
	pipeline := NewPipeline(producer, testTopics)

	err := pipeline.PublishKeywordCommand(context.Background(), models.KeywordCommand{
		ReportID:    "RPT-1",
		Description: "Leaky pipes",
	})
	require.NoError(t, err)

	require.Len(t, producer.records, 1)
	assert.Equal(t, "reports.keywords", producer.records[0].topic)
	assert.Equal(t, "RPT-1", producer.records[0].key)
}

// Change events for one entity must share a key, or the synchronizer loses
// per-entity ordering across partitions.
func TestPublishChangeKeyedByEntity(t *testing.T) {
	producer := &fakeProducer{}
	pipeline := NewPipeline(producer, testTopics)

	upsert, err := models.NewUpsertEvent("RPT-1", &models.Report{ReportID: "RPT-1", UserID: "u", Title: "t"})
	require.NoError(t, err)
	require.NoError(t, pipeline.PublishChange(context.Background(), upsert))
	require.NoError(t, pipeline.PublishChange(context.Background(), models.NewRemoveEvent("RPT-1")))

	require.Len(t, producer.records, 2)
	assert.Equal(t, producer.records[0].key, producer.records[1].key)
	assert.Equal(t, "entities.changes", producer.records[0].topic)
}

func TestOpKeyFallsBackToOperation(t *testing.T) {
	key := opKey(&models.OperationMessage{Operation: models.OpCreateReport})
	assert.Equal(t, "CREATE_REPORT", key)
}
