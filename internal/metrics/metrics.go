// Package metrics holds the prometheus collectors shared by the pipeline
// services. Each binary exposes them on its health server's metrics path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsProcessed counts successfully applied operation messages by kind.
	OperationsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "report_pipeline",
		Name:      "operations_processed_total",
		Help:      "Operation messages applied to the entity store.",
	}, []string{"operation"})

	// OperationErrors counts failed or malformed operation messages by kind.
	OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "report_pipeline",
		Name:      "operation_errors_total",
		Help:      "Operation messages that failed or were dropped.",
	}, []string{"operation"})

	// ChangeEventsEmitted counts synthesized change events by event name.
	ChangeEventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "report_pipeline",
		Name:      "change_events_emitted_total",
		Help:      "Change events published to the changes topic.",
	}, []string{"event"})

	// ChangeEventsApplied counts index projections by action.
	ChangeEventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "report_pipeline",
		Name:      "change_events_applied_total",
		Help:      "Change events projected into the search index.",
	}, []string{"action"})

	// EnrichmentMerges counts set merges into reports by field.
	EnrichmentMerges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "report_pipeline",
		Name:      "enrichment_merges_total",
		Help:      "Token-set merges applied by the enrichment workers.",
	}, []string{"field"})

	// EnrichmentDropped counts enrichment results dropped because the target
	// report no longer exists.
	EnrichmentDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "report_pipeline",
		Name:      "enrichment_dropped_total",
		Help:      "Enrichment merges dropped for missing reports.",
	}, []string{"field"})

	// GatewayRequests counts façade requests by route and status class.
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "report_pipeline",
		Name:      "gateway_requests_total",
		Help:      "HTTP requests served by the gateway.",
	}, []string{"route", "status"})
)
