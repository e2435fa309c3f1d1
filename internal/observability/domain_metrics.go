package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	orchestratorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_orchestrator_requests_total",
			Help: "Total number of orchestrated queries by intent and terminal outcome.",
		},
		[]string{"intent", "outcome"},
	)
	orchestratorDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlq_orchestrator_duration_seconds",
			Help:    "End-to-end orchestration latency by intent.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"intent"},
	)
	classificationAnomaliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nlq_classification_anomalies_total",
			Help: "Total number of unrecognized intent labels replaced by the fallback intent.",
		},
	)
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_llm_calls_total",
			Help: "Total number of language model calls by outcome.",
		},
		[]string{"outcome"},
	)
	llmCallDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlq_llm_call_duration_seconds",
			Help:    "Language model call latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	sqlExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_sql_executions_total",
			Help: "Total number of SQL executions by outcome.",
		},
		[]string{"outcome"},
	)
	sqlExecutionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlq_sql_execution_duration_seconds",
			Help:    "SQL execution latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	sqlRowsTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nlq_sql_rows_truncated_total",
			Help: "Total number of result sets cut at the configured row cap.",
		},
	)
	correctionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_correction_attempts_total",
			Help: "Total number of SQL correction attempts by result.",
		},
		[]string{"result"},
	)
	insightRoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_insight_rounds_total",
			Help: "Total number of insight rounds by outcome.",
		},
		[]string{"outcome"},
	)
	schemaRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_schema_refresh_total",
			Help: "Total number of schema snapshot loads by outcome.",
		},
		[]string{"outcome"},
	)
	schemaTables = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlq_schema_tables",
			Help: "Number of tables in the current schema snapshot.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		orchestratorRequestsTotal,
		orchestratorDurationSeconds,
		classificationAnomaliesTotal,
		llmCallsTotal,
		llmCallDurationSeconds,
		sqlExecutionsTotal,
		sqlExecutionDurationSeconds,
		sqlRowsTruncatedTotal,
		correctionAttemptsTotal,
		insightRoundsTotal,
		schemaRefreshTotal,
		schemaTables,
	)
}

func ObserveOrchestration(intent, outcome string, elapsed time.Duration) {
	orchestratorRequestsTotal.WithLabelValues(intent, outcome).Inc()
	orchestratorDurationSeconds.WithLabelValues(intent).Observe(elapsed.Seconds())
}

func IncrementClassificationAnomaly() {
	classificationAnomaliesTotal.Inc()
}

func ObserveLLMCall(outcome string, elapsed time.Duration) {
	llmCallsTotal.WithLabelValues(outcome).Inc()
	llmCallDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveSQLExecution(outcome string, truncated bool, elapsed time.Duration) {
	sqlExecutionsTotal.WithLabelValues(outcome).Inc()
	sqlExecutionDurationSeconds.Observe(elapsed.Seconds())
	if truncated {
		sqlRowsTruncatedTotal.Inc()
	}
}

func IncrementCorrectionAttempt(result string) {
	correctionAttemptsTotal.WithLabelValues(result).Inc()
}

func IncrementInsightRound(outcome string) {
	insightRoundsTotal.WithLabelValues(outcome).Inc()
}

func ObserveSchemaRefresh(outcome string, tables int) {
	schemaRefreshTotal.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		schemaTables.Set(float64(tables))
	}
}
