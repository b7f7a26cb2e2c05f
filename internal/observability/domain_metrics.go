package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/koustreak/querygate/internal/errs"
)

// OutcomeOK labels a successful operation; failures use the error kind.
const OutcomeOK = "ok"

var (
	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_validations_total",
			Help: "SQL candidates checked, by rule that rejected them (\"accepted\" otherwise).",
		},
		[]string{"rule"},
	)
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_queries_total",
			Help: "Validated queries executed, by outcome.",
		},
		[]string{"driver", "outcome"},
	)
	queryRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querygate_query_rows",
			Help:    "Rows returned per successful query.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querygate_query_duration_seconds",
			Help:    "Query execution latency including connect and release.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver"},
	)
	truncatedResultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querygate_truncated_results_total",
			Help: "Results that reached the row cap.",
		},
	)
	schemaDescribesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_schema_describes_total",
			Help: "Schema introspections, by outcome.",
		},
		[]string{"outcome"},
	)
	upstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_upstream_calls_total",
			Help: "Calls to the SQL generator and explainer, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	archiveWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_archive_writes_total",
			Help: "Answers written to the object store archive, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		validationsTotal,
		queriesTotal,
		queryRows,
		queryDurationSeconds,
		truncatedResultsTotal,
		schemaDescribesTotal,
		upstreamCallsTotal,
		archiveWritesTotal,
	)
}

// Outcome returns OutcomeOK for nil and the error kind otherwise.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	return errs.KindOf(err).String()
}

// ObserveValidation counts one validator decision.
func ObserveValidation(err error) {
	rule := "accepted"
	if err != nil {
		rule = string(errs.RuleOf(err))
		if rule == "" {
			rule = "unknown"
		}
	}
	validationsTotal.WithLabelValues(rule).Inc()
}

// ObserveQuery records one executor run.
func ObserveQuery(driver string, rows int, truncated bool, elapsed time.Duration, err error) {
	queriesTotal.WithLabelValues(driver, Outcome(err)).Inc()
	queryDurationSeconds.WithLabelValues(driver).Observe(elapsed.Seconds())
	if err != nil {
		return
	}
	queryRows.Observe(float64(rows))
	if truncated {
		truncatedResultsTotal.Inc()
	}
}

// ObserveDescribe records one schema introspection.
func ObserveDescribe(err error) {
	schemaDescribesTotal.WithLabelValues(Outcome(err)).Inc()
}

// ObserveUpstream records one generator or explainer call.
func ObserveUpstream(operation string, err error) {
	upstreamCallsTotal.WithLabelValues(operation, Outcome(err)).Inc()
}

// ObserveArchive records one archive write.
func ObserveArchive(err error) {
	archiveWritesTotal.WithLabelValues(Outcome(err)).Inc()
}
