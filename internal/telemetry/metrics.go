package telemetry

import "github.com/prometheus/client_golang/prometheus"

var DocumentsIngestedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "docrouter",
		Subsystem: "documents",
		Name:      "ingested_total",
		Help:      "Total number of documents uploaded, by organization.",
	},
	[]string{"organization_id"},
)

var OCRJobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "docrouter",
		Subsystem: "ocr",
		Name:      "jobs_total",
		Help:      "Total number of OCR jobs processed, by terminal state.",
	},
	[]string{"state"},
)

var OCRJobDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "docrouter",
		Subsystem: "ocr",
		Name:      "job_duration_seconds",
		Help:      "OCR job processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"state"},
)

var LLMJobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "docrouter",
		Subsystem: "llm",
		Name:      "jobs_total",
		Help:      "Total number of LLM extraction jobs processed, by terminal state.",
	},
	[]string{"provider", "state"},
)

var LLMJobDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "docrouter",
		Subsystem: "llm",
		Name:      "job_duration_seconds",
		Help:      "LLM extraction job processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"provider"},
)

var SPUDebitedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "docrouter",
		Subsystem: "credit",
		Name:      "spu_debited_total",
		Help:      "Total SPU debited from organization balances, by operation and bucket.",
	},
	[]string{"operation", "bucket"},
)

var QueueLeasesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "docrouter",
		Subsystem: "queue",
		Name:      "leases_total",
		Help:      "Total number of job queue leases, by queue and outcome (ack/nack/expired).",
	},
	[]string{"queue", "outcome"},
)

var TelemetryRecordsIngestedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "docrouter",
		Subsystem: "telemetry",
		Name:      "records_ingested_total",
		Help:      "Total number of telemetry records ingested, by kind and transport.",
	},
	[]string{"kind", "transport"},
)

// All returns all DocRouter-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		DocumentsIngestedTotal,
		OCRJobsTotal,
		OCRJobDuration,
		LLMJobsTotal,
		LLMJobDuration,
		SPUDebitedTotal,
		QueueLeasesTotal,
		TelemetryRecordsIngestedTotal,
	}
}
