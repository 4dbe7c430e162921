package metrics

import "github.com/prometheus/client_golang/prometheus"

const metricPrefix = "store_monitoring_"

// Metrics bundles report pipeline metrics.
type Metrics struct {
	JobsSubmitted prometheus.Counter
	JobsTotal     *prometheus.CounterVec
	JobDuration   prometheus.Histogram
	StoresTotal   *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
	BatchProgress prometheus.Gauge
	ReportRows    prometheus.Gauge
	IngestRows    *prometheus.CounterVec
}

// New constructs metrics and registers them on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "report_jobs_submitted_total",
			Help: "Total report jobs submitted",
		}),
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_jobs_total",
				Help: "Total finished report jobs by status",
			},
			[]string{"status"},
		),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "report_job_duration_seconds",
			Help:    "Report job duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		StoresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_stores_total",
				Help: "Total store computations by result",
			},
			[]string{"result"},
		),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "report_queue_depth",
			Help: "Report jobs waiting for the worker",
		}),
		BatchProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "report_progress_ratio",
			Help: "Share of stores processed by the running report job",
		}),
		ReportRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "report_rows",
			Help: "Rows written by the last completed report",
		}),
		IngestRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_rows_total",
				Help: "Ingested source rows by file kind and result",
			},
			[]string{"kind", "result"},
		),
	}
	reg.MustRegister(
		m.JobsSubmitted,
		m.JobsTotal,
		m.JobDuration,
		m.StoresTotal,
		m.QueueDepth,
		m.BatchProgress,
		m.ReportRows,
		m.IngestRows,
	)
	return m
}
