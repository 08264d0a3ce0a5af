package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// classification pipeline. A long global run takes hours; the /metrics
// endpoint makes stage progress observable while it happens.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	RunsTotal       *prometheus.CounterVec // labels: outcome={valid,invalid,error}

	SegmentsExtracted  prometheus.Counter
	RegionsSkipped     prometheus.Counter
	LabelsResolved     prometheus.Counter
	SegmentsClassified *prometheus.CounterVec // labels: method={measured,model_predicted,distance_rule}

	StageDuration *prometheus.HistogramVec // labels: stage={extract,label,train,predict,validate,persist}

	ValidationChecks *prometheus.CounterVec // labels: check, result={pass,fail}
	TrainingWarnings prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.RunsTotal,
		m.SegmentsExtracted,
		m.RegionsSkipped,
		m.LabelsResolved,
		m.SegmentsClassified,
		m.StageDuration,
		m.ValidationChecks,
		m.TrainingWarnings,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "salinity_etl",
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is active.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salinity_etl",
			Name:      "runs_total",
			Help:      "Completed pipeline runs by outcome.",
		}, []string{"outcome"}),
		SegmentsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salinity_etl",
			Name:      "segments_extracted_total",
			Help:      "Segments feature-extracted across all regions.",
		}),
		RegionsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salinity_etl",
			Name:      "regions_skipped_total",
			Help:      "Regions skipped due to stage-local data failures.",
		}),
		LabelsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salinity_etl",
			Name:      "labels_resolved_total",
			Help:      "Segments with a ground-truth station match.",
		}),
		SegmentsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salinity_etl",
			Name:      "segments_classified_total",
			Help:      "Final classifications by method.",
		}, []string{"method"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salinity_etl",
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800, 7200},
		}, []string{"stage"}),
		ValidationChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salinity_etl",
			Name:      "validation_checks_total",
			Help:      "Validation check outcomes.",
		}, []string{"check", "result"}),
		TrainingWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salinity_etl",
			Name:      "training_warnings_total",
			Help:      "Data-quality warnings raised during training.",
		}),
	}
}
