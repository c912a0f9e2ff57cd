// Package metrics records per-stage outcomes of a run and exports them in
// the Prometheus text format for node-exporter style collection.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alexisbeaulieu97/stagehand/internal/model"
)

const namespace = "stagehand"

// Recorder owns a private registry so several jobs can be recorded by one
// process without clashing.
type Recorder struct {
	registry *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	StageResults  *prometheus.CounterVec
	StageRC       *prometheus.GaugeVec
	Merges        prometheus.Counter
	JobExitCode   prometheus.Gauge
}

// New creates a recorder whose series carry the job name as a constant label.
func New(job string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"job_name": job}

	return &Recorder{
		registry: reg,
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "stage_duration_seconds",
				Help:        "Wall time of each stage lifecycle",
				ConstLabels: labels,
				Buckets:     prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"stage", "kind"},
		),
		StageResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "stage_results_total",
				Help:        "Stage outcomes by status",
				ConstLabels: labels,
			},
			[]string{"stage", "status"},
		),
		StageRC: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "stage_return_code",
				Help:        "Return code of the last run of each stage",
				ConstLabels: labels,
			},
			[]string{"stage"},
		),
		Merges: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "merges_total",
				Help:        "Self-merge executors run",
				ConstLabels: labels,
			},
		),
		JobExitCode: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "job_exit_code",
				Help:        "Exit code of the job",
				ConstLabels: labels,
			},
		),
	}
}

// Observe records a terminal stage result. Running results are ignored.
func (r *Recorder) Observe(res model.StageResult) {
	if r == nil || !res.Done() {
		return
	}
	r.StageResults.WithLabelValues(res.Stage, res.Status).Inc()
	if res.Status == model.StatusSkipped {
		return
	}
	r.StageDuration.WithLabelValues(res.Stage, res.Kind).Observe(res.Duration.Seconds())
	r.StageRC.WithLabelValues(res.Stage).Set(float64(res.RC))
}

// Finish records the job-level outcome.
func (r *Recorder) Finish(exitCode, merges int) {
	if r == nil {
		return
	}
	r.JobExitCode.Set(float64(exitCode))
	r.Merges.Add(float64(merges))
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes every series to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
