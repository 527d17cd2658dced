package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "docbook"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry          *prom.Registry
	stageDuration     *prom.HistogramVec
	stageResults      *prom.CounterVec
	runDuration       prom.Histogram
	runOutcome        *prom.CounterVec
	pages             prom.Gauge
	formatterDuration *prom.HistogramVec
	subprocDuration   *prom.HistogramVec
	writerResults     *prom.CounterVec
	syncPages         *prom.CounterVec
	attachments       *prom.CounterVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg,
// or on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of run stages (load, format, sort, write)",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total run duration",
			Buckets:   prom.DefBuckets,
		}),
		runOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"result"}),
		pages: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "pages",
			Help:      "Number of pages loaded in the last run",
		}),
		formatterDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "formatter_duration_seconds",
			Help:      "Per-page formatter duration",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"formatter", "result"}),
		subprocDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "subprocess_duration_seconds",
			Help:      "External renderer invocation duration",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"tool", "exit_code"}),
		writerResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "writer_results_total",
			Help:      "Output writer results by outcome",
		}, []string{"writer", "result"}),
		syncPages: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "confluence_pages_total",
			Help:      "Wiki sync page outcomes",
		}, []string{"result"}),
		attachments: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "confluence_attachments_total",
			Help:      "Wiki sync attachments by outcome",
		}, []string{"result"}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.runDuration, pr.runOutcome, pr.pages,
		pr.formatterDuration, pr.subprocDuration, pr.writerResults, pr.syncPages, pr.attachments)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.registry
}

// WriteTextfile atomically writes all metrics to path in the Prometheus text
// exposition format, creating parent directories as needed.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prom.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(result ResultLabel) {
	p.runOutcome.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) SetPages(n int) {
	p.pages.Set(float64(n))
}

func (p *PrometheusRecorder) ObserveFormatterDuration(formatter string, d time.Duration, success bool) {
	res := ResultFailed
	if success {
		res = ResultSuccess
	}
	p.formatterDuration.WithLabelValues(formatter, string(res)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveSubprocessDuration(tool string, d time.Duration, exitCode int) {
	p.subprocDuration.WithLabelValues(tool, strconv.Itoa(exitCode)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncWriterResult(writer string, result ResultLabel) {
	p.writerResults.WithLabelValues(writer, string(result)).Inc()
}

func (p *PrometheusRecorder) IncSyncPage(result SyncResult) {
	p.syncPages.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncAttachment(result AttachmentResult) {
	p.attachments.WithLabelValues(string(result)).Inc()
}
