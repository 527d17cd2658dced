package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("format", 150*time.Millisecond)
	pr.IncStageResult("format", ResultSuccess)
	pr.ObserveRunDuration(500 * time.Millisecond)
	pr.IncRunOutcome(ResultSuccess)
	pr.SetPages(3)
	pr.ObserveFormatterDuration("markdown", time.Millisecond, true)
	pr.ObserveSubprocessDuration("plantuml", time.Second, 0)
	pr.IncWriterResult("html", ResultSuccess)
	pr.IncSyncPage(SyncUpdated)
	pr.IncSyncPage(SyncUnchanged)
	pr.IncSyncPage(SyncUnchanged)
	pr.IncAttachment(AttachmentExisting)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	assert.InDelta(t, 3, testutil.ToFloat64(pr.pages), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(pr.syncPages.WithLabelValues(string(SyncUnchanged))), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.attachments.WithLabelValues(string(AttachmentExisting))), 0)
	assert.Same(t, reg, pr.Registry())
}

func TestPrometheusRecorder_WriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.IncWriterResult("pdf", ResultFailed)

	path := filepath.Join(t.TempDir(), "nested", "docbook.prom")
	require.NoError(t, pr.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `docbook_writer_results_total{result="failed",writer="pdf"} 1`)
}

func TestResultFor(t *testing.T) {
	assert.Equal(t, ResultSuccess, ResultFor(nil, false))
	assert.Equal(t, ResultFailed, ResultFor(errors.New("x"), false))
	assert.Equal(t, ResultCanceled, ResultFor(errors.New("x"), true))
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NoopRecorder{}, OrNoop(nil))
	pr := NewPrometheusRecorder(nil)
	assert.Same(t, pr, OrNoop(pr))
}
