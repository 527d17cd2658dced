package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	assert.NotPanics(t, func() {
		r.ObserveStageDuration("load", time.Second)
		r.IncStageResult("load", ResultSuccess)
		r.ObserveRunDuration(time.Second)
		r.IncRunOutcome(ResultFailed)
		r.SetPages(1)
		r.ObserveFormatterDuration("markdown", time.Millisecond, false)
		r.ObserveSubprocessDuration("wkhtmltopdf", time.Second, 1)
		r.IncWriterResult("confluence", ResultSkipped)
		r.IncSyncPage(SyncFailed)
		r.IncAttachment(AttachmentUploaded)
	})
}
