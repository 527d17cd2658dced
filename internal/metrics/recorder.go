package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultSkipped  ResultLabel = "skipped"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// SyncResult enumerates the per-page outcomes of the wiki sync writer.
type SyncResult string

const (
	SyncUpdated   SyncResult = "updated"
	SyncUnchanged SyncResult = "unchanged"
	SyncFailed    SyncResult = "failed"
)

// AttachmentResult enumerates the outcomes of attachment de-duplication.
type AttachmentResult string

const (
	AttachmentUploaded AttachmentResult = "uploaded"
	AttachmentExisting AttachmentResult = "existing"
)

// Recorder defines observability hooks for a docbook run. Implementations
// must be safe for concurrent use: formatters may run in parallel.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(result ResultLabel)
	SetPages(n int)
	ObserveFormatterDuration(formatter string, d time.Duration, success bool)
	ObserveSubprocessDuration(tool string, d time.Duration, exitCode int)
	IncWriterResult(writer string, result ResultLabel)
	IncSyncPage(result SyncResult)
	IncAttachment(result AttachmentResult)
}

// ResultFor maps an error to a ResultLabel.
func ResultFor(err error, canceled bool) ResultLabel {
	switch {
	case err == nil:
		return ResultSuccess
	case canceled:
		return ResultCanceled
	default:
		return ResultFailed
	}
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)           {}
func (NoopRecorder) IncStageResult(string, ResultLabel)                   {}
func (NoopRecorder) ObserveRunDuration(time.Duration)                     {}
func (NoopRecorder) IncRunOutcome(ResultLabel)                            {}
func (NoopRecorder) SetPages(int)                                         {}
func (NoopRecorder) ObserveFormatterDuration(string, time.Duration, bool) {}
func (NoopRecorder) ObserveSubprocessDuration(string, time.Duration, int) {}
func (NoopRecorder) IncWriterResult(string, ResultLabel)                  {}
func (NoopRecorder) IncSyncPage(SyncResult)                               {}
func (NoopRecorder) IncAttachment(AttachmentResult)                       {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
