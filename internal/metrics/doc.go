// Package metrics records run, stage, formatter, writer and wiki sync
// outcomes.
//
// Components receive a Recorder through their constructor or config struct
// and default to NoopRecorder, so nothing needs a nil check:
//
//	chain := formatter.NewChain(formatter.ChainConfig{
//	    Recorder: metrics.NoopRecorder{},
//	})
//
// The CLI swaps in a PrometheusRecorder backed by a private registry. There
// is no long-running process to scrape, so the registry is exported once per
// run in the node_exporter textfile format with WriteTextfile.
package metrics
