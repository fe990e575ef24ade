package xkcdbot

import "time"

// PassSummary reports one pass of the outer loop.
type PassSummary struct {
	// RunID tags every log line of the pass.
	RunID string
	// Threads is the number of threads crawled to completion.
	Threads int
	// Failed counts hot lists and threads that were abandoned.
	Failed int
	// Replies is the number of replies recorded during the pass.
	Replies int
	// Duration is the wall time of the pass.
	Duration time.Duration
}
