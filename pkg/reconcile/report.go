package reconcile

import (
	"time"

	"github.com/ethpandaops/devsync/pkg/cache"
	"github.com/ethpandaops/devsync/pkg/rendering"
	"github.com/ethpandaops/devsync/pkg/sqlexec"
)

// Stage names used in reports, logs and metrics
const (
	StageFetch     = "fetch"
	StageTransform = "transform"
	StageRender    = "render"
	StageSink      = "sink"
	StageExecute   = "execute"
	StageEvict     = "evict"
)

// StageResult is the outcome of one pipeline stage
type StageResult struct {
	Stage    string
	Status   string
	Duration time.Duration
	Err      error
}

// Report summarises a run
type Report struct {
	RunID      string
	Source     string
	Clients    int
	Params     int
	Statements []rendering.Statement
	OutputFile string
	Stages     []StageResult
	Execution  *sqlexec.Result
	Eviction   *cache.Report
	Duration   time.Duration
}

// Stage returns the result recorded for name
func (r *Report) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}

	return StageResult{}, false
}

// Failed returns the stages that did not succeed and were not skipped
func (r *Report) Failed() []StageResult {
	var failed []StageResult

	for _, s := range r.Stages {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}

	return failed
}
