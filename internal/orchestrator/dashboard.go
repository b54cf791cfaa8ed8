package orchestrator

import (
	"context"
	"path/filepath"
	"time"

	"github.com/loki-swarm/core/internal/composer"
	"github.com/loki-swarm/core/internal/swarmio"
)

// TaskCounts is the {pending, inProgress, review, completed, failed}
// shape dashboard-state.json reports.
type TaskCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Review     int `json:"review"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// DashboardState is the full 2-second snapshot contract.
type DashboardState struct {
	Phase      string           `json:"phase"`
	Iteration  int              `json:"iteration"`
	Complexity string           `json:"complexity"`
	Mode       string           `json:"mode"`
	Agents     []composer.Agent `json:"agents"`
	Tasks      TaskCounts       `json:"tasks"`
}

func countsFrom(c map[Status]int) TaskCounts {
	return TaskCounts{
		Pending:    c[StatusPending],
		InProgress: c[StatusInProgress],
		Review:     c[StatusReview],
		Completed:  c[StatusCompleted],
		Failed:     c[StatusFailed],
	}
}

// DashboardWriter rewrites dashboard-state.json atomically on a fixed
// cadence, independent of the task loop's own pace.
type DashboardWriter struct {
	path string
	get  func() DashboardState
}

// NewDashboardWriter returns a writer that calls get() on each tick to
// capture the current snapshot.
func NewDashboardWriter(projectDir string, get func() DashboardState) *DashboardWriter {
	return &DashboardWriter{path: filepath.Join(projectDir, "dashboard-state.json"), get: get}
}

// Run rewrites the snapshot every interval (default 2s) until ctx is
// cancelled.
func (w *DashboardWriter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = swarmio.AtomicWriteJSON(w.path, w.get())
		}
	}
}
