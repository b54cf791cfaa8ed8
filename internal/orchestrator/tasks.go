// Package orchestrator implements C10: the supervisory RARV (Reason, Act,
// Review, Verify) loop that drives a session end to end — pulling tasks,
// consulting retrieval, dispatching to collaborators, gathering council
// votes, running BFT consensus, and periodically consulting the adjuster
// and checklist verifier.
package orchestrator

import (
	"fmt"
	"time"

	"github.com/loki-swarm/core/internal/ids"
	"github.com/loki-swarm/core/internal/swarmio"
)

// Status is a TaskItem's position in its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Payload is the work description carried by a TaskItem.
type Payload struct {
	Action      string `json:"action"`
	Priority    int    `json:"priority"`
	Description string `json:"description"`
}

// TaskItem is one unit of work in the queue.
type TaskItem struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Payload   Payload    `json:"payload"`
	Status    Status     `json:"status"`
	Position  int        `json:"position"`
	ParentID  string     `json:"parent_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewTask allocates a fresh pending task.
func NewTask(taskType, title string, payload Payload, now time.Time) TaskItem {
	return TaskItem{
		ID:        ids.New(),
		Type:      taskType,
		Title:     title,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// queueFile returns the array file backing one queue state.
func queueFile(dir string, status Status) string {
	name := map[Status]string{
		StatusPending:    "pending.json",
		StatusInProgress: "in-progress.json",
		StatusReview:     "review.json",
		StatusCompleted:  "completed.json",
		StatusFailed:     "failed.json",
	}[status]
	return dir + "/" + name
}

// deadLetterFile holds tasks that exhausted retries or were otherwise
// abandoned; it is append-only and never read back by the loop itself.
func deadLetterFile(dir string) string {
	return dir + "/dead-letter.json"
}

// Queue manages the five status-partitioned task arrays under
// <project>/.loki/queue/.
type Queue struct {
	dir string
}

// NewQueue returns a Queue rooted at dir (typically <project>/.loki/queue).
func NewQueue(dir string) *Queue {
	return &Queue{dir: dir}
}

func (q *Queue) load(status Status) ([]TaskItem, error) {
	var items []TaskItem
	ok, err := swarmio.ReadJSON(queueFile(q.dir, status), &items)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return items, nil
}

func (q *Queue) save(status Status, items []TaskItem) error {
	path := queueFile(q.dir, status)
	return swarmio.WithExclusiveLock(path, func() error {
		return swarmio.AtomicWriteJSON(path, items)
	})
}

// Enqueue appends t to the pending queue.
func (q *Queue) Enqueue(t TaskItem) error {
	items, err := q.load(StatusPending)
	if err != nil {
		return err
	}
	t.Position = len(items)
	items = append(items, t)
	return q.save(StatusPending, items)
}

// NextPending returns the highest-priority pending task (lowest Payload.
// Priority number wins; ties broken by queue position) without removing
// it from the pending array — the caller must call Transition to move it.
func (q *Queue) NextPending() (TaskItem, bool, error) {
	items, err := q.load(StatusPending)
	if err != nil {
		return TaskItem{}, false, err
	}
	if len(items) == 0 {
		return TaskItem{}, false, nil
	}
	best := items[0]
	for _, it := range items[1:] {
		if it.Payload.Priority < best.Payload.Priority ||
			(it.Payload.Priority == best.Payload.Priority && it.Position < best.Position) {
			best = it
		}
	}
	return best, true, nil
}

// Transition moves task id from fromStatus to toStatus, stamping UpdatedAt.
func (q *Queue) Transition(id string, fromStatus, toStatus Status, now time.Time) (TaskItem, error) {
	fromItems, err := q.load(fromStatus)
	if err != nil {
		return TaskItem{}, err
	}
	idx := -1
	for i, it := range fromItems {
		if it.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return TaskItem{}, fmt.Errorf("orchestrator: task %s not found in %s queue", id, fromStatus)
	}
	task := fromItems[idx]
	fromItems = append(fromItems[:idx], fromItems[idx+1:]...)
	if err := q.save(fromStatus, fromItems); err != nil {
		return TaskItem{}, err
	}

	task.Status = toStatus
	task.UpdatedAt = now

	toItems, err := q.load(toStatus)
	if err != nil {
		return TaskItem{}, err
	}
	task.Position = len(toItems)
	toItems = append(toItems, task)
	if err := q.save(toStatus, toItems); err != nil {
		return TaskItem{}, err
	}
	return task, nil
}

// Counts returns the size of every queue, the shape dashboard-state.json
// reports under tasks{}.
func (q *Queue) Counts() (map[Status]int, error) {
	counts := make(map[Status]int)
	for _, s := range []Status{StatusPending, StatusInProgress, StatusReview, StatusCompleted, StatusFailed} {
		items, err := q.load(s)
		if err != nil {
			return nil, err
		}
		counts[s] = len(items)
	}
	return counts, nil
}
