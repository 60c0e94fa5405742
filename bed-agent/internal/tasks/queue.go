package tasks

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

// Transition describes what Advance did. Found is false for unknown ids.
type Transition struct {
	TaskID  uuid.UUID         `json:"taskId"`
	BedID   string            `json:"bedId,omitempty"`
	From    models.TaskStatus `json:"from,omitempty"`
	To      models.TaskStatus `json:"to,omitempty"`
	Removed bool              `json:"removed"`
	Found   bool              `json:"found"`
}

// Queue holds cleaning tasks most-recent-first. Order only reflects insertion.
type Queue struct {
	mu    sync.RWMutex
	tasks []models.CleaningTask
	now   func() time.Time
}

func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

// Push inserts task at the head, assigning an id and timestamps when missing.
func (q *Queue) Push(task models.CleaningTask) models.CleaningTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now().UTC()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = models.StatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	q.tasks = append([]models.CleaningTask{task}, q.tasks...)
	return task
}

// Advance moves a task one step forward; a ready task is removed.
func (q *Queue) Advance(id uuid.UUID) Transition {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.tasks {
		t := &q.tasks[i]
		if t.ID != id {
			continue
		}
		tr := Transition{TaskID: id, BedID: t.BedID, From: t.Status, Found: true}
		switch t.Status {
		case models.StatusPending:
			t.Status = models.StatusInProgress
		case models.StatusInProgress:
			t.Status = models.StatusReady
		default:
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			tr.Removed = true
			return tr
		}
		t.UpdatedAt = q.now().UTC()
		tr.To = t.Status
		return tr
	}
	return Transition{TaskID: id}
}

func (q *Queue) List() []models.CleaningTask {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]models.CleaningTask, len(q.tasks))
	copy(out, q.tasks)
	return out
}

func (q *Queue) Get(id uuid.UUID) (models.CleaningTask, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, t := range q.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return models.CleaningTask{}, false
}

func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}

// Restore replaces the queue with tasks, kept in the given order.
func (q *Queue) Restore(tasks []models.CleaningTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append([]models.CleaningTask(nil), tasks...)
}
