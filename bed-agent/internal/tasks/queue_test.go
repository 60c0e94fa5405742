package tasks

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

func TestPushInsertsAtHead(t *testing.T) {
	q := NewQueue()
	a := q.Push(models.CleaningTask{BedID: "101-A", Protocol: models.ProtocolTerminal, Priority: models.PriorityHigh})
	b := q.Push(models.CleaningTask{BedID: "204-B", Protocol: models.ProtocolQuick, Priority: models.PriorityLow})

	list := q.List()
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
	assert.Equal(t, models.StatusPending, list[0].Status)
	assert.NotEqual(t, uuid.Nil, a.ID)
}

func TestAdvanceLifecycle(t *testing.T) {
	q := NewQueue()
	task := q.Push(models.CleaningTask{BedID: "101-A"})

	tr := q.Advance(task.ID)
	assert.Equal(t, Transition{TaskID: task.ID, BedID: "101-A", From: models.StatusPending, To: models.StatusInProgress, Found: true}, tr)

	tr = q.Advance(task.ID)
	assert.Equal(t, models.StatusReady, tr.To)

	tr = q.Advance(task.ID)
	assert.True(t, tr.Removed)
	assert.Equal(t, models.StatusReady, tr.From)
	assert.Zero(t, q.Len())

	tr = q.Advance(task.ID)
	assert.False(t, tr.Found)
	assert.Zero(t, q.Len())
}

func TestAdvanceUnknownIsNoop(t *testing.T) {
	q := NewQueue()
	q.Push(models.CleaningTask{BedID: "1"})
	before := q.List()
	tr := q.Advance(uuid.New())
	assert.False(t, tr.Found)
	assert.Equal(t, before, q.List())
}

func TestListIsACopy(t *testing.T) {
	q := NewQueue()
	task := q.Push(models.CleaningTask{BedID: "1"})
	list := q.List()
	list[0].Status = models.StatusReady
	got, ok := q.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestRestoreKeepsOrder(t *testing.T) {
	q := NewQueue()
	a := models.CleaningTask{ID: uuid.New(), BedID: "MED-02", Status: models.StatusInProgress}
	b := models.CleaningTask{ID: uuid.New(), BedID: "URG-01", Status: models.StatusPending}
	q.Restore([]models.CleaningTask{a, b})

	list := q.List()
	require.Len(t, list, 2)
	assert.Equal(t, "MED-02", list[0].BedID)

	tr := q.Advance(a.ID)
	assert.Equal(t, models.StatusReady, tr.To)
}
