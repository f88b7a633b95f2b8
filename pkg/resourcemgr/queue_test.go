package resourcemgr

import (
	"testing"
	"time"

	"github.com/cuemby/fusiond/pkg/types"
	"github.com/stretchr/testify/assert"
)

func qtask(priority int32, taskID uint32, verref string) *types.Task {
	return &types.Task{
		Priority:   priority,
		TaskID:     taskID,
		Verref:     verref,
		SubmitTime: time.Unix(int64(taskID), 0),
	}
}

func TestWaitingQueueOrdersByPriorityThenSubmitTime(t *testing.T) {
	q := newWaitingQueue()
	q.insert(qtask(5, 1, "a"))
	q.insert(qtask(0, 2, "b"))
	q.insert(qtask(0, 3, "c"))

	items := q.ordered()
	assert.Equal(t, []string{"b", "c", "a"}, []string{items[0].Verref, items[1].Verref, items[2].Verref})
}

func TestWaitingQueueInsertIsIdempotentByVerref(t *testing.T) {
	q := newWaitingQueue()
	q.insert(qtask(5, 1, "a"))
	q.insert(qtask(0, 1, "a"))

	assert.Equal(t, 1, q.len())
	assert.Equal(t, int32(0), q.ordered()[0].Priority)
}

func TestWaitingQueueRemove(t *testing.T) {
	q := newWaitingQueue()
	q.insert(qtask(0, 1, "a"))
	q.insert(qtask(0, 2, "b"))

	assert.True(t, q.remove("a"))
	assert.False(t, q.remove("a"))
	assert.Equal(t, 1, q.len())
	assert.Equal(t, "b", q.ordered()[0].Verref)
}
