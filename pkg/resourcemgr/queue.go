package resourcemgr

import (
	"sort"

	"github.com/cuemby/fusiond/pkg/types"
)

// waitingQueue holds tasks that have no provider yet, kept in the strict
// total order of types.QueueKey (spec §4.3): priority, then submit time,
// then taskid, then verref. TryActivate walks this order on every pass but
// only ever removes the one task it manages to start, so this is a plain
// ordered slice rather than a min-heap.
type waitingQueue struct {
	items []*types.Task
}

func newWaitingQueue() *waitingQueue {
	return &waitingQueue{}
}

func keyOf(t *types.Task) types.QueueKey {
	return types.QueueKey{Priority: t.Priority, SubmitTime: t.SubmitTime, TaskID: t.TaskID, Verref: t.Verref}
}

// insert places t in order. Idempotent: a task already present by verref is
// replaced rather than duplicated.
func (q *waitingQueue) insert(t *types.Task) {
	q.remove(t.Verref)
	k := keyOf(t)
	i := sort.Search(len(q.items), func(i int) bool { return k.Less(keyOf(q.items[i])) })
	q.items = append(q.items, nil)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = t
}

// remove deletes the task with the given verref, if present.
func (q *waitingQueue) remove(verref string) bool {
	for i, t := range q.items {
		if t.Verref == verref {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// ordered returns a snapshot of the current order; callers walk it without
// mutating the queue directly.
func (q *waitingQueue) ordered() []*types.Task {
	out := make([]*types.Task, len(q.items))
	copy(out, q.items)
	return out
}

func (q *waitingQueue) len() int { return len(q.items) }
