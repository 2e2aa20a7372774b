package agentruntime

import "container/heap"

// delayedActivity is one pending entry in a mailbox's scheduled-delivery
// queue: an activity whose Metadata.ScheduledFor is still in the future.
type delayedActivity struct {
	activity *AgentActivity
	priority int
	readyAt  int64 // UnixNano, for heap comparisons without a time.Time alloc
	index    int   // maintained by container/heap
}

// delayQueue is a min-heap ordered by readyAt, implementing
// container/heap.Interface. It backs the mailbox's scheduled-delivery path
// so a dedicated goroutine can always sleep until exactly the next
// scheduledFor instant instead of polling.
type delayQueue []*delayedActivity

func (q delayQueue) Len() int { return len(q) }

func (q delayQueue) Less(i, j int) bool { return q[i].readyAt < q[j].readyAt }

func (q delayQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *delayQueue) Push(x any) {
	item := x.(*delayedActivity)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *delayQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]

	return item
}

// peekReadyAt returns the readyAt of the earliest entry, and whether the
// queue is non-empty at all.
func (q delayQueue) peekReadyAt() (int64, bool) {
	if len(q) == 0 {
		return 0, false
	}

	return q[0].readyAt, true
}

// Ensure delayQueue satisfies heap.Interface at compile time.
var _ heap.Interface = (*delayQueue)(nil)
