package service

import (
	"container/heap"
	"time"

	"github.com/Strob0t/Fanout/internal/domain/event"
)

// deliveryTask is one pending attempt of a delivery chain.
type deliveryTask struct {
	event      event.Event
	body       []byte
	endpointID string
	attempt    int
	fireAt     time.Time
	seq        uint64
}

// taskQueue orders tasks by fire time, then by insertion.
type taskQueue []*deliveryTask

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].fireAt.Equal(q[j].fireAt) {
		return q[i].seq < q[j].seq
	}
	return q[i].fireAt.Before(q[j].fireAt)
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*deliveryTask)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}

func (q *taskQueue) push(t *deliveryTask) { heap.Push(q, t) }

func (q *taskQueue) pop() *deliveryTask { return heap.Pop(q).(*deliveryTask) }

func (q taskQueue) peek() *deliveryTask {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}
