package backend

import (
	"container/heap"
	"time"

	"github.com/google/uuid"
)

const (
	// ErrorSentinel is the Result of every request that failed.
	ErrorSentinel int64 = -1

	MinPriority     = -4
	MaxPriority     = 4
	DefaultPriority = 0
)

// Callback is invoked exactly once per accepted request, from [Handler.Poll]
// on the polling goroutine.
type Callback func(data any, result int64, req *Request)

// Request is one operation accepted by the backend. Result and Data are only
// meaningful once its callback has been invoked.
type Request struct {
	ID        uuid.UUID
	Op        Op
	Args      []any
	Priority  int
	Submitted time.Time
	Finished  time.Time

	Result int64
	Data   any

	err   error
	seq   uint64
	cb    Callback
	index int
}

// requestHeap orders requests by descending priority, then by submission.
type requestHeap []*Request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}

	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *requestHeap) Push(x any) {
	req := x.(*Request) //nolint:forcetypeassert
	req.index = len(*h)
	*h = append(*h, req)
}

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	req := old[n-1]
	old[n-1] = nil
	req.index = -1
	*h = old[:n-1]

	return req
}

var _ heap.Interface = (*requestHeap)(nil)
