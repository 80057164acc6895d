// Package waitq provides the FIFO wait queue behind the queued invoker and
// a sequential task list used for ordered teardown.
package waitq

import (
	"sync"
	"time"
)

// compactThreshold is the number of consumed slots after which the backing
// slice is compacted on dequeue.
const compactThreshold = 64

// Progress is a snapshot of the accounting of a [Queue].
type Progress struct {
	HasStarted  bool
	HasFinished bool
	StartTime   time.Time
	FinishTime  time.Time

	ProgressPct     float64
	TotalItems      int
	WaitingItems    int
	InProgressItems int
	ProcessedItems  int
	SuccessItems    int
	FailedItems     int

	ETA         time.Time
	TimeLeft    time.Duration
	ItemsPerSec float64
}

// Queue is a FIFO queue that tracks how many of its items are waiting, in
// progress or done. Items leave the waiting state through [Queue.Dequeue] or
// skip it entirely through [Queue.Bypass].
type Queue[T any] struct {
	sync.RWMutex
	hasStarted  bool
	hasFinished bool
	startTime   time.Time
	finishTime  time.Time
	head        int
	items       []T
	total       int
	inProgress  int
	success     int
	failed      int
}

// New returns a pointer to a new [Queue].
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// HasRemainingItems returns whether the queue has waiting items.
func (q *Queue[T]) HasRemainingItems() bool {
	q.RLock()
	defer q.RUnlock()

	return q.head < len(q.items)
}

// Len returns the number of waiting items.
func (q *Queue[T]) Len() int {
	q.RLock()
	defer q.RUnlock()

	return len(q.items) - q.head
}

// Enqueue appends items to the tail of the queue.
func (q *Queue[T]) Enqueue(items ...T) {
	q.Lock()
	defer q.Unlock()

	q.unfinish()
	q.items = append(q.items, items...)
	q.total += len(items)
}

// Dequeue removes the head of the queue and counts it as in progress.
func (q *Queue[T]) Dequeue() (T, bool) { //nolint:ireturn
	q.Lock()
	defer q.Unlock()

	if q.head >= len(q.items) {
		var zeroVal T

		return zeroVal, false
	}

	q.start()

	item := q.items[q.head]

	var zeroVal T
	q.items[q.head] = zeroVal
	q.head++

	if q.head >= compactThreshold && q.head*2 >= len(q.items) {
		q.items = append(q.items[:0:0], q.items[q.head:]...)
		q.head = 0
	}

	q.inProgress++

	return item, true
}

// Bypass counts an item that went straight to processing without waiting.
func (q *Queue[T]) Bypass() {
	q.Lock()
	defer q.Unlock()

	q.unfinish()
	q.start()
	q.total++
	q.inProgress++
}

// SetSuccess marks one in-progress item as successfully processed.
func (q *Queue[T]) SetSuccess() {
	q.Lock()
	defer q.Unlock()

	q.success++
	q.done()
}

// SetFailed marks one in-progress item as failed.
func (q *Queue[T]) SetFailed() {
	q.Lock()
	defer q.Unlock()

	q.failed++
	q.done()
}

func (q *Queue[T]) start() {
	if !q.hasStarted {
		q.startTime = time.Now()
		q.hasStarted = true
	}
}

func (q *Queue[T]) unfinish() {
	if q.hasFinished {
		q.finishTime = time.Time{}
		q.hasFinished = false
	}
}

func (q *Queue[T]) done() {
	if q.inProgress > 0 {
		q.inProgress--
	}

	if q.success+q.failed >= q.total && q.head >= len(q.items) && q.inProgress == 0 {
		q.finishTime = time.Now()
		q.hasFinished = true
	}
}

// Progress returns the [Progress] for the [Queue].
func (q *Queue[T]) Progress() Progress {
	q.RLock()
	defer q.RUnlock()

	processedItems := min(q.success+q.failed, q.total)

	var progressPct float64
	if q.total > 0 {
		progressPct = float64(processedItems) / float64(q.total) * 100 //nolint:mnd
		progressPct = max(float64(0), min(progressPct, float64(100)))  //nolint:mnd
	}

	var eta time.Time
	var timeLeft time.Duration
	var itemsPerSec float64

	if q.hasStarted && processedItems > 0 && processedItems < q.total {
		elapsed := time.Since(q.startTime)
		itemsPerSec = float64(processedItems) / max(elapsed.Seconds(), 1)

		remainingSeconds := float64(q.total-processedItems) / itemsPerSec
		timeLeft = time.Duration(remainingSeconds * float64(time.Second))
		eta = time.Now().Add(timeLeft)
	}

	return Progress{
		HasStarted:      q.hasStarted,
		HasFinished:     q.hasFinished,
		StartTime:       q.startTime,
		FinishTime:      q.finishTime,
		ProgressPct:     progressPct,
		TotalItems:      q.total,
		WaitingItems:    len(q.items) - q.head,
		InProgressItems: q.inProgress,
		ProcessedItems:  processedItems,
		SuccessItems:    q.success,
		FailedItems:     q.failed,
		ETA:             eta,
		TimeLeft:        timeLeft,
		ItemsPerSec:     itemsPerSec,
	}
}
