// Package backend performs blocking filesystem syscalls on a pool of worker
// goroutines and reports their completion through an eventfd.
//
// Accepted requests move from a priority queue to a worker and then to a
// ready list. [Handler.Poll] delivers ready requests to their callbacks on
// the polling goroutine; workers never invoke callbacks themselves.
package backend

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sys/unix"
)

const defaultMaxPending = 4096

type osProvider interface {
	Open(name string) (*os.File, error)
	Readlink(name string) (string, error)
}

type unixProvider interface {
	Chmod(path string, mode uint32) error
	Chown(path string, uid, gid int) error
	Close(fd int) error
	Fstat(fd int, stat *unix.Stat_t) error
	Fsync(fd int) error
	Ftruncate(fd int, length int64) error
	Getdents(fd int, buf []byte) (int, error)
	Link(oldpath, newpath string) error
	Lstat(path string, stat *unix.Stat_t) error
	Mkdir(path string, mode uint32) error
	Open(path string, mode int, perm uint32) (int, error)
	Pread(fd int, p []byte, offset int64) (int, error)
	Pwrite(fd int, p []byte, offset int64) (int, error)
	Read(fd int, p []byte) (int, error)
	Rename(oldpath, newpath string) error
	Rmdir(path string) error
	Stat(path string, stat *unix.Stat_t) error
	Statfs(path string, buf *unix.Statfs_t) error
	Symlink(oldpath, newpath string) error
	Unlink(path string) error
	UtimesNano(path string, times []unix.Timespec) error
	Write(fd int, p []byte) (int, error)
}

type Config struct {
	// Workers is the number of goroutines executing requests. Zero means
	// runtime.NumCPU().
	Workers int

	// MaxPending bounds the number of accepted requests that have not yet
	// started. Zero means the default of 4096, negative means unbounded.
	MaxPending int
}

// Stats is a snapshot of the backend counters.
type Stats struct {
	Submitted   int64
	Completed   int64
	Failed      int64
	Outstanding int64
}

type Handler struct {
	OSHandler   osProvider
	UnixHandler unixProvider

	mu         sync.Mutex
	cond       *sync.Cond
	queue      requestHeap
	ready      []*Request
	seq        uint64
	stopped    bool
	closed     bool
	maxPending int

	signalfd    int
	outstanding atomic.Int64
	active      *xsync.Map[uuid.UUID, *Request]
	submitted   *xsync.Counter
	completed   *xsync.Counter
	failed      *xsync.Counter

	wg sync.WaitGroup
}

func NewHandler(cfg Config, osHandler osProvider, unixHandler unixProvider) (*Handler, error) {
	signalfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("(backend) failed to create completion eventfd: %w", err)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	maxPending := cfg.MaxPending
	if maxPending == 0 {
		maxPending = defaultMaxPending
	}

	h := &Handler{
		OSHandler:   osHandler,
		UnixHandler: unixHandler,
		maxPending:  maxPending,
		signalfd:    signalfd,
		active:      xsync.NewMap[uuid.UUID, *Request](),
		submitted:   xsync.NewCounter(),
		completed:   xsync.NewCounter(),
		failed:      xsync.NewCounter(),
	}
	h.cond = sync.NewCond(&h.mu)

	for range workers {
		h.wg.Add(1)
		go h.work()
	}

	return h, nil
}

// SignalFd returns the completion signal. It becomes readable whenever
// completed requests are waiting to be polled.
func (h *Handler) SignalFd() int {
	return h.signalfd
}

// Submit queues op for execution. A nil request and an error are returned
// if the backend refuses the request, in which case cb is never invoked.
func (h *Handler) Submit(op Op, args []any, priority int, cb Callback) (*Request, error) {
	if cb == nil {
		return nil, ErrNilCallback
	}
	if err := validateArgs(op, args); err != nil {
		return nil, err
	}
	if priority < MinPriority || priority > MaxPriority {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, priority)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil, ErrClosed
	}
	if h.maxPending > 0 && len(h.queue) >= h.maxPending {
		return nil, fmt.Errorf("%w: %d pending", ErrQueueFull, len(h.queue))
	}

	h.seq++
	req := &Request{
		ID:        uuid.New(),
		Op:        op,
		Args:      args,
		Priority:  priority,
		Submitted: time.Now(),
		seq:       h.seq,
		cb:        cb,
	}

	heap.Push(&h.queue, req)
	h.outstanding.Add(1)
	h.active.Store(req.ID, req)
	h.submitted.Inc()
	h.cond.Signal()

	return req, nil
}

func (h *Handler) work() {
	defer h.wg.Done()

	for {
		h.mu.Lock()
		for len(h.queue) == 0 && !h.stopped {
			h.cond.Wait()
		}
		if h.stopped {
			h.mu.Unlock()

			return
		}
		req := heap.Pop(&h.queue).(*Request) //nolint:forcetypeassert
		h.mu.Unlock()

		h.execute(req)
		h.finish(req)
	}
}

func (h *Handler) finish(reqs ...*Request) {
	now := time.Now()
	for _, req := range reqs {
		req.Finished = now
	}

	h.mu.Lock()
	h.ready = append(h.ready, reqs...)
	h.mu.Unlock()

	h.signal()
}

// Poll delivers up to maxReqs ready requests to their callbacks, or all
// currently ready requests if maxReqs <= 0. It returns the number delivered.
func (h *Handler) Poll(maxReqs int) int {
	h.clearSignal()

	h.mu.Lock()
	n := len(h.ready)
	if maxReqs > 0 && maxReqs < n {
		n = maxReqs
	}
	batch := h.ready[:n:n]
	h.ready = append([]*Request(nil), h.ready[n:]...)
	remaining := len(h.ready) > 0
	h.mu.Unlock()

	if remaining {
		h.signal()
	}

	for _, req := range batch {
		h.active.Delete(req.ID)
		h.outstanding.Add(-1)
		h.completed.Inc()
		if req.Result == ErrorSentinel {
			h.failed.Inc()
		}

		req.cb(req.Data, req.Result, req)
	}

	return n
}

// Ready reports whether completed requests are waiting to be polled.
func (h *Handler) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.ready) > 0
}

// Outstanding returns the number of accepted requests whose callbacks have
// not been invoked yet: queued, executing and ready ones.
func (h *Handler) Outstanding() int64 {
	return h.outstanding.Load()
}

// LastError returns the error a failed request ended with.
func (h *Handler) LastError(req *Request) error {
	if req == nil {
		return nil
	}

	return req.err
}

// Active returns the accepted requests that have not been delivered yet.
func (h *Handler) Active() []*Request {
	reqs := make([]*Request, 0, h.active.Size())
	h.active.Range(func(_ uuid.UUID, req *Request) bool {
		reqs = append(reqs, req)

		return true
	})

	return reqs
}

func (h *Handler) Stats() Stats {
	return Stats{
		Submitted:   h.submitted.Value(),
		Completed:   h.completed.Value(),
		Failed:      h.failed.Value(),
		Outstanding: h.outstanding.Load(),
	}
}

// Stop refuses further submissions, waits for executing requests and fails
// all queued ones with [ErrClosed]. Every callback still fires on a later
// Poll.
func (h *Handler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()

		return
	}
	h.stopped = true

	var canceled []*Request
	for h.queue.Len() > 0 {
		req := heap.Pop(&h.queue).(*Request) //nolint:forcetypeassert
		req.Result = ErrorSentinel
		req.err = ErrClosed
		canceled = append(canceled, req)
	}
	h.cond.Broadcast()
	h.mu.Unlock()

	h.wg.Wait()

	if len(canceled) > 0 {
		slog.Debug("Backend stopped with queued requests",
			"canceled", len(canceled),
		)
		h.finish(canceled...)
	}
}

// Close stops the backend and releases the completion signal. Requests that
// were never polled are dropped, so callers should drain before closing.
func (h *Handler) Close() error {
	h.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	if len(h.ready) > 0 {
		slog.Warn("Backend closed with undelivered completions",
			"dropped", len(h.ready),
		)
	}

	if err := unix.Close(h.signalfd); err != nil {
		return fmt.Errorf("(backend) failed to close completion eventfd: %w", err)
	}

	return nil
}

func (h *Handler) signal() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(h.signalfd, buf[:])
}

func (h *Handler) clearSignal() {
	var buf [8]byte
	_, _ = unix.Read(h.signalfd, buf[:])
}
