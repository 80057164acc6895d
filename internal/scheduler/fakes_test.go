package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/desertwitch/evfs/internal/backend"
	"github.com/desertwitch/evfs/internal/loop"
	"github.com/google/uuid"
	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/stretchr/testify/require"
)

// fakeLoop runs deferred tasks and readiness callbacks only when turned.
// Turns execute on a real loop so that promise observers run between them.
type fakeLoop struct {
	t       *testing.T
	host    *loop.Loop
	watches map[int]func()
	tasks   []func()
	adds    int
	removes int
	addErr  error
}

func newFakeLoop(t *testing.T) *fakeLoop {
	t.Helper()

	host, err := loop.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close() })

	return &fakeLoop{
		t:       t,
		host:    host,
		watches: make(map[int]func()),
	}
}

func (l *fakeLoop) Promises() *eventloop.JS {
	return l.host.Promises()
}

func (l *fakeLoop) AddReadinessWatch(fd int, cb func()) error {
	if l.addErr != nil {
		return l.addErr
	}
	if _, exists := l.watches[fd]; exists {
		return fmt.Errorf("fd %d: %w", fd, loop.ErrAlreadyWatched)
	}
	l.watches[fd] = cb
	l.adds++

	return nil
}

func (l *fakeLoop) RemoveReadinessWatch(fd int) error {
	if _, exists := l.watches[fd]; !exists {
		return fmt.Errorf("fd %d: %w", fd, loop.ErrNotWatched)
	}
	delete(l.watches, fd)
	l.removes++

	return nil
}

func (l *fakeLoop) Defer(fn func()) {
	l.tasks = append(l.tasks, fn)
}

func (l *fakeLoop) watching(fd int) bool {
	_, ok := l.watches[fd]

	return ok
}

// turn runs one iteration: the tasks deferred so far, then the readiness
// callback if the backend has completions waiting. It returns once the
// observers settled by the iteration have run.
func (l *fakeLoop) turn(b *fakeBackend) {
	l.t.Helper()

	l.host.Defer(func() {
		tasks := l.tasks
		l.tasks = nil

		for _, task := range tasks {
			task()
		}

		if cb, ok := l.watches[b.fd]; ok && len(b.ready) > 0 {
			cb()
		}
	})

	ctx, cancel := context.WithTimeout(l.t.Context(), 5*time.Second)
	defer cancel()

	require.NoError(l.t, l.host.RunUntilIdle(ctx))
}

type fakeCompletion struct {
	req    *backend.Request
	result int64
	data   any
}

// fakeBackend accepts requests and completes them only when told to.
type fakeBackend struct {
	fd       int
	refuse   error
	accepted []*backend.Request
	cbs      map[*backend.Request]backend.Callback
	errs     map[*backend.Request]error
	ready    []fakeCompletion
	polls    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		fd:   99,
		cbs:  make(map[*backend.Request]backend.Callback),
		errs: make(map[*backend.Request]error),
	}
}

func (b *fakeBackend) Submit(op backend.Op, args []any, priority int, cb backend.Callback) (*backend.Request, error) {
	if b.refuse != nil {
		return nil, b.refuse
	}

	req := &backend.Request{ID: uuid.New(), Op: op, Args: args, Priority: priority}
	b.accepted = append(b.accepted, req)
	b.cbs[req] = cb

	return req, nil
}

func (b *fakeBackend) Poll(maxReqs int) int {
	b.polls++

	n := len(b.ready)
	if maxReqs > 0 && maxReqs < n {
		n = maxReqs
	}
	batch := b.ready[:n]
	b.ready = append([]fakeCompletion(nil), b.ready[n:]...)

	for _, c := range batch {
		c.req.Result = c.result
		c.req.Data = c.data
		b.cbs[c.req](c.data, c.result, c.req)
	}

	return n
}

func (b *fakeBackend) SignalFd() int {
	return b.fd
}

func (b *fakeBackend) LastError(req *backend.Request) error {
	return b.errs[req]
}

func (b *fakeBackend) complete(req *backend.Request, result int64, data any) {
	b.ready = append(b.ready, fakeCompletion{req: req, result: result, data: data})
}

func (b *fakeBackend) fail(req *backend.Request, err error) {
	b.errs[req] = err
	b.complete(req, backend.ErrorSentinel, nil)
}

func (b *fakeBackend) find(path string) *backend.Request {
	for _, req := range b.accepted {
		if len(req.Args) > 0 && req.Args[0] == path {
			return req
		}
	}

	return nil
}

func (b *fakeBackend) acceptedPaths() []string {
	paths := make([]string, 0, len(b.accepted))
	for _, req := range b.accepted {
		paths = append(paths, req.Args[0].(string)) //nolint:forcetypeassert
	}

	return paths
}
