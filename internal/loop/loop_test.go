//go:build linux

package loop

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()

	l, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	return l
}

func newEventfd(t *testing.T) int {
	t.Helper()

	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(fd) })

	return fd
}

func signal(fd int) {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(fd, buf[:])
}

func drain(fd int) {
	var buf [8]byte
	_, _ = unix.Read(fd, buf[:])
}

func waitIdle(t *testing.T, l *Loop) {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	require.NoError(t, l.RunUntilIdle(ctx))
}

// TestDefer_Success_LaterTick tests that a task deferred from a task runs
// after the deferring task has returned.
func TestDefer_Success_LaterTick(t *testing.T) {
	t.Parallel()

	l := newTestLoop(t)

	order := []string{}
	l.Defer(func() {
		order = append(order, "a")
		l.Defer(func() { order = append(order, "c") })
		order = append(order, "b")
	})

	waitIdle(t, l)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, uint64(2), l.Tasks())
}

// TestRunUntilIdle_Success_Empty tests that an idle loop returns immediately.
func TestRunUntilIdle_Success_Empty(t *testing.T) {
	t.Parallel()

	l := newTestLoop(t)
	waitIdle(t, l)
}

// TestRunUntilIdle_Success_WaitsForObservers tests that work deferred by a
// promise observer keeps the loop busy.
func TestRunUntilIdle_Success_WaitsForObservers(t *testing.T) {
	t.Parallel()

	l := newTestLoop(t)

	var ran bool
	l.Defer(func() {
		p, resolve, _ := l.Promises().NewPromise()
		p.Then(func(any) any {
			l.Defer(func() { ran = true })

			return nil
		}, nil)
		resolve(1)
	})

	waitIdle(t, l)
	assert.True(t, ran)
}

// TestReadinessWatch_Success tests that a watched descriptor's callback runs
// on readiness and that removing the watch lets the loop go idle.
func TestReadinessWatch_Success(t *testing.T) {
	t.Parallel()

	l := newTestLoop(t)
	fd := newEventfd(t)

	fired := 0
	require.NoError(t, l.AddReadinessWatch(fd, func() {
		drain(fd)
		fired++
		assert.NoError(t, l.RemoveReadinessWatch(fd))
	}))
	assert.Equal(t, 1, l.Watching())

	go func() {
		time.Sleep(10 * time.Millisecond)
		signal(fd)
	}()

	waitIdle(t, l)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, l.Watching())
}

// TestReadinessWatch_Fail_Duplicate tests double registration and removal of
// an unknown descriptor.
func TestReadinessWatch_Fail_Duplicate(t *testing.T) {
	t.Parallel()

	l := newTestLoop(t)
	fd := newEventfd(t)

	require.NoError(t, l.AddReadinessWatch(fd, func() {}))
	require.ErrorIs(t, l.AddReadinessWatch(fd, func() {}), ErrAlreadyWatched)
	require.NoError(t, l.RemoveReadinessWatch(fd))
	require.ErrorIs(t, l.RemoveReadinessWatch(fd), ErrNotWatched)
}

// TestDefer_Success_CrossGoroutine tests that a deferral from another
// goroutine runs while a watch keeps the loop busy.
func TestDefer_Success_CrossGoroutine(t *testing.T) {
	t.Parallel()

	l := newTestLoop(t)
	fd := newEventfd(t)

	require.NoError(t, l.AddReadinessWatch(fd, func() {}))

	ran := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Defer(func() {
			close(ran)
			assert.NoError(t, l.RemoveReadinessWatch(fd))
		})
	}()

	waitIdle(t, l)

	select {
	case <-ran:
	default:
		t.Fatal("deferred task should have run")
	}
}

// TestRun_Fail_CtxCancel tests that Run returns once its context is done.
func TestRun_Fail_CtxCancel(t *testing.T) {
	t.Parallel()

	l := newTestLoop(t)

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	require.ErrorIs(t, l.Run(ctx), context.Canceled)
}

// TestRun_Fail_Closed tests that Run returns once the loop is closed.
func TestRun_Fail_Closed(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = l.Close()
	}()

	require.ErrorIs(t, l.Run(t.Context()), ErrClosed)
}

// TestClose_Success tests that a closed loop refuses watches and drops
// deferred tasks.
func TestClose_Success(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	require.ErrorIs(t, l.AddReadinessWatch(0, func() {}), ErrClosed)

	l.Defer(func() { t.Error("task ran on a closed loop") })
	assert.Equal(t, uint64(0), l.Tasks())
}
