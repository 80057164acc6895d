package listing

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/desertwitch/evfs/internal/backend"
	"github.com/desertwitch/evfs/internal/future"
	"github.com/desertwitch/evfs/internal/loop"
	"github.com/desertwitch/evfs/internal/scheduler"
	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeInvoker hands out pending stat futures that the test settles.
type fakeInvoker struct {
	js      *eventloop.JS
	calls   []string
	pending map[string]*future.Future[scheduler.Completion]
}

func newFakeInvoker(t *testing.T) *fakeInvoker {
	t.Helper()

	l, err := loop.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	return &fakeInvoker{
		js:      l.Promises(),
		pending: make(map[string]*future.Future[scheduler.Completion]),
	}
}

func (f *fakeInvoker) Promises() *eventloop.JS {
	return f.js
}

func (f *fakeInvoker) InvokeCall(_ context.Context, op backend.Op, args []any, _ bool) *future.Future[scheduler.Completion] {
	path := args[0].(string) //nolint:forcetypeassert
	f.calls = append(f.calls, op.String()+" "+path)

	fut := future.New[scheduler.Completion](f.js)
	f.pending[path] = fut

	return fut
}

func (f *fakeInvoker) statMode(path string, mode uint32) {
	f.pending[path].Resolve(scheduler.Completion{Data: &unix.Stat_t{Mode: mode}})
}

func (f *fakeInvoker) fail(path string, errno unix.Errno) {
	f.pending[path].Reject(&scheduler.OperationError{Op: backend.OpStat, Args: []any{path}, Err: errno})
}

func settledListing(t *testing.T, f *future.Future[*Listing]) (*Listing, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	l, err := f.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "listing should have settled")

	return l, err
}

// TestResolveListing_Success tests that an unknown entry is classified by a
// follow-up stat while a typed entry resolves immediately.
func TestResolveListing_Success(t *testing.T) {
	t.Parallel()

	inv := newFakeInvoker(t)
	r := NewResolver(inv, PolicyFailFast)

	f := r.ResolveListing(t.Context(), "base", []backend.DirEntry{
		{Name: "a", Type: backend.TypeDir},
		{Name: "b", Type: backend.TypeUnknown},
	})

	assert.Equal(t, []string{"stat base/b"}, inv.calls)
	_, _, settled := f.Result()
	assert.False(t, settled, "listing must wait for the stat")

	inv.statMode("base/b", unix.S_IFREG|0o644)

	l, err := settledListing(t, f)
	require.NoError(t, err)
	assert.Equal(t, map[string]Kind{"a": KindDirectory, "b": KindFile}, l.Kinds())
	assert.Equal(t, []string{"a", "b"}, l.Names())

	node, ok := l.Get("b")
	require.True(t, ok)
	assert.Equal(t, "base/b", node.Path)
}

// TestResolveListing_Success_OrderAndDuplicates tests insertion order and
// last-write-wins for repeated names.
func TestResolveListing_Success_OrderAndDuplicates(t *testing.T) {
	t.Parallel()

	r := NewResolver(newFakeInvoker(t), PolicyFailFast)

	f := r.ResolveListing(t.Context(), "/d", []backend.DirEntry{
		{Name: "x", Type: backend.TypeRegular},
		{Name: "y", Type: backend.TypeDir},
		{Name: "x", Type: backend.TypeDir},
		{Name: "z", Type: backend.TypeRegular},
	})

	l, err := settledListing(t, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, l.Names())
	assert.Equal(t, 3, l.Len())

	nodes := l.Nodes()
	assert.Equal(t, Node{Name: "x", Path: "/d/x", Kind: KindDirectory}, nodes[0])
}

// TestResolveListing_Success_Symlink tests that a link is classified by its
// target.
func TestResolveListing_Success_Symlink(t *testing.T) {
	t.Parallel()

	inv := newFakeInvoker(t)
	r := NewResolver(inv, PolicyFailFast)

	f := r.ResolveListing(t.Context(), "/d", []backend.DirEntry{{Name: "link", Type: backend.TypeSymlink}})
	inv.statMode("/d/link", unix.S_IFDIR|0o755)

	l, err := settledListing(t, f)
	require.NoError(t, err)
	assert.Equal(t, map[string]Kind{"link": KindDirectory}, l.Kinds())

	node, _ := l.Get("link")
	assert.True(t, node.Symlink)
}

// TestResolveListing_Success_Empty tests an empty directory.
func TestResolveListing_Success_Empty(t *testing.T) {
	t.Parallel()

	r := NewResolver(newFakeInvoker(t), PolicyCollectAll)

	l, err := settledListing(t, r.ResolveListing(t.Context(), "/d", nil))
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
}

// TestResolveListing_Fail_FailFast tests that the first failed stat rejects
// the listing without waiting for the siblings.
func TestResolveListing_Fail_FailFast(t *testing.T) {
	t.Parallel()

	inv := newFakeInvoker(t)
	r := NewResolver(inv, PolicyFailFast)

	f := r.ResolveListing(t.Context(), "/d", []backend.DirEntry{
		{Name: "gone", Type: backend.TypeUnknown},
		{Name: "slow", Type: backend.TypeUnknown},
	})

	inv.fail("/d/gone", unix.ENOENT)

	_, err := settledListing(t, f)
	require.ErrorIs(t, err, scheduler.ErrOperationFailed)
	require.ErrorIs(t, err, fs.ErrNotExist)

	inv.statMode("/d/slow", unix.S_IFREG)
	_, err = settledListing(t, f)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

// TestResolveListing_Fail_Classification tests that a special file fails
// classification as an operation failure.
func TestResolveListing_Fail_Classification(t *testing.T) {
	t.Parallel()

	inv := newFakeInvoker(t)
	r := NewResolver(inv, PolicyFailFast)

	f := r.ResolveListing(t.Context(), "/d", []backend.DirEntry{{Name: "pipe", Type: backend.TypeFIFO}})
	inv.statMode("/d/pipe", unix.S_IFIFO|0o600)

	_, err := settledListing(t, f)
	require.ErrorIs(t, err, ErrClassification)
	require.ErrorIs(t, err, scheduler.ErrOperationFailed)

	var cerr *ClassificationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "/d/pipe", cerr.Path)
}

// TestResolveListing_Fail_UnexpectedData tests a stat completion without a
// stat buffer.
func TestResolveListing_Fail_UnexpectedData(t *testing.T) {
	t.Parallel()

	inv := newFakeInvoker(t)
	r := NewResolver(inv, PolicyFailFast)

	f := r.ResolveListing(t.Context(), "/d", []backend.DirEntry{{Name: "odd", Type: backend.TypeUnknown}})
	inv.pending["/d/odd"].Resolve(scheduler.Completion{Data: "not a stat"})

	_, err := settledListing(t, f)
	require.ErrorIs(t, err, ErrUnexpectedData)
}

// TestResolveListing_Fail_CollectAll tests that every entry is awaited and
// the rejection carries the partial listing.
func TestResolveListing_Fail_CollectAll(t *testing.T) {
	t.Parallel()

	inv := newFakeInvoker(t)
	r := NewResolver(inv, PolicyCollectAll)

	f := r.ResolveListing(t.Context(), "/d", []backend.DirEntry{
		{Name: "gone", Type: backend.TypeUnknown},
		{Name: "dir", Type: backend.TypeDir},
		{Name: "pipe", Type: backend.TypeUnknown},
		{Name: "file", Type: backend.TypeUnknown},
	})

	inv.fail("/d/gone", unix.ENOENT)
	_, _, settled := f.Result()
	assert.False(t, settled, "collect-all must wait for every entry")

	inv.statMode("/d/pipe", unix.S_IFIFO)
	inv.statMode("/d/file", unix.S_IFREG)

	_, err := settledListing(t, f)
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.ErrorIs(t, err, ErrClassification)

	var lerr *ListingError
	require.ErrorAs(t, err, &lerr)
	require.Len(t, lerr.Errors, 2)
	assert.Equal(t, "gone", lerr.Errors[0].Name)
	assert.Equal(t, "pipe", lerr.Errors[1].Name)
	assert.Equal(t, []string{"dir", "file"}, lerr.Listing.Names())
	assert.Contains(t, err.Error(), "2 of 4 entries failed")
}

// TestParsePolicy_Success tests the accepted policy names.
func TestParsePolicy_Success(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Policy{
		"":            PolicyFailFast,
		"fail-fast":   PolicyFailFast,
		"Collect-All": PolicyCollectAll,
		" collectall": PolicyCollectAll,
	} {
		p, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, p, in)
	}
}

// TestParsePolicy_Fail_Unknown tests an unknown policy name.
func TestParsePolicy_Fail_Unknown(t *testing.T) {
	t.Parallel()

	_, err := ParsePolicy("best-effort")
	require.ErrorIs(t, err, ErrUnknownPolicy)
}

// TestClassify_Success tests the mode classification.
func TestClassify_Success(t *testing.T) {
	t.Parallel()

	kind, err := Classify("a", unix.S_IFDIR|0o755)
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, kind)

	kind, err = Classify("b", unix.S_IFREG)
	require.NoError(t, err)
	assert.Equal(t, KindFile, kind)

	kind, err = Classify("c", unix.S_IFSOCK)
	require.ErrorIs(t, err, ErrClassification)
	assert.Equal(t, KindUnknown, kind)
	assert.Equal(t, "unknown", kind.String())
}
