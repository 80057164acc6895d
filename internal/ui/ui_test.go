package ui

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertwitch/evfs/internal/backend"
	"github.com/desertwitch/evfs/internal/scheduler"
	"github.com/desertwitch/evfs/internal/waitq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStats simulates a running scheduler whose counters grow on each sample.
type fakeStats struct {
	calls atomic.Int64
}

func (f *fakeStats) Snapshot() Snapshot {
	n := f.calls.Add(1)
	total := int(n) + 2

	return Snapshot{
		Operations: waitq.Progress{
			HasStarted:     true,
			StartTime:      time.Now().Add(-time.Second),
			ProgressPct:    float64(n) / float64(total) * 100,
			TotalItems:     total,
			ProcessedItems: int(n),
			SuccessItems:   int(n),
		},
		Scheduler: scheduler.Stats{Submitted: n, Completed: n, Active: true, Registrations: 1},
		Backend:   backend.Stats{Submitted: n, Completed: n},
	}
}

func newTestUI(t *testing.T, ctx context.Context, cancel context.CancelFunc, buf *bytes.Buffer) *Handler {
	t.Helper()

	var in bytes.Buffer

	return NewHandler(ctx, cancel, &fakeStats{}, tea.WithInput(&in), tea.WithOutput(buf))
}

// TestTeaUI_Success is an integration test for the command-line user
// interface.
func TestTeaUI_Success(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	handler := newTestUI(t, ctx, cancel, &buf)

	go func() {
		handler.program.Send(tea.WindowSizeMsg{Width: 200, Height: 200})

		for !handler.Ready.Load() {
			if handler.Failed.Load() {
				return
			}
			time.Sleep(time.Millisecond)
		}

		handler.program.Send(LogMsg("log1"))
		_, _ = handler.LogWriter.Write([]byte("log2"))

		for range 150 {
			_, _ = handler.LogWriter.Write([]byte("fast logs"))
		}

		handler.program.Send(tea.WindowSizeMsg{Width: 200, Height: 250})
		time.Sleep(500 * time.Millisecond)

		handler.Finish()
		time.Sleep(500 * time.Millisecond)

		handler.program.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	}()

	require.NoError(t, handler.Launch())
	require.NotZero(t, buf.Len(), "UI generated no output at all")

	out := buf.String()
	assert.Contains(t, out, "log1", "log sent via program.Send")
	assert.Contains(t, out, "log2", "log sent via LogWriter")
	assert.Contains(t, out, "Scheduler")
	assert.Contains(t, out, "Finished")
}

// TestTeaUI_Ctrl_C verifies that a ctrl+c keypress cancels the upstream
// context for signalling application teardown.
func TestTeaUI_Ctrl_C(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	handler := newTestUI(t, ctx, cancel, &buf)

	go func() {
		handler.program.Send(tea.WindowSizeMsg{Width: 120, Height: 60})

		for !handler.Ready.Load() {
			if handler.Failed.Load() {
				return
			}
			time.Sleep(time.Millisecond)
		}

		handler.program.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
	}()

	err := handler.Launch()
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	require.NotZero(t, buf.Len())
}

// TestTeaModel_View_Success verifies the panels render the sampled counters.
func TestTeaModel_View_Success(t *testing.T) {
	t.Parallel()

	handler := &Handler{stats: &fakeStats{}}
	m := NewTeaModel(handler, func() {})

	assert.Equal(t, "Loading the GUI...", m.View())

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 150, Height: 40})
	m, ok := updated.(TeaModel)
	require.True(t, ok)
	assert.True(t, handler.Ready.Load())

	snap := Snapshot{
		Operations: waitq.Progress{
			HasStarted:     true,
			HasFinished:    true,
			ProgressPct:    100,
			TotalItems:     1200,
			ProcessedItems: 1200,
			SuccessItems:   1199,
			FailedItems:    1,
		},
		Scheduler: scheduler.Stats{Submitted: 1200, Completed: 1199, Failed: 1, Registrations: 3},
		Backend:   backend.Stats{Submitted: 1200, Completed: 1199, Failed: 1},
	}

	updated, _ = m.Update(FinishedMsg{snapshot: snap})
	m, ok = updated.(TeaModel)
	require.True(t, ok)

	view := m.View()
	assert.Contains(t, view, "1,200/1,200")
	assert.Contains(t, view, "idle")
	assert.Contains(t, view, "Finished")
}

// TestTeaModel_Update_LogsTrimmed verifies only the newest log lines are
// kept.
func TestTeaModel_Update_LogsTrimmed(t *testing.T) {
	t.Parallel()

	m := NewTeaModel(&Handler{stats: &fakeStats{}}, func() {})

	for range maxLogLines + 20 {
		updated, _ := m.Update(LogMsg("line\n"))
		m = updated.(TeaModel) //nolint:forcetypeassert
	}
	updated, _ := m.Update(LogMsg("last\n"))
	m = updated.(TeaModel) //nolint:forcetypeassert

	require.Len(t, m.logs, maxLogLines)
	assert.Equal(t, "last\n", m.logs[maxLogLines-1])
}

// TestTeaModel_Update_Quit verifies that q quits without cancelling.
func TestTeaModel_Update_Quit(t *testing.T) {
	t.Parallel()

	cancelled := false
	m := NewTeaModel(&Handler{stats: &fakeStats{}}, func() { cancelled = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.False(t, cancelled)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.True(t, cancelled)
}
