// Package ui implements a command-line dashboard for the scheduler using
// [tea].
package ui

import (
	"context"
	"fmt"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertwitch/evfs/internal/backend"
	"github.com/desertwitch/evfs/internal/scheduler"
	"github.com/desertwitch/evfs/internal/waitq"
)

// Snapshot is one sample of the counters rendered by the dashboard.
type Snapshot struct {
	Operations waitq.Progress
	Scheduler  scheduler.Stats
	Backend    backend.Stats
}

type statsProvider interface {
	Snapshot() Snapshot
}

// StatsFunc adapts a plain function into a stats source for [NewHandler].
type StatsFunc func() Snapshot

// Snapshot calls f.
func (f StatsFunc) Snapshot() Snapshot {
	return f()
}

// Handler is the principal implementation of a user interface [Handler].
type Handler struct {
	stats   statsProvider
	program *tea.Program

	LogWriter *TeaLogWriter

	Ready  atomic.Bool
	Failed atomic.Bool
}

// NewHandler returns a pointer to a new user interface [Handler]. Pressing
// ctrl+c inside the interface calls cancel.
func NewHandler(ctx context.Context, cancel context.CancelFunc, stats statsProvider, opts ...tea.ProgramOption) *Handler {
	handler := &Handler{
		stats: stats,
	}

	model := NewTeaModel(handler, cancel)
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	handler.program = tea.NewProgram(model, opts...)
	handler.LogWriter = NewTeaLogWriter(handler.program)

	return handler
}

// Launch starts the command-line user interface and blocks until it exits.
func (uiHandler *Handler) Launch() error {
	defer uiHandler.LogWriter.Stop()

	if _, err := uiHandler.program.Run(); err != nil {
		uiHandler.Failed.Store(true)

		return fmt.Errorf("(ui) %w", err)
	}

	return nil
}

// Finish tells the interface that all work is done. The final counters stay
// on screen until the user quits.
func (uiHandler *Handler) Finish() {
	uiHandler.program.Send(FinishedMsg{snapshot: uiHandler.stats.Snapshot()})
}

// Quit exits the interface without waiting for user input.
func (uiHandler *Handler) Quit() {
	uiHandler.program.Quit()
}
