package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertwitch/evfs/internal/backend"
	"github.com/desertwitch/evfs/internal/scheduler"
	"github.com/desertwitch/evfs/internal/waitq"
	"github.com/dustin/go-humanize"
)

const (
	refreshInterval = 100 * time.Millisecond
	maxLogLines     = 100
)

//nolint:gochecknoglobals
var (
	// titleStyle defines the style for a panel's title.
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	// borderStyle defines the style for a panel's borders.
	borderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4"))

	// infoStyle defines the style for a panel's text.
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	// helpStyle defines the style for the help panel's text.
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Padding(0, 1)
)

// SnapshotMsg is a [tea.Msg] carrying a fresh [Snapshot].
type SnapshotMsg struct {
	t        time.Time
	snapshot Snapshot
}

// FinishedMsg is a [tea.Msg] signalling that no more work will arrive.
type FinishedMsg struct {
	snapshot Snapshot
}

// TeaModel is the principal [tea.Model] for the command-line user interface.
type TeaModel struct {
	width  int
	height int

	cancel context.CancelFunc

	uiHandler *Handler

	fullWidthWithBorders  int
	splitWidthWithBorders int

	snapshot   Snapshot
	lastUpdate time.Time

	opsProgress  progress.Model
	logsViewport viewport.Model
	logs         []string

	ready    bool
	finished bool
}

// NewTeaModel returns an initial new [TeaModel].
//
//nolint:mnd
func NewTeaModel(uiHandler *Handler, cancel context.CancelFunc) TeaModel {
	return TeaModel{
		uiHandler: uiHandler,
		opsProgress: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(80),
		),
		logsViewport: viewport.New(80, 20),
		logs:         make([]string, 0, maxLogLines),
		cancel:       cancel,
	}
}

// Init initializes the model within a [tea.Program].
func (m TeaModel) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		pollSnapshot(m.uiHandler.stats),
	)
}

// pollSnapshot produces a [tea.Cmd] that samples stats after the refresh
// interval and returns a [SnapshotMsg].
func pollSnapshot(stats statsProvider) tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return SnapshotMsg{t: t, snapshot: stats.Snapshot()}
	})
}

// Update is the principal message handling method of the model.
//
//nolint:mnd,funlen,ireturn
func (m TeaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()

			return m, tea.Quit
		case "q":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		m.fullWidthWithBorders = m.width - 2
		m.splitWidthWithBorders = (m.width / 3) - 2

		m.opsProgress.Width = m.splitWidthWithBorders

		// Counter panels take about 40% of the height.
		upperHeight := m.height * 2 / 5
		lowerHeight := m.height - upperHeight

		m.logsViewport.Width = m.fullWidthWithBorders
		m.logsViewport.Height = max(lowerHeight-3, 1)
		m.renderLogs()

		if !m.ready {
			m.ready = true
			m.uiHandler.Ready.Store(true)
		}

	case SnapshotMsg:
		m.snapshot = msg.snapshot
		m.lastUpdate = msg.t

		cmds = append(cmds,
			m.opsProgress.SetPercent(m.snapshot.Operations.ProgressPct/100),
			pollSnapshot(m.uiHandler.stats),
		)

	case FinishedMsg:
		m.snapshot = msg.snapshot
		m.finished = true

		cmds = append(cmds, m.opsProgress.SetPercent(m.snapshot.Operations.ProgressPct/100))

	case LogMsg:
		if len(m.logs) >= maxLogLines {
			m.logs = m.logs[1:]
		}
		m.logs = append(m.logs, string(msg))
		m.renderLogs()

	case progress.FrameMsg:
		updated, cmd := m.opsProgress.Update(msg)
		if progressModel, ok := updated.(progress.Model); ok {
			m.opsProgress = progressModel
		}
		cmds = append(cmds, cmd)
	}

	m.logsViewport, cmd = m.logsViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *TeaModel) renderLogs() {
	if len(m.logs) == 0 {
		return
	}

	logs := lipgloss.NewStyle().
		Width(m.logsViewport.Width).
		Render(strings.TrimSuffix(strings.Join(m.logs, ""), "\n"))

	m.logsViewport.SetContent(logs)
	m.logsViewport.GotoBottom()
}

// View is the principal rendering function of the model.
func (m TeaModel) View() string {
	if !m.ready {
		return "Loading the GUI..."
	}

	var s strings.Builder

	countersSection := lipgloss.JoinHorizontal(
		lipgloss.Top,
		borderStyle.Width(m.splitWidthWithBorders).Render(m.operationsView()),
		borderStyle.Width(m.splitWidthWithBorders).Render(m.panel("Scheduler", schedulerDetails(m.snapshot.Scheduler))),
		borderStyle.Width(m.splitWidthWithBorders).Render(m.panel("Backend", backendDetails(m.snapshot.Backend))),
	)

	logsSection := borderStyle.
		Width(m.fullWidthWithBorders).
		Render(
			lipgloss.JoinVertical(
				lipgloss.Left,
				titleStyle.Width(m.fullWidthWithBorders).Render("Process Information"),
				lipgloss.NewStyle().Width(m.fullWidthWithBorders).Render(m.logsViewport.View()),
			),
		)

	help := "q: quit gui • ctrl+c: quit program"
	if m.finished {
		help = "Finished • " + help
	}

	s.WriteString(lipgloss.JoinVertical(
		lipgloss.Left,
		countersSection,
		logsSection,
		helpStyle.Width(m.fullWidthWithBorders).Render(help),
	))

	return s.String()
}

func (m TeaModel) panel(title string, details string) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Width(m.splitWidthWithBorders).Render(title),
		"",
		infoStyle.Width(m.splitWidthWithBorders).Render(details),
	)
}

func (m TeaModel) operationsView() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Width(m.splitWidthWithBorders).Render("Operations"),
		"",
		m.opsProgress.View(),
		"",
		infoStyle.Width(m.splitWidthWithBorders).Render(operationsDetails(m.snapshot.Operations)),
	)
}

func operationsDetails(p waitq.Progress) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Progress: %.2f%% (%s/%s)\n",
		p.ProgressPct, humanize.Comma(int64(p.ProcessedItems)), humanize.Comma(int64(p.TotalItems)))
	fmt.Fprintf(&b, "Calls: Waiting=%d, InFlight=%d, Success=%d, Failed=%d\n",
		p.WaitingItems, p.InProgressItems, p.SuccessItems, p.FailedItems)

	switch {
	case !p.HasStarted:
		b.WriteString("Time: not started\n")
	case p.HasFinished:
		fmt.Fprintf(&b, "Time: Started=%v, Finished=%v\n",
			p.StartTime.Format("15:04:05"), p.FinishTime.Format("15:04:05"))
	default:
		fmt.Fprintf(&b, "Time: Started=%v (%s)\n", p.StartTime.Format("15:04:05"), humanize.Time(p.StartTime))
		if !p.ETA.IsZero() {
			fmt.Fprintf(&b, "ETA: %v (%.1fs left)\n", p.ETA.Format("15:04:05"), p.TimeLeft.Seconds())
		}
	}

	fmt.Fprintf(&b, "Speed: %s ops/s\n", humanize.FormatFloat("#,###.#", p.ItemsPerSec))

	return b.String()
}

func schedulerDetails(s scheduler.Stats) string {
	state := "idle"
	if s.Active {
		state = "active"
	}

	return fmt.Sprintf(
		"State: %s (registered %s times)\n"+
			"Submitted: %s\n"+
			"Completed: %s, Failed: %s\n"+
			"Refused: %s, Outstanding: %s\n",
		state, humanize.Comma(s.Registrations),
		humanize.Comma(s.Submitted),
		humanize.Comma(s.Completed), humanize.Comma(s.Failed),
		humanize.Comma(s.Refused), humanize.Comma(s.Outstanding),
	)
}

func backendDetails(s backend.Stats) string {
	return fmt.Sprintf(
		"Submitted: %s\n"+
			"Completed: %s, Failed: %s\n"+
			"Outstanding: %s\n",
		humanize.Comma(s.Submitted),
		humanize.Comma(s.Completed), humanize.Comma(s.Failed),
		humanize.Comma(s.Outstanding),
	)
}
