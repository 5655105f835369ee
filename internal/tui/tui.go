// Package tui provides a Bubble Tea terminal user interface for cloudmusic-downloader.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/handiism/cloudmusic-downloader/internal/config"
	"github.com/handiism/cloudmusic-downloader/internal/download"
	"github.com/handiism/cloudmusic-downloader/internal/engine"
	"github.com/handiism/cloudmusic-downloader/internal/model"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)

	trackStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500"))
)

// maxRows is the number of unfinished tasks shown with their own bar.
const maxRows = 8

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateInitializing
	StateDownloading
	StateComplete
	StateError
)

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   download.ProgressLevel
}

// row is the latest known progress of one task.
type row struct {
	name  string
	event download.Event
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	settings  *config.Settings
	logger    *slog.Logger
	logs      []LogEntry
	err       error

	// Download context
	ctx    context.Context
	cancel context.CancelFunc

	// Engine and the batch in flight
	engine  *engine.Engine
	sub     *download.Subscription
	tasks   []*download.Task
	rows    map[string]*row
	summary download.Summary
	listed  string

	// Options
	playlist bool
	verbose  bool

	width  int
	height int
}

// NewModel creates a new TUI model.
func NewModel(settings *config.Settings, logger *slog.Logger) Model {
	ti := textinput.New()
	ti.Placeholder = "186016, 186001 or https://music.163.com/#/song?id=186016"
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		settings:  settings,
		logger:    logger,
		logs:      make([]LogEntry, 0),
		rows:      make(map[string]*row),
		ctx:       ctx,
		cancel:    cancel,
		playlist:  settings.CreatePlaylist,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Message types
type (
	// EventMsg carries one event of the scheduler's stream.
	EventMsg struct {
		Event download.Event
	}

	// StreamClosedMsg is sent when the subscription ends.
	StreamClosedMsg struct{}

	// InitDoneMsg is sent when the batch was resolved and enqueued.
	InitDoneMsg struct {
		Engine *engine.Engine
		Sub    *download.Subscription
		Tasks  []*download.Task
		Guest  bool
		Err    error
	}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.state == StateInitializing {
				m.cancel()
			}
			if m.state == StateDownloading {
				// Queued tasks end at once, running ones at their next chunk.
				m.engine.Scheduler.CancelAll()
			}

		case "p":
			if m.state == StateDownloading && m.engine != nil {
				if m.engine.Scheduler.Paused() {
					m.engine.Scheduler.Resume()
				} else {
					m.engine.Scheduler.Pause()
				}
				return m, nil
			}

		case "enter":
			if m.state == StateInput && strings.TrimSpace(m.textInput.Value()) != "" {
				m.state = StateInitializing
				return m, tea.Batch(m.initializeDownload(), m.spinner.Tick)
			}

		// Toggles use control keys so ids and links can be typed freely.
		case "ctrl+p":
			if m.state == StateInput {
				m.playlist = !m.playlist
				return m, nil
			}

		case "ctrl+t":
			if m.state == StateInput {
				m.verbose = !m.verbose
				return m, nil
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				// Reset for new download; the engine is kept.
				if m.sub != nil {
					m.sub.Close()
				}
				m.state = StateInput
				m.logs = nil
				m.err = nil
				m.sub = nil
				m.tasks = nil
				m.rows = make(map[string]*row)
				m.listed = ""
				m.summary = download.Summary{}
				m.ctx, m.cancel = context.WithCancel(context.Background())
				m.textInput.SetValue("")
				m.textInput.Focus()
				return m, nil
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case InitDoneMsg:
		if msg.Engine != nil {
			m.engine = msg.Engine
		}
		if msg.Guest {
			m.logs = append(m.logs, LogEntry{
				Message: "Not logged in: only tracks free for guests are available",
				Level:   download.LevelWarning,
			})
		}
		if msg.Err != nil {
			m.state = StateError
			m.err = msg.Err
			break
		}
		m.sub = msg.Sub
		m.tasks = msg.Tasks
		for _, t := range m.tasks {
			m.rows[t.ID()] = &row{name: rowName(t.Request())}
		}
		m.state = StateDownloading
		// Tasks may all be finished already (skipped or rejected).
		if m.finished() {
			m.complete()
		}
		cmds = append(cmds, waitForEvent(m.sub))

	case EventMsg:
		m.applyEvent(msg.Event)
		if m.state == StateDownloading && m.finished() {
			m.complete()
		}
		cmds = append(cmds, waitForEvent(m.sub))
		if m.state == StateDownloading {
			cmds = append(cmds, m.progress.SetPercent(m.percent()))
		}

	case StreamClosedMsg:
		if m.state == StateDownloading {
			m.complete()
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	// Update text input
	if m.state == StateInput {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// applyEvent records ev in its row and in the log.
func (m *Model) applyEvent(ev download.Event) {
	r, ok := m.rows[ev.TaskID]
	if !ok {
		return
	}
	r.event = ev
	if ev.Path != "" {
		r.name = filepath.Base(ev.Path)
	}

	if ev.Level() == download.LevelVerbose && !m.verbose {
		return
	}
	m.logs = append(m.logs, LogEntry{
		Message: ev.Message(),
		Level:   ev.Level(),
	})
	// Keep only last 10 logs
	if len(m.logs) > 10 {
		m.logs = m.logs[len(m.logs)-10:]
	}
}

// finished reports whether every task of the batch is terminal.
func (m Model) finished() bool {
	for _, t := range m.tasks {
		if !t.Status().State.Terminal() {
			return false
		}
	}
	return true
}

func (m *Model) complete() {
	m.state = StateComplete
	m.summary = download.Summarize(m.tasks)
	if m.playlist && m.summary.Done > 0 {
		path, err := m.engine.WritePlaylist("", m.tasks)
		if err != nil {
			m.logs = append(m.logs, LogEntry{Message: "Playlist not written: " + err.Error(), Level: download.LevelWarning})
		}
		m.listed = path
	}
}

// percent is the fraction of finished tasks.
func (m Model) percent() float64 {
	if len(m.tasks) == 0 {
		return 0
	}
	var done int
	for _, t := range m.tasks {
		if t.Status().State.Terminal() {
			done++
		}
	}
	return float64(done) / float64(len(m.tasks))
}

// waitForEvent returns a command delivering the next event of sub.
func waitForEvent(sub *download.Subscription) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-sub.Events()
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

func rowName(req model.TrackRequest) string {
	if req.Title == "" {
		return req.TrackID
	}
	return req.FileStem()
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	// Header
	b.WriteString(titleStyle.Render("🎵 Cloud Music Downloader"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Download tracks from NetEase Cloud Music"))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StateInitializing:
		b.WriteString(m.viewInitializing())
	case StateDownloading:
		b.WriteString(m.viewDownloading())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	// Footer
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Enter track ids or links:"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s Create playlist (ctrl+p)\n", check(m.playlist)))
	b.WriteString(fmt.Sprintf("  %s Verbose/debug output (ctrl+t)\n", check(m.verbose)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Download path: %s", m.settings.DownloadsPath)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Quality: %s (%s)", m.settings.Quality.Label(), m.settings.Quality)))
	b.WriteString("\n")

	return b.String()
}

func check(on bool) string {
	if on {
		return "[×]"
	}
	return "[ ]"
}

func (m Model) viewInitializing() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render("Fetching track info..."))
	b.WriteString("\n\n")

	// Show logs
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewDownloading() string {
	var b strings.Builder

	// Overall progress bar
	b.WriteString(m.progress.ViewAs(m.percent()))
	b.WriteString("\n")

	var received int64
	finished, active := 0, 0
	for _, t := range m.tasks {
		st := t.Status()
		received += st.Bytes
		if st.State.Terminal() {
			finished++
		}
		if st.State == model.StateDownloading {
			active++
		}
	}
	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"Tracks: %d/%d | Active: %d | Downloaded: %.2f MB",
		finished,
		len(m.tasks),
		active,
		float64(received)/1024/1024,
	)))
	if m.paused() {
		b.WriteString(warningStyle.Render("  ⏸ Paused"))
	}
	b.WriteString("\n\n")

	// One bar per unfinished task
	bar := m.progress
	bar.Width = 30
	shown := 0
	for _, t := range m.tasks {
		r := m.rows[t.ID()]
		if r == nil || r.event.State.Terminal() || shown == maxRows {
			continue
		}
		shown++
		var percent float64
		if r.event.Total > 0 {
			percent = float64(r.event.Bytes) / float64(r.event.Total)
		}
		b.WriteString(trackStyle.Render(fmt.Sprintf("  ♪ %-30.30s ", r.name)))
		b.WriteString(bar.ViewAs(percent))
		b.WriteString(dimStyle.Render(" " + r.event.State.String()))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Logs
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) paused() bool {
	return m.engine != nil && m.engine.Scheduler.Paused()
}

func (m Model) viewComplete() string {
	var b strings.Builder

	var received int64
	for _, t := range m.tasks {
		received += t.Status().Bytes
	}

	text := fmt.Sprintf(
		"✨ Download Complete!\n\n"+
			"Done: %d (skipped %d, untagged %d)\n"+
			"Failed: %d\n"+
			"Canceled: %d\n"+
			"Size: %.2f MB",
		m.summary.Done,
		m.summary.Skipped,
		m.summary.Partial,
		m.summary.Failed,
		m.summary.Canceled,
		float64(received)/1024/1024,
	)
	if m.listed != "" {
		text += "\nPlaylist: " + m.listed
	}
	b.WriteString(boxStyle.Render(text))
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("❌ Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
	}

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "•"
		switch log.Level {
		case download.LevelError:
			style = errorStyle
			prefix = "✗"
		case download.LevelWarning:
			style = warningStyle
			prefix = "!"
		case download.LevelSuccess:
			style = successStyle
			prefix = "✓"
		case download.LevelInfo:
			style = infoStyle
			prefix = "›"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateInput:
		return "enter: start • ctrl+p: write playlist • ctrl+t: verbose • esc: quit"
	case StateInitializing:
		return "esc: cancel • ctrl+c: quit"
	case StateDownloading:
		if m.paused() {
			return "p: resume • esc: cancel • ctrl+c: quit"
		}
		return "p: pause • esc: cancel • ctrl+c: quit"
	case StateComplete, StateError:
		return "r: new download • q: quit"
	}
	return ""
}

// initializeDownload resolves the input to track requests and enqueues
// them. The engine is created on first use.
func (m Model) initializeDownload() tea.Cmd {
	ctx := m.ctx
	input := strings.TrimSpace(m.textInput.Value())
	eng := m.engine
	settings := m.settings
	logger := m.logger

	return func() tea.Msg {
		if eng == nil {
			var err error
			eng, err = engine.New(context.Background(), settings, logger)
			if err != nil {
				return InitDoneMsg{Err: err}
			}
		}

		ids := engine.ParseIDs(input)
		if len(ids) == 0 {
			return InitDoneMsg{Engine: eng, Err: fmt.Errorf("no track ids in %q", input)}
		}
		reqs, err := eng.Requests(ctx, ids)
		if err != nil {
			return InitDoneMsg{Engine: eng, Err: err}
		}
		if len(reqs) == 0 {
			return InitDoneMsg{Engine: eng, Err: fmt.Errorf("nothing to download")}
		}

		sub := eng.Scheduler.Subscribe()
		tasks, err := eng.Scheduler.Enqueue(reqs...)
		if err != nil {
			sub.Close()
			return InitDoneMsg{Engine: eng, Err: err}
		}
		return InitDoneMsg{Engine: eng, Sub: sub, Tasks: tasks, Guest: !eng.LoggedIn(ctx)}
	}
}

// Shutdown stops the engine, if one was started, waiting at most timeout
// for running tasks.
func (m Model) Shutdown(timeout time.Duration) error {
	if m.engine == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return m.engine.Shutdown(ctx)
}

// Run starts the TUI application.
func Run(settings *config.Settings, logger *slog.Logger) error {
	p := tea.NewProgram(NewModel(settings, logger), tea.WithAltScreen())
	final, err := p.Run()
	if m, ok := final.(Model); ok {
		if shutdownErr := m.Shutdown(5 * time.Second); err == nil {
			err = shutdownErr
		}
	}
	return err
}
