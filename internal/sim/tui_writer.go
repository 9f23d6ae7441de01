package sim

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"storagesim/internal/degradation"
	"storagesim/internal/state"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

// stateMsg carries one storage (or total) state update.
type stateMsg struct{ state.SystemState }

// runMsg carries the run metadata.
type runMsg struct{ RunInfo }

// adminMsg reports admin UI status.
type adminMsg struct{ active bool }

const (
	totalStorageID = "total"
	maxLogLines    = 1000
)

// TUIWriter renders storage states using a bubbletea TUI.
type TUIWriter struct {
	program teaProgram
	done    chan struct{}
	closing atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
// onQuit runs when the user leaves the TUI before Close is called.
func NewTUIWriter(onQuit func()) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	p := tea.NewProgram(newTUIModel(), tea.WithAltScreen())
	w.program = p
	go func() {
		if _, err := p.Run(); err != nil {
			slog.Error("tui stopped", "error", err)
		}
		close(w.done)
		if !w.closing.Load() && onQuit != nil {
			onQuit()
		}
	}()
	return w
}

// BeginRun implements RunObserver.
func (w *TUIWriter) BeginRun(info RunInfo) {
	w.program.Send(runMsg{info})
}

// WriteState implements StateWriter. Total rows are also logged.
func (w *TUIWriter) WriteState(row state.SystemState) error {
	w.program.Send(stateMsg{row})
	if row.StorageID == totalStorageID {
		w.program.Send(logMsg{line: formatTotal(row)})
	}
	return nil
}

// WriteStates implements batch writes.
func (w *TUIWriter) WriteStates(rows []state.SystemState) error {
	for _, r := range rows {
		_ = w.WriteState(r)
	}
	return nil
}

// WriteDegradation logs the final capacity loss of a storage.
func (w *TUIWriter) WriteDegradation(storage string, entries []degradation.Entry) error {
	var cumulative float64
	if n := len(entries); n > 0 {
		cumulative = entries[n-1].Cumulative
	}
	w.program.Send(logMsg{line: fmt.Sprintf("%sDEGRADATION%s storage=%s entries=%d loss=%.6f",
		colorRed, colorReset, storage, len(entries), cumulative)})
	return nil
}

// SetAdminStatus updates the admin UI indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.closing.Store(true)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

func formatTotal(row state.SystemState) string {
	return fmt.Sprintf("%s[%s]%s %sstep=%d%s %sreq=%.1fW%s %sact=%.1fW%s %ssoc=%.3f%s %sfulfil=%.2f%s",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		colorGray, row.Step, colorReset,
		colorBlue, row.RequestedPower, colorReset,
		colorCyan, row.ActualPower, colorReset,
		colorGreen, row.SOC, colorReset,
		colorYellow, row.Fulfillment, colorReset,
	)
}

type keyMap struct {
	Quit    key.Binding
	Wrap    key.Binding
	Scroll  key.Binding
	Summary key.Binding
	Help    key.Binding
	Close   key.Binding
	logs    viewport.KeyMap
}

func newKeyMap() keyMap {
	return keyMap{
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Wrap:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "wrap logs")),
		Scroll:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "follow logs")),
		Summary: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "totals footer")),
		Help:    key.NewBinding(key.WithKeys("h", "?"), key.WithHelp("?", "help")),
		Close:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close help")),
		logs:    viewport.DefaultKeyMap(),
	}
}

func (k keyMap) ShortHelp() []key.Binding { return []key.Binding{k.Help, k.Quit} }

// FullHelp lists the log scroll keys too; they apply while follow is off.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Wrap, k.Scroll, k.Summary},
		{k.logs.Up, k.logs.Down, k.logs.PageUp, k.logs.PageDown},
		{k.Help, k.Close, k.Quit},
	}
}

type tuiModel struct {
	info       RunInfo
	keys       keyMap
	helpView   help.Model
	table      table.Model
	bar        progress.Model
	vp         viewport.Model
	logs       []string
	latest     map[string]state.SystemState
	total      state.SystemState
	admin      bool
	wrap       bool
	autoscroll bool
	summary    bool
	help       bool
	header     string
	height     int
}

func newTUIModel() tuiModel {
	cols := []table.Column{
		{Title: "Storage", Width: 16},
		{Title: "Technology", Width: 14},
		{Title: "Power (W)", Width: 12},
		{Title: "SOC", Width: 7},
		{Title: "SOH", Width: 7},
		{Title: "Temp (K)", Width: 9},
		{Title: "Fulfil", Width: 7},
	}
	m := tuiModel{
		keys:       newKeyMap(),
		helpView:   help.New(),
		table:      table.New(table.WithColumns(cols), table.WithHeight(2)),
		bar:        progress.New(progress.WithDefaultGradient()),
		vp:         viewport.New(0, 0),
		latest:     make(map[string]state.SystemState),
		autoscroll: true,
	}
	m.header = m.renderHeader()
	return m
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.bar.Width = msg.Width / 2
		m.vp.Width = msg.Width
		m.height = msg.Height
		m.header = m.renderHeader()
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		if m.help {
			switch {
			case key.Matches(msg, m.keys.Quit):
				return m, tea.Quit
			case key.Matches(msg, m.keys.Help, m.keys.Close):
				m.help = false
			}
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Wrap):
			m.wrap = !m.wrap
			m.refreshViewport()
			m.header = m.renderHeader()
			m.updateViewportHeight()
		case key.Matches(msg, m.keys.Scroll):
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		case key.Matches(msg, m.keys.Summary):
			m.summary = !m.summary
			m.updateViewportHeight()
		case key.Matches(msg, m.keys.Help):
			m.help = true
		case !m.autoscroll:
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
		return m, nil
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case runMsg:
		m.info = msg.RunInfo
		m.header = m.renderHeader()
		m.updateViewportHeight()
	case stateMsg:
		if msg.StorageID == totalStorageID {
			m.total = msg.SystemState
		} else {
			m.latest[msg.StorageID] = msg.SystemState
			m.refreshTable()
		}
		m.header = m.renderHeader()
	case adminMsg:
		m.admin = msg.active
	}
	return m, nil
}

func (m *tuiModel) refreshTable() {
	ids := make([]string, 0, len(m.latest))
	for id := range m.latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		s := m.latest[id]
		rows = append(rows, table.Row{
			id,
			s.Technology,
			fmt.Sprintf("%.1f", s.ActualPower),
			fmt.Sprintf("%.3f", s.SOC),
			fmt.Sprintf("%.4f", s.SOH),
			fmt.Sprintf("%.1f", s.StackTemperature),
			fmt.Sprintf("%.2f", s.Fulfillment),
		})
	}
	m.table.SetRows(rows)
	m.table.SetHeight(len(rows) + 1)
}

func (m *tuiModel) updateViewportHeight() {
	h := m.height - lipgloss.Height(m.header) - lipgloss.Height(m.renderBottom()) - 2
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) progress() float64 {
	if m.info.Steps <= 0 {
		return 0
	}
	p := float64(m.total.Step+1) / float64(m.info.Steps)
	if p > 1 {
		p = 1
	}
	return p
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	sections := []string{
		m.header,
		divider,
		m.vp.View(),
		divider,
		m.renderBottom(),
	}
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Render("storagesim")
	run := m.info.Name
	if run == "" {
		run = "waiting for run"
	}
	line := fmt.Sprintf("%s %s system=%s run_id=%s dt=%s", title, run, m.info.System, m.info.ID, m.info.Timestep)
	if m.wrap && m.vp.Width > 0 {
		line = wordwrap.String(line, m.vp.Width)
	}
	bar := fmt.Sprintf("%s %d/%d", m.bar.ViewAs(m.progress()), m.total.Step+1, m.info.Steps)
	return lipgloss.JoinVertical(lipgloss.Left, line, bar, m.table.View())
}

func (m tuiModel) renderSummary() string {
	return fmt.Sprintf("%sSUMMARY%s %scapacity=%.0fWh%s %ssoc=%.3f%s %ssoh=%.4f%s %slosses=%.1fW%s %sh2_prod=%.4f%s %sh2_cons=%.4f%s",
		colorBlue, colorReset,
		colorGreen, m.total.Capacity, colorReset,
		colorGreen, m.total.SOC, colorReset,
		colorMagenta, m.total.SOH, colorReset,
		colorYellow, m.total.Losses, colorReset,
		colorCyan, m.total.H2Production, colorReset,
		colorCyan, m.total.H2Consumption, colorReset,
	)
}

func indicator(on bool) string {
	c := lipgloss.Color("9")
	if on {
		c = lipgloss.Color("10")
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m tuiModel) renderBottom() string {
	st := fmt.Sprintf("%sTOTAL%s %sreq=%.1fW%s %sact=%.1fW%s %sfulfil=%.2f%s",
		colorBlue, colorReset,
		colorBlue, m.total.RequestedPower, colorReset,
		colorCyan, m.total.ActualPower, colorReset,
		colorYellow, m.total.Fulfillment, colorReset)
	line := fmt.Sprintf("%s | admin %s | wrap %s | follow %s | %s",
		st, indicator(m.admin), indicator(m.wrap), indicator(m.autoscroll), m.helpView.ShortHelpView(m.keys.ShortHelp()))
	if m.summary {
		return fmt.Sprintf("%s\n%s", m.renderSummary(), line)
	}
	return line
}

func (m tuiModel) renderHelp() string {
	title := lipgloss.NewStyle().Bold(true).Render("storagesim keys")
	return lipgloss.JoinVertical(lipgloss.Left, title, "", m.helpView.FullHelpView(m.keys.FullHelp()))
}
