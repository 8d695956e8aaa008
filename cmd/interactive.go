package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/gateway/config"
	"github.com/adamgarcia4/goLearning/gateway/gateway"
	"github.com/adamgarcia4/goLearning/gateway/logger"
	"github.com/adamgarcia4/goLearning/gateway/membership"
	"github.com/adamgarcia4/goLearning/gateway/wal"
	"github.com/adamgarcia4/goLearning/gateway/worker"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Run a gateway with stub workers in a terminal UI",
	Long: `Start a gateway and an interactive terminal UI for spawning stub workers
and watching membership, pending requests and logs.

Keyboard shortcuts:
  C - Create a stub worker
  D - Delete a stub worker (shows selection menu)
  P - Pause or resume heartbeats of a stub worker (shows selection menu)
  Q - Quit

Examples:
  gateway interactive
  gateway interactive --transport=http`,
	RunE: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
	config.RegisterFlags(interactiveCmd.Flags())
}

// selection modes
const (
	modeNone   = ""
	modeDelete = "delete"
	modePause  = "pause"
)

const logLines = 15

type model struct {
	gateway *gateway.Gateway
	manager *worker.Manager

	stubs   []*worker.Worker
	live    []membership.WorkerSnapshot
	pending []wal.Entry

	mode         string
	selected     int
	numericInput string // multi-digit index typed in a selection mode
	lastCommand  string // repeated with Enter
	err          error

	logBuffer *logger.LogBuffer
	logScroll int
	width     int
	height    int
}

func newModel(g *gateway.Gateway) model {
	cfg := g.GetConfig()

	template := worker.DefaultConfig("", worker.TransportTCP)
	if cfg.Transport == gateway.TransportUDP {
		template.Transport = worker.TransportUDP
	}
	template.Address = cfg.Address
	template.GatewayHeartbeatAddr = g.HeartbeatAddr().String()

	return model{
		gateway:   g,
		manager:   worker.NewManager(*template),
		logBuffer: logger.GetGlobalLogBuffer(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(), refresh(m.gateway, m.manager))
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type tickMsg struct{}

type refreshedMsg struct {
	stubs   []*worker.Worker
	live    []membership.WorkerSnapshot
	pending []wal.Entry
}

func refresh(g *gateway.Gateway, manager *worker.Manager) tea.Cmd {
	return func() tea.Msg {
		msg := refreshedMsg{
			stubs: manager.GetWorkers(),
			live:  g.Registry().Workers(),
		}
		if log := g.WAL(); log != nil {
			msg.pending = log.ListPending()
		}
		return msg
	}
}

type shutdownCompleteMsg struct {
	err error
}

// shutdown stops the stub workers, then the gateway
func shutdown(g *gateway.Gateway, manager *worker.Manager) tea.Cmd {
	return func() tea.Msg {
		return shutdownCompleteMsg{err: errors.Join(manager.StopAll(), g.Stop())}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, shutdown(m.gateway, m.manager)
		}

		if m.mode != modeNone {
			return m.handleSelectMode(msg)
		}

		switch msg.String() {
		case "c", "C":
			m.createWorker()
			m.lastCommand = "create"
			return m, nil

		case "d", "D":
			return m.enterMode(modeDelete), nil

		case "p", "P":
			return m.enterMode(modePause), nil

		case "enter":
			return m.repeatLast(), nil

		case "up", "k":
			// Scroll logs up (show older logs)
			maxScroll := m.logBuffer.Len() - logLines
			if m.logScroll < maxScroll {
				m.logScroll++
			}
			return m, nil

		case "down", "j":
			if m.logScroll > 0 {
				m.logScroll--
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(tick(), refresh(m.gateway, m.manager))

	case refreshedMsg:
		m.stubs = msg.stubs
		m.live = msg.live
		m.pending = msg.pending
		return m, nil

	case shutdownCompleteMsg:
		if msg.err != nil {
			logger.Errorf("Error during shutdown: %v", msg.err)
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m *model) createWorker() {
	if _, err := m.manager.CreateWorker(); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.stubs = m.manager.GetWorkers()
}

func (m model) enterMode(mode string) model {
	if len(m.stubs) == 0 {
		m.err = fmt.Errorf("no stub workers")
		return m
	}
	m.mode = mode
	m.selected = 0
	m.numericInput = ""
	return m
}

// apply runs the current mode's action on the stub at index
func (m *model) apply(mode string, index int) {
	if index < 0 || index >= len(m.stubs) {
		m.err = fmt.Errorf("worker %d does not exist (max: %d)", index+1, len(m.stubs))
		return
	}

	switch mode {
	case modeDelete:
		if err := m.manager.DeleteWorker(index); err != nil {
			m.err = err
			return
		}
	case modePause:
		w := m.stubs[index]
		w.PauseHeartbeats(!w.HeartbeatsPaused())
	}

	m.err = nil
	m.stubs = m.manager.GetWorkers()
	m.lastCommand = fmt.Sprintf("%s:%d", mode, index)
}

func (m model) repeatLast() model {
	if m.lastCommand == "create" {
		m.createWorker()
		return m
	}
	mode, rawIndex, ok := strings.Cut(m.lastCommand, ":")
	if !ok {
		return m
	}
	if index, err := strconv.Atoi(rawIndex); err == nil {
		m.apply(mode, index)
	}
	return m
}

func (m model) handleSelectMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeNone
		m.selected = 0
		m.numericInput = ""
		m.err = nil

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < len(m.stubs)-1 {
			m.selected++
		}

	case "enter", " ":
		index := m.selected
		if m.numericInput != "" {
			typed := m.numericInput
			m.numericInput = ""
			num, err := strconv.Atoi(typed)
			if err != nil {
				m.err = fmt.Errorf("invalid number: %s", typed)
				return m, nil
			}
			index = num - 1
		}
		m.apply(m.mode, index)
		if m.err == nil {
			m.mode = modeNone
			m.selected = 0
		}

	default:
		key := msg.String()
		if len(key) == 1 && key >= "0" && key <= "9" {
			m.numericInput += key
			return m, nil
		}
		m.numericInput = ""
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(1, 2)
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
	selectedStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			Foreground(lipgloss.Color("196")).
			Bold(true)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true)
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			PaddingTop(1)
)

func (m model) View() string {
	var s strings.Builder

	cfg := m.gateway.GetConfig()
	s.WriteString(titleStyle.Render(fmt.Sprintf("Gateway (%s) on %s", cfg.Transport, m.gateway.Addr())))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	columns := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(48).Render(m.viewLive()),
		lipgloss.NewStyle().Width(48).Render(m.viewStubs()),
	)
	s.WriteString(columns)
	s.WriteString("\n")

	if cfg.Transport == gateway.TransportUDP {
		s.WriteString(m.viewPending())
		s.WriteString("\n")
	}

	s.WriteString(m.viewLogs())
	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.helpText()))
	return s.String()
}

func (m model) viewLive() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(fmt.Sprintf("Live workers (%d)", len(m.live))))
	s.WriteString("\n")
	if len(m.live) == 0 {
		s.WriteString("  none, clients are rejected\n")
	}
	now := time.Now()
	for _, w := range m.live {
		s.WriteString(fmt.Sprintf("  %-22s seen %s ago\n", w.Address, now.Sub(w.LastSeen).Round(100*time.Millisecond)))
	}
	return s.String()
}

func (m model) viewStubs() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(fmt.Sprintf("Stub workers (%d)", len(m.stubs))))
	s.WriteString("\n")
	if len(m.stubs) == 0 {
		s.WriteString("  press C to create one\n")
	}
	for i, w := range m.stubs {
		state := "heartbeating"
		if w.HeartbeatsPaused() {
			state = "paused"
		}
		line := fmt.Sprintf("[%d] %s %s %s, %d handled", i+1, w.ID(), w.Addr(), state, w.Handled())
		if m.mode != modeNone && i == m.selected {
			s.WriteString(selectedStyle.Render("> " + line))
			s.WriteString("\n")
			continue
		}
		s.WriteString("  " + line + "\n")
	}
	return s.String()
}

func (m model) viewPending() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(fmt.Sprintf("Pending requests (%d)", len(m.pending))))
	s.WriteString("\n")
	now := time.Now()
	for i, e := range m.pending {
		if i == 5 {
			s.WriteString(fmt.Sprintf("  ... %d more\n", len(m.pending)-i))
			break
		}
		s.WriteString(fmt.Sprintf("  %s  %d attempts, %s old\n", e.ID, e.Attempts, now.Sub(e.SubmittedAt).Round(time.Second)))
	}
	return s.String()
}

func (m model) viewLogs() string {
	entries := m.logBuffer.GetAll()
	total := len(entries)

	end := total - m.logScroll
	if end < 0 {
		end = 0
	}
	start := end - logLines
	if start < 0 {
		start = 0
	}

	var lines []string
	if total == 0 {
		lines = []string{"     | (no logs yet)"}
	}
	// Newest first; line 0 is the most recent entry
	for i := end - 1; i >= start; i-- {
		lines = append(lines, fmt.Sprintf("%4d | %s", total-1-i, logger.FormatLogEntry(entries[i])))
	}

	boxWidth := 100
	if m.width > 0 {
		boxWidth = m.width - 4
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Height(logLines - 2).
		Width(boxWidth)
	return logStyle.Render("Logs:\n" + strings.Join(lines, "\n"))
}

func (m model) helpText() string {
	if m.mode != modeNone {
		if m.numericInput != "" {
			return fmt.Sprintf("%s: worker %s, Enter to confirm, Esc to cancel", strings.ToUpper(m.mode), m.numericInput)
		}
		return fmt.Sprintf("%s: ↑/↓/j/k or type a worker number (1-%d), Enter to confirm, Esc to cancel",
			strings.ToUpper(m.mode), len(m.stubs))
	}

	text := "C create | D delete | P pause heartbeats"
	if m.lastCommand != "" {
		text += fmt.Sprintf(" | Enter to repeat (%s)", formatCommandPreview(m.lastCommand))
	}
	return text + " | ↑/↓/j/k scroll logs | Q quit"
}

// formatCommandPreview formats the last command for display
func formatCommandPreview(lastCommand string) string {
	if lastCommand == "create" {
		return "C"
	}
	mode, rawIndex, ok := strings.Cut(lastCommand, ":")
	index, err := strconv.Atoi(rawIndex)
	if !ok || err != nil {
		return lastCommand
	}
	key := "D"
	if mode == modePause {
		key = "P"
	}
	return fmt.Sprintf("%s → %d", key, index+1)
}

func runInteractive(cmd *cobra.Command, args []string) error {
	// Logs go to the buffer shown in the UI, not to stdout
	logBuffer := logger.GetGlobalLogBuffer()
	logger.Init("", false)
	logger.AddOutput(logger.NewLogBufferWriter(logBuffer))

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	g, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	if err := g.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	p := tea.NewProgram(newModel(g))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running interactive mode: %w", err)
	}
	return nil
}
