package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// maxMessages is how many log lines the progress view keeps on screen
const maxMessages = 8

type stageMsg struct {
	stage string
}

type recordsMsg ReportStats

type messageMsg string

type exportDoneMsg struct {
	result *ExportResult
	err    error
}

var (
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Margin(0, 2)

	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Margin(0, 2)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true).
			Margin(0, 2)

	progressInfoStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#888888")).
				Margin(0, 2)
)

type progressModel struct {
	spinner    spinner.Model
	bar        progress.Model
	stage      string
	stats      ReportStats
	messages   []string
	cancel     context.CancelFunc
	cancelling bool
	done       bool
	result     *ExportResult
	err        error
	width      int
}

func newProgressModel(cancel context.CancelFunc) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return progressModel{
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(60)),
		stage:   StageConnecting,
		cancel:  cancel,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if msg.Width > 20 {
			m.bar.Width = min(msg.Width-10, 80)
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case stageMsg:
		m.stage = msg.stage
		return m, nil
	case recordsMsg:
		m.stats = ReportStats(msg)
		return m, nil
	case messageMsg:
		m.messages = append(m.messages, string(msg))
		if len(m.messages) > maxMessages {
			m.messages = m.messages[len(m.messages)-maxMessages:]
		}
		return m, nil
	case exportDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

// handleKeyMsg cancels the export on ctrl+c or q. The program keeps running
// until the export reports back so the partial result is not lost.
func (m progressModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() != "ctrl+c" && msg.String() != "q" {
		return m, nil
	}
	if !m.cancelling && m.cancel != nil {
		m.cancelling = true
		m.cancel()
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}

	var sections []string
	sections = append(sections, "", headerStyle.Render("OPAC tabs export"), "")

	stage := m.stage
	if m.cancelling {
		stage = "Cancelling..."
	}
	sections = append(sections, stageStyle.Render(fmt.Sprintf("%s %s", m.spinner.View(), stage)))

	if m.stats.Total > 0 {
		percent := float64(m.stats.Processed()) / float64(m.stats.Total)
		if percent > 1 {
			percent = 1
		}
		sections = append(sections,
			progressInfoStyle.Render(fmt.Sprintf("Records: %d/%d (skipped %d)", m.stats.Processed(), m.stats.Total, m.stats.Skipped)),
			"  "+m.bar.ViewAs(percent),
		)
	}

	sections = append(sections, "", helpStyle.Render("Log:"))
	if len(m.messages) == 0 {
		sections = append(sections, "    (waiting for operations...)")
	}
	for _, line := range m.messages {
		sections = append(sections, "    "+line)
	}

	separatorWidth := 60
	if m.width > 10 && m.width < 200 {
		separatorWidth = m.width - 6
	}
	sections = append(sections,
		"",
		lipgloss.NewStyle().Foreground(lipgloss.Color("#444")).Render("  "+strings.Repeat("─", separatorWidth)),
		helpStyle.Render("Press Ctrl+C or 'q' to cancel"),
	)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// programLogHandler sends log lines to the progress view instead of the
// terminal, which the view owns while the program runs
type programLogHandler struct {
	program *tea.Program
	level   slog.Leveler
}

func newProgramLogHandler(program *tea.Program, level slog.Leveler) *programLogHandler {
	return &programLogHandler{program: program, level: level}
}

func (h *programLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *programLogHandler) Handle(_ context.Context, r slog.Record) error {
	if h.program == nil || r.Message == "" {
		return nil
	}
	h.program.Send(messageMsg(fmt.Sprintf("%s %s", r.Time.Format("15:04:05"), r.Message)))
	return nil
}

func (h *programLogHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *programLogHandler) WithGroup(_ string) slog.Handler {
	return h
}

// runExportWithProgress runs the export behind the progress view and returns
// once both have finished
func runExportWithProgress(ctx context.Context, exporter *Exporter, level slog.Level) (*ExportResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(newProgressModel(cancel), tea.WithoutSignalHandler())

	previous := exporter.logger
	exporter.attachProgram(program, level)
	defer exporter.detachProgram(previous)

	done := make(chan exportDoneMsg, 1)
	go func() {
		result, err := exporter.Run(ctx)
		msg := exportDoneMsg{result: result, err: err}
		done <- msg
		program.Send(msg)
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("progress display failed: %w", err)
	}

	msg := <-done
	return msg.result, msg.err
}
