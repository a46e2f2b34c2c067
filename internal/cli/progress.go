package cli

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/sprintpilot/internal/client"
	"github.com/raphaelgruber/sprintpilot/internal/service"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// roundMsg carries one round event from the stream.
type roundMsg service.RoundEvent

// turnDoneMsg carries the finished turn.
type turnDoneMsg struct {
	result *service.ChatResult
	err    error
}

// progressModel shows round progress while a chat turn runs.
type progressModel struct {
	progress progress.Model
	theme    Theme
	rounds   []service.RoundEvent
	result   *service.ChatResult
	done     bool
	quitting bool
	err      error
}

func newProgressModel() progressModel {
	return progressModel{
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(30),
		),
		theme: defaultTheme,
	}
}

// Init starts the progress bar.
func (m progressModel) Init() tea.Cmd {
	return m.progress.Init()
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case roundMsg:
		m.rounds = append(m.rounds, service.RoundEvent(msg))

	case turnDoneMsg:
		m.result, m.err = msg.result, msg.err
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	// The caller prints the reply or the error.
	if m.done {
		return ""
	}
	if m.quitting {
		return m.theme.hintStyle().Render("Cancelled.") + "\n"
	}

	maxRounds := service.MaxRounds
	round := 0
	var activity string
	if n := len(m.rounds); n > 0 {
		last := m.rounds[n-1]
		round, maxRounds = last.Round, last.MaxRounds
		if len(last.ToolCalls) > 0 {
			activity = "calling " + strings.Join(last.ToolCalls, ", ")
		}
	}
	if activity == "" {
		activity = "thinking"
	}

	status := m.theme.statusStyle().Render("[" + activity + "]")
	bar := m.progress.ViewAs(float64(round) / float64(maxRounds))
	counts := fmt.Sprintf("round %d/%d", round, maxRounds)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to cancel")
	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, counts, hint)
}

// runChatWithProgress streams a turn and shows round progress.
// Returns context.Canceled if the user quits before the turn finishes.
func runChatWithProgress(ctx context.Context, c *client.Client, workspaceID string, in client.ChatInput) (*service.ChatResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel())
	go func() {
		res, err := c.ChatStream(ctx, workspaceID, in, func(ev service.RoundEvent) {
			p.Send(roundMsg(ev))
		})
		p.Send(turnDoneMsg{result: res, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("progress UI error: %w", err)
	}
	m, ok := final.(progressModel)
	if !ok {
		return nil, fmt.Errorf("progress UI returned %T", final)
	}
	if m.quitting {
		return nil, context.Canceled
	}
	return m.result, m.err
}
