// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/llmchat/lib/exchange"
	"github.com/bureau-foundation/llmchat/lib/tui"
	"github.com/bureau-foundation/llmchat/lib/turn"
)

// inputPlaceholder is shown in the empty input box.
const inputPlaceholder = "Type your message here..."

// chromeLines is the number of rows outside the transcript: header,
// separator, input, status bar.
const chromeLines = 4

// snapshotMsg carries one exchange snapshot into the update loop.
type snapshotMsg struct {
	generation int
	history    turn.History
}

// exchangeDoneMsg reports that an exchange's snapshot sequence ended.
type exchangeDoneMsg struct {
	generation int
	state      exchange.State
	err        error
	kind       exchange.FailureKind
}

// Config configures a Model.
type Config struct {
	// Orchestrator runs exchanges. Required.
	Orchestrator *exchange.Orchestrator

	// Endpoint and ModelName are shown in the header.
	Endpoint  string
	ModelName string

	// Context is the parent of every exchange context. Defaults to
	// context.Background().
	Context context.Context
}

// Model is the bubbletea model for the chat TUI.
type Model struct {
	orchestrator *exchange.Orchestrator
	parent       context.Context
	endpoint     string
	modelName    string
	theme        tui.Theme
	keys         KeyMap

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *transcriptRenderer

	// history is the committed conversation handed to the next
	// exchange. transcript is what is displayed: history itself, or
	// the latest snapshot of the exchange in progress.
	history    turn.History
	transcript turn.History

	// Exchange in progress. generation increments per exchange and on
	// clear, so messages from an abandoned exchange are recognized
	// and dropped.
	streaming  bool
	generation int
	cancel     context.CancelFunc
	events     <-chan tea.Msg

	// followTail keeps the transcript pinned to the bottom as a reply
	// grows, until the user scrolls up.
	followTail bool

	status         string
	statusLevel    slog.Level
	statusSequence int

	width  int
	height int
	ready  bool
}

// NewModel creates a chat model with an empty conversation.
func NewModel(config Config) Model {
	parent := config.Context
	if parent == nil {
		parent = context.Background()
	}

	theme := tui.DefaultTheme

	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = inputPlaceholder
	input.PromptStyle = lipgloss.NewStyle().Foreground(theme.UserLabel)
	input.Focus()

	indicator := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(theme.Accent)),
	)

	return Model{
		orchestrator: config.Orchestrator,
		parent:       parent,
		endpoint:     config.Endpoint,
		modelName:    config.ModelName,
		theme:        theme,
		keys:         DefaultKeyMap,
		input:        input,
		spinner:      indicator,
		renderer:     newTranscriptRenderer(theme),
		followTail:   true,
	}
}

// History returns the committed conversation.
func (model Model) History() turn.History {
	return model.history
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return textinput.Blink
}

// runExchange returns a command that ranges over an exchange's
// snapshots and forwards each one to events, then reports the
// outcome. Sends block until the update loop takes the previous
// message, so the provider stream advances in lock-step with the
// display. Cancelling ctx abandons the exchange, which closes the
// provider stream.
func runExchange(ctx context.Context, run *exchange.Exchange, generation int, events chan<- tea.Msg) tea.Cmd {
	return func() tea.Msg {
		defer close(events)
		for snapshot := range run.Snapshots() {
			select {
			case events <- snapshotMsg{generation: generation, history: snapshot}:
			case <-ctx.Done():
				return nil
			}
		}
		done := exchangeDoneMsg{
			generation: generation,
			state:      run.State(),
			err:        run.Err(),
			kind:       run.FailureKind(),
		}
		select {
		case events <- done:
		case <-ctx.Done():
		}
		return nil
	}
}

// waitForExchange returns a command that delivers the next message
// from an exchange.
func waitForExchange(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		message, ok := <-events
		if !ok {
			return nil
		}
		return message
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		return model.handleKey(message)

	case tea.MouseMsg:
		switch message.Button {
		case tea.MouseButtonWheelUp:
			model.viewport.LineUp(3)
			model.followTail = model.viewport.AtBottom()
		case tea.MouseButtonWheelDown:
			model.viewport.LineDown(3)
			model.followTail = model.viewport.AtBottom()
		}

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.layout()
		model.refresh()

	case snapshotMsg:
		if message.generation != model.generation {
			return model, nil
		}
		model.transcript = message.history
		model.refresh()
		return model, waitForExchange(model.events)

	case exchangeDoneMsg:
		if message.generation != model.generation {
			return model, nil
		}
		return model.finishExchange()

	case spinner.TickMsg:
		if !model.streaming {
			return model, nil
		}
		var command tea.Cmd
		model.spinner, command = model.spinner.Update(message)
		model.refresh()
		return model, command

	case statusMsg:
		model.statusSequence++
		model.status = message.Text
		model.statusLevel = message.Level
		sequence := model.statusSequence
		return model, tea.Tick(statusFadeDelay, func(time.Time) tea.Msg {
			return statusFadeMsg{sequence: sequence}
		})

	case statusFadeMsg:
		if message.sequence == model.statusSequence {
			model.status = ""
		}

	default:
		if !model.streaming {
			var command tea.Cmd
			model.input, command = model.input.Update(message)
			return model, command
		}
	}
	return model, nil
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		model.abandonExchange()
		return model, tea.Quit

	case key.Matches(message, model.keys.Clear):
		model.abandonExchange()
		model.history = nil
		model.transcript = nil
		model.renderer.reset()
		model.followTail = true
		model.viewport.GotoTop()
		model.refresh()
		return model, model.input.Focus()

	case key.Matches(message, model.keys.Send):
		if model.streaming {
			return model, nil
		}
		return model.startExchange()

	case key.Matches(message, model.keys.LineUp):
		model.viewport.LineUp(1)
		model.followTail = model.viewport.AtBottom()

	case key.Matches(message, model.keys.LineDown):
		model.viewport.LineDown(1)
		model.followTail = model.viewport.AtBottom()

	case key.Matches(message, model.keys.PageUp):
		model.viewport.LineUp(max(model.viewport.Height-1, 1))
		model.followTail = model.viewport.AtBottom()

	case key.Matches(message, model.keys.PageDown):
		model.viewport.LineDown(max(model.viewport.Height-1, 1))
		model.followTail = model.viewport.AtBottom()

	case key.Matches(message, model.keys.Top):
		model.viewport.GotoTop()
		model.followTail = model.viewport.AtBottom()

	case key.Matches(message, model.keys.Bottom):
		model.viewport.GotoBottom()
		model.followTail = true

	default:
		if model.streaming {
			return model, nil
		}
		var command tea.Cmd
		model.input, command = model.input.Update(message)
		return model, command
	}
	return model, nil
}

// startExchange sends the input as a new user message. Blank input
// is ignored.
func (model Model) startExchange() (tea.Model, tea.Cmd) {
	message := model.input.Value()
	if strings.TrimSpace(message) == "" {
		return model, nil
	}
	model.input.Reset()
	model.input.Blur()

	ctx, cancel := context.WithCancel(model.parent)
	events := make(chan tea.Msg)
	model.generation++
	model.streaming = true
	model.cancel = cancel
	model.events = events
	model.followTail = true
	model.transcript = model.history.Append(turn.User(message))
	model.refresh()

	run := model.orchestrator.Start(ctx, message, model.history)
	return model, tea.Batch(
		runExchange(ctx, run, model.generation, events),
		waitForExchange(events),
		model.spinner.Tick,
	)
}

// finishExchange commits the final snapshot as the new history.
func (model Model) finishExchange() (tea.Model, tea.Cmd) {
	model.streaming = false
	if model.cancel != nil {
		model.cancel()
		model.cancel = nil
	}
	model.events = nil

	// Every exchange that runs to its end yields at least one
	// snapshot ending in an assistant turn.
	if last, ok := model.transcript.Last(); ok && last.Role == turn.RoleAssistant {
		model.history = model.transcript
	} else {
		model.transcript = model.history
	}
	model.refresh()
	return model, model.input.Focus()
}

// abandonExchange cancels the exchange in progress, if any, and
// forgets it. The committed history is unchanged.
func (model *Model) abandonExchange() {
	if model.cancel != nil {
		model.cancel()
		model.cancel = nil
	}
	if model.streaming {
		model.streaming = false
		model.transcript = model.history
	}
	model.events = nil
	model.generation++
}

// layout sizes the viewport and input for the current window.
func (model *Model) layout() {
	transcriptWidth := max(model.width-1, 1)
	model.viewport.Width = transcriptWidth
	model.viewport.Height = max(model.height-chromeLines, 1)
	model.input.Width = max(model.width-lipgloss.Width(model.input.Prompt)-1, 1)
	model.renderer.setWidth(max(transcriptWidth-1, 1))
}

// refresh re-renders the transcript into the viewport.
func (model *Model) refresh() {
	if !model.ready {
		return
	}
	pending := ""
	if model.streaming {
		pending = model.spinner.View()
		if last, ok := model.transcript.Last(); !ok || last.Role != turn.RoleAssistant {
			pending += " " + lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("waiting for reply")
		}
	}
	model.viewport.SetContent(model.renderer.render(model.transcript, pending))
	if model.followTail {
		model.viewport.GotoBottom()
	}
}

// View implements tea.Model.
func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}

	transcript := model.viewport.View()
	if len(model.transcript) == 0 && !model.streaming {
		transcript = lipgloss.NewStyle().
			Width(model.viewport.Width).
			Height(model.viewport.Height).
			Foreground(model.theme.FaintText).
			Render("\n  No messages yet. Type below and press enter.")
	}
	scrollbar := tui.RenderScrollbar(model.theme, model.viewport.Height,
		model.viewport.TotalLineCount(), model.viewport.Height, model.viewport.YOffset)

	separator := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor).
		Render(strings.Repeat("─", model.width))

	return strings.Join([]string{
		model.renderHeader(),
		lipgloss.JoinHorizontal(lipgloss.Top, transcript, scrollbar),
		separator,
		model.input.View(),
		model.renderStatus(),
	}, "\n")
}

// renderHeader renders the connection line.
func (model Model) renderHeader() string {
	endpoint := model.endpoint
	if endpoint == "" {
		endpoint = "(no endpoint configured)"
	}
	modelName := model.modelName
	if modelName == "" {
		modelName = "(no model configured)"
	}
	line := fmt.Sprintf(" Connected to: %s | Model: %s", endpoint, modelName)
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(model.theme.HeaderForeground).
		Background(model.theme.HeaderBackground).
		Width(model.width).
		Render(ansi.Truncate(line, model.width, "…"))
}

// renderStatus renders the bottom line: the latest log record while
// one is showing, the key help otherwise.
func (model Model) renderStatus() string {
	if model.status != "" {
		return lipgloss.NewStyle().
			Foreground(model.theme.LevelColor(model.statusLevel)).
			Render(ansi.Truncate(" "+model.status, model.width, "…"))
	}

	bindings := []key.Binding{model.keys.Send, model.keys.Clear, model.keys.PageUp, model.keys.PageDown, model.keys.Quit}
	if model.streaming {
		bindings = []key.Binding{model.keys.Clear, model.keys.PageUp, model.keys.PageDown, model.keys.Quit}
	}
	parts := make([]string, 0, len(bindings)+1)
	if model.streaming {
		parts = append(parts, "streaming reply")
	}
	for _, binding := range bindings {
		help := binding.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	return lipgloss.NewStyle().
		Foreground(model.theme.HelpText).
		Render(ansi.Truncate(" "+strings.Join(parts, "  "), model.width, "…"))
}
