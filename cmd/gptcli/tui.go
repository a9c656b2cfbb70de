package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/sghael/gpt-cli/internal/chat"
	"github.com/sghael/gpt-cli/internal/completion"
	"github.com/sghael/gpt-cli/internal/input"
	"github.com/sghael/gpt-cli/internal/render"
)

// streamDeltaMsg carries streamed text chunks into the UI event loop.
type streamDeltaMsg struct {
	// Text is the assistant delta text chunk.
	Text string
}

// streamUsageMsg delivers turn accounting into the UI event loop.
type streamUsageMsg struct {
	// Usage is the provider-reported accounting for the turn.
	Usage completion.Usage
}

// streamDoneMsg signals a completed streaming turn.
type streamDoneMsg struct{}

// streamErrorMsg reports an error that occurred during a turn.
type streamErrorMsg struct {
	// Err is the underlying completion error.
	Err error
}

// chatModel drives the full-screen chat UI.
type chatModel struct {
	// app holds the shared conversation, store, and settings.
	app *app
	// display renders streamed markdown incrementally.
	display *render.Session
	// userText is the prompt for the in-flight turn, kept for
	// persistence once the turn completes.
	userText string
	// chatView renders the conversation.
	chatView viewport.Model
	// input collects user input for new turns.
	input textarea.Model
	// inputHistory stores prior user inputs for recall.
	inputHistory []string
	// historyIndex tracks the active position in inputHistory.
	historyIndex int
	// historyDraft preserves the in-progress input when browsing history.
	historyDraft string
	// statusText is the bottom status line.
	statusText string
	// lastUsage tracks accounting for the most recent turn.
	lastUsage *completion.Usage
	// totalCost accumulates cost across turns.
	totalCost float64
	// running indicates an in-flight request.
	running bool
	// streamCh delivers stream messages into the update loop.
	streamCh chan tea.Msg
	// cancel cancels the current request when present.
	cancel context.CancelFunc
	// width tracks the terminal width.
	width int
	// height tracks the terminal height.
	height int
	// quitting indicates a user-requested exit.
	quitting bool
}

// runChatTUI starts the full-screen UI for interactive chats.
func (a *app) runChatTUI() error {
	if !term.IsTerminal(int(0)) || !term.IsTerminal(int(1)) {
		return errors.New("interactive UI requires a TTY")
	}
	program := tea.NewProgram(newChatModel(a), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// newChatModel constructs the initial UI state.
func newChatModel(a *app) *chatModel {
	editor := textarea.New()
	editor.Placeholder = "Type a message..."
	editor.Focus()
	editor.CharLimit = 0
	editor.Prompt = "> "
	editor.SetHeight(3)
	editor.SetWidth(20)

	display := render.NewSession(a.markdown)
	for _, message := range a.session.Messages() {
		switch message.Role {
		case "user":
			display.AddUser("you: " + message.Content)
		case "assistant":
			display.Feed(message.Content)
			display.FinishTurn()
		}
	}

	model := &chatModel{
		app:        a,
		display:    display,
		chatView:   viewport.New(20, 10),
		input:      editor,
		statusText: "Enter: send | Alt+Enter: newline | Ctrl+P/N: history | Ctrl+C: cancel | Ctrl+Q: quit",
	}
	model.historyIndex = len(model.inputHistory)
	model.refreshChat()
	return model
}

// Init starts the blinking cursor for the input field.
func (m *chatModel) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles UI events and streaming updates.
func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.applyWindowSize(typed)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	case streamDeltaMsg:
		m.display.Feed(typed.Text)
		m.refreshChat()
		return m, m.listenStream()
	case streamUsageMsg:
		usage := typed.Usage
		m.lastUsage = &usage
		if cost, ok := usage.Cost(); ok {
			m.totalCost += cost
		}
		return m, m.listenStream()
	case streamDoneMsg:
		m.finishTurn()
		return m, nil
	case streamErrorMsg:
		m.finishError(typed.Err)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the full UI layout.
func (m *chatModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.chatView.View(),
		m.renderInput(),
		m.renderStatus(),
	)
}

// handleKey routes keyboard input and prompt submission.
func (m *chatModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		if m.running {
			m.cancelTurn()
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	case "ctrl+q":
		m.quitting = true
		return m, tea.Quit
	case "pgup":
		m.chatView.LineUp(10)
		return m, nil
	case "pgdown":
		m.chatView.LineDown(10)
		return m, nil
	case "ctrl+p":
		m.cycleInputHistory(-1)
		return m, nil
	case "ctrl+n":
		m.cycleInputHistory(1)
		return m, nil
	}

	if key.Type == tea.KeyEnter && !key.Alt {
		return m.submitInput()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

// submitInput classifies the pending line and starts a turn for
// prompts.
func (m *chatModel) submitInput() (tea.Model, tea.Cmd) {
	if m.running {
		m.statusText = "Wait for the current response or cancel with Ctrl+C."
		return m, nil
	}
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return m, nil
	}
	m.input.SetValue("")

	switch chat.ParseCommand(line) {
	case chat.CommandQuit:
		m.quitting = true
		return m, tea.Quit
	case chat.CommandClear:
		m.app.session.Clear()
		m.display = render.NewSession(m.app.markdown)
		m.refreshChat()
		m.statusText = "Cleared the conversation."
		return m, nil
	case chat.CommandRerun:
		if !m.app.session.PrepareRerun() {
			m.statusText = "Nothing to rerun."
			return m, nil
		}
		return m, m.startTurn(m.app.params, m.app.lastUserText())
	}

	m.appendInputHistory(line)

	text, inlineOptions := input.Extract(line)
	params := m.app.params
	if err := params.Apply(inlineOptions); err != nil {
		m.statusText = err.Error()
		return m, nil
	}
	if text == "" {
		// Options-only lines adjust settings for later turns.
		m.app.params = params
		m.statusText = "Updated settings."
		return m, nil
	}

	m.app.session.AddUser(text)
	m.display.AddUser("you: " + text)
	m.refreshChat()
	return m, m.startTurn(params, text)
}

// startTurn launches the completion request and begins listening for
// stream messages.
func (m *chatModel) startTurn(params chat.Params, userText string) tea.Cmd {
	m.running = true
	m.userText = userText
	m.statusText = "Thinking..."
	m.streamCh = make(chan tea.Msg, 128)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	session := m.app.session
	streamCh := m.streamCh
	go func() {
		defer close(streamCh)
		events, err := session.Send(ctx, params)
		if err != nil {
			streamCh <- streamErrorMsg{Err: err}
			return
		}
		defer events.Close()
		for events.Next() {
			var msg tea.Msg
			switch event := events.Event().(type) {
			case completion.TokenDelta:
				msg = streamDeltaMsg{Text: event.Text}
			case completion.Usage:
				msg = streamUsageMsg{Usage: event}
			}
			select {
			case <-ctx.Done():
				streamCh <- streamErrorMsg{Err: completion.ProviderError(ctx.Err())}
				return
			case streamCh <- msg:
			}
		}
		if err := events.Err(); err != nil {
			streamCh <- streamErrorMsg{Err: err}
			return
		}
		streamCh <- streamDoneMsg{}
	}()

	return m.listenStream()
}

// listenStream waits for the next message from the turn goroutine.
func (m *chatModel) listenStream() tea.Cmd {
	if m.streamCh == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-m.streamCh
		if !ok {
			return nil
		}
		return msg
	}
}

// finishTurn commits the streamed reply into the conversation.
func (m *chatModel) finishTurn() {
	m.running = false
	m.cancel = nil
	m.statusText = ""

	reply := m.display.Live()
	m.display.FinishTurn()
	m.app.session.AddAssistant(reply)
	m.app.persistTurn(m.userText, reply)
	m.refreshChat()
}

// finishError reports a failed turn. A rejected request drops the
// pending prompt so it is not resent.
func (m *chatModel) finishError(err error) {
	m.running = false
	m.cancel = nil
	if m.display.Live() != "" {
		// Keep any partial output on screen.
		m.display.FinishTurn()
		m.refreshChat()
	}
	if errors.Is(err, completion.ErrBadRequest) {
		m.app.session.RollbackUser()
	}
	m.statusText = formatTurnError(err)
}

// cancelTurn aborts the in-flight request.
func (m *chatModel) cancelTurn() {
	if m.cancel != nil {
		m.cancel()
	}
	m.statusText = "Cancelled."
}

// appendInputHistory records an input line for history navigation.
func (m *chatModel) appendInputHistory(line string) {
	m.inputHistory = append(m.inputHistory, line)
	if len(m.inputHistory) > 200 {
		m.inputHistory = m.inputHistory[len(m.inputHistory)-200:]
	}
	m.historyIndex = len(m.inputHistory)
	m.historyDraft = ""
}

// cycleInputHistory moves through prior inputs, preserving the draft.
func (m *chatModel) cycleInputHistory(step int) {
	if len(m.inputHistory) == 0 {
		return
	}
	if m.historyIndex == len(m.inputHistory) {
		m.historyDraft = m.input.Value()
	}
	next := m.historyIndex + step
	if next < 0 {
		next = 0
	}
	if next > len(m.inputHistory) {
		next = len(m.inputHistory)
	}
	m.historyIndex = next
	if next == len(m.inputHistory) {
		m.input.SetValue(m.historyDraft)
	} else {
		m.input.SetValue(m.inputHistory[next])
	}
}

// refreshChat rebuilds the chat viewport and pins it to the bottom.
func (m *chatModel) refreshChat() {
	m.chatView.SetContent(m.display.View())
	m.chatView.GotoBottom()
}

// applyWindowSize resizes the panes to the terminal.
func (m *chatModel) applyWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 1
	statusHeight := 1
	inputHeight := m.input.Height()
	bodyHeight := m.height - headerHeight - statusHeight - inputHeight
	if bodyHeight < 4 {
		bodyHeight = 4
	}

	m.chatView.Width = m.width
	m.chatView.Height = bodyHeight
	m.input.SetWidth(m.width - 2)
	m.refreshChat()
}

// renderHeader builds the top status line.
func (m *chatModel) renderHeader() string {
	style := lipgloss.NewStyle().Bold(true)
	header := fmt.Sprintf("gptcli | chat %s | model %s", m.app.transcriptID, m.app.params.Model)
	if m.running {
		header = header + " | running"
	}
	return style.Render(padRight(header, m.width))
}

// renderInput returns the input box rendering.
func (m *chatModel) renderInput() string {
	style := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	return style.Render(m.input.View())
}

// renderStatus returns the bottom status line.
func (m *chatModel) renderStatus() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	text := m.statusText
	if text == "" {
		text = "Ready"
	}
	if info := m.renderStatusInfo(); info != "" {
		text = fmt.Sprintf("%s | %s", text, info)
	}
	return style.Render(padRight(text, m.width))
}

// renderStatusInfo assembles token and cost information.
func (m *chatModel) renderStatusInfo() string {
	parts := []string{}
	if m.lastUsage != nil && m.lastUsage.TotalTokens > 0 {
		parts = append(parts, fmt.Sprintf("tokens:%d", m.lastUsage.TotalTokens))
	}
	if m.totalCost > 0 {
		parts = append(parts, fmt.Sprintf("cost:$%.4f", m.totalCost))
	}
	return strings.Join(parts, " ")
}

// padRight pads a line with spaces to the given width.
func padRight(text string, width int) string {
	if width <= len(text) {
		return text
	}
	return text + strings.Repeat(" ", width-len(text))
}
