package main

import (
	"context"
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sabercore/saber/pkg/engine"
)

// appState represents the application state machine.
type appState int

const (
	stateIdle appState = iota
	stateProcessing
)

// appModel is the root bubbletea model.
type appModel struct {
	ctx          context.Context
	eng          *engine.Engine
	sess         *engine.Session
	chatView     chatViewModel
	inputBox     inputModel
	statusBar    statusBarModel
	state        appState
	cancelBridge context.CancelFunc
	cancelSend   context.CancelFunc
	width        int
	height       int
	sendStart    time.Time
}

func newAppModel(ctx context.Context, eng *engine.Engine, sess *engine.Session) appModel {
	return appModel{
		ctx:       ctx,
		eng:       eng,
		sess:      sess,
		chatView:  chatViewModel{},
		inputBox:  newInput(),
		statusBar: newStatusBar(eng, sess),
		state:     stateIdle,
	}
}

func (m appModel) Init() tea.Cmd {
	// Delay focusing the input so that stale terminal escape-sequence
	// responses (e.g. OSC 11 background-color) are drained first.
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg {
		return initDrainMsg{}
	})
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case initDrainMsg:
		cmd := m.inputBox.enable()
		return m, cmd

	case programReadyMsg:
		m.cancelBridge = startBridge(m.ctx, msg.program, m.sess.ID(), m.eng.Events())
		return m, nil

	case inputSubmitMsg:
		return m.handleSubmit(msg)

	case chatMessageMsg:
		cmd := m.chatView.addMessage(msg.msg)
		return m, cmd

	case tokenMsg:
		m.chatView.appendToken(msg.text)
		return m, nil

	case sendCompleteMsg:
		return m.handleSendComplete(msg)

	case ingestDoneMsg:
		return m.handleIngestDone(msg)

	case fileChangeMsg:
		line := dimStyle.Render("  docs: " + msg.event.Op.String() + " " + msg.event.Name)
		return m, tea.Println(line)

	case tickMsg:
		if m.state == stateProcessing {
			m.chatView.advanceSpinner()
			return m, tickCmd()
		}
		return m, nil
	}

	// Delegate to the input box when idle.
	if m.state == stateIdle {
		var cmd tea.Cmd
		m.inputBox, cmd = m.inputBox.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m appModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.chatView.View(),
		m.inputBox.View(),
		m.statusBar.View(),
	)
}

func (m *appModel) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	initMarkdownRenderer(m.width - 4)
	m.inputBox.setWidth(m.width)
	m.chatView.setWidth(m.width)

	return m, nil
}

func (m *appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		if m.cancelSend != nil {
			m.cancelSend()
		}
		if m.cancelBridge != nil {
			m.cancelBridge()
		}
		return m, tea.Quit
	}

	// Esc abandons the in-flight turn; the partial answer is discarded.
	if msg.Type == tea.KeyEsc && m.state == stateProcessing {
		if m.cancelSend != nil {
			m.cancelSend()
		}
		return m, nil
	}

	// Forward to input box when idle.
	if m.state == stateIdle {
		var cmd tea.Cmd
		m.inputBox, cmd = m.inputBox.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *appModel) handleSubmit(msg inputSubmitMsg) (tea.Model, tea.Cmd) {
	text := msg.text

	if strings.HasPrefix(text, "/") {
		return m.handleCommand(text)
	}

	printCmd := tea.Println(renderUserMessage(text))

	m.state = stateProcessing
	m.inputBox.disable()
	m.chatView.setProcessing(true)
	m.sendStart = time.Now()

	sendCtx, cancel := context.WithCancel(m.ctx)
	m.cancelSend = cancel

	// Start the send in a background goroutine via tea.Cmd.
	sess := m.sess
	start := m.sendStart
	sendCmd := func() tea.Msg {
		_, err := sess.Send(sendCtx, text)
		return sendCompleteMsg{err: err, duration: time.Since(start)}
	}

	return m, tea.Batch(printCmd, sendCmd, tickCmd())
}

func (m *appModel) handleSendComplete(msg sendCompleteMsg) (tea.Model, tea.Cmd) {
	if m.cancelSend != nil {
		m.cancelSend()
		m.cancelSend = nil
	}

	m.statusBar.duration = msg.duration
	m.state = stateIdle
	focusCmd := m.inputBox.enable()
	m.chatView.setProcessing(false)

	var printCmd tea.Cmd
	switch {
	case msg.err == nil:
		// The committed answer arrives via chatMessageMsg.
	case m.ctx.Err() != nil:
		// Shutting down; nothing to report.
	case errors.Is(msg.err, context.Canceled):
		m.chatView.clearStream()
		printCmd = tea.Println(dimStyle.Render("  · cancelled"))
	default:
		m.chatView.clearStream()
		printCmd = tea.Println("\n" + errorBlockStyle.Render("error: "+msg.err.Error()))
	}

	return m, tea.Batch(focusCmd, printCmd)
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
