package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sabercore/saber/pkg/chats/message"
	"github.com/sabercore/saber/pkg/chats/role"
)

// chatViewModel manages the live portion of the conversation: the answer
// streaming in token by token, and a spinner while waiting for the first
// token. Committed content is printed to the terminal scrollback via
// tea.Println and is not part of this view.
type chatViewModel struct {
	answer        string // streamed tokens of the in-flight answer
	processing    bool   // true while a turn is in flight
	spinnerIdx    int    // frame index for the processing spinner
	processingMsg string // random message shown while waiting for tokens
	width         int
}

// View renders only the live portion. The streamed answer is shown raw;
// markdown rendering happens once, when the final message is committed.
func (m chatViewModel) View() string {
	if m.answer != "" {
		wrap := lipgloss.NewStyle().Width(max(m.width-2, 20))
		return wrap.Render(answerPrefixStyle.Render("🤖 assistant > ")+m.answer) + "\n"
	}

	if m.processing {
		frame := spinnerFrames[m.spinnerIdx%len(spinnerFrames)]
		return fmt.Sprintf("  %s %s\n",
			spinnerStyle.Render(frame),
			spinnerStyle.Render(m.processingMsg),
		)
	}

	return ""
}

// addMessage processes a committed chat message. Assistant answers are
// returned as a tea.Println command for the terminal scrollback. User
// messages are printed at submit time and error markers at send completion,
// so both are skipped here.
func (m *chatViewModel) addMessage(msg message.Message) tea.Cmd {
	if msg.Role != role.Assistant {
		return nil
	}

	m.answer = ""

	if msg.Failed {
		return nil // surfaced via sendCompleteMsg
	}

	rendered := renderMarkdown(msg.Text)
	line := "\n" + answerBlockStyle.Render(answerPrefixStyle.Render("🤖 assistant > ")+rendered)
	if len(msg.Citations) > 0 {
		line += "\n" + citationLine(len(msg.Citations))
	}

	return tea.Println(line)
}

// appendToken accumulates one streamed token into the live answer.
func (m *chatViewModel) appendToken(text string) {
	m.answer += text
}

// clearStream discards any partially streamed answer.
func (m *chatViewModel) clearStream() {
	m.answer = ""
}

// streaming reports whether a partial answer is on screen.
func (m chatViewModel) streaming() bool {
	return strings.TrimSpace(m.answer) != ""
}

// setProcessing sets the processing state and picks a random spinner message.
func (m *chatViewModel) setProcessing(on bool) {
	m.processing = on
	if on {
		m.answer = ""
		m.processingMsg = randomThinkingMessage()
	}
}

// advanceSpinner increments the spinner frame.
func (m *chatViewModel) advanceSpinner() {
	m.spinnerIdx++
}

func (m *chatViewModel) setWidth(w int) {
	m.width = w
}
