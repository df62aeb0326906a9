package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sabercore/saber/pkg/chats/message"
	"github.com/sabercore/saber/pkg/docstore"
	"github.com/sabercore/saber/pkg/rag"
)

// chatMessageMsg delivers a committed chat message from the bridge goroutine.
type chatMessageMsg struct {
	msg message.Message
}

// tokenMsg delivers one streamed completion token from the bridge goroutine.
type tokenMsg struct {
	text string
}

// fileChangeMsg reports a change in the document store.
type fileChangeMsg struct {
	event docstore.Event
}

// inputSubmitMsg carries the text the user submitted from the input box.
type inputSubmitMsg struct {
	text string
}

// sendCompleteMsg is returned by the tea.Cmd that calls sess.Send.
type sendCompleteMsg struct {
	err      error
	duration time.Duration
}

// ingestDoneMsg is returned by the tea.Cmd that builds a corpus.
type ingestDoneMsg struct {
	corpus *rag.Corpus
	err    error
}

// programReadyMsg passes the *tea.Program to the model so it can start bridge goroutines.
type programReadyMsg struct {
	program *tea.Program
}

// initDrainMsg fires after a short delay so that stale terminal responses
// (e.g. OSC 11 background-color replies) are discarded before focusing input.
type initDrainMsg struct{}

// tickMsg drives spinner animation while a turn is in flight.
type tickMsg time.Time
