package main

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sabercore/saber/pkg/chats/message"
	"github.com/sabercore/saber/pkg/docstore"
	"github.com/sabercore/saber/pkg/engine"
)

// startBridge launches the event watcher goroutine that converts engine
// events into bubbletea messages. It only calls p.Send() — it never touches
// model state directly. Returns a cancel function that cancels the bridge
// context and waits for the goroutine to exit, ensuring no stale messages
// are sent after return.
func startBridge(ctx context.Context, p *tea.Program, sessionID string, events *engine.EventBus) context.CancelFunc {
	bridgeCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	sub := events.Subscribe(64)

	wg.Go(func() {
		defer events.Unsubscribe(sub)
		for {
			select {
			case <-bridgeCtx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				switch ev.Kind {
				case engine.EventToken:
					if ev.SessionID != sessionID {
						continue
					}
					tok, ok := ev.Data.(string)
					if !ok {
						continue
					}
					p.Send(tokenMsg{text: tok})

				case engine.EventMessageAdded:
					if ev.SessionID != sessionID {
						continue
					}
					msg, ok := ev.Data.(message.Message)
					if !ok {
						continue
					}
					p.Send(chatMessageMsg{msg: msg})

				case engine.EventFileChange:
					fe, ok := ev.Data.(docstore.Event)
					if !ok {
						continue
					}
					p.Send(fileChangeMsg{event: fe})
				}
			}
		}
	})

	return func() {
		cancel()
		wg.Wait()
	}
}
