package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sabercore/saber/pkg/chats/chat"
	"github.com/sabercore/saber/pkg/chats/message"
	"github.com/sabercore/saber/pkg/chats/role"
	"github.com/sabercore/saber/pkg/modelprovider"
	"github.com/sabercore/saber/pkg/models"
)

// Session represents one interactive conversation. It owns an append-only
// chat, a generation parameter set, and an optional corpus binding for
// retrieval. Only one Send call may be active at a time; a second concurrent
// Send is rejected rather than queued.
//
// A turn is atomic from the history's point of view: the user message is
// appended first, and on completion failure an error-marker assistant message
// is appended in place of the reply. The one exception is caller
// cancellation, which leaves the user message alone in place.
type Session struct {
	id      string
	eng     *Engine
	events  *EventBus
	created time.Time

	mu       sync.Mutex
	active   bool
	chat     *chat.Chat
	params   models.Parameters
	provider modelprovider.Provider
	corpusID string
}

// turnState is the configuration snapshot one Send call runs with. Updates
// made while a turn is in flight apply from the next turn.
type turnState struct {
	params   models.Parameters
	provider modelprovider.Provider
	corpusID string
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.created }

// History returns a copy of the conversation so far, error markers included.
func (s *Session) History() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chat.Messages()
}

// Parameters returns the session's current generation parameters.
func (s *Session) Parameters() models.Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.params
}

// CorpusID returns the id of the corpus bound for retrieval, or "".
func (s *Session) CorpusID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.corpusID
}

// SetParameters replaces the session's generation parameters after validating
// them against the current provider's capabilities. On validation failure the
// previous parameters stay in effect. The provider id cannot be changed this
// way; use SetProvider.
func (s *Session) SetParameters(p models.Parameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Provider = s.params.Provider
	if err := p.Validate(s.provider.Capabilities()); err != nil {
		return err
	}

	s.params = p
	return nil
}

// SetProvider switches the session to another configured provider. The model
// selection is cleared because model names are provider-specific; the caller
// must set a model via SetParameters before the next Send.
func (s *Session) SetProvider(id string) error {
	prov, ok := s.eng.Provider(id)
	if !ok {
		return &models.ConfigError{Field: "provider", Value: id, Reason: "not configured"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.provider = prov
	s.params.Provider = id
	s.params.Model = ""
	return nil
}

// SetCorpus binds the session to a corpus for retrieval-augmented turns.
// An empty id clears the binding.
func (s *Session) SetCorpus(id string) error {
	if id != "" {
		if _, ok := s.eng.Corpus(id); !ok {
			return fmt.Errorf("engine: corpus %q not found", id)
		}
	}

	s.mu.Lock()
	s.corpusID = id
	s.mu.Unlock()

	return nil
}

// Send appends a text message from the user, runs one completion turn, and
// returns the assistant's reply. Only one Send may be active per session.
//
// On completion failure the user message is kept and an error-marker
// assistant message is appended, so the history still records what was asked;
// the session remains usable for further turns. If ctx is cancelled the
// partial output is discarded and the user message alone remains.
func (s *Session) Send(ctx context.Context, text string) (message.Message, error) {
	turn, err := s.acquire()
	if err != nil {
		return message.Message{}, err
	}
	defer s.release()

	// Configuration problems surface before the history is touched.
	if err := turn.params.Validate(turn.provider.Capabilities()); err != nil {
		return message.Message{}, err
	}

	s.publish(EventTurnStart, nil)

	userMsg := message.New(role.User, text)
	s.append(userMsg)

	reply, err := s.completeTurn(ctx, turn, text)
	if err != nil {
		if ctx.Err() != nil {
			s.publish(EventTurnEnd, nil)
			return message.Message{}, err
		}

		s.append(message.NewFailed("completion failed: " + err.Error()))
		s.publish(EventError, err)
		s.publish(EventTurnEnd, nil)
		return message.Message{}, err
	}

	s.append(reply)
	s.publish(EventTurnEnd, nil)
	return reply, nil
}

// completeTurn runs retrieval and the provider call for one turn. The
// returned message is not yet appended to the history.
func (s *Session) completeTurn(ctx context.Context, turn turnState, text string) (message.Message, error) {
	prompt := text
	var cites []message.Citation

	if turn.corpusID != "" {
		augmented, used, err := s.eng.augment(ctx, turn.corpusID, text, turn.params)
		if err != nil {
			return message.Message{}, err
		}

		prompt = augmented
		for _, sc := range used {
			cites = append(cites, message.Citation{
				ChunkID:    sc.Chunk.ID,
				DocumentID: sc.Chunk.DocumentID,
				Score:      sc.Score,
			})
		}
	}

	callCtx := ctx
	if d := s.eng.callTimeout; d > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	stream, err := turn.provider.Complete(callCtx, s.promptChat(prompt), turn.params)
	if err != nil {
		return message.Message{}, normalizeCallErr(ctx, err)
	}

	var b strings.Builder
drain:
	for {
		select {
		case <-ctx.Done():
			stream.Cancel()
			return message.Message{}, ctx.Err()
		case tok, ok := <-stream.Tokens():
			if !ok {
				break drain
			}
			b.WriteString(tok)
			s.publish(EventToken, tok)
		}
	}

	if err := stream.Err(); err != nil {
		return message.Message{}, normalizeCallErr(ctx, err)
	}

	return message.New(role.Assistant, b.String()).WithCitations(cites), nil
}

// promptChat builds the conversation sent to the provider: the history with
// the final user message replaced by the augmented prompt. Error markers are
// skipped; they document failures for the user, not for the model.
func (s *Session) promptChat(prompt string) *chat.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.chat.Messages()
	out := chat.New()
	for _, m := range msgs[:len(msgs)-1] {
		if m.Failed {
			continue
		}
		out.Append(m)
	}
	out.Append(message.New(role.User, prompt))

	return out
}

// normalizeCallErr maps a per-call deadline to an unavailable-provider error.
// A cancellation coming from the caller's own context passes through.
func normalizeCallErr(ctx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return &modelprovider.UnavailableError{Err: err}
	}
	return err
}

func (s *Session) acquire() (turnState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return turnState{}, fmt.Errorf("engine: session %s: another Send is already active", s.id)
	}
	s.active = true

	return turnState{
		params:   s.params,
		provider: s.provider,
		corpusID: s.corpusID,
	}, nil
}

func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
}

// append adds a message to the history and announces it on the bus.
func (s *Session) append(m message.Message) {
	s.mu.Lock()
	s.chat.Append(m)
	s.mu.Unlock()

	s.publish(EventMessageAdded, m)
}

func (s *Session) publish(kind EventKind, data any) {
	s.events.Publish(Event{
		Kind:      kind,
		SessionID: s.id,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// record captures the session for persistence.
func (s *Session) record() SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionRecord{
		ID:        s.id,
		Params:    s.params,
		CorpusID:  s.corpusID,
		Messages:  s.chat.Messages(),
		CreatedAt: s.created,
		UpdatedAt: time.Now().UTC(),
	}
}
