package modelprovider

import (
	"context"
	"strings"
	"sync"
)

// streamBuffer is the channel capacity between producer and consumer.
const streamBuffer = 16

// Stream is a lazy, finite sequence of completion tokens. Tokens arrive in
// generation order and each token is delivered at most once; a drained
// stream cannot be restarted.
//
// Producers call Send for each token and must call Close exactly once when
// generation ends, passing the terminal error if generation failed mid-way.
// Consumers range over Tokens (or call Text) and check Err after the
// channel closes. Cancel stops generation early; remaining output is
// discarded.
type Stream struct {
	tokens chan string
	done   chan struct{}
	cancel context.CancelFunc

	closeOnce  sync.Once
	cancelOnce sync.Once

	mu  sync.Mutex
	err error
}

// NewStream creates a Stream. cancel, if non-nil, is invoked when the
// consumer calls Cancel, typically to abort the underlying HTTP request.
func NewStream(cancel context.CancelFunc) *Stream {
	if cancel == nil {
		cancel = func() {}
	}
	return &Stream{
		tokens: make(chan string, streamBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// NewTextStream creates an already-completed stream that yields the given
// chunks in order. Useful for backends that only return whole responses.
func NewTextStream(chunks ...string) *Stream {
	s := &Stream{
		tokens: make(chan string, len(chunks)),
		done:   make(chan struct{}),
		cancel: func() {},
	}
	for _, c := range chunks {
		s.tokens <- c
	}
	s.Close(nil)
	return s
}

// Tokens returns the token channel. It is closed when generation ends;
// callers should then check Err.
func (s *Stream) Tokens() <-chan string { return s.tokens }

// Send delivers one token to the consumer. It blocks while the consumer's
// buffer is full and returns false once the stream has been cancelled, at
// which point the producer should stop and Close the stream.
func (s *Stream) Send(tok string) bool {
	select {
	case <-s.done:
		return false
	case s.tokens <- tok:
		return true
	}
}

// Close marks the end of generation. A non-nil err records that the
// sequence terminated abnormally. Close is idempotent.
func (s *Stream) Close(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.tokens)
	})
}

// Cancel stops generation early. The underlying request is aborted and any
// tokens not yet consumed are discarded. Cancel is idempotent.
func (s *Stream) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
}

// Err returns the terminal error recorded by Close. It is only meaningful
// after the Tokens channel has closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Text drains the stream and returns the concatenated output. If ctx is
// cancelled mid-stream the partial output is discarded and ctx's error is
// returned.
func (s *Stream) Text(ctx context.Context) (string, error) {
	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			s.Cancel()
			return "", ctx.Err()
		case tok, ok := <-s.tokens:
			if !ok {
				if err := s.Err(); err != nil {
					return "", err
				}
				return b.String(), nil
			}
			b.WriteString(tok)
		}
	}
}
