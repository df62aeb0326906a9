package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sabercore/saber/pkg/chats/chat"
	"github.com/sabercore/saber/pkg/chats/message"
	"github.com/sabercore/saber/pkg/chats/role"
	"github.com/sabercore/saber/pkg/docstore"
	"github.com/sabercore/saber/pkg/modelprovider"
	"github.com/sabercore/saber/pkg/modelprovider/usage"
	"github.com/sabercore/saber/pkg/models"
	"github.com/sabercore/saber/pkg/rag"
	"github.com/sabercore/saber/pkg/saberdir"
	"github.com/sabercore/saber/pkg/state"
	"github.com/sabercore/saber/pkg/vectorindex/memory"
	"github.com/sabercore/saber/pkg/vectorindex/qdrant"
)

// embedCacheSize and embedCacheTTL bound the embedding result cache shared by
// ingestion and retrieval.
const (
	embedCacheSize = 1024
	embedCacheTTL  = time.Hour
)

// SessionRecord is the persisted form of a session: its full transcript and
// the configuration needed to resume it. Saving and loading a record
// round-trips both exactly.
type SessionRecord struct {
	ID        string            `json:"id"`
	Params    models.Parameters `json:"params"`
	CorpusID  string            `json:"corpus_id,omitempty"`
	Messages  []message.Message `json:"messages"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Engine is the composition root that assembles all saber components from
// configuration and exposes them through a frontend-agnostic API.
type Engine struct {
	cfg         Config
	dir         saberdir.Dir
	log         *zap.Logger
	events      *EventBus
	callTimeout time.Duration

	completers map[string]modelprovider.Provider
	raw        map[string]modelprovider.Provider
	embedder   rag.EmbeddingClient
	index      rag.VectorIndex
	ingestor   *rag.Ingestor
	batch      *rag.BatchEmbedder
	retriever  *rag.Retriever

	docs         *docstore.Store
	sessionStore *state.Store[SessionRecord]
	corpusStore  *state.Store[rag.Corpus]

	qdrantIndex *qdrant.Index
	ensureOnce  sync.Once
	ensureErr   error

	mu       sync.Mutex
	sessions map[string]*Session
	corpora  map[string]*rag.Corpus
	seq      int
}

// New creates an Engine from the given configuration and workspace directory.
// It validates the config, builds provider adapters, opens the document and
// state stores, constructs the retrieval pipeline, and loads persisted
// corpora back into the vector index.
func New(ctx context.Context, cfg Config, dir saberdir.Dir, log *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	timeout, err := cfg.requestTimeout()
	if err != nil {
		return nil, fmt.Errorf("engine: config: invalid request_timeout %q: %w", cfg.RequestTimeout, err)
	}

	e := &Engine{
		cfg:         cfg,
		dir:         dir,
		log:         log,
		events:      NewEventBus(),
		callTimeout: timeout,
		completers:  make(map[string]modelprovider.Provider, len(cfg.Providers)),
		raw:         make(map[string]modelprovider.Provider, len(cfg.Providers)),
		sessions:    make(map[string]*Session),
		corpora:     make(map[string]*rag.Corpus),
	}

	for id, pc := range cfg.Providers {
		wrapped, raw, err := buildProvider(id, pc, cfg.RetryLimit)
		if err != nil {
			return nil, fmt.Errorf("engine: provider %q: %w", id, err)
		}
		e.completers[id] = wrapped
		e.raw[id] = raw
	}

	e.docs, err = docstore.New(dir.DocsDir())
	if err != nil {
		return nil, fmt.Errorf("engine: open document store: %w", err)
	}
	e.sessionStore, err = state.NewStore[SessionRecord](dir.SessionsDir())
	if err != nil {
		return nil, fmt.Errorf("engine: open session store: %w", err)
	}
	e.corpusStore, err = state.NewStore[rag.Corpus](dir.CorporaDir())
	if err != nil {
		return nil, fmt.Errorf("engine: open corpus store: %w", err)
	}

	e.ingestor, err = rag.NewIngestor(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	if err := e.buildIndex(); err != nil {
		return nil, err
	}

	e.embedder = e.chooseEmbedder()
	if e.embedder != nil {
		e.batch = rag.NewBatchEmbedder(e.embedder, rag.EmbedOpts{
			BatchSize:  cfg.EmbeddingBatchSize,
			MaxRetries: cfg.RetryLimit,
		})
		e.retriever = rag.NewRetriever(e.embedder, e.index)
	}

	if err := e.loadCorpora(ctx); err != nil {
		return nil, err
	}

	return e, nil
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus { return e.events }

// Docs returns the document store backing corpus ingestion.
func (e *Engine) Docs() *docstore.Store { return e.docs }

// WatchDocs forwards document store changes onto the event bus until ctx is
// cancelled. It blocks; callers typically run it in a goroutine.
func (e *Engine) WatchDocs(ctx context.Context) error {
	ch, err := e.docs.Watch(ctx)
	if err != nil {
		return err
	}

	for ev := range ch {
		e.events.Publish(Event{Kind: EventFileChange, Timestamp: time.Now(), Data: ev})
	}

	return ctx.Err()
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Provider returns the configured provider with the given id.
func (e *Engine) Provider(id string) (modelprovider.Provider, bool) {
	p, ok := e.completers[id]
	return p, ok
}

// ProviderIDs returns the configured provider ids, sorted.
func (e *Engine) ProviderIDs() []string {
	ids := make([]string, 0, len(e.completers))
	for id := range e.completers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UsageTotals sums token usage across all providers that report it.
func (e *Engine) UsageTotals() usage.TokenCount {
	var total usage.TokenCount
	for _, p := range e.completers {
		ur, ok := p.(modelprovider.UsageReporter)
		if !ok {
			continue
		}
		t := ur.UsageTracker().Total()
		total.InputTokens += t.InputTokens
		total.OutputTokens += t.OutputTokens
	}
	return total
}

// NewSession creates a session seeded with the config's generation
// parameters. The parameters are validated against the active provider
// before the session exists, so an invalid config never produces a session.
func (e *Engine) NewSession() (*Session, error) {
	prov := e.completers[e.cfg.ProviderID]
	params := e.cfg.Parameters()
	if err := params.Validate(prov.Capabilities()); err != nil {
		return nil, err
	}

	s := &Session{
		eng:      e,
		events:   e.events,
		created:  time.Now().UTC(),
		chat:     chat.New(),
		params:   params,
		provider: prov,
	}
	if e.cfg.SystemMessage != "" {
		s.chat.Append(message.New(role.System, e.cfg.SystemMessage))
	}

	e.mu.Lock()
	s.id = e.nextSessionIDLocked()
	e.sessions[s.id] = s
	e.mu.Unlock()

	return s, nil
}

// Session returns a live session by id.
func (e *Engine) Session(id string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	return s, ok
}

// SaveSession persists a live session's transcript and configuration.
func (e *Engine) SaveSession(id string) error {
	s, ok := e.Session(id)
	if !ok {
		return fmt.Errorf("engine: session %q not found", id)
	}

	return e.sessionStore.Save(id, s.record())
}

// LoadSession restores a persisted session. If the session is already live
// it is returned as-is; loading never clobbers in-memory state.
func (e *Engine) LoadSession(id string) (*Session, error) {
	if s, ok := e.Session(id); ok {
		return s, nil
	}

	rec, err := e.sessionStore.Load(id)
	if err != nil {
		return nil, fmt.Errorf("engine: load session: %w", err)
	}

	prov, ok := e.completers[rec.Params.Provider]
	if !ok {
		return nil, fmt.Errorf("engine: session %q: provider %q not configured", id, rec.Params.Provider)
	}

	s := &Session{
		id:       rec.ID,
		eng:      e,
		events:   e.events,
		created:  rec.CreatedAt,
		chat:     chat.New(rec.Messages...),
		params:   rec.Params,
		provider: prov,
		corpusID: rec.CorpusID,
	}

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	return s, nil
}

// ListSessions returns the ids of all persisted sessions, sorted.
func (e *Engine) ListSessions() ([]string, error) {
	return e.sessionStore.List()
}

// DeleteSession removes a session from memory and from disk.
func (e *Engine) DeleteSession(id string) error {
	e.mu.Lock()
	delete(e.sessions, id)
	e.mu.Unlock()

	err := e.sessionStore.Delete(id)
	if errors.Is(err, state.ErrNotFound) {
		return nil
	}
	return err
}

// Close persists every live session.
func (e *Engine) Close() error {
	e.mu.Lock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := e.SaveSession(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// nextSessionIDLocked returns a session id unused by both live sessions and
// persisted records. Must be called with mu held.
func (e *Engine) nextSessionIDLocked() string {
	for {
		e.seq++
		id := fmt.Sprintf("session-%d", e.seq)
		if _, live := e.sessions[id]; live {
			continue
		}
		if e.sessionStore.Exists(id) {
			continue
		}
		return id
	}
}

// buildIndex constructs the vector index backend named by the config.
func (e *Engine) buildIndex() error {
	switch e.cfg.Index.Backend {
	case "", "memory":
		e.index = memory.New()
	case "qdrant":
		qc := e.cfg.Index.Qdrant
		dim := qc.Dimension
		if dim == 0 {
			dim = 1536
		}
		ix, err := qdrant.New(qdrant.Config{
			URL:        qc.URL,
			APIKey:     qc.APIKey,
			Collection: qc.Collection,
			Dimension:  dim,
		})
		if err != nil {
			return fmt.Errorf("engine: index: %w", err)
		}
		e.qdrantIndex = ix
		e.index = ix
	}
	return nil
}

// ensureIndex makes sure a remote index's collection exists. The in-memory
// backend needs no preparation.
func (e *Engine) ensureIndex(ctx context.Context) error {
	if e.qdrantIndex == nil {
		return nil
	}

	e.ensureOnce.Do(func() {
		e.ensureErr = e.qdrantIndex.Ensure(ctx)
	})
	return e.ensureErr
}

// chooseEmbedder picks the embedding client: the active provider when it can
// embed, otherwise the first configured provider that can. The client is
// wrapped with an expiring cache so repeated texts are not re-billed.
func (e *Engine) chooseEmbedder() rag.EmbeddingClient {
	if ec, ok := e.raw[e.cfg.ProviderID].(rag.EmbeddingClient); ok {
		return rag.WrapCache(ec, embedCacheSize, embedCacheTTL)
	}

	ids := make([]string, 0, len(e.raw))
	for id := range e.raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if ec, ok := e.raw[id].(rag.EmbeddingClient); ok {
			return rag.WrapCache(ec, embedCacheSize, embedCacheTTL)
		}
	}
	return nil
}

// loadCorpora restores persisted corpora. With the in-memory index backend
// the stored vectors are re-inserted; a server-side index already has them.
func (e *Engine) loadCorpora(ctx context.Context) error {
	ids, err := e.corpusStore.List()
	if err != nil {
		return fmt.Errorf("engine: list corpora: %w", err)
	}

	for _, id := range ids {
		c, err := e.corpusStore.Load(id)
		if err != nil {
			return fmt.Errorf("engine: load corpus %q: %w", id, err)
		}
		corpus := c

		if e.qdrantIndex == nil {
			for _, ch := range corpus.Chunks {
				if !ch.Embedded() {
					continue
				}
				if err := e.index.Insert(ctx, ch.ID, ch.Vector); err != nil {
					return fmt.Errorf("engine: restore corpus %q: %w", id, err)
				}
			}
		}

		e.mu.Lock()
		e.corpora[corpus.ID] = &corpus
		e.mu.Unlock()
	}

	return nil
}
