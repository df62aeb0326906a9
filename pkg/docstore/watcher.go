package docstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Op classifies a change to the store directory.
type Op int

const (
	Created Op = iota
	Modified
	Removed
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Event reports one change to a stored file.
type Event struct {
	Name string // base file name
	Op   Op
}

// Watch emits events for files created, modified, or removed in the store
// directory until ctx is cancelled. When extensions are given (e.g. ".txt",
// ".md") other files are ignored.
func (s *Store) Watch(ctx context.Context, extensions ...string) (<-chan Event, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("docstore: watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("docstore: watch %s: %w", s.dir, err)
	}

	events := make(chan Event, 16)

	go func() {
		defer close(events)
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !watched(ev.Name, extensions) {
					continue
				}
				op, relevant := mapOp(ev.Op)
				if !relevant {
					continue
				}
				select {
				case events <- Event{Name: filepath.Base(ev.Name), Op: op}:
				case <-ctx.Done():
					return
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return events, nil
}

func mapOp(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return Created, true
	case op.Has(fsnotify.Write):
		return Modified, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return Removed, true
	default:
		return 0, false
	}
}

func watched(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}
