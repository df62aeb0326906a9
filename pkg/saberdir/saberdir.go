// Package saberdir encapsulates all path knowledge for the .saber/ project
// directory. It provides a Dir value object with accessors for the config
// file, document sources, persisted runtime state, and logs.
package saberdir

import (
	"os"
	"path/filepath"
	"sort"
)

// DefaultName is the conventional directory name at a project root.
const DefaultName = ".saber"

// Dir is a value object that resolves paths within a .saber/ directory.
type Dir struct {
	root string
}

// New creates a Dir rooted at the given path. The path is converted to an
// absolute path. No I/O is performed; use EnsureStructure to create the
// directory layout.
func New(root string) Dir {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}

	return Dir{root: abs}
}

// Root returns the absolute path to the .saber/ directory.
func (d Dir) Root() string { return d.root }

// ConfigPath returns the path to the main config file.
func (d Dir) ConfigPath() string { return filepath.Join(d.root, "config.yaml") }

// DocsDir returns the path to the document sources directory.
func (d Dir) DocsDir() string { return filepath.Join(d.root, "docs") }

// StateDir returns the path to the persisted runtime state directory.
func (d Dir) StateDir() string { return filepath.Join(d.root, "state") }

// SessionsDir returns the path to the persisted sessions directory.
func (d Dir) SessionsDir() string { return filepath.Join(d.root, "state", "sessions") }

// CorporaDir returns the path to the persisted corpora directory.
func (d Dir) CorporaDir() string { return filepath.Join(d.root, "state", "corpora") }

// LogsDir returns the path to the logs directory.
func (d Dir) LogsDir() string { return filepath.Join(d.root, "logs") }

// LogPath returns the path to the main log file.
func (d Dir) LogPath() string { return filepath.Join(d.root, "logs", "saber.log") }

// GitignorePath returns the path to the .gitignore file inside .saber/.
func (d Dir) GitignorePath() string { return filepath.Join(d.root, ".gitignore") }

// DocFiles returns sorted paths of all regular files in docs/ (non-recursive).
// Returns nil if the directory does not exist.
func (d Dir) DocFiles() []string {
	entries, err := os.ReadDir(d.DocsDir())
	if err != nil {
		return nil
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(d.DocsDir(), e.Name()))
		}
	}

	sort.Strings(files)

	return files
}

// Exists reports whether the .saber/ root directory exists on disk.
func (d Dir) Exists() bool {
	info, err := os.Stat(d.root)

	return err == nil && info.IsDir()
}
