package saberdir

import (
	"fmt"
	"os"
)

const gitignoreContent = "state/\nlogs/\n"

const configSkeleton = `# Saber configuration. Values of the form ${VAR} are expanded from the
# environment at load time.

provider_id: openai
model_name: gpt-4o
temperature: 0.7
max_tokens: 1024
context_window: 128000
# top_p: 0.9

chunk_size: 800
chunk_overlap: 120
retrieval_k: 4
embedding_batch_size: 16
retry_limit: 3

# system_message: You are a helpful assistant.

providers:
  openai:
    api_key: ${OPENAI_API_KEY}
  anthropic:
    api_key: ${ANTHROPIC_API_KEY}
  gemini:
    api_key: ${GEMINI_API_KEY}
  grok:
    api_key: ${XAI_API_KEY}

index:
  backend: memory # memory | qdrant
  # qdrant:
  #   url: http://localhost:6333
  #   collection: saber
  #   api_key: ${QDRANT_API_KEY}
`

// EnsureStructure creates the docs/, state/, and logs/ directories and the
// .gitignore file if they are missing. It is safe to call multiple times
// (idempotent). It does NOT create the .saber/ root itself; the caller
// decides whether to bootstrap from scratch or only set up an existing
// directory.
func EnsureStructure(d Dir) error {
	for _, dir := range []string{d.DocsDir(), d.SessionsDir(), d.CorporaDir(), d.LogsDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("saberdir: create %s: %w", dir, err)
		}
	}

	if err := ensureGitignore(d); err != nil {
		return fmt.Errorf("saberdir: gitignore: %w", err)
	}

	return nil
}

// Bootstrap creates the .saber/ root with the full directory layout and a
// skeleton config file. Existing files are never overwritten.
func Bootstrap(d Dir) error {
	return BootstrapWithConfig(d, []byte(configSkeleton))
}

// BootstrapWithConfig creates the .saber/ root like Bootstrap but writes the
// given config instead of the skeleton. An existing config file is kept.
func BootstrapWithConfig(d Dir, configYAML []byte) error {
	if err := os.MkdirAll(d.Root(), 0o750); err != nil {
		return fmt.Errorf("saberdir: create root: %w", err)
	}

	if err := EnsureStructure(d); err != nil {
		return err
	}

	if _, err := os.Stat(d.ConfigPath()); err == nil {
		return nil // already configured
	}

	if err := os.WriteFile(d.ConfigPath(), configYAML, 0o600); err != nil {
		return fmt.Errorf("saberdir: write config: %w", err)
	}

	return nil
}

// ensureGitignore creates the .gitignore file if it does not exist.
func ensureGitignore(d Dir) error {
	path := d.GitignorePath()

	if _, err := os.Stat(path); err == nil {
		return nil // already exists
	}

	return os.WriteFile(path, []byte(gitignoreContent), 0o600)
}
