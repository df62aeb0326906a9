package saberdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir_PathAccessors(t *testing.T) {
	d := New("/project/.saber")

	assert.Equal(t, "/project/.saber", d.Root())
	assert.Equal(t, "/project/.saber/config.yaml", d.ConfigPath())
	assert.Equal(t, "/project/.saber/docs", d.DocsDir())
	assert.Equal(t, "/project/.saber/state", d.StateDir())
	assert.Equal(t, "/project/.saber/state/sessions", d.SessionsDir())
	assert.Equal(t, "/project/.saber/state/corpora", d.CorporaDir())
	assert.Equal(t, "/project/.saber/logs", d.LogsDir())
	assert.Equal(t, "/project/.saber/logs/saber.log", d.LogPath())
	assert.Equal(t, "/project/.saber/.gitignore", d.GitignorePath())
}

func TestDir_Exists(t *testing.T) {
	tmp := t.TempDir()

	d := New(filepath.Join(tmp, "missing"))
	assert.False(t, d.Exists())

	d = New(tmp)
	assert.True(t, d.Exists())
}

func TestDir_DocFiles(t *testing.T) {
	tmp := t.TempDir()
	d := New(tmp)
	require.NoError(t, EnsureStructure(d))

	require.NoError(t, os.WriteFile(filepath.Join(d.DocsDir(), "b.txt"), []byte("b"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(d.DocsDir(), "a.md"), []byte("a"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(d.DocsDir(), "subdir"), 0o750))

	files := d.DocFiles()

	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(d.DocsDir(), "a.md"), files[0])
	assert.Equal(t, filepath.Join(d.DocsDir(), "b.txt"), files[1])
}

func TestDir_DocFiles_NonExistent(t *testing.T) {
	d := New("/nonexistent/path/.saber")

	assert.Nil(t, d.DocFiles())
}

func TestEnsureStructure(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, ".saber")
	require.NoError(t, os.Mkdir(root, 0o750))

	d := New(root)
	require.NoError(t, EnsureStructure(d))

	for _, dir := range []string{d.DocsDir(), d.SessionsDir(), d.CorporaDir(), d.LogsDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	data, err := os.ReadFile(d.GitignorePath())
	require.NoError(t, err)
	assert.Equal(t, "state/\nlogs/\n", string(data))
}

func TestEnsureStructure_Idempotent(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, ".saber")
	require.NoError(t, os.Mkdir(root, 0o750))

	d := New(root)
	require.NoError(t, EnsureStructure(d))

	custom := "state/\nlogs/\ncustom-entry\n"
	require.NoError(t, os.WriteFile(d.GitignorePath(), []byte(custom), 0o600))

	// Second call should NOT overwrite the custom .gitignore.
	require.NoError(t, EnsureStructure(d))

	data, err := os.ReadFile(d.GitignorePath())
	require.NoError(t, err)
	assert.Equal(t, custom, string(data))
}

func TestBootstrap(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, ".saber")

	d := New(root)
	require.NoError(t, Bootstrap(d))

	assert.True(t, d.Exists())

	info, err := os.Stat(d.DocsDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	data, err := os.ReadFile(d.ConfigPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "provider_id:")
	assert.Contains(t, string(data), "retrieval_k:")
}

func TestBootstrap_DoesNotOverwrite(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, ".saber")

	d := New(root)
	require.NoError(t, Bootstrap(d))

	custom := "custom: true\n"
	require.NoError(t, os.WriteFile(d.ConfigPath(), []byte(custom), 0o600))

	// Second bootstrap should not overwrite.
	require.NoError(t, Bootstrap(d))

	data, err := os.ReadFile(d.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, custom, string(data))
}

func TestBootstrapWithConfig(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, ".saber")

	d := New(root)
	custom := "provider_id: anthropic\n"
	require.NoError(t, BootstrapWithConfig(d, []byte(custom)))

	assert.True(t, d.Exists())

	data, err := os.ReadFile(d.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, custom, string(data))
}
