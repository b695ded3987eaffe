package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChunks = `{"chunk_id":"c1","text":"Kubernetes pods restart when the liveness probe fails","doc_id":"k8s","start_char":0,"end_char":53}
{"chunk_id":"c2","text":"Configure the readiness probe to gate traffic","doc_id":"k8s","start_char":54,"end_char":99}
{"chunk_id":"c3","text":"Postgres vacuum reclaims storage from dead tuples","doc_id":"pg"}
`

// setupProject writes a bm25-only project with generation disabled and
// isolates user config and logs from the real home directory.
func setupProject(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	dir := t.TempDir()
	chunks := filepath.Join(dir, "data", "chunks", "chunks.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(chunks), 0o755))
	require.NoError(t, os.WriteFile(chunks, []byte(testChunks), 0o644))

	project := `version: 1
retrieval:
  hybrid: false
generation:
  disabled: true
logging:
  file: amanrag.log
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanrag.yaml"), []byte(project), 0o644))
	return dir
}

// execute runs the root command with args and returns combined output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: root command
	cmd := NewRootCmd()

	// Then: every command is registered
	names := make(map[string]bool)
	for _, sc := range cmd.Commands() {
		names[sc.Name()] = true
	}
	for _, want := range []string{"query", "ask", "chat", "serve", "mcp", "status", "logs", "eval", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()

	dir := cmd.PersistentFlags().Lookup("dir")
	require.NotNil(t, dir)
	assert.Equal(t, "C", dir.Shorthand)
	assert.Equal(t, ".", dir.DefValue)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("debug"))
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := execute(t, "", "--version")

	require.NoError(t, err)
	assert.Contains(t, out, "amanrag version")
}

func TestLoadConfig_ResolvesPathsAgainstDir(t *testing.T) {
	// Given: a project directory
	dir := setupProject(t)
	projectDir, debugMode = dir, true
	t.Cleanup(func() { projectDir, debugMode = ".", false })

	// When: loading config
	cfg, err := loadConfig()

	// Then: relative paths are anchored at the project and debug wins
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "chunks", "chunks.jsonl"), cfg.Paths.Chunks)
	assert.Equal(t, filepath.Join(dir, "amanrag.log"), cfg.Logging.File)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Retrieval.Hybrid)
}

func TestRootCmd_ProfilesCommand(t *testing.T) {
	// Given: a project and profile output paths
	dir := setupProject(t)
	out := t.TempDir()
	cpu := filepath.Join(out, "cpu.prof")
	heap := filepath.Join(out, "heap.prof")

	// When: running a query under profiling
	_, err := execute(t, "", "query", "-C", dir, "--profile-cpu", cpu, "--profile-mem", heap, "vacuum")

	// Then: both profiles are written
	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, heap)
}
