package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/config"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	corpus := filepath.Join(root, "notes")
	require.NoError(t, os.MkdirAll(corpus, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "silence.txt"),
		[]byte("Silence clears the intellect. In silence the soul hears the Father."), 0o644))

	for _, env := range []string{config.EnvDocLocation, config.EnvIndexStore, config.EnvFaissStore, config.EnvHistoryLocation, config.EnvLogLevel, "OPENAI_API_KEY"} {
		t.Setenv(env, "")
	}
	path := filepath.Join(root, "config.yaml")
	yaml := "corpus:\n  location: " + corpus +
		"\n  persist_root: " + filepath.Join(root, "index") +
		"\nembedder:\n  type: tfidf\nsearch:\n  chain_type: extractive\nhistory:\n  location: " + root +
		"\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path, root
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestIndexCommand(t *testing.T) {
	path, root := writeTestConfig(t)
	out := run(t, "--config", path, "index")
	assert.Contains(t, out, "1 chunks in "+filepath.Join(root, "index", "notes"))
}

func TestAskAndHistoryCommands(t *testing.T) {
	path, _ := writeTestConfig(t)

	out := run(t, "--config", path, "ask", "What", "does", "silence", "clear?")
	assert.Contains(t, out, "Silence clears the intellect.")
	assert.Contains(t, out, "Sources: silence")

	out = run(t, "--config", path, "history")
	assert.Equal(t, "What does silence clear?\n", out)
}

func TestAskCommandRequiresQuestion(t *testing.T) {
	path, _ := writeTestConfig(t)
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path, "ask"})
	assert.Error(t, cmd.Execute())
}
