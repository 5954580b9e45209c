package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_MissingIsEmpty(t *testing.T) {
	h := New(filepath.Join(t.TempDir(), "chat_history.txt"))
	got, err := h.Read()
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestFile_AppendAndReadDistinct(t *testing.T) {
	h := New(filepath.Join(t.TempDir(), "nested", "chat_history.txt"))

	require.NoError(t, h.Append("What is silence?"))
	require.NoError(t, h.Append("   "))
	require.NoError(t, h.Append("Who is the gardener?"))
	require.NoError(t, h.Append("What is silence?"))
	require.NoError(t, h.Append("How do I\nremember?"))

	got, err := h.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"What is silence?", "Who is the gardener?", "How do I remember?"}, got)

	raw, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Equal(t, "What is silence?\nWho is the gardener?\nWhat is silence?\nHow do I remember?\n", string(raw))
}

func TestFile_ReadSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n\n  \nb\r\na\n"), 0o644))

	got, err := New(path).Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}
