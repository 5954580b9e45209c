package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLoadDir_ReadsTopLevelTextFilesOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), []byte("Second file."))
	writeFile(t, filepath.Join(dir, "a.txt"), []byte("First file.\r\n\r\n\r\n\r\nAfter gap."))
	writeFile(t, filepath.Join(dir, "notes.md"), []byte("ignored"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeFile(t, filepath.Join(dir, "sub", "c.txt"), []byte("nested, ignored"))

	docs, stats, err := New(nil).LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, Stats{Processed: 2, Failed: 0}, stats)
	require.Len(t, docs, 2)
	assert.Equal(t, filepath.Join(dir, "a.txt"), docs[0].Path)
	assert.Equal(t, "First file.\n\nAfter gap.", docs[0].Content)
	assert.Equal(t, docs[0].Path, docs[0].Metadata[domain.MetadataSource])
	assert.NotEmpty(t, docs[0].ID)
	assert.NotEqual(t, docs[0].ID, docs[1].ID)
}

func TestLoadDir_CountsFailuresAndContinues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.txt"), []byte("Fine."))
	writeFile(t, filepath.Join(dir, "empty.txt"), []byte("  \n"))
	writeFile(t, filepath.Join(dir, "binary.txt"), []byte{0xff, 0xfe, 0xfd})

	docs, stats, err := New(nil).LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 2, stats.Failed)
	require.Len(t, docs, 1)
	assert.Equal(t, "Fine.", docs[0].Content)
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	_, _, err := New(nil).LoadDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.txt")
	writeFile(t, bad, []byte{0xc3, 0x28})

	_, err := LoadFile(bad)
	assert.ErrorIs(t, err, ErrNotUTF8)

	empty := filepath.Join(dir, "empty.txt")
	writeFile(t, empty, nil)
	_, err = LoadFile(empty)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a\n\nb", Normalize("\ufeffa  \r\n\r\n\n\nb"))
	assert.Equal(t, "line one\nline two", Normalize("line one\t\nline two"))
}
