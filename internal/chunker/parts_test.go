package chunker

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

const longSample = `Sweet children, today is a day of remembrance. Those who remember with love
receive power in return. When you sit in silence, what do you experience? The mind becomes light
and the intellect becomes clear: this is the sign of true stillness. Every morning brings a new
chance to begin again! Do not think about what happened yesterday. Whatever has passed is over,
and the lesson it carried is now yours to keep. Keep your attention on the present moment, for it
is the only place where change happens. A tree grows from a seed that is planted with patience.
The gardener waters it daily and does not dig it up to check the roots. In the same way, give
your efforts time to bear fruit. Those who are patient are never disappointed. Ask yourself:
am I stable in every situation? If the answer is no, do not worry. Practise a little each day and
stability will come naturally. At night, before sleeping, review the day with honesty. Let go of
whatever was heavy and keep only what was good. Then you will wake up fresh and ready to serve.`

func newDoc(path, content string) domain.Document {
	return domain.Document{
		ID:       path,
		Path:     path,
		Content:  content,
		Metadata: map[string]string{domain.MetadataSource: path},
	}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestPartSplitter_ExactCuts(t *testing.T) {
	s, err := NewPartSplitter(3, nil)
	require.NoError(t, err)

	res, err := s.Split(newDoc("a.txt", "One. Two. Three. Four. Five. Six."))
	require.NoError(t, err)

	assert.Equal(t, SplitComplete, res.Outcome)
	require.Len(t, res.Chunks, 3)
	assert.Equal(t, "One. Two.", res.Chunks[0].Text)
	assert.Equal(t, "Three.", res.Chunks[1].Text)
	assert.Equal(t, "Four. Five. Six.", res.Chunks[2].Text)
	for i, c := range res.Chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "a.txt", c.Source())
	}
}

func TestPartSplitter_TwoIdenticalDocumentsGiveSixChunks(t *testing.T) {
	s, err := NewPartSplitter(DefaultParts, nil)
	require.NoError(t, err)

	docs := []domain.Document{newDoc("first.txt", longSample), newDoc("second.txt", longSample)}
	chunks, err := s.SplitDocuments(docs)
	require.NoError(t, err)
	require.Len(t, chunks, 6)

	for _, c := range chunks[:3] {
		assert.Equal(t, "first.txt", c.Source())
	}
	for _, c := range chunks[3:] {
		assert.Equal(t, "second.txt", c.Source())
	}
	assert.Equal(t, chunks[0].Text, chunks[3].Text)
	assert.NotEqual(t, chunks[0].ChunkID, chunks[3].ChunkID)
}

func TestPartSplitter_Properties(t *testing.T) {
	for _, parts := range []int{1, 2, 3, 5, 8} {
		s, err := NewPartSplitter(parts, nil)
		require.NoError(t, err)

		res, err := s.Split(newDoc("sample.txt", longSample))
		require.NoError(t, err)

		assert.LessOrEqual(t, len(res.Chunks), parts, "parts=%d", parts)
		var joined strings.Builder
		for i, c := range res.Chunks {
			assert.NotEmpty(t, strings.TrimSpace(c.Text))
			assert.Equal(t, c.Text, strings.TrimSpace(c.Text))
			if i < len(res.Chunks)-1 {
				last := rune(c.Text[len(c.Text)-1])
				assert.True(t, isTerminator(last), "chunk %d should end on punctuation: %q", i, c.Text)
			}
			joined.WriteString(c.Text)
		}
		if res.Outcome == SplitComplete {
			assert.Equal(t, stripSpace(longSample), stripSpace(joined.String()), "parts=%d", parts)
		}
	}
}

func TestPartSplitter_SharesMetadata(t *testing.T) {
	s, err := NewPartSplitter(2, nil)
	require.NoError(t, err)
	doc := newDoc("shared.txt", longSample)

	chunks, err := s.Chunk(doc)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	doc.Metadata["lang"] = "en"
	for _, c := range chunks {
		assert.Equal(t, "en", c.Metadata["lang"])
	}
}

func TestPartSplitter_TruncatedWhenWindowHasNoTerminator(t *testing.T) {
	s, err := NewPartSplitter(3, nil)
	require.NoError(t, err)
	content := "Intro sentence. " + strings.Repeat("word ", 100)

	res, err := s.Split(newDoc("t.txt", content))
	require.NoError(t, err)

	assert.Equal(t, SplitTruncated, res.Outcome)
	assert.Equal(t, "truncated", res.Outcome.String())
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "Intro sentence.", res.Chunks[0].Text)
	assert.Equal(t, 15, res.DroppedOffset)
	assert.Equal(t, content[15:], res.Dropped)

	chunks, err := s.Chunk(newDoc("t.txt", content))
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestPartSplitter_Preconditions(t *testing.T) {
	_, err := NewPartSplitter(0, nil)
	assert.ErrorIs(t, err, ErrInvalidPartCount)

	s, err := NewPartSplitter(3, nil)
	require.NoError(t, err)

	_, err = s.Split(newDoc("e.txt", "   \n"))
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = s.Split(newDoc("s.txt", "Hi."))
	assert.ErrorIs(t, err, ErrContentTooShort)

	_, err = s.SplitDocuments([]domain.Document{newDoc("ok.txt", longSample), newDoc("s.txt", "Hi.")})
	assert.ErrorIs(t, err, ErrContentTooShort)
}

func TestPartSplitter_MultibyteContent(t *testing.T) {
	s, err := NewPartSplitter(2, nil)
	require.NoError(t, err)
	content := "Привет мир. Как дела? Всё хорошо! Спасибо."

	res, err := s.Split(newDoc("ru.txt", content))
	require.NoError(t, err)
	assert.Equal(t, SplitComplete, res.Outcome)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, stripSpace(content), stripSpace(res.Chunks[0].Text+res.Chunks[1].Text))
}
