package chunker

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ragchat/internal/domain"
)

// DefaultParts is the number of parts a document is cut into when none is given.
const DefaultParts = 3

var (
	ErrInvalidPartCount = errors.New("part count must be at least 1")
	ErrEmptyContent     = errors.New("document content is empty")
	ErrContentTooShort  = errors.New("document content too short for part count")
)

// SplitOutcome tells whether a split covered the whole document.
type SplitOutcome int

const (
	// SplitComplete means the chunks span the full document.
	SplitComplete SplitOutcome = iota
	// SplitTruncated means a window had no sentence terminator and the rest was dropped.
	SplitTruncated
)

func (o SplitOutcome) String() string {
	switch o {
	case SplitComplete:
		return "complete"
	case SplitTruncated:
		return "truncated"
	default:
		return fmt.Sprintf("SplitOutcome(%d)", int(o))
	}
}

// SplitResult is the outcome of splitting one document.
// For a truncated split Dropped holds the untouched remainder, starting at
// rune offset DroppedOffset of the original content.
type SplitResult struct {
	Chunks        []domain.Chunk
	Outcome       SplitOutcome
	Dropped       string
	DroppedOffset int
}

// PartSplitter cuts a document into a fixed number of roughly equal parts,
// ending each part on sentence punctuation where it can.
type PartSplitter struct {
	parts  int
	logger *zap.Logger
}

// NewPartSplitter creates a splitter producing parts chunks per document.
func NewPartSplitter(parts int, logger *zap.Logger) (*PartSplitter, error) {
	if parts < 1 {
		return nil, ErrInvalidPartCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PartSplitter{parts: parts, logger: logger}, nil
}

func isTerminator(r rune) bool {
	return r == '.' || r == '?' || r == '!' || r == ':'
}

// Split partitions the document. Part size is len(content)/parts - 1 runes.
// Every part but the last is cut right after the last terminator inside its window;
// the last part takes whatever is left.
func (s *PartSplitter) Split(document domain.Document) (SplitResult, error) {
	content := []rune(document.Content)
	if strings.TrimSpace(document.Content) == "" {
		return SplitResult{}, ErrEmptyContent
	}
	size := len(content)/s.parts - 1
	if size < 1 {
		return SplitResult{}, fmt.Errorf("%w: %d runes, %d parts", ErrContentTooShort, len(content), s.parts)
	}

	res := SplitResult{Outcome: SplitComplete}
	pos := 0
	emit := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		res.Chunks = append(res.Chunks, newChunk(document, len(res.Chunks), text))
	}

	for part := 0; part < s.parts; part++ {
		if part == s.parts-1 {
			emit(string(content[pos:]))
			break
		}
		end := min(pos+size, len(content))
		window := content[pos:end]
		cut := -1
		for j := len(window) - 1; j >= 0; j-- {
			if isTerminator(window[j]) {
				cut = j
				break
			}
		}
		if cut < 0 {
			s.logger.Error("no sentence terminator in window, dropping remainder",
				zap.String("source", document.Metadata[domain.MetadataSource]),
				zap.Int("part", part),
				zap.Int("offset", pos),
				zap.Int("dropped_runes", len(content)-pos),
			)
			res.Outcome = SplitTruncated
			res.Dropped = string(content[pos:])
			res.DroppedOffset = pos
			break
		}
		emit(string(window[:cut+1]))
		pos += cut + 1
	}
	return res, nil
}

// Chunk implements domain.Chunker. A truncated split still returns the chunks it produced.
func (s *PartSplitter) Chunk(document domain.Document) ([]domain.Chunk, error) {
	res, err := s.Split(document)
	if err != nil {
		return nil, err
	}
	return res.Chunks, nil
}

// SplitDocuments splits each document and concatenates the chunks in input order.
func (s *PartSplitter) SplitDocuments(documents []domain.Document) ([]domain.Chunk, error) {
	var out []domain.Chunk
	for _, d := range documents {
		chunks, err := s.Chunk(d)
		if err != nil {
			return nil, fmt.Errorf("splitting %s: %w", d.Path, err)
		}
		out = append(out, chunks...)
	}
	return out, nil
}
