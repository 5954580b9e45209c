// Package loader reads a corpus directory of plain-text files.
package loader

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"ragchat/internal/domain"
)

var (
	ErrNotUTF8 = errors.New("file is not valid UTF-8")
	ErrEmpty   = errors.New("file is empty")
)

// Stats counts the files of one corpus pass.
type Stats struct {
	Processed int
	Failed    int
}

// Loader enumerates and reads the *.txt files of a corpus directory.
type Loader struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// Files lists the *.txt files directly under dir in lexical order.
func Files(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	files := matches[:0]
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && fi.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadDir reads every text file of dir. A file that cannot be read is logged,
// counted and skipped.
func (l *Loader) LoadDir(dir string) ([]domain.Document, Stats, error) {
	var stats Stats
	files, err := Files(dir)
	if err != nil {
		return nil, stats, fmt.Errorf("listing corpus %s: %w", dir, err)
	}
	docs := make([]domain.Document, 0, len(files))
	for _, f := range files {
		doc, err := LoadFile(f)
		if err != nil {
			l.logger.Error("cannot process file", zap.String("path", f), zap.Error(err))
			stats.Failed++
			continue
		}
		l.logger.Info("processed file", zap.String("path", f), zap.Int("runes", utf8.RuneCountInString(doc.Content)))
		docs = append(docs, doc)
		stats.Processed++
	}
	return docs, stats, nil
}

// LoadFile reads one UTF-8 text file into a document whose source is the file path.
func LoadFile(path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, err
	}
	if !utf8.Valid(data) {
		return domain.Document{}, ErrNotUTF8
	}
	content := Normalize(string(data))
	if strings.TrimSpace(content) == "" {
		return domain.Document{}, ErrEmpty
	}
	return domain.Document{
		ID:       hashString(path),
		Path:     path,
		Content:  content,
		Metadata: map[string]string{domain.MetadataSource: path},
	}, nil
}

var (
	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
	blankLinesRe    = regexp.MustCompile(`\n{3,}`)
)

// Normalize unifies line endings, strips trailing blanks on lines and collapses runs
// of blank lines into a single paragraph break.
func Normalize(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = trailingSpaceRe.ReplaceAllString(s, "\n")
	return blankLinesRe.ReplaceAllString(s, "\n\n")
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
