// Package history keeps the questions asked across sessions in a plain text file.
package history

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File is an append-only question log, one question per line.
type File struct {
	path string
	mu   sync.Mutex
}

func New(path string) *File {
	return &File{path: path}
}

// Path returns the location of the log.
func (f *File) Path() string { return f.path }

// Append records a question. Blank questions are ignored and runs of whitespace,
// line breaks included, become single spaces.
func (f *File) Append(question string) error {
	q := strings.Join(strings.Fields(question), " ")
	if q == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	if _, err := fh.WriteString(q + "\n"); err != nil {
		fh.Close()
		return fmt.Errorf("writing history: %w", err)
	}
	return fh.Close()
}

// Read returns the distinct questions in the order they were first asked.
func (f *File) Read() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fh, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	defer fh.Close()

	seen := map[string]struct{}{}
	out := []string{}
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return out, nil
}
