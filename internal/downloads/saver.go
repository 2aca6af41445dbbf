// File: internal/downloads/saver.go
package downloads

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Saver writes exported files, optionally asking the user where to put them.
type Saver struct {
	fs     afero.Fs
	dir    string
	in     *bufio.Reader
	out    io.Writer
	logger *zap.Logger
}

// Option configures a Saver.
type Option func(*Saver)

// WithPrompt makes SaveAs ask for the destination on out, reading the answer
// from in. An empty answer accepts the suggested path.
func WithPrompt(in io.Reader, out io.Writer) Option {
	return func(s *Saver) {
		s.in = bufio.NewReader(in)
		s.out = out
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Saver) { s.logger = logger.Named("downloads") }
}

// New creates a Saver writing under dir on fs. dir may start with "~".
func New(fs afero.Fs, dir string, opts ...Option) (*Saver, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand download directory %q: %w", dir, err)
	}
	s := &Saver{fs: fs, dir: expanded, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir is the default download directory.
func (s *Saver) Dir() string { return s.dir }

// SaveAs stores data under suggestedName in the download directory, or where
// the user points the prompt to. It returns the path written.
func (s *Saver) SaveAs(ctx context.Context, suggestedName string, data []byte) (string, error) {
	if s.in == nil {
		path, err := s.uniquePath(filepath.Join(s.dir, suggestedName))
		if err != nil {
			return "", err
		}
		return s.Save(path, data)
	}

	suggested := filepath.Join(s.dir, suggestedName)
	answer, err := s.ask(ctx, fmt.Sprintf("Save report as [%s]: ", suggested))
	if err != nil {
		return "", err
	}
	path := suggested
	if answer != "" {
		if path, err = homedir.Expand(answer); err != nil {
			return "", fmt.Errorf("invalid path %q: %w", answer, err)
		}
		if info, statErr := s.fs.Stat(path); statErr == nil && info.IsDir() {
			path = filepath.Join(path, suggestedName)
		}
	}
	return s.Save(path, data)
}

// Save writes data to path, creating parent directories.
func (s *Saver) Save(path string, data []byte) (string, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	s.logger.Info("File saved.", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

func (s *Saver) ask(ctx context.Context, question string) (string, error) {
	if _, err := io.WriteString(s.out, question); err != nil {
		return "", fmt.Errorf("failed to prompt: %w", err)
	}

	type result struct {
		line string
		err  error
	}
	answer := make(chan result, 1)
	go func() {
		line, err := s.in.ReadString('\n')
		answer <- result{line, err}
	}()

	select {
	case r := <-answer:
		// EOF without a newline still carries a usable answer.
		if r.err != nil && !errors.Is(r.err, io.EOF) {
			return "", fmt.Errorf("failed to read answer: %w", r.err)
		}
		return strings.TrimSpace(r.line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// uniquePath appends " (n)" before the extension until path is free.
func (s *Saver) uniquePath(path string) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	candidate := path
	for n := 1; ; n++ {
		_, err := s.fs.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s (%d)%s", base, n, ext)
	}
}
