// Package output delivers finished transcripts to the user and to other
// programs.
package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"whisperer/internal/clipboard"
)

// Transcript is the text recognized for one utterance.
type Transcript struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Reason     string    `json:"reason,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sink receives transcripts.
type Sink interface {
	Deliver(ctx context.Context, t Transcript) error
}

// Multi fans a transcript out to every sink and joins their errors.
type Multi struct {
	sinks []Sink
	log   *slog.Logger
}

// NewMulti returns a fan-out sink. Nil sinks are skipped.
func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Multi{log: logger.With("component", "output")}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// Deliver sends t to every sink even when some fail.
func (m *Multi) Deliver(ctx context.Context, t Transcript) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Deliver(ctx, t); err != nil {
			m.log.Warn("delivery failed", "sink", fmt.Sprintf("%T", s), "id", t.ID, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Paste types the transcript into the focused window.
type Paste struct {
	paste func(string) error
}

// NewPaste returns a sink backed by the system clipboard.
func NewPaste() *Paste {
	return &Paste{paste: clipboard.PasteText}
}

func (p *Paste) Deliver(_ context.Context, t Transcript) error {
	if strings.TrimSpace(t.Text) == "" {
		return nil
	}
	if err := p.paste(t.Text); err != nil {
		return fmt.Errorf("paste failed: %w", err)
	}
	return nil
}

// File appends one timestamped line per transcript.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a sink appending to path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Deliver(_ context.Context, t Transcript) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	ts := t.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	line := strings.ReplaceAll(t.Text, "\n", " ")
	if _, err := fmt.Fprintf(fh, "%s\t%s\n", ts.Format("2006-01-02 15:04:05"), line); err != nil {
		_ = fh.Close()
		return fmt.Errorf("write transcript file: %w", err)
	}
	return fh.Close()
}

// Writer prints the bare text, one transcript per line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdout returns a sink printing to standard output.
func NewStdout() *Writer { return NewWriter(os.Stdout) }

// NewWriter returns a sink printing to w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (w *Writer) Deliver(_ context.Context, t Transcript) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.w, t.Text)
	return err
}
