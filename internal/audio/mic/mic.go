// Package mic captures mono 16-bit audio from the default input device.
package mic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Mic is a record.Source reading fixed-size chunks through PortAudio.
type Mic struct {
	rate     int
	channels int
	in       []int16
	log      *slog.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
}

// New returns a microphone reading chunkSamples frames per Read.
func New(rate, channels, chunkSamples int, logger *slog.Logger) *Mic {
	if channels <= 0 {
		channels = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mic{
		rate:     rate,
		channels: channels,
		in:       make([]int16, chunkSamples*channels),
		log:      logger.With("component", "mic"),
	}
}

// Open initializes PortAudio and starts the default input stream.
func (m *Mic) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init failed: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(m.channels, 0, float64(m.rate), len(m.in)/m.channels, m.in)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("open stream failed: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("start stream failed: %w", err)
	}
	m.stream = stream
	m.log.Debug("input stream started", "rate", m.rate, "channels", m.channels, "frames", len(m.in)/m.channels)
	return nil
}

// Read blocks until one chunk is captured and copies it into buf. Multi-channel
// input is downmixed to mono.
func (m *Mic) Read(buf []int16) error {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream == nil {
		return errors.New("input stream not open")
	}
	frames := len(m.in) / m.channels
	if len(buf) != frames {
		return fmt.Errorf("read buffer holds %d samples, stream delivers %d", len(buf), frames)
	}

	if err := stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return fmt.Errorf("stream read failed: %w", err)
		}
		m.log.Debug("input overflowed")
	}

	if m.channels == 1 {
		copy(buf, m.in)
		return nil
	}
	for i := range buf {
		sum := 0
		for c := 0; c < m.channels; c++ {
			sum += int(m.in[i*m.channels+c])
		}
		buf[i] = int16(sum / m.channels)
	}
	return nil
}

// Close stops the stream. It is safe to call more than once.
func (m *Mic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	_ = m.stream.Stop()
	err := m.stream.Close()
	m.stream = nil
	_ = portaudio.Terminate()
	return err
}
