package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"whisperer/internal/session"
)

const (
	meterWidth    = 20
	meterInterval = time.Second
)

// rateLevel judges an input level against the speech threshold.
func rateLevel(level, threshold float64) string {
	switch {
	case threshold <= 0:
		return "good"
	case level < threshold*0.5:
		return "too quiet"
	case level > threshold*3:
		return "too loud"
	}
	return "good"
}

// levelBar draws level on a scale of four thresholds, with '|' marking the
// peak when it sits past the filled part.
func levelBar(level, peak, threshold float64, width int) string {
	full := threshold * 4
	if full <= 0 {
		full = 1
	}
	pos := func(v float64) int {
		n := int(v / full * float64(width))
		if n < 0 {
			return 0
		}
		if n > width {
			return width
		}
		return n
	}
	filled := pos(level)
	bar := []byte(strings.Repeat("#", filled) + strings.Repeat("-", width-filled))
	if p := pos(peak); p > filled {
		if p == width {
			p--
		}
		bar[p] = '|'
	}
	return "[" + string(bar) + "]"
}

// levelLog logs the smoothed input level about once per interval while the
// session is armed.
type levelLog struct {
	log   *slog.Logger
	every int
	n     int
}

func newLevelLog(chunk time.Duration, logger *slog.Logger) *levelLog {
	every := 1
	if chunk > 0 && meterInterval > chunk {
		every = int(meterInterval / chunk)
	}
	return &levelLog{log: logger.With("component", "level"), every: every}
}

func (l *levelLog) OnStep(step session.Step) {
	if step.To != session.StateListening && step.To != session.StateRecording {
		l.n = 0
		return
	}
	if !step.Chunk {
		return
	}
	l.n++
	if (l.n-1)%l.every != 0 {
		return
	}
	l.log.Info("input level",
		"state", step.To.String(),
		"bar", levelBar(step.Level.Smoothed, step.Level.Peak, step.Threshold, meterWidth),
		"rating", rateLevel(step.Level.Smoothed, step.Threshold),
		"level", fmt.Sprintf("%.0f", step.Level.Smoothed),
		"threshold", fmt.Sprintf("%.0f", step.Threshold))
}

func (l *levelLog) OnDeviceRetry(int, error) {}

func (l *levelLog) OnHandoffError(error) {}
