package session

import (
	"fmt"
	"strings"
	"time"
)

// State represents the recording state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateRecording
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mode selects how hotkeys drive recording.
type Mode int

const (
	// ModeToggle starts on one press and stops on the next.
	ModeToggle Mode = iota
	// ModeHold records only while the key is held.
	ModeHold
)

func (m Mode) String() string {
	if m == ModeHold {
		return "hold"
	}
	return "toggle"
}

// ParseMode accepts "toggle" or "hold".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "toggle", "":
		return ModeToggle, nil
	case "hold":
		return ModeHold, nil
	}
	return ModeToggle, fmt.Errorf("invalid recording mode: %s (allowed: toggle, hold)", s)
}

// Reason records why a recording was finalized.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonMaxDuration Reason = "max_duration"
	ReasonSilence     Reason = "silence"
	ReasonHotkey      Reason = "hotkey"
)

// Utterance is one finalized span of captured audio.
type Utterance struct {
	ID          string
	Samples     []int16
	SampleRate  int
	Chunks      int
	Duration    time.Duration
	StartedAtMs int64
	EndedAtMs   int64
	Reason      Reason
}

// Level is the observational audio level output for one chunk.
type Level struct {
	Raw      float64 `json:"raw"`
	Smoothed float64 `json:"smoothed"`
	Peak     float64 `json:"peak"`
}

// Step is the outcome of feeding one chunk or hotkey event to a Session.
type Step struct {
	From State
	To   State
	// Chunk is set when the step came from OnChunk rather than a hotkey.
	Chunk  bool
	Speech bool
	Level  Level
	// Threshold is the noise threshold used to classify the chunk.
	Threshold float64
	// Reason is set when the step finalized a recording.
	Reason Reason
	// Utterance is non-nil when a recording produced a completed utterance.
	Utterance *Utterance
	// Discarded reports a finalized recording below the minimum duration.
	Discarded bool
	// Calibrated reports that this chunk completed the calibration window.
	Calibrated bool
}

// Changed reports whether the step moved the session to another state.
func (s Step) Changed() bool {
	return s.From != s.To || s.Reason != ReasonNone
}
