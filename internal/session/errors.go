package session

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags session errors so callers can branch without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindAudioDevice
	KindCalibration
	KindHandoff
)

func (k Kind) String() string {
	switch k {
	case KindAudioDevice:
		return "audio_device"
	case KindCalibration:
		return "calibration"
	case KindHandoff:
		return "handoff"
	default:
		return "unknown"
	}
}

// ErrNotIdle is returned by operations that require an idle session.
var ErrNotIdle = errors.New("session not idle")

// AudioDeviceError is fatal to a session: the device could not be opened or
// read within the retry budget.
type AudioDeviceError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *AudioDeviceError) Error() string {
	return fmt.Sprintf("audio device %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *AudioDeviceError) Unwrap() error { return e.Err }

// Kind implements the tagged error contract.
func (e *AudioDeviceError) Kind() Kind { return KindAudioDevice }

// CalibrationError reports that no audio arrived during the calibration window.
// The session keeps its previous threshold.
type CalibrationError struct {
	Window time.Duration
	Chunks int
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("calibration received %d chunks in %v", e.Chunks, e.Window)
}

// Kind implements the tagged error contract.
func (e *CalibrationError) Kind() Kind { return KindCalibration }

// HandoffError reports an utterance that could not be passed to transcription.
type HandoffError struct {
	UtteranceID string
	Err         error
}

func (e *HandoffError) Error() string {
	return fmt.Sprintf("handoff of utterance %s failed: %v", e.UtteranceID, e.Err)
}

func (e *HandoffError) Unwrap() error { return e.Err }

// Kind implements the tagged error contract.
func (e *HandoffError) Kind() Kind { return KindHandoff }

// KindOf returns the tag of err, or KindUnknown.
func KindOf(err error) Kind {
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}
