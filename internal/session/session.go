// Package session turns a stream of fixed-size PCM chunks plus hotkey events
// into completed utterances.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"whisperer/internal/vad"
)

// ErrChunkSize is returned for chunks that do not match the configured size.
// The chunk is ignored.
var ErrChunkSize = errors.New("unexpected chunk size")

// Session owns the recording state machine, the utterance buffer and the
// calibration state. It is not safe for concurrent use: exactly one goroutine
// (record.Runner) may call its methods.
type Session struct {
	cfg      Config
	detector vad.Detector
	meter    LevelMeter

	state     State
	buf       []int16
	chunks    int
	silentRun int
	forced    bool
	startedAt int64
	lastAt    int64

	calib       Calibration
	prevCalib   Calibration
	calibrating bool
	calibWant   int
	calibWindow time.Duration
}

// New creates an idle session.
func New(cfg Config, detector vad.Detector) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if detector == nil {
		return nil, fmt.Errorf("session requires a VAD detector")
	}
	return &Session{cfg: cfg, detector: detector, meter: NewLevelMeter(cfg), state: StateIdle}, nil
}

// Config returns the active configuration.
func (s *Session) Config() Config { return s.cfg }

// State returns the current recording state.
func (s *Session) State() State { return s.state }

// Buffered returns the number of samples in the utterance buffer.
func (s *Session) Buffered() int { return len(s.buf) }

// Calibrating reports whether a calibration window is open.
func (s *Session) Calibrating() bool { return s.calibrating }

// Calibration returns the current ambient noise estimate.
func (s *Session) Calibration() Calibration { return s.calib }

// Threshold returns the noise threshold handed to the detector.
func (s *Session) Threshold() float64 {
	if s.calib.Chunks > 0 {
		return s.calib.Threshold
	}
	return s.cfg.NoiseThreshold
}

// OnChunk classifies one chunk and advances the state machine.
func (s *Session) OnChunk(samples []int16, timestampMs int64) (Step, error) {
	step := Step{From: s.state, To: s.state}
	if len(samples) == 0 || len(samples) != s.cfg.ChunkSamples() {
		return step, fmt.Errorf("%w: got %d samples, want %d", ErrChunkSize, len(samples), s.cfg.ChunkSamples())
	}

	step.Chunk = true
	raw := vad.Level(samples)
	step.Threshold = s.Threshold()
	step.Speech = s.detector.IsSpeech(samples, step.Threshold)
	step.Level = s.meter.Observe(raw)

	if s.calibrating {
		s.calib.observe(raw)
		if s.calib.Chunks >= s.calibWant {
			s.calibrating = false
			step.Calibrated = true
		}
		return step, nil
	}

	switch s.state {
	case StateListening:
		if step.Speech || s.forced {
			s.forced = false
			s.begin(timestampMs)
			s.appendChunk(samples, step.Speech, 0, timestampMs, &step)
		}
	case StateRecording:
		s.appendChunk(samples, step.Speech, s.elapsed(), timestampMs, &step)
	}
	step.To = s.state
	return step, nil
}

// OnHotkeyStart arms the session. In toggle mode a second start while
// listening forces recording to begin with the next chunk; in hold mode it is
// key repeat and ignored.
func (s *Session) OnHotkeyStart() Step {
	step := Step{From: s.state, To: s.state}
	if s.calibrating {
		return step
	}
	switch s.state {
	case StateIdle:
		s.state = StateListening
		s.forced = false
	case StateListening:
		if s.cfg.Mode == ModeToggle {
			s.forced = true
		}
	}
	step.To = s.state
	return step
}

// OnHotkeyStop disarms a listening session or finalizes a recording. It is a
// no-op while idle.
func (s *Session) OnHotkeyStop() Step {
	step := Step{From: s.state, To: s.state}
	if s.calibrating {
		return step
	}
	switch s.state {
	case StateListening:
		s.state = StateIdle
		s.forced = false
	case StateRecording:
		s.finalize(ReasonHotkey, &step)
	}
	step.To = s.state
	return step
}

// OnHotkeyToggle starts from idle and stops otherwise.
func (s *Session) OnHotkeyToggle() Step {
	if s.state == StateIdle {
		return s.OnHotkeyStart()
	}
	return s.OnHotkeyStop()
}

// OnForceStart makes the next chunk start a recording regardless of VAD.
func (s *Session) OnForceStart() Step {
	step := Step{From: s.state, To: s.state}
	if s.state == StateListening && !s.calibrating {
		s.forced = true
	}
	return step
}

// Cancel discards any recording in progress without producing an utterance.
func (s *Session) Cancel() Step {
	step := Step{From: s.state, To: StateIdle}
	if s.calibrating {
		step.To = s.state
		return step
	}
	step.Discarded = len(s.buf) > 0
	s.clear()
	return step
}

// Reset forces the session back to idle, closing any calibration window. It is
// used when the audio device is lost.
func (s *Session) Reset() Step {
	step := Step{From: s.state, To: StateIdle, Discarded: len(s.buf) > 0}
	if s.calibrating {
		s.calibrating = false
		if s.calib.Chunks == 0 {
			s.calib = s.prevCalib
		}
	}
	s.clear()
	return step
}

// StartCalibration opens a calibration window. The previous estimate is kept
// if the window ends without audio.
func (s *Session) StartCalibration(window time.Duration) error {
	if s.state != StateIdle || s.calibrating {
		return ErrNotIdle
	}
	if window <= 0 {
		window = s.cfg.CalibrationWindow
	}
	s.prevCalib = s.calib
	s.calib = Calibration{}
	s.calibrating = true
	s.calibWindow = window
	s.calibWant = s.cfg.CalibrationChunks(window)
	return nil
}

// FinishCalibration closes the window. It returns a *CalibrationError if no
// chunk was observed.
func (s *Session) FinishCalibration() error {
	if !s.calibrating {
		return nil
	}
	s.calibrating = false
	if s.calib.Chunks == 0 {
		s.calib = s.prevCalib
		return &CalibrationError{Window: s.calibWindow}
	}
	return nil
}

// Reconfigure swaps in a new configuration. Only allowed while idle.
func (s *Session) Reconfigure(cfg Config) error {
	if s.state != StateIdle || s.calibrating {
		return ErrNotIdle
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	s.meter = NewLevelMeter(cfg)
	s.buf = nil
	return nil
}

func (s *Session) begin(ts int64) {
	s.state = StateRecording
	if s.buf == nil {
		s.buf = make([]int16, 0, s.cfg.maxSamples())
	}
	s.buf = s.buf[:0]
	s.chunks = 0
	s.silentRun = 0
	s.startedAt = ts
}

// appendChunk adds a chunk to the buffer and applies the exit conditions in
// priority order: maximum duration, then trailing silence. Silent chunks only
// count once the recording had reached the minimum duration before them.
func (s *Session) appendChunk(samples []int16, speech bool, before time.Duration, ts int64, step *Step) {
	s.buf = append(s.buf, samples...)
	s.chunks++
	s.lastAt = ts

	if s.elapsed() >= s.cfg.MaxDuration {
		s.finalize(ReasonMaxDuration, step)
		return
	}
	if speech {
		s.silentRun = 0
		return
	}
	if before < s.cfg.MinDuration {
		return
	}
	s.silentRun++
	if s.silentRun >= s.cfg.SilenceChunks() {
		s.finalize(ReasonSilence, step)
	}
}

func (s *Session) finalize(reason Reason, step *Step) {
	s.state = StateFinalizing
	step.Reason = reason

	dur := s.elapsed()
	if len(s.buf) > 0 && dur >= s.cfg.MinDuration {
		step.Utterance = &Utterance{
			ID:          uuid.NewString(),
			Samples:     s.buf,
			SampleRate:  s.cfg.SampleRate,
			Chunks:      s.chunks,
			Duration:    dur,
			StartedAtMs: s.startedAt,
			EndedAtMs:   s.lastAt + s.cfg.ChunkDuration.Milliseconds(),
			Reason:      reason,
		}
		// ownership moves to the utterance
		s.buf = nil
	} else {
		step.Discarded = len(s.buf) > 0
	}
	s.clear()
}

func (s *Session) clear() {
	if s.buf != nil {
		s.buf = s.buf[:0]
	}
	s.chunks = 0
	s.silentRun = 0
	s.forced = false
	s.state = StateIdle
}

func (s *Session) elapsed() time.Duration {
	return s.cfg.samplesDuration(len(s.buf))
}
