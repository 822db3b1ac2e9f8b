package session

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

// scripted treats any chunk whose first sample is non-zero as speech.
type scripted struct{}

func (scripted) IsSpeech(samples []int16, _ float64) bool {
	return len(samples) > 0 && samples[0] != 0
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinDuration = 200 * time.Millisecond
	cfg.SilenceTimeout = 500 * time.Millisecond
	cfg.MaxDuration = 60 * time.Second
	return cfg
}

func newTestSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := New(cfg, scripted{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func chunk(cfg Config, value int16) []int16 {
	out := make([]int16, cfg.ChunkSamples())
	for i := range out {
		out[i] = value
	}
	return out
}

type feeder struct {
	t   *testing.T
	s   *Session
	ts  int64
	utt []*Utterance
}

func (f *feeder) feed(value int16, n int) {
	f.t.Helper()
	for i := 0; i < n; i++ {
		step, err := f.s.OnChunk(chunk(f.s.cfg, value), f.ts)
		if err != nil {
			f.t.Fatalf("OnChunk failed: %v", err)
		}
		f.ts += f.s.cfg.ChunkDuration.Milliseconds()
		if step.Utterance != nil {
			f.utt = append(f.utt, step.Utterance)
		}
	}
}

func TestSilenceTimeoutAfterMinimum(t *testing.T) {
	cfg := testConfig()
	s := newTestSession(t, cfg)
	f := &feeder{t: t, s: s}

	s.OnHotkeyStart()
	f.feed(1000, 8)
	f.feed(0, 30)

	if len(f.utt) != 1 {
		t.Fatalf("Expected 1 utterance, got %d", len(f.utt))
	}
	u := f.utt[0]
	if u.Chunks != 35 {
		t.Errorf("Expected 35 chunks, got %d", u.Chunks)
	}
	if len(u.Samples) != 35*cfg.ChunkSamples() {
		t.Errorf("Expected %d samples, got %d", 35*cfg.ChunkSamples(), len(u.Samples))
	}
	if u.Reason != ReasonSilence {
		t.Errorf("Expected reason %q, got %q", ReasonSilence, u.Reason)
	}
	if u.Duration != 700*time.Millisecond {
		t.Errorf("Expected duration 700ms, got %v", u.Duration)
	}
	if u.StartedAtMs != 0 || u.EndedAtMs != 700 {
		t.Errorf("Expected span 0..700ms, got %d..%d", u.StartedAtMs, u.EndedAtMs)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle, got %v", s.State())
	}
}

func TestShortUtteranceIgnoresSilenceBelowMinimum(t *testing.T) {
	cfg := testConfig()
	cfg.MinDuration = time.Second
	cfg.SilenceTimeout = 100 * time.Millisecond
	s := newTestSession(t, cfg)
	f := &feeder{t: t, s: s}

	s.OnHotkeyStart()
	f.feed(1000, 5)
	f.feed(0, 45)
	if len(f.utt) != 0 {
		t.Fatalf("Expected no utterance below minimum, got %d", len(f.utt))
	}
	if s.State() != StateRecording {
		t.Fatalf("Expected recording, got %v", s.State())
	}

	// the minimum is reached after chunk 50; five more silent chunks end it
	f.feed(0, 4)
	if len(f.utt) != 0 {
		t.Fatalf("Expected no utterance yet, got %d", len(f.utt))
	}
	f.feed(0, 1)
	if len(f.utt) != 1 {
		t.Fatalf("Expected 1 utterance, got %d", len(f.utt))
	}
	if f.utt[0].Chunks != 55 {
		t.Errorf("Expected 55 chunks, got %d", f.utt[0].Chunks)
	}
}

func TestSpeechResetsSilenceRun(t *testing.T) {
	cfg := testConfig()
	s := newTestSession(t, cfg)
	f := &feeder{t: t, s: s}

	s.OnHotkeyStart()
	f.feed(1000, 20)
	f.feed(0, 24)
	f.feed(1000, 1)
	f.feed(0, 24)
	if len(f.utt) != 0 {
		t.Fatalf("Expected recording to continue, got %d utterances", len(f.utt))
	}
	f.feed(0, 1)
	if len(f.utt) != 1 {
		t.Fatalf("Expected 1 utterance, got %d", len(f.utt))
	}
}

func TestMaxDurationForcesFinalize(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDuration = time.Second
	s := newTestSession(t, cfg)
	f := &feeder{t: t, s: s}

	s.OnHotkeyStart()
	f.feed(1000, 49)
	if len(f.utt) != 0 {
		t.Fatalf("Expected no utterance before maximum, got %d", len(f.utt))
	}
	f.feed(1000, 1)
	if len(f.utt) != 1 {
		t.Fatalf("Expected 1 utterance at maximum, got %d", len(f.utt))
	}
	u := f.utt[0]
	if u.Duration != time.Second || u.Reason != ReasonMaxDuration {
		t.Errorf("Expected 1s max_duration utterance, got %v %q", u.Duration, u.Reason)
	}

	// continuous speech after the cut does not re-arm
	f.feed(1000, 100)
	if len(f.utt) != 1 || s.State() != StateIdle {
		t.Errorf("Expected idle with 1 utterance, got %v with %d", s.State(), len(f.utt))
	}
}

func TestToggleWithoutSpeechYieldsNothing(t *testing.T) {
	s := newTestSession(t, testConfig())
	f := &feeder{t: t, s: s}

	if step := s.OnHotkeyToggle(); step.To != StateListening {
		t.Fatalf("Expected listening, got %v", step.To)
	}
	f.feed(0, 10)
	step := s.OnHotkeyToggle()
	if step.To != StateIdle || step.Utterance != nil || step.Discarded {
		t.Errorf("Expected clean return to idle, got %+v", step)
	}
	if len(f.utt) != 0 {
		t.Errorf("Expected no utterance, got %d", len(f.utt))
	}
}

func TestHoldModeCollectsAllChunks(t *testing.T) {
	cfg := testConfig().WithMode(ModeHold)
	s := newTestSession(t, cfg)
	f := &feeder{t: t, s: s}

	s.OnHotkeyStart()
	f.feed(0, 3)
	// key repeat while held
	s.OnHotkeyStart()
	f.feed(1000, 30)
	step := s.OnHotkeyStop()

	if step.Utterance == nil {
		t.Fatal("Expected an utterance on key up")
	}
	if step.Utterance.Chunks != 30 {
		t.Errorf("Expected 30 chunks, got %d", step.Utterance.Chunks)
	}
	if step.Reason != ReasonHotkey || step.To != StateIdle {
		t.Errorf("Expected hotkey finalize to idle, got %q %v", step.Reason, step.To)
	}
}

func TestHotkeyStopBelowMinimumDiscards(t *testing.T) {
	s := newTestSession(t, testConfig())
	f := &feeder{t: t, s: s}

	s.OnHotkeyStart()
	f.feed(1000, 3)
	step := s.OnHotkeyStop()
	if step.Utterance != nil {
		t.Fatal("Expected no utterance below minimum")
	}
	if !step.Discarded {
		t.Error("Expected discarded flag")
	}
	if s.Buffered() != 0 {
		t.Errorf("Expected empty buffer, got %d", s.Buffered())
	}
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	s := newTestSession(t, testConfig())
	step := s.OnHotkeyStop()
	if step.Changed() || s.State() != StateIdle {
		t.Errorf("Expected no-op, got %+v", step)
	}
}

func TestForceStartRecordsSilence(t *testing.T) {
	s := newTestSession(t, testConfig())
	f := &feeder{t: t, s: s}

	s.OnHotkeyStart()
	s.OnHotkeyStart()
	f.feed(0, 1)
	if s.State() != StateRecording {
		t.Fatalf("Expected forced recording, got %v", s.State())
	}

	s.Cancel()
	s.OnHotkeyStart()
	s.OnForceStart()
	f.feed(0, 1)
	if s.State() != StateRecording {
		t.Fatalf("Expected forced recording, got %v", s.State())
	}
}

func TestCancelDiscardsBuffer(t *testing.T) {
	s := newTestSession(t, testConfig())
	f := &feeder{t: t, s: s}

	s.OnHotkeyStart()
	f.feed(1000, 20)
	step := s.Cancel()
	if !step.Discarded || step.Utterance != nil {
		t.Errorf("Expected discarded recording, got %+v", step)
	}
	if s.State() != StateIdle || s.Buffered() != 0 {
		t.Errorf("Expected idle with empty buffer, got %v/%d", s.State(), s.Buffered())
	}
}

func TestBufferInvariantUnderRandomEvents(t *testing.T) {
	cfg := testConfig()
	cfg.MinDuration = 100 * time.Millisecond
	cfg.SilenceTimeout = 200 * time.Millisecond
	cfg.MaxDuration = 2 * time.Second
	s := newTestSession(t, cfg)
	rng := rand.New(rand.NewSource(7))
	speech := chunk(cfg, 1000)
	silence := chunk(cfg, 0)

	for i := 0; i < 20000; i++ {
		switch n := rng.Intn(100); {
		case n < 45:
			_, _ = s.OnChunk(speech, int64(i*20))
		case n < 90:
			_, _ = s.OnChunk(silence, int64(i*20))
		case n < 93:
			s.OnHotkeyStart()
		case n < 96:
			s.OnHotkeyStop()
		case n < 98:
			s.OnHotkeyToggle()
		default:
			s.Cancel()
		}
		recording := s.State() == StateRecording || s.State() == StateFinalizing
		if recording != (s.Buffered() > 0) {
			t.Fatalf("step %d: state %v with %d buffered samples", i, s.State(), s.Buffered())
		}
		if s.Buffered() > cfg.maxSamples() {
			t.Fatalf("step %d: buffer %d exceeds maximum %d", i, s.Buffered(), cfg.maxSamples())
		}
	}
}

func TestCalibrationSeedsThreshold(t *testing.T) {
	s := newTestSession(t, testConfig())

	if err := s.StartCalibration(100 * time.Millisecond); err != nil {
		t.Fatalf("StartCalibration failed: %v", err)
	}
	if step := s.OnHotkeyStart(); step.To != StateIdle {
		t.Fatalf("Expected hotkeys ignored while calibrating, got %v", step.To)
	}

	var calibrated bool
	for i := 0; i < 5; i++ {
		step, err := s.OnChunk(chunk(s.cfg, 100), int64(i*20))
		if err != nil {
			t.Fatalf("OnChunk failed: %v", err)
		}
		calibrated = step.Calibrated
	}
	if !calibrated || s.Calibrating() {
		t.Fatal("Expected calibration to complete after the window")
	}
	if err := s.FinishCalibration(); err != nil {
		t.Fatalf("FinishCalibration failed: %v", err)
	}
	if got := s.Threshold(); got != 225 {
		t.Errorf("Expected threshold 225, got %v", got)
	}
}

func TestCalibrationWithoutAudioFails(t *testing.T) {
	cfg := testConfig()
	s := newTestSession(t, cfg)

	if err := s.StartCalibration(0); err != nil {
		t.Fatalf("StartCalibration failed: %v", err)
	}
	err := s.FinishCalibration()
	var ce *CalibrationError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected CalibrationError, got %T: %v", err, err)
	}
	if KindOf(err) != KindCalibration {
		t.Errorf("Expected calibration kind, got %v", KindOf(err))
	}
	if ce.Window != cfg.CalibrationWindow {
		t.Errorf("Expected window %v, got %v", cfg.CalibrationWindow, ce.Window)
	}
	if s.Threshold() != cfg.NoiseThreshold {
		t.Errorf("Expected default threshold %v, got %v", cfg.NoiseThreshold, s.Threshold())
	}
}

func TestStartCalibrationRequiresIdle(t *testing.T) {
	s := newTestSession(t, testConfig())
	s.OnHotkeyStart()
	if err := s.StartCalibration(time.Second); !errors.Is(err, ErrNotIdle) {
		t.Errorf("Expected ErrNotIdle, got %v", err)
	}
}

func TestReconfigure(t *testing.T) {
	s := newTestSession(t, testConfig())
	if err := s.Reconfigure(s.Config().WithMode(ModeHold)); err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}
	if s.Config().Mode != ModeHold {
		t.Errorf("Expected hold mode, got %v", s.Config().Mode)
	}

	bad := s.Config()
	bad.MinDuration = 2 * bad.MaxDuration
	if err := s.Reconfigure(bad); err == nil {
		t.Error("Expected validation error")
	}

	s.OnHotkeyStart()
	if err := s.Reconfigure(s.Config()); !errors.Is(err, ErrNotIdle) {
		t.Errorf("Expected ErrNotIdle, got %v", err)
	}
}

func TestOnChunkRejectsWrongSize(t *testing.T) {
	s := newTestSession(t, testConfig())
	if _, err := s.OnChunk(make([]int16, 10), 0); !errors.Is(err, ErrChunkSize) {
		t.Errorf("Expected ErrChunkSize, got %v", err)
	}
}

func TestLevelMeterPeakHoldAndDecay(t *testing.T) {
	cfg := testConfig()
	cfg.PeakHold = 40 * time.Millisecond
	cfg.PeakDecay = 0.5
	cfg.LevelSmoothing = 0.5
	m := NewLevelMeter(cfg)

	if lvl := m.Observe(100); lvl.Peak != 100 || lvl.Smoothed != 100 {
		t.Fatalf("Expected primed meter at 100, got %+v", lvl)
	}
	if lvl := m.Observe(0); lvl.Peak != 100 || lvl.Smoothed != 50 {
		t.Fatalf("Expected held peak and smoothed 50, got %+v", lvl)
	}
	if lvl := m.Observe(0); lvl.Peak != 100 {
		t.Fatalf("Expected held peak, got %+v", lvl)
	}
	if lvl := m.Observe(0); lvl.Peak != 50 {
		t.Fatalf("Expected decayed peak 50, got %+v", lvl)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "zero sample rate", modify: func(c *Config) { c.SampleRate = 0 }},
		{name: "min above max", modify: func(c *Config) { c.MinDuration = 2 * c.MaxDuration }},
		{name: "silence below chunk", modify: func(c *Config) { c.SilenceTimeout = time.Millisecond }},
		{name: "bad smoothing", modify: func(c *Config) { c.LevelSmoothing = 0 }},
		{name: "bad decay", modify: func(c *Config) { c.PeakDecay = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Expected default config to be valid: %v", err)
	}
	if got := testConfig().SilenceChunks(); got != 25 {
		t.Errorf("Expected 25 silence chunks, got %d", got)
	}
}
