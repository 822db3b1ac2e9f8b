package session

import (
	"fmt"
	"time"
)

// Config is the immutable session configuration. Change it by building a new
// value and passing it to Reconfigure.
type Config struct {
	Mode              Mode
	SampleRate        int
	ChunkDuration     time.Duration
	MinDuration       time.Duration
	MaxDuration       time.Duration
	SilenceTimeout    time.Duration
	CalibrationWindow time.Duration
	// NoiseThreshold is used until a calibration succeeds.
	NoiseThreshold float64
	// LevelSmoothing is the EMA weight of the newest raw level.
	LevelSmoothing float64
	PeakHold       time.Duration
	PeakDecay      float64
}

// DefaultConfig mirrors the desktop tool's shipped settings.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeToggle,
		SampleRate:        16000,
		ChunkDuration:     20 * time.Millisecond,
		MinDuration:       500 * time.Millisecond,
		MaxDuration:       60 * time.Second,
		SilenceTimeout:    time.Second,
		CalibrationWindow: 2 * time.Second,
		NoiseThreshold:    300,
		LevelSmoothing:    0.3,
		PeakHold:          500 * time.Millisecond,
		PeakDecay:         0.95,
	}
}

// WithMode returns a copy of c using mode m.
func (c Config) WithMode(m Mode) Config {
	c.Mode = m
	return c
}

// Validate verifies config fields and returns an error if any value is invalid.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d (must be > 0)", c.SampleRate)
	}
	if c.ChunkDuration <= 0 {
		return fmt.Errorf("invalid chunk duration: %v (must be > 0)", c.ChunkDuration)
	}
	if c.ChunkSamples() <= 0 {
		return fmt.Errorf("chunk duration %v too short for %d Hz", c.ChunkDuration, c.SampleRate)
	}
	if c.MinDuration < 0 {
		return fmt.Errorf("invalid minimum duration: %v", c.MinDuration)
	}
	if c.MaxDuration < c.ChunkDuration {
		return fmt.Errorf("maximum duration %v shorter than one chunk", c.MaxDuration)
	}
	if c.MinDuration > c.MaxDuration {
		return fmt.Errorf("minimum duration %v exceeds maximum %v", c.MinDuration, c.MaxDuration)
	}
	if c.SilenceTimeout < c.ChunkDuration {
		return fmt.Errorf("silence timeout %v shorter than one chunk", c.SilenceTimeout)
	}
	if c.CalibrationWindow < 0 {
		return fmt.Errorf("invalid calibration window: %v", c.CalibrationWindow)
	}
	if c.NoiseThreshold < 0 {
		return fmt.Errorf("invalid noise threshold: %v", c.NoiseThreshold)
	}
	if c.LevelSmoothing <= 0 || c.LevelSmoothing > 1 {
		return fmt.Errorf("invalid level smoothing: %v (allowed (0,1])", c.LevelSmoothing)
	}
	if c.PeakDecay <= 0 || c.PeakDecay > 1 {
		return fmt.Errorf("invalid peak decay: %v (allowed (0,1])", c.PeakDecay)
	}
	if c.PeakHold < 0 {
		return fmt.Errorf("invalid peak hold: %v", c.PeakHold)
	}
	return nil
}

// ChunkSamples is the number of samples in one chunk.
func (c Config) ChunkSamples() int {
	return int(int64(c.SampleRate) * int64(c.ChunkDuration) / int64(time.Second))
}

// SilenceChunks is the number of consecutive silent chunks that end a recording.
func (c Config) SilenceChunks() int {
	n := int(c.SilenceTimeout / c.ChunkDuration)
	if n < 1 {
		n = 1
	}
	return n
}

// CalibrationChunks is the number of chunks covering the window w.
func (c Config) CalibrationChunks(w time.Duration) int {
	n := int((w + c.ChunkDuration - 1) / c.ChunkDuration)
	if n < 1 {
		n = 1
	}
	return n
}

func (c Config) maxSamples() int {
	return int(int64(c.SampleRate) * int64(c.MaxDuration) / int64(time.Second))
}

func (c Config) holdChunks() int {
	return int(c.PeakHold / c.ChunkDuration)
}

func (c Config) samplesDuration(n int) time.Duration {
	return time.Duration(int64(n) * int64(time.Second) / int64(c.SampleRate))
}
