package vad

import "sync"

// Stats summarizes the classifications made by a Counter.
type Stats struct {
	TotalWindows    uint64  `json:"total_windows"`
	VoiceWindows    uint64  `json:"voice_windows"`
	VoicePercentage float64 `json:"voice_percentage"`
}

// Counter wraps a Detector and counts its decisions.
type Counter struct {
	Detector

	mu     sync.Mutex
	total  uint64
	voiced uint64
}

// NewCounter wraps d.
func NewCounter(d Detector) *Counter {
	return &Counter{Detector: d}
}

// IsSpeech delegates to the wrapped detector and records the result.
func (c *Counter) IsSpeech(samples []int16, noiseThreshold float64) bool {
	speech := c.Detector.IsSpeech(samples, noiseThreshold)
	c.mu.Lock()
	c.total++
	if speech {
		c.voiced++
	}
	c.mu.Unlock()
	return speech
}

// Stats returns the counts so far.
func (c *Counter) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{TotalWindows: c.total, VoiceWindows: c.voiced}
	if c.total > 0 {
		st.VoicePercentage = float64(c.voiced) / float64(c.total) * 100
	}
	return st
}
