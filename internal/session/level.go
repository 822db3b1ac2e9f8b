package session

// LevelMeter smooths raw chunk levels and keeps a decaying peak for display.
// It never influences state transitions.
type LevelMeter struct {
	alpha      float64
	decay      float64
	holdChunks int

	primed    bool
	smoothed  float64
	peak      float64
	sincePeak int
}

// NewLevelMeter builds a meter from the session config.
func NewLevelMeter(cfg Config) LevelMeter {
	return LevelMeter{alpha: cfg.LevelSmoothing, decay: cfg.PeakDecay, holdChunks: cfg.holdChunks()}
}

// Observe folds one raw level into the meter.
func (m *LevelMeter) Observe(raw float64) Level {
	if !m.primed {
		m.primed = true
		m.smoothed = raw
	} else {
		m.smoothed = m.alpha*raw + (1-m.alpha)*m.smoothed
	}

	if raw >= m.peak {
		m.peak = raw
		m.sincePeak = 0
	} else {
		m.sincePeak++
		if m.sincePeak > m.holdChunks {
			m.peak *= m.decay
			if m.peak < raw {
				m.peak = raw
			}
		}
	}
	return Level{Raw: raw, Smoothed: m.smoothed, Peak: m.peak}
}
