package session

import "math"

// Calibration is the running ambient noise estimate.
type Calibration struct {
	Chunks    int
	Noise     float64
	Threshold float64
}

// observe folds one ambient chunk level into the running mean.
func (c *Calibration) observe(level float64) {
	c.Chunks++
	c.Noise += (level - c.Noise) / float64(c.Chunks)
	c.Threshold = math.Floor(c.Noise*2.0) + 25
}
