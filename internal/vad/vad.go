package vad

import (
	"fmt"
	"math"
)

// Detector classifies a PCM chunk as speech or silence. Implementations must
// be deterministic for a given chunk and threshold.
type Detector interface {
	IsSpeech(samples []int16, noiseThreshold float64) bool
}

// MaxAggressiveness is the strictest silence classification level.
const MaxAggressiveness = 3

// thresholdFactor scales the noise threshold per aggressiveness level.
var thresholdFactor = [MaxAggressiveness + 1]float64{0.75, 1.0, 1.5, 2.0}

// minCrossingRate rejects DC offsets and hum; zero disables the check.
var minCrossingRate = [MaxAggressiveness + 1]float64{0, 0.005, 0.01, 0.02}

const maxCrossingRate = 0.45

// Energy is an energy based detector with a zero-crossing sanity check.
type Energy struct {
	aggressiveness int
}

// NewEnergy returns an Energy detector for aggressiveness 0..3.
func NewEnergy(aggressiveness int) (*Energy, error) {
	if aggressiveness < 0 || aggressiveness > MaxAggressiveness {
		return nil, fmt.Errorf("aggressiveness must be between 0 and %d, got %d", MaxAggressiveness, aggressiveness)
	}
	return &Energy{aggressiveness: aggressiveness}, nil
}

// Aggressiveness returns the configured level.
func (e *Energy) Aggressiveness() int {
	return e.aggressiveness
}

// IsSpeech reports whether the chunk level clears the scaled threshold.
func (e *Energy) IsSpeech(samples []int16, noiseThreshold float64) bool {
	if len(samples) == 0 {
		return false
	}
	if Level(samples) < noiseThreshold*thresholdFactor[e.aggressiveness] {
		return false
	}
	minZCR := minCrossingRate[e.aggressiveness]
	if minZCR == 0 {
		return true
	}
	zcr := CrossingRate(samples)
	if zcr < minZCR {
		return false
	}
	if e.aggressiveness == MaxAggressiveness && zcr > maxCrossingRate {
		return false
	}
	return true
}

// Level returns the mean absolute sample value of the chunk.
func Level(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}

// CrossingRate returns the fraction of adjacent sample pairs that change sign.
func CrossingRate(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}
