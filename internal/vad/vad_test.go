package vad

import (
	"math"
	"testing"
)

func sine(n int, freq, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/16000))
	}
	return out
}

func TestNewEnergyValidation(t *testing.T) {
	tests := []struct {
		name      string
		level     int
		expectErr bool
	}{
		{name: "least aggressive", level: 0},
		{name: "most aggressive", level: 3},
		{name: "negative", level: -1, expectErr: true},
		{name: "too high", level: 4, expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEnergy(tt.level)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestEnergyClassifiesToneAndSilence(t *testing.T) {
	d, err := NewEnergy(3)
	if err != nil {
		t.Fatalf("NewEnergy failed: %v", err)
	}
	if !d.IsSpeech(sine(320, 440, 3000), 300) {
		t.Error("Expected loud tone to be speech")
	}
	if d.IsSpeech(make([]int16, 320), 300) {
		t.Error("Expected zero chunk to be silence")
	}
	if d.IsSpeech(nil, 0) {
		t.Error("Expected empty chunk to be silence")
	}
}

func TestEnergyAggressivenessIsStricter(t *testing.T) {
	chunk := sine(320, 440, 400)
	threshold := Level(chunk)

	lenient, _ := NewEnergy(0)
	strict, _ := NewEnergy(3)
	if !lenient.IsSpeech(chunk, threshold) {
		t.Error("Expected level 0 to accept chunk at threshold")
	}
	if strict.IsSpeech(chunk, threshold) {
		t.Error("Expected level 3 to reject chunk at threshold")
	}
}

func TestEnergyRejectsDCOffset(t *testing.T) {
	chunk := make([]int16, 320)
	for i := range chunk {
		chunk[i] = 5000
	}
	d, _ := NewEnergy(1)
	if d.IsSpeech(chunk, 100) {
		t.Error("Expected constant offset to be rejected")
	}
	d0, _ := NewEnergy(0)
	if !d0.IsSpeech(chunk, 100) {
		t.Error("Expected level 0 to skip crossing check")
	}
}

func TestLevelAndCrossingRate(t *testing.T) {
	if got := Level([]int16{-10, 10, -20, 20}); got != 15 {
		t.Errorf("Expected level 15, got %f", got)
	}
	if got := CrossingRate([]int16{1, -1, 1, -1, 1}); got != 1 {
		t.Errorf("Expected crossing rate 1, got %f", got)
	}
	if got := CrossingRate([]int16{1}); got != 0 {
		t.Errorf("Expected crossing rate 0, got %f", got)
	}
}

func TestCounterStats(t *testing.T) {
	d, _ := NewEnergy(0)
	c := NewCounter(d)
	loud := []int16{-1000, 1000, -1000, 1000}
	quiet := []int16{1, -1, 1, -1}

	c.IsSpeech(loud, 100)
	c.IsSpeech(quiet, 100)
	c.IsSpeech(quiet, 100)
	c.IsSpeech(loud, 100)

	st := c.Stats()
	if st.TotalWindows != 4 || st.VoiceWindows != 2 {
		t.Errorf("Expected 4 total / 2 voiced, got %+v", st)
	}
	if st.VoicePercentage != 50 {
		t.Errorf("Expected 50%% voiced, got %f", st.VoicePercentage)
	}
}
