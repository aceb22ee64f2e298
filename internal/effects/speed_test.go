package effects

import (
	"math"
	"testing"
	"time"
)

// stubTempo converts at a constant BPM so tempo-aware resolution can be
// checked without a full tempo map.
type stubTempo struct {
	bpm             float64
	beatsPerMeasure float64
}

func (s stubTempo) BeatsToDuration(beats float64, _ time.Duration, _ float64) time.Duration {
	return time.Duration(beats * 60.0 / s.bpm * float64(time.Second))
}

func (s stubTempo) MeasuresToDuration(measures float64, at time.Duration, offset float64) time.Duration {
	return s.BeatsToDuration(measures*s.beatsPerMeasure, at, offset)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSpeedCyclesPerSecond(t *testing.T) {
	tests := []struct {
		name  string
		speed Speed
		tm    TempoSource
		want  float64
	}{
		{name: "fixed passes through", speed: FixedSpeed(2.5), want: 2.5},
		{name: "seconds inverts period", speed: SpeedSeconds(4), want: 0.25},
		{name: "zero seconds is stopped", speed: SpeedSeconds(0), want: 0},
		{name: "negative seconds is stopped", speed: SpeedSeconds(-1), want: 0},
		{name: "one measure at fallback tempo", speed: SpeedMeasures(1), want: 0.5},
		{name: "negative measures is stopped", speed: SpeedMeasures(-1), want: 0},
		{name: "one beat at fallback tempo", speed: SpeedBeats(1), want: 2.0},
		{name: "zero beats is stopped", speed: SpeedBeats(0), want: 0},
		{
			name:  "measures follow the tempo map",
			speed: SpeedMeasures(1),
			tm:    stubTempo{bpm: 60, beatsPerMeasure: 3},
			want:  1.0 / 3.0,
		},
		{
			name:  "beats follow the tempo map",
			speed: SpeedBeats(2),
			tm:    stubTempo{bpm: 90, beatsPerMeasure: 4},
			want:  0.75,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.speed.CyclesPerSecond(tt.tm, 0)
			if !almostEqual(got, tt.want) {
				t.Errorf("CyclesPerSecond = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrequencyHz(t *testing.T) {
	if got := FixedFrequency(10).Hz(nil, 0); !almostEqual(got, 10) {
		t.Errorf("fixed frequency = %v, want 10", got)
	}
	if got := FrequencySeconds(0.5).Hz(nil, 0); !almostEqual(got, 2) {
		t.Errorf("half second period = %v, want 2", got)
	}
	// One beat at the 120 BPM fallback is half a second.
	if got := FrequencyBeats(1).Hz(nil, 0); !almostEqual(got, 2) {
		t.Errorf("one beat = %v Hz, want 2", got)
	}
	if got := FrequencyMeasures(2).Hz(nil, 0); !almostEqual(got, 0.25) {
		t.Errorf("two measures = %v Hz, want 0.25", got)
	}
}
