package effects

import (
	"testing"
	"time"
)

func TestCrossfadeMultiplier(t *testing.T) {
	in := NewInstance("fx", ColorCycleEffect{Colors: []Color{{R: 255}}, Speed: FixedSpeed(1)}, nil,
		2*time.Second, 4*time.Second, 2*time.Second)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    float64
	}{
		{name: "start of fade in", elapsed: 0, want: 0},
		{name: "mid fade in", elapsed: time.Second, want: 0.5},
		{name: "hold", elapsed: 4 * time.Second, want: 1.0},
		{name: "end of hold", elapsed: 6 * time.Second, want: 1.0},
		{name: "mid fade out", elapsed: 7 * time.Second, want: 0.5},
		{name: "after end", elapsed: 9 * time.Second, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := in.CrossfadeMultiplier(tt.elapsed); !almostEqual(got, tt.want) {
				t.Errorf("CrossfadeMultiplier(%v) = %v, want %v", tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestCrossfadeIndefinite(t *testing.T) {
	// No hold or down time means the effect holds at full forever.
	in := NewInstance("fx", RainbowEffect{Speed: FixedSpeed(1), Saturation: 1, Brightness: 1}, nil, 0, 0, 0)
	if got := in.CrossfadeMultiplier(time.Hour); got != 1.0 {
		t.Errorf("indefinite effect multiplier = %v, want 1.0", got)
	}

	withFadeIn := NewInstance("fx", RainbowEffect{Speed: FixedSpeed(1), Saturation: 1, Brightness: 1}, nil,
		time.Second, 0, 0)
	if got := withFadeIn.CrossfadeMultiplier(500 * time.Millisecond); !almostEqual(got, 0.5) {
		t.Errorf("fade in at half = %v, want 0.5", got)
	}
	if got := withFadeIn.CrossfadeMultiplier(time.Hour); got != 1.0 {
		t.Errorf("after fade in = %v, want 1.0 forever", got)
	}
}

func TestNewInstanceDefaultsHoldFromDuration(t *testing.T) {
	in := NewInstance("fx", StrobeEffect{Frequency: FixedFrequency(5), Duration: 3 * time.Second}, nil, 0, 0, 0)
	if in.HoldTime != 3*time.Second {
		t.Errorf("hold time = %v, want duration-derived 3s", in.HoldTime)
	}
	if total, ok := in.TotalDuration(); !ok || total != 3*time.Second {
		t.Errorf("total duration = %v/%v, want 3s", total, ok)
	}
}

func TestTotalDurationPerpetual(t *testing.T) {
	perpetual := []EffectType{
		StaticEffect{Parameters: map[string]float64{"red": 1}},
		ColorCycleEffect{Colors: []Color{{R: 255}}, Speed: FixedSpeed(1)},
		ChaseEffect{Speed: FixedSpeed(1)},
		RainbowEffect{Speed: FixedSpeed(1)},
		StrobeEffect{Frequency: FixedFrequency(5)},
		PulseEffect{BaseLevel: 0.5, Amplitude: 0.5, Frequency: FixedFrequency(1)},
	}
	for _, et := range perpetual {
		in := NewInstance("fx", et, nil, 0, 0, 0)
		if _, ok := in.TotalDuration(); ok {
			t.Errorf("%T with no timing should be perpetual", et)
		}
		if in.HasReachedTerminalState(time.Hour) {
			t.Errorf("%T should never terminate without timing", et)
		}
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		in   *Instance
		want bool
	}{
		{
			name: "indefinite static is permanent",
			in:   NewInstance("fx", StaticEffect{Parameters: map[string]float64{"red": 1}}, nil, 0, 0, 0),
			want: true,
		},
		{
			name: "timed static is temporary",
			in:   NewInstance("fx", StaticEffect{Parameters: map[string]float64{"red": 1}, Duration: time.Second}, nil, 0, 0, 0),
			want: false,
		},
		{
			name: "dimmer is always permanent",
			in:   NewInstance("fx", DimmerEffect{EndLevel: 1, Duration: time.Second}, nil, 0, 0, 0),
			want: true,
		},
		{
			name: "strobe is temporary",
			in:   NewInstance("fx", StrobeEffect{Frequency: FixedFrequency(5), Duration: time.Second}, nil, 0, 0, 0),
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.IsPermanent(); got != tt.want {
				t.Errorf("IsPermanent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDimmerTerminalState(t *testing.T) {
	in := NewInstance("fx", DimmerEffect{StartLevel: 0, EndLevel: 1, Duration: 2 * time.Second}, nil, 0, 0, 0)
	if in.HasReachedTerminalState(time.Second) {
		t.Error("dimmer mid-transition should not be terminal")
	}
	if !in.HasReachedTerminalState(2 * time.Second) {
		t.Error("dimmer at full duration should be terminal")
	}

	instant := NewInstance("fx", DimmerEffect{StartLevel: 0, EndLevel: 1, Duration: 0}, nil, 0, 0, 0)
	if !instant.HasReachedTerminalState(0) {
		t.Error("zero-duration dimmer is an instant transition")
	}
}
