package effects

import (
	"testing"
	"time"
)

func rgbRegistry() map[string]*FixtureInfo {
	return map[string]*FixtureInfo{
		"strip": testFixture("strip", map[string]uint16{"red": 1, "green": 2, "blue": 3}),
	}
}

func dimmerRegistry() map[string]*FixtureInfo {
	return map[string]*FixtureInfo{
		"spot": testFixture("spot", map[string]uint16{"red": 1, "green": 2, "blue": 3, "dimmer": 4}),
	}
}

func TestStaticEffectParameters(t *testing.T) {
	registry := rgbRegistry()
	in := NewInstance("fx", StaticEffect{Parameters: map[string]float64{"red": 0.8, "smoke": 1.0}}, []string{"strip"}, 0, 0, 0)

	states := processEffect(registry, in, 0, 0, nil)
	st := states["strip"]
	if got := st.Channels["red"].Value; !almostEqual(got, 0.8) {
		t.Errorf("red = %v, want 0.8", got)
	}
	// Parameters with no matching channel are ignored.
	if _, ok := st.Channels["smoke"]; ok {
		t.Error("parameter without a channel should be skipped")
	}
}

func TestColorCycleSnapAndFade(t *testing.T) {
	registry := rgbRegistry()
	colors := []Color{{R: 255}, {G: 255}}

	snap := NewInstance("fx", ColorCycleEffect{Colors: colors, Speed: FixedSpeed(1), Transition: Snap}, []string{"strip"}, 0, 0, 0)
	// At 1 cycle/s with two colors, the second color holds during the
	// second half of the cycle.
	st := processEffect(registry, snap, 600*time.Millisecond, 0, nil)["strip"]
	if !almostEqual(st.Channels["red"].Value, 0) || !almostEqual(st.Channels["green"].Value, 1) {
		t.Errorf("snap at 0.6: red=%v green=%v, want green", st.Channels["red"].Value, st.Channels["green"].Value)
	}

	fade := NewInstance("fx", ColorCycleEffect{Colors: colors, Speed: FixedSpeed(1), Transition: Fade}, []string{"strip"}, 0, 0, 0)
	// Halfway through the first segment red and green are mid-blend.
	st = processEffect(registry, fade, 250*time.Millisecond, 0, nil)["strip"]
	if got := st.Channels["red"].Value; !almostEqual(got, 127.0/255.0) {
		t.Errorf("fade red = %v, want ~0.5", got)
	}
	if got := st.Channels["green"].Value; !almostEqual(got, 127.0/255.0) {
		t.Errorf("fade green = %v, want ~0.5", got)
	}
}

func TestColorCycleStoppedHoldsFirstColor(t *testing.T) {
	registry := rgbRegistry()
	in := NewInstance("fx", ColorCycleEffect{Colors: []Color{{B: 255}, {R: 255}}, Speed: SpeedSeconds(0)}, []string{"strip"}, 0, 0, 0)
	st := processEffect(registry, in, 42*time.Second, 0, nil)["strip"]
	if !almostEqual(st.Channels["blue"].Value, 1) {
		t.Errorf("stopped cycle should hold the first color, blue=%v", st.Channels["blue"].Value)
	}
}

func TestCycleIndices(t *testing.T) {
	tests := []struct {
		name         string
		dir          CycleDirection
		progress     float64
		count        int
		wantIdx      int
		wantNext     int
		wantProgress float64
	}{
		{name: "forward start", dir: Forward, progress: 0, count: 3, wantIdx: 0, wantNext: 1, wantProgress: 0},
		{name: "forward wraps", dir: Forward, progress: 0.9, count: 3, wantIdx: 2, wantNext: 0, wantProgress: 0.7},
		{name: "backward start holds last", dir: Backward, progress: 0, count: 3, wantIdx: 2, wantNext: 2, wantProgress: 0},
		{name: "backward mid", dir: Backward, progress: 0.5, count: 4, wantIdx: 2, wantNext: 1, wantProgress: 0},
		{name: "pingpong peak", dir: PingPong, progress: 0.5, count: 3, wantIdx: 2, wantNext: 2, wantProgress: 0},
		{name: "pingpong quarter", dir: PingPong, progress: 0.25, count: 3, wantIdx: 1, wantNext: 2, wantProgress: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, next, p := cycleIndices(tt.count, tt.dir, tt.progress)
			if idx != tt.wantIdx || next != tt.wantNext {
				t.Errorf("indices = (%d, %d), want (%d, %d)", idx, next, tt.wantIdx, tt.wantNext)
			}
			if !almostEqual(p, tt.wantProgress) {
				t.Errorf("segment progress = %v, want %v", p, tt.wantProgress)
			}
		})
	}
}

func TestStrobeSoftwareDutyCycle(t *testing.T) {
	registry := rgbRegistry()
	in := NewInstance("fx", StrobeEffect{Frequency: FixedFrequency(1)}, []string{"strip"}, 0, 0, 0)

	on := processEffect(registry, in, 250*time.Millisecond, 0, nil)["strip"]
	if got := on.Channels["red"].Value; !almostEqual(got, 1) {
		t.Errorf("first half period should be ON, red=%v", got)
	}

	off := processEffect(registry, in, 750*time.Millisecond, 0, nil)["strip"]
	red := off.Channels["red"]
	if !almostEqual(red.Value, 0) {
		t.Errorf("second half period should be OFF, red=%v", red.Value)
	}
	// The dark phase forces Replace so lit lower layers cannot leak
	// through the flash.
	if red.BlendMode != Replace {
		t.Errorf("off-phase blend mode = %v, want Replace", red.BlendMode)
	}
}

func TestStrobeZeroFrequency(t *testing.T) {
	softRegistry := rgbRegistry()
	in := NewInstance("fx", StrobeEffect{Frequency: FixedFrequency(0)}, []string{"strip"}, 0, 0, 0)
	st := processEffect(softRegistry, in, time.Second, 0, nil)["strip"]
	if len(st.Channels) != 0 {
		t.Errorf("software strobe at 0 Hz writes no channels, got %v", st.Channels)
	}

	hwRegistry := map[string]*FixtureInfo{
		"beam": testFixture("beam", map[string]uint16{"red": 1, "green": 2, "blue": 3, "strobe": 4}),
	}
	hw := NewInstance("fx", StrobeEffect{Frequency: FixedFrequency(0)}, []string{"beam"}, 0, 0, 0)
	st = processEffect(hwRegistry, hw, time.Second, 0, nil)["beam"]
	if got, ok := st.Channels["strobe"]; !ok || !almostEqual(got.Value, 0) {
		t.Errorf("hardware strobe at 0 Hz should write strobe=0, got %v", st.Channels)
	}
}

func TestStrobeHardwareNormalization(t *testing.T) {
	registry := map[string]*FixtureInfo{
		"beam": {
			Name: "beam", Universe: 1, Address: 1,
			Channels:           map[string]uint16{"red": 1, "green": 2, "blue": 3, "strobe": 4},
			MaxStrobeFrequency: 10,
		},
	}
	in := NewInstance("fx", StrobeEffect{Frequency: FixedFrequency(5)}, []string{"beam"}, 0, 0, 0)
	st := processEffect(registry, in, 0, 0, nil)["beam"]
	if got := st.Channels["strobe"].Value; !almostEqual(got, 0.5) {
		t.Errorf("strobe channel = %v, want 5/10", got)
	}

	// Without a declared maximum, 20 Hz is assumed.
	registry["beam"].MaxStrobeFrequency = 0
	st = processEffect(registry, in, 0, 0, nil)["beam"]
	if got := st.Channels["strobe"].Value; !almostEqual(got, 0.25) {
		t.Errorf("strobe channel = %v, want 5/20", got)
	}
}

func TestDimmerCurves(t *testing.T) {
	tests := []struct {
		curve DimmerCurve
		p     float64
		want  float64
	}{
		{curve: CurveLinear, p: 0.5, want: 0.5},
		{curve: CurveExponential, p: 0.5, want: 0.25},
		{curve: CurveLogarithmic, p: 1.0, want: 1.0},
		{curve: CurveLogarithmic, p: 0.0, want: 0.0},
		{curve: CurveSine, p: 0.5, want: 0.5},
		{curve: CurveSine, p: 1.0, want: 1.0},
		{curve: CurveCosine, p: 0.5, want: 0.75},
	}
	for _, tt := range tests {
		if got := applyCurve(tt.curve, tt.p); !almostEqual(got, tt.want) {
			t.Errorf("applyCurve(%v, %v) = %v, want %v", tt.curve, tt.p, got, tt.want)
		}
	}
}

func TestDimmerEffect(t *testing.T) {
	registry := dimmerRegistry()
	in := NewInstance("fx", DimmerEffect{StartLevel: 0, EndLevel: 1, Duration: 2 * time.Second, Curve: CurveLinear}, []string{"spot"}, 0, 0, 0)
	st := processEffect(registry, in, time.Second, 0, nil)["spot"]
	if got := st.Channels["dimmer"].Value; !almostEqual(got, 0.5) {
		t.Errorf("dimmer halfway = %v, want 0.5", got)
	}

	// RGB-only fixtures dim through the per-layer multiplier instead.
	rgb := rgbRegistry()
	in = NewInstance("fx", DimmerEffect{StartLevel: 1, EndLevel: 0, Duration: 0}, []string{"strip"}, 0, 0, 0)
	in.Layer = Midground
	st = processEffect(rgb, in, 0, 0, nil)["strip"]
	if got, ok := st.Channels["_dimmer_mult_mid"]; !ok || !almostEqual(got.Value, 0) {
		t.Errorf("rgb-only dimmer should write _dimmer_mult_mid, got %v", st.Channels)
	}
}

func TestChaseOrder(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		pattern ChasePattern
		dir     ChaseDirection
		want    []int
	}{
		{name: "linear forward", count: 4, pattern: ChaseLinear, dir: LeftToRight, want: []int{0, 1, 2, 3}},
		{name: "linear reversed", count: 4, pattern: ChaseLinear, dir: RightToLeft, want: []int{3, 2, 1, 0}},
		{name: "snake", count: 4, pattern: ChaseSnake, dir: TopToBottom, want: []int{0, 1, 2, 3, 2, 1}},
		{name: "snake reversed", count: 4, pattern: ChaseSnake, dir: BottomToTop, want: []int{1, 2, 3, 2, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chaseOrder(tt.count, tt.pattern, tt.dir)
			if len(got) != len(tt.want) {
				t.Fatalf("order = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("order = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestChaseRandomIsDeterministic(t *testing.T) {
	a := chaseOrder(5, ChaseRandom, LeftToRight)
	b := chaseOrder(5, ChaseRandom, LeftToRight)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("random chase order must be stable across calls")
		}
	}
}

func TestChaseSnapActivatesOneFixture(t *testing.T) {
	registry := map[string]*FixtureInfo{
		"a": testFixture("a", map[string]uint16{"red": 1, "green": 2, "blue": 3}),
		"b": testFixture("b", map[string]uint16{"red": 1, "green": 2, "blue": 3}),
	}
	in := NewInstance("fx", ChaseEffect{Pattern: ChaseLinear, Speed: FixedSpeed(1), Direction: LeftToRight}, []string{"a", "b"}, 0, 0, 0)

	// One cycle per second over two fixtures: first half lights "a".
	states := processEffect(registry, in, 100*time.Millisecond, 0, nil)
	if got := states["a"].Channels["red"].Value; !almostEqual(got, 1) {
		t.Errorf("first slot: fixture a red = %v, want 1", got)
	}
	if got := states["b"].Channels["red"].Value; !almostEqual(got, 0) {
		t.Errorf("first slot: fixture b red = %v, want 0", got)
	}

	states = processEffect(registry, in, 600*time.Millisecond, 0, nil)
	if got := states["b"].Channels["red"].Value; !almostEqual(got, 1) {
		t.Errorf("second slot: fixture b red = %v, want 1", got)
	}
}

func TestChaseFadeCrossfadesSlots(t *testing.T) {
	registry := map[string]*FixtureInfo{
		"a": testFixture("a", map[string]uint16{"red": 1, "green": 2, "blue": 3}),
		"b": testFixture("b", map[string]uint16{"red": 1, "green": 2, "blue": 3}),
	}
	in := NewInstance("fx", ChaseEffect{Pattern: ChaseLinear, Speed: FixedSpeed(1), Direction: LeftToRight, Transition: Fade}, []string{"a", "b"}, 0, 0, 0)

	// Halfway through the first slot the spot is split evenly.
	states := processEffect(registry, in, 250*time.Millisecond, 0, nil)
	if got := states["a"].Channels["red"].Value; !almostEqual(got, 0.5) {
		t.Errorf("fading out: fixture a = %v, want 0.5", got)
	}
	if got := states["b"].Channels["red"].Value; !almostEqual(got, 0.5) {
		t.Errorf("fading in: fixture b = %v, want 0.5", got)
	}
}

func TestRainbowHue(t *testing.T) {
	registry := rgbRegistry()
	in := NewInstance("fx", RainbowEffect{Speed: FixedSpeed(1), Saturation: 1, Brightness: 1}, []string{"strip"}, 0, 0, 0)

	// At t=0 the hue is 0: pure red.
	st := processEffect(registry, in, 0, 0, nil)["strip"]
	if !almostEqual(st.Channels["red"].Value, 1) || !almostEqual(st.Channels["green"].Value, 0) {
		t.Errorf("hue 0: red=%v green=%v, want red", st.Channels["red"].Value, st.Channels["green"].Value)
	}

	// One third through the cycle the hue is 120: pure green.
	third := time.Second / 3
	st = processEffect(registry, in, third, 0, nil)["strip"]
	if !almostEqual(st.Channels["green"].Value, 1) {
		t.Errorf("hue 120: green=%v, want 1", st.Channels["green"].Value)
	}
}

func TestPulseWaveform(t *testing.T) {
	registry := dimmerRegistry()
	in := NewInstance("fx", PulseEffect{BaseLevel: 0.2, Amplitude: 0.6, Frequency: FixedFrequency(1)}, []string{"spot"}, 0, 0, 0)

	// sin(0) = 0, so at t=0 the pulse sits at base + amplitude/2.
	st := processEffect(registry, in, 0, 0, nil)["spot"]
	if got := st.Channels["dimmer"].Value; !almostEqual(got, 0.5) {
		t.Errorf("pulse at t=0 = %v, want 0.5", got)
	}

	// Quarter period: sin peaks, pulse reaches base + amplitude.
	st = processEffect(registry, in, 250*time.Millisecond, 0, nil)["spot"]
	if got := st.Channels["dimmer"].Value; !almostEqual(got, 0.8) {
		t.Errorf("pulse at quarter period = %v, want 0.8", got)
	}
}

func TestDisabledEffectProducesNothing(t *testing.T) {
	registry := rgbRegistry()
	in := NewInstance("fx", RainbowEffect{Speed: FixedSpeed(1), Saturation: 1, Brightness: 1}, []string{"strip"}, 0, 0, 0)
	in.Enabled = false
	if states := processEffect(registry, in, 0, 0, nil); states != nil {
		t.Errorf("disabled effect returned states: %v", states)
	}
}
