package effects

import (
	"math"
	"time"
)

// defaultMaxStrobeFrequency is assumed for hardware strobe channels when
// the fixture does not declare a maximum.
const defaultMaxStrobeFrequency = 20.0

// processEffect evaluates one effect instance at the given elapsed time
// and returns per-fixture channel states. elapsed is time since the effect
// started (speed masters already applied); engineElapsed is the absolute
// song position used to resolve tempo-aware speeds. Returns nil when the
// effect is disabled or produces nothing.
func processEffect(registry map[string]*FixtureInfo, in *Instance, elapsed, engineElapsed time.Duration, tm TempoSource) map[string]FixtureState {
	if !in.Enabled {
		return nil
	}

	switch e := in.Type.(type) {
	case StaticEffect:
		return applyStatic(registry, in, e.Parameters, elapsed)
	case ColorCycleEffect:
		speed := e.Speed.CyclesPerSecond(tm, engineElapsed)
		return applyColorCycle(registry, in, e, speed, elapsed)
	case StrobeEffect:
		freq := e.Frequency.Hz(tm, engineElapsed)
		return applyStrobe(registry, in, freq, elapsed)
	case DimmerEffect:
		return applyDimmer(registry, in, e, elapsed)
	case ChaseEffect:
		speed := e.Speed.CyclesPerSecond(tm, engineElapsed)
		return applyChase(registry, in, e, speed, elapsed)
	case RainbowEffect:
		speed := e.Speed.CyclesPerSecond(tm, engineElapsed)
		return applyRainbow(registry, in, speed, e.Saturation, e.Brightness, elapsed)
	case PulseEffect:
		freq := e.Frequency.Hz(tm, engineElapsed)
		return applyPulse(registry, in, e.BaseLevel, e.Amplitude, freq, elapsed)
	}
	return nil
}

// applyStatic writes named parameters directly onto matching channels.
// Parameters that name a channel the fixture lacks are skipped.
func applyStatic(registry map[string]*FixtureInfo, in *Instance, params map[string]float64, elapsed time.Duration) map[string]FixtureState {
	crossfade := in.CrossfadeMultiplier(elapsed)

	states := make(map[string]FixtureState, len(in.TargetFixtures))
	for _, name := range in.TargetFixtures {
		fixture, ok := registry[name]
		if !ok {
			continue
		}
		fs := NewFixtureState()
		for param, value := range params {
			if _, ok := fixture.Channels[param]; ok {
				fs.SetChannel(param, NewChannelState(value*crossfade, in.Layer, in.BlendMode))
			}
		}
		states[name] = fs
	}
	return states
}

func applyColorCycle(registry map[string]*FixtureInfo, in *Instance, e ColorCycleEffect, speed float64, elapsed time.Duration) map[string]FixtureState {
	if len(e.Colors) == 0 {
		return nil
	}
	crossfade := in.CrossfadeMultiplier(elapsed)

	var color Color
	if speed <= 0.0 {
		// Stopped: hold the first color.
		color = e.Colors[0]
	} else {
		cycleTime := 1.0 / speed
		cycleProgress := math.Mod(elapsed.Seconds(), cycleTime) / cycleTime
		idx, next, segProgress := cycleIndices(len(e.Colors), e.Direction, cycleProgress)
		switch e.Transition {
		case Fade:
			color = e.Colors[idx%len(e.Colors)].Lerp(e.Colors[next%len(e.Colors)], segProgress)
		default:
			color = e.Colors[idx%len(e.Colors)]
		}
	}

	states := make(map[string]FixtureState, len(in.TargetFixtures))
	for _, name := range in.TargetFixtures {
		fixture, ok := registry[name]
		if !ok {
			continue
		}
		fs := NewFixtureState()
		for ch, st := range ProfileFor(fixture).ApplyColor(color, in.Layer, in.BlendMode) {
			st.Value *= crossfade
			fs.SetChannel(ch, st)
		}
		states[name] = fs
	}
	return states
}

// cycleIndices maps cycle progress in [0,1) to the current color index,
// the next index, and the progress within that segment.
func cycleIndices(count int, dir CycleDirection, progress float64) (int, int, float64) {
	switch dir {
	case Backward:
		reversed := 1.0 - progress
		idxF := reversed * float64(count)
		idx := int(math.Floor(idxF))
		// At the exact cycle start reversed is 1.0 and idx lands one past
		// the end; hold the last color there.
		if idx >= count {
			return count - 1, count - 1, 0.0
		}
		next := idx - 1
		if idx == 0 {
			next = count - 1
		}
		return idx, next, idxF - float64(idx)
	case PingPong:
		// Progress sweeps 0 -> 1 -> 0 over one cycle.
		pp := progress * 2.0
		if progress >= 0.5 {
			pp = 2.0 - progress*2.0
		}
		colorProgress := pp * float64(count-1)
		idx := int(math.Floor(colorProgress))
		if idx >= count-1 {
			return count - 1, count - 1, 0.0
		}
		return idx, idx + 1, colorProgress - float64(idx)
	default: // Forward
		idxF := progress * float64(count)
		idx := int(math.Floor(idxF))
		return idx, (idx + 1) % count, idxF - float64(idx)
	}
}

func applyStrobe(registry map[string]*FixtureInfo, in *Instance, frequency float64, elapsed time.Duration) map[string]FixtureState {
	crossfade := in.CrossfadeMultiplier(elapsed)

	states := make(map[string]FixtureState, len(in.TargetFixtures))
	for _, name := range in.TargetFixtures {
		fixture, ok := registry[name]
		if !ok {
			continue
		}
		fs := NewFixtureState()
		if frequency == 0.0 {
			// Disabled. Hardware strobes get an explicit zero; software
			// strobes write nothing so other effects keep control.
			if fixture.HasCapability(CapStrobing) {
				fs.SetChannel("strobe", NewChannelState(0.0, in.Layer, in.BlendMode))
			}
		} else {
			profile := ProfileFor(fixture)
			var normalized, strobeValue float64
			var hasValue bool
			if profile.Strobe == StrobeDedicatedChannel {
				maxFreq := fixture.MaxStrobeFrequency
				if maxFreq == 0 {
					maxFreq = defaultMaxStrobeFrequency
				}
				normalized = math.Min(frequency/maxFreq, 1.0)
			} else {
				// 50% duty cycle square wave, ON during the first half.
				period := 1.0 / frequency
				phase := math.Mod(elapsed.Seconds(), period) / period
				normalized = frequency
				hasValue = true
				if phase < 0.5 {
					strobeValue = 1.0
				}
			}
			for ch, st := range profile.ApplyStrobe(normalized, in.Layer, in.BlendMode, crossfade, strobeValue, hasValue) {
				fs.SetChannel(ch, st)
			}
		}
		states[name] = fs
	}
	return states
}

func applyDimmer(registry map[string]*FixtureInfo, in *Instance, e DimmerEffect, elapsed time.Duration) map[string]FixtureState {
	var value float64
	if e.Duration == 0 {
		value = e.EndLevel
	} else {
		p := clamp01(elapsed.Seconds() / e.Duration.Seconds())
		value = e.StartLevel + (e.EndLevel-e.StartLevel)*applyCurve(e.Curve, p)
	}

	states := make(map[string]FixtureState, len(in.TargetFixtures))
	for _, name := range in.TargetFixtures {
		fixture, ok := registry[name]
		if !ok {
			continue
		}
		fs := NewFixtureState()
		for ch, st := range ProfileFor(fixture).ApplyBrightness(value, in.Layer, in.BlendMode) {
			fs.SetChannel(ch, st)
		}
		states[name] = fs
	}
	return states
}

func applyCurve(curve DimmerCurve, p float64) float64 {
	switch curve {
	case CurveExponential:
		return p * p
	case CurveLogarithmic:
		if p <= 0.0 {
			return 0.0
		}
		return math.Log10(1.0 + 9.0*p)
	case CurveSine:
		return (1.0 - math.Cos(p*math.Pi)) / 2.0
	case CurveCosine:
		return 1.0 - (1.0-p)*(1.0-p)
	}
	return p
}

func applyChase(registry map[string]*FixtureInfo, in *Instance, e ChaseEffect, speed float64, elapsed time.Duration) map[string]FixtureState {
	crossfade := in.CrossfadeMultiplier(elapsed)
	count := len(in.TargetFixtures)
	if count == 0 {
		return map[string]FixtureState{}
	}

	// Per-fixture intensity for this sample.
	values := make([]float64, count)

	if speed <= 0.0 {
		// Stopped: hold the spot on the first fixture.
		values[0] = crossfade
	} else {
		order := chaseOrder(count, e.Pattern, e.Direction)
		// Every slot lasts as long as one position of a linear chase, so
		// snake and random run at the same perceived rate.
		positionDuration := (1.0 / speed) / float64(count)
		cyclePeriod := positionDuration * float64(len(order))
		cycleProgress := math.Mod(elapsed.Seconds(), cyclePeriod) / cyclePeriod
		slotF := cycleProgress * float64(len(order))
		slot := int(slotF)
		if slot < len(order) {
			switch e.Transition {
			case Fade:
				// Crossfade the spot between the active slot and the next.
				p := slotF - float64(slot)
				values[order[slot]] = (1.0 - p) * crossfade
				values[order[(slot+1)%len(order)]] += p * crossfade
			default:
				values[order[slot]] = crossfade
			}
		}
	}

	states := make(map[string]FixtureState, count)
	for i, name := range in.TargetFixtures {
		fixture, ok := registry[name]
		if !ok {
			continue
		}
		fs := NewFixtureState()
		for ch, st := range ProfileFor(fixture).ApplyChase(values[i], in.Layer, in.BlendMode) {
			fs.SetChannel(ch, st)
		}
		states[name] = fs
	}
	return states
}

// chaseOrder builds the slot-to-fixture-index sequence for a chase.
func chaseOrder(count int, pattern ChasePattern, dir ChaseDirection) []int {
	var order []int
	switch pattern {
	case ChaseSnake:
		// Forward then back, endpoints not repeated: 0 1 2 3 2 1.
		order = make([]int, 0, 2*count-2)
		for i := 0; i < count; i++ {
			order = append(order, i)
		}
		for i := count - 2; i >= 1; i-- {
			order = append(order, i)
		}
	case ChaseRandom:
		// Deterministic shuffle so the order is stable for the effect's
		// whole lifetime.
		order = make([]int, count)
		for i := range order {
			order[i] = i
		}
		seed := count * 7
		for i := 0; i < count; i++ {
			j := (seed + i) % count
			order[i], order[j] = order[j], order[i]
		}
		return order
	default:
		order = make([]int, count)
		for i := range order {
			order[i] = i
		}
	}
	if dir.reversed() {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}
	return order
}

func applyRainbow(registry map[string]*FixtureInfo, in *Instance, speed, saturation, brightness float64, elapsed time.Duration) map[string]FixtureState {
	crossfade := in.CrossfadeMultiplier(elapsed)

	hue := math.Mod(elapsed.Seconds()*speed*360.0, 360.0)
	color := ColorFromHSV(hue, saturation, brightness)

	states := make(map[string]FixtureState, len(in.TargetFixtures))
	for _, name := range in.TargetFixtures {
		fixture, ok := registry[name]
		if !ok {
			continue
		}
		fs := NewFixtureState()
		for ch, st := range ProfileFor(fixture).ApplyColor(color, in.Layer, in.BlendMode) {
			st.Value *= crossfade
			fs.SetChannel(ch, st)
		}
		states[name] = fs
	}
	return states
}

func applyPulse(registry map[string]*FixtureInfo, in *Instance, baseLevel, amplitude, frequency float64, elapsed time.Duration) map[string]FixtureState {
	crossfade := in.CrossfadeMultiplier(elapsed)

	phase := elapsed.Seconds() * frequency * 2.0 * math.Pi
	value := (baseLevel + amplitude*(math.Sin(phase)*0.5+0.5)) * crossfade

	states := make(map[string]FixtureState, len(in.TargetFixtures))
	for _, name := range in.TargetFixtures {
		fixture, ok := registry[name]
		if !ok {
			continue
		}
		fs := NewFixtureState()
		for ch, st := range ProfileFor(fixture).ApplyPulse(value, in.Layer, in.BlendMode) {
			fs.SetChannel(ch, st)
		}
		states[name] = fs
	}
	return states
}
