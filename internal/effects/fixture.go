package effects

// Capability is a bitmask of what a fixture can physically do, derived
// from its channel map.
type Capability uint32

const (
	CapRGBColor Capability = 1 << iota
	CapWhiteColor
	CapDimming
	CapStrobing
	CapPanning
	CapTilting
	CapZooming
	CapFocusing
	CapGobo
	CapColorTemperature
	CapEffects
)

func (c Capability) Has(cap Capability) bool { return c&cap != 0 }

// FixtureInfo describes one patched fixture: where it lives on the wire
// and which logical channels map to which 1-based offsets from its base
// address.
type FixtureInfo struct {
	Name        string
	Universe    uint16
	Address     uint16
	FixtureType string
	Channels    map[string]uint16

	// MaxStrobeFrequency is the fastest hardware strobe rate in Hz,
	// used to normalize the strobe channel value. 0 = unknown.
	MaxStrobeFrequency float64
}

// Capabilities derives the capability bitmask from the channel map.
func (f *FixtureInfo) Capabilities() Capability {
	var c Capability
	has := func(name string) bool {
		_, ok := f.Channels[name]
		return ok
	}
	if has("red") && has("green") && has("blue") {
		c |= CapRGBColor
	}
	if has("white") {
		c |= CapWhiteColor
	}
	if has("dimmer") {
		c |= CapDimming
	}
	if has("strobe") {
		c |= CapStrobing
	}
	if has("pan") {
		c |= CapPanning
	}
	if has("tilt") {
		c |= CapTilting
	}
	if has("zoom") {
		c |= CapZooming
	}
	if has("focus") {
		c |= CapFocusing
	}
	if has("gobo") {
		c |= CapGobo
	}
	if has("ct") || has("color_temp") {
		c |= CapColorTemperature
	}
	if has("effects") || has("prism") || has("frost") {
		c |= CapEffects
	}
	return c
}

func (f *FixtureInfo) HasCapability(cap Capability) bool {
	return f.Capabilities().Has(cap)
}

// BrightnessStrategy selects how a fixture implements dimming.
type BrightnessStrategy int

const (
	// BrightnessDedicatedDimmer drives the fixture's dimmer channel.
	BrightnessDedicatedDimmer BrightnessStrategy = iota
	// BrightnessRGBMultiplication scales RGB via a per-layer multiplier
	// channel so the color is preserved while brightness changes.
	BrightnessRGBMultiplication
)

// StrobeStrategy selects how a fixture implements strobing.
type StrobeStrategy int

const (
	// StrobeDedicatedChannel drives the hardware strobe channel.
	StrobeDedicatedChannel StrobeStrategy = iota
	// StrobeRGB flashes the RGB channels in software.
	StrobeRGB
	// StrobeBrightness flashes the dimmer channel in software.
	StrobeBrightness
)

// PulseStrategy selects how a fixture implements pulsing.
type PulseStrategy int

const (
	PulseDedicatedDimmer PulseStrategy = iota
	PulseRGBMultiplication
)

// ChaseStrategy selects how a fixture renders its chase slot intensity.
type ChaseStrategy int

const (
	ChaseDedicatedDimmer ChaseStrategy = iota
	ChaseRGBChannels
	ChaseBrightnessControl
)

// Profile maps abstract lighting operations onto a concrete fixture's
// channels. The same effect produces visually consistent output across
// fixture types; only the implementation strategy differs.
type Profile struct {
	Brightness BrightnessStrategy
	Strobe     StrobeStrategy
	Pulse      PulseStrategy
	Chase      ChaseStrategy
}

// ProfileFor picks strategies from the fixture's capabilities, preferring
// dedicated channels where they exist.
func ProfileFor(f *FixtureInfo) Profile {
	caps := f.Capabilities()

	p := Profile{
		Brightness: BrightnessRGBMultiplication,
		Strobe:     StrobeBrightness,
		Pulse:      PulseRGBMultiplication,
		Chase:      ChaseBrightnessControl,
	}
	if caps.Has(CapDimming) {
		p.Brightness = BrightnessDedicatedDimmer
		p.Pulse = PulseDedicatedDimmer
		p.Chase = ChaseDedicatedDimmer
	} else if caps.Has(CapRGBColor) {
		p.Chase = ChaseRGBChannels
	}
	switch {
	case caps.Has(CapStrobing):
		p.Strobe = StrobeDedicatedChannel
	case caps.Has(CapDimming):
		p.Strobe = StrobeBrightness
	case caps.Has(CapRGBColor):
		p.Strobe = StrobeRGB
	}
	return p
}

// ApplyBrightness emits the channel states for a brightness level.
func (p Profile) ApplyBrightness(level float64, layer Layer, mode BlendMode) map[string]ChannelState {
	out := make(map[string]ChannelState, 1)
	switch p.Brightness {
	case BrightnessDedicatedDimmer:
		out["dimmer"] = NewChannelState(level, layer, mode)
	case BrightnessRGBMultiplication:
		out["_dimmer_mult"+layer.suffix()] = NewChannelState(level, layer, Multiply)
	}
	return out
}

// ApplyColor emits RGB (and white, when the color carries it) channel
// states.
func (p Profile) ApplyColor(c Color, layer Layer, mode BlendMode) map[string]ChannelState {
	out := map[string]ChannelState{
		"red":   NewChannelState(float64(c.R)/255.0, layer, mode),
		"green": NewChannelState(float64(c.G)/255.0, layer, mode),
		"blue":  NewChannelState(float64(c.B)/255.0, layer, mode),
	}
	if c.HasWhite {
		out["white"] = NewChannelState(float64(c.White)/255.0, layer, mode)
	}
	return out
}

// ApplyStrobe emits channel states for one strobe sample. For a dedicated
// strobe channel the normalized frequency is written directly; software
// strategies flash with strobeValue (on=1, off=0). The off phase forces
// Replace blending so a lit background cannot leak through the dark half
// of the flash. hasValue false means no channels are written at all,
// which is how a stopped software strobe goes dark.
func (p Profile) ApplyStrobe(frequency float64, layer Layer, mode BlendMode, crossfade float64, strobeValue float64, hasValue bool) map[string]ChannelState {
	out := make(map[string]ChannelState, 3)
	if crossfade <= 0.0 {
		return out
	}
	switch p.Strobe {
	case StrobeDedicatedChannel:
		out["strobe"] = NewChannelState(frequency, layer, mode)
	case StrobeRGB:
		if hasValue {
			effective := mode
			if strobeValue == 0.0 {
				effective = Replace
			}
			st := NewChannelState(strobeValue, layer, effective)
			out["red"] = st
			out["green"] = st
			out["blue"] = st
		}
	case StrobeBrightness:
		if hasValue {
			effective := mode
			if strobeValue == 0.0 {
				effective = Replace
			}
			out["dimmer"] = NewChannelState(strobeValue, layer, effective)
		}
	}
	return out
}

// ApplyPulse emits channel states for one pulse sample.
func (p Profile) ApplyPulse(value float64, layer Layer, mode BlendMode) map[string]ChannelState {
	out := make(map[string]ChannelState, 1)
	switch p.Pulse {
	case PulseDedicatedDimmer:
		out["dimmer"] = NewChannelState(value, layer, mode)
	case PulseRGBMultiplication:
		out["_pulse_mult"+layer.suffix()] = NewChannelState(value, layer, Multiply)
	}
	return out
}

// ApplyChase emits channel states for one chase slot intensity.
func (p Profile) ApplyChase(value float64, layer Layer, mode BlendMode) map[string]ChannelState {
	out := make(map[string]ChannelState, 3)
	switch p.Chase {
	case ChaseDedicatedDimmer, ChaseBrightnessControl:
		out["dimmer"] = NewChannelState(value, layer, mode)
	case ChaseRGBChannels:
		st := NewChannelState(value, layer, mode)
		out["red"] = st
		out["green"] = st
		out["blue"] = st
	}
	return out
}
