package effects

import (
	"math"
	"strings"
)

// IsMultiplierChannel reports whether a channel name is a per-layer
// brightness multiplier channel. Multiplier channels are internal to the
// engine and never hit the wire directly; they scale RGB output for
// fixtures without a dedicated dimmer.
func IsMultiplierChannel(name string) bool {
	return strings.HasPrefix(name, "_dimmer_mult") || strings.HasPrefix(name, "_pulse_mult")
}

// DMXCommand is a single channel write destined for the DMX output layer.
type DMXCommand struct {
	Universe uint16
	Channel  uint16
	Value    uint8
}

// ChannelState is the value of one logical fixture channel plus the layer
// and blend mode of the effect that produced it.
type ChannelState struct {
	Value     float64 // 0.0 to 1.0
	Layer     Layer
	BlendMode BlendMode
}

// NewChannelState builds a ChannelState with the value clamped to [0,1].
func NewChannelState(value float64, layer Layer, mode BlendMode) ChannelState {
	return ChannelState{Value: clamp01(value), Layer: layer, BlendMode: mode}
}

// BlendWith combines this state with an incoming one using the incoming
// state's blend mode. The result takes the higher of the two layers, and
// the blend mode of the operand on the higher or equal layer (the incoming
// state wins ties).
func (s ChannelState) BlendWith(other ChannelState) ChannelState {
	var v float64
	switch other.BlendMode {
	case Replace:
		v = other.Value
	case Multiply:
		v = s.Value * other.Value
	case Add:
		v = math.Min(s.Value+other.Value, 1.0)
	case Overlay:
		if s.Value < 0.5 {
			v = 2.0 * s.Value * other.Value
		} else {
			v = 1.0 - 2.0*(1.0-s.Value)*(1.0-other.Value)
		}
	case Screen:
		v = 1.0 - (1.0-s.Value)*(1.0-other.Value)
	}

	layer := s.Layer
	if other.Layer > layer {
		layer = other.Layer
	}
	mode := s.BlendMode
	if other.Layer >= s.Layer {
		mode = other.BlendMode
	}

	return ChannelState{Value: clamp01(v), Layer: layer, BlendMode: mode}
}

// FixtureState accumulates channel states for one fixture during a single
// evaluation pass. It is rebuilt from scratch every tick.
type FixtureState struct {
	Channels map[string]ChannelState
}

func NewFixtureState() FixtureState {
	return FixtureState{Channels: make(map[string]ChannelState)}
}

// SetChannel stores a channel state, overwriting any existing one.
func (f *FixtureState) SetChannel(name string, state ChannelState) {
	f.Channels[name] = state
}

// BlendWith merges another fixture state into this one. Regular channels
// blend per ChannelState.BlendWith; multiplier channels overwrite so they
// never compound across evaluation passes.
func (f *FixtureState) BlendWith(other FixtureState) {
	for name, otherState := range other.Channels {
		if IsMultiplierChannel(name) {
			f.Channels[name] = otherState
			continue
		}
		if existing, ok := f.Channels[name]; ok {
			f.Channels[name] = existing.BlendWith(otherState)
		} else {
			f.Channels[name] = otherState
		}
	}
}

// ToDMXCommands maps the logical channel states onto concrete DMX channel
// writes for the given fixture. Channels the fixture does not define are
// dropped. For fixtures without a dedicated dimmer channel the red, green
// and blue outputs are scaled by the combined per-layer multipliers;
// foreground Replace channels use only the foreground multipliers so a
// foreground takeover is not dimmed by lower layers.
func (f *FixtureState) ToDMXCommands(info *FixtureInfo) []DMXCommand {
	read := func(name string) float64 {
		if st, ok := f.Channels[name]; ok {
			return st.Value
		}
		return 1.0
	}

	dimmerMult := read("_dimmer_mult_bg") * read("_dimmer_mult_mid") * read("_dimmer_mult_fg")
	pulseMult := read("_pulse_mult_bg") * read("_pulse_mult_mid") * read("_pulse_mult_fg")
	combined := clamp01(dimmerMult * pulseMult)
	fgMult := clamp01(read("_dimmer_mult_fg") * read("_pulse_mult_fg"))

	_, hasDedicatedDimmer := info.Channels["dimmer"]

	commands := make([]DMXCommand, 0, len(f.Channels))
	for name, state := range f.Channels {
		offset, ok := info.Channels[name]
		if !ok {
			continue
		}
		value := state.Value
		if !hasDedicatedDimmer && (name == "red" || name == "green" || name == "blue") {
			mult := combined
			if state.Layer == Foreground && state.BlendMode == Replace {
				mult = fgMult
			}
			if mult != 1.0 {
				value = clamp01(value * mult)
			}
		}
		commands = append(commands, DMXCommand{
			Universe: info.Universe,
			Channel:  info.Address + offset - 1,
			Value:    uint8(value * 255.0),
		})
	}
	return commands
}
