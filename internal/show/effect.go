package show

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"lightshow-agent/internal/effects"
)

// effectDef is the YAML shape of one effect. Fields are shared across
// variants; which ones apply is decided by Type.
type effectDef struct {
	ID       string   `yaml:"id"`
	Type     string   `yaml:"type"`
	Fixtures []string `yaml:"fixtures"`
	Layer    string   `yaml:"layer"`
	Blend    string   `yaml:"blend"`
	Priority uint8    `yaml:"priority"`
	FadeIn   string   `yaml:"fade_in"`
	Hold     string   `yaml:"hold"`
	FadeOut  string   `yaml:"fade_out"`
	Duration string   `yaml:"duration"`

	Params map[string]float64 `yaml:"params"` // static
	Color  string             `yaml:"color"`  // static shorthand for RGB params

	Colors     []string `yaml:"colors"` // color_cycle
	Speed      rateSpec `yaml:"speed"`
	Direction  string   `yaml:"direction"`
	Transition string   `yaml:"transition"`

	Frequency rateSpec `yaml:"frequency"` // strobe, pulse

	From  *float64 `yaml:"from"` // dimmer
	To    *float64 `yaml:"to"`
	Curve string   `yaml:"curve"`

	Pattern string `yaml:"pattern"` // chase

	Saturation *float64 `yaml:"saturation"` // rainbow
	Brightness *float64 `yaml:"brightness"`

	Base      *float64 `yaml:"base"` // pulse
	Amplitude *float64 `yaml:"amplitude"`
}

// BuildInstance parses a single effect definition arriving outside a cue
// list, such as an ad hoc effect from the web UI. JSON input works too
// since JSON is a YAML subset. Fixture and group names resolve against
// this show.
func (s *Show) BuildInstance(raw []byte) (*effects.Instance, error) {
	var def effectDef
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parsing effect definition: %w", err)
	}
	return s.buildInstance(def)
}

func (s *Show) buildInstance(def effectDef) (*effects.Instance, error) {
	targets, err := s.expandTargets(def.Fixtures)
	if err != nil {
		return nil, err
	}

	duration, err := parseDuration(def.Duration)
	if err != nil {
		return nil, err
	}

	var effect effects.EffectType
	switch strings.ToLower(def.Type) {
	case "static":
		effect, err = buildStatic(def, duration)
	case "color_cycle", "cycle":
		effect, err = buildColorCycle(def)
	case "strobe":
		effect, err = buildStrobe(def, duration)
	case "dimmer", "fade":
		effect, err = buildDimmer(def, duration)
	case "chase":
		effect, err = buildChase(def)
	case "rainbow":
		effect, err = buildRainbow(def)
	case "pulse":
		effect, err = buildPulse(def, duration)
	default:
		return nil, fmt.Errorf("unknown effect type %q", def.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", def.Type, err)
	}

	up, err := parseDuration(def.FadeIn)
	if err != nil {
		return nil, err
	}
	hold, err := parseDuration(def.Hold)
	if err != nil {
		return nil, err
	}
	down, err := parseDuration(def.FadeOut)
	if err != nil {
		return nil, err
	}

	id := def.ID
	if id == "" {
		id = uuid.NewString()
	}

	in := effects.NewInstance(id, effect, targets, up, hold, down)
	in.Priority = def.Priority

	if def.Layer != "" {
		layer, err := parseLayer(def.Layer)
		if err != nil {
			return nil, err
		}
		in.Layer = layer
	}
	if def.Blend != "" {
		mode, err := parseBlend(def.Blend)
		if err != nil {
			return nil, err
		}
		in.BlendMode = mode
	}
	return in, nil
}

func buildStatic(def effectDef, duration time.Duration) (effects.EffectType, error) {
	params := make(map[string]float64, len(def.Params)+3)
	for k, v := range def.Params {
		params[k] = v
	}
	if def.Color != "" {
		c, err := parseColor(def.Color)
		if err != nil {
			return nil, err
		}
		params["red"] = float64(c.R) / 255.0
		params["green"] = float64(c.G) / 255.0
		params["blue"] = float64(c.B) / 255.0
		if c.HasWhite {
			params["white"] = float64(c.White) / 255.0
		}
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("no parameters")
	}
	return effects.StaticEffect{Parameters: params, Duration: duration}, nil
}

func buildColorCycle(def effectDef) (effects.EffectType, error) {
	if len(def.Colors) == 0 {
		return nil, fmt.Errorf("no colors")
	}
	colors := make([]effects.Color, 0, len(def.Colors))
	for _, raw := range def.Colors {
		c, err := parseColor(raw)
		if err != nil {
			return nil, err
		}
		colors = append(colors, c)
	}
	speed, err := def.Speed.speed()
	if err != nil {
		return nil, err
	}
	direction, err := parseCycleDirection(def.Direction)
	if err != nil {
		return nil, err
	}
	transition, err := parseTransition(def.Transition)
	if err != nil {
		return nil, err
	}
	return effects.ColorCycleEffect{
		Colors:     colors,
		Speed:      speed,
		Direction:  direction,
		Transition: transition,
	}, nil
}

func buildStrobe(def effectDef, duration time.Duration) (effects.EffectType, error) {
	freq, err := def.Frequency.frequency()
	if err != nil {
		return nil, err
	}
	return effects.StrobeEffect{Frequency: freq, Duration: duration}, nil
}

func buildDimmer(def effectDef, duration time.Duration) (effects.EffectType, error) {
	if def.To == nil {
		return nil, fmt.Errorf("missing target level")
	}
	from := 0.0
	if def.From != nil {
		from = *def.From
	}
	if from < 0 || from > 1 || *def.To < 0 || *def.To > 1 {
		return nil, fmt.Errorf("levels must be within [0,1]")
	}
	curve, err := parseCurve(def.Curve)
	if err != nil {
		return nil, err
	}
	return effects.DimmerEffect{
		StartLevel: from,
		EndLevel:   *def.To,
		Duration:   duration,
		Curve:      curve,
	}, nil
}

func buildChase(def effectDef) (effects.EffectType, error) {
	speed, err := def.Speed.speed()
	if err != nil {
		return nil, err
	}
	pattern, err := parsePattern(def.Pattern)
	if err != nil {
		return nil, err
	}
	direction, err := parseChaseDirection(def.Direction)
	if err != nil {
		return nil, err
	}
	transition, err := parseTransition(def.Transition)
	if err != nil {
		return nil, err
	}
	return effects.ChaseEffect{
		Pattern:    pattern,
		Speed:      speed,
		Direction:  direction,
		Transition: transition,
	}, nil
}

func buildRainbow(def effectDef) (effects.EffectType, error) {
	speed, err := def.Speed.speed()
	if err != nil {
		return nil, err
	}
	saturation, brightness := 1.0, 1.0
	if def.Saturation != nil {
		saturation = *def.Saturation
	}
	if def.Brightness != nil {
		brightness = *def.Brightness
	}
	if saturation < 0 || saturation > 1 || brightness < 0 || brightness > 1 {
		return nil, fmt.Errorf("saturation and brightness must be within [0,1]")
	}
	return effects.RainbowEffect{Speed: speed, Saturation: saturation, Brightness: brightness}, nil
}

func buildPulse(def effectDef, duration time.Duration) (effects.EffectType, error) {
	freq, err := def.Frequency.frequency()
	if err != nil {
		return nil, err
	}
	base, amplitude := 0.5, 0.5
	if def.Base != nil {
		base = *def.Base
	}
	if def.Amplitude != nil {
		amplitude = *def.Amplitude
	}
	if base < 0 || base > 1 || amplitude < 0 || amplitude > 1 {
		return nil, fmt.Errorf("base and amplitude must be within [0,1]")
	}
	return effects.PulseEffect{
		BaseLevel: base,
		Amplitude: amplitude,
		Frequency: freq,
		Duration:  duration,
	}, nil
}

func parseColor(raw string) (effects.Color, error) {
	if strings.HasPrefix(raw, "#") {
		return effects.ColorFromHex(raw)
	}
	if c, err := effects.ColorFromName(raw); err == nil {
		return c, nil
	}
	return effects.ColorFromHex(raw)
}

// rateSpec is a tempo-aware rate in YAML form. A bare number is a rate in
// cycles per second; strings carry a unit suffix: "2hz", "1.5s", "250ms",
// "2b" (beats), "1m" (measures).
type rateSpec struct {
	unit  effects.SpeedUnit
	value float64
	set   bool
}

func (r *rateSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Tag {
	case "!!int", "!!float":
		v, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return fmt.Errorf("invalid rate %q: %w", node.Value, err)
		}
		r.unit, r.value, r.set = effects.UnitFixed, v, true
		return nil
	case "!!str":
		unit, v, err := ParseRate(node.Value)
		if err != nil {
			return err
		}
		r.unit, r.value, r.set = unit, v, true
		return nil
	}
	return fmt.Errorf("invalid rate %q", node.Value)
}

func (r rateSpec) speed() (effects.Speed, error) {
	if !r.set {
		return effects.Speed{}, fmt.Errorf("missing speed")
	}
	return effects.Speed{Unit: r.unit, Value: r.value}, nil
}

func (r rateSpec) frequency() (effects.Frequency, error) {
	if !r.set {
		return effects.Frequency{}, fmt.Errorf("missing frequency")
	}
	return effects.Frequency{Unit: r.unit, Value: r.value}, nil
}

var rateSuffixes = []struct {
	suffix string
	unit   effects.SpeedUnit
	scale  float64
}{
	{"hz", effects.UnitFixed, 1},
	{"ms", effects.UnitSeconds, 1e-3},
	{"s", effects.UnitSeconds, 1},
	{"b", effects.UnitBeats, 1},
	{"m", effects.UnitMeasures, 1},
}

// ParseRate parses a rate string with a unit suffix ("2hz", "1.5s",
// "250ms", "2b", "1m"); a bare number is cycles per second.
func ParseRate(raw string) (effects.SpeedUnit, float64, error) {
	t := strings.ToLower(strings.TrimSpace(raw))
	for _, s := range rateSuffixes {
		if !strings.HasSuffix(t, s.suffix) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(t, s.suffix)), 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid rate %q: %w", raw, err)
		}
		if v < 0 {
			return 0, 0, fmt.Errorf("negative rate %q", raw)
		}
		return s.unit, v * s.scale, nil
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid rate %q", raw)
	}
	if v < 0 {
		return 0, 0, fmt.Errorf("negative rate %q", raw)
	}
	return effects.UnitFixed, v, nil
}

func parseLayer(raw string) (effects.Layer, error) {
	switch strings.ToLower(raw) {
	case "background", "bg":
		return effects.Background, nil
	case "midground", "mid":
		return effects.Midground, nil
	case "foreground", "fg":
		return effects.Foreground, nil
	}
	return 0, fmt.Errorf("unknown layer %q", raw)
}

func parseBlend(raw string) (effects.BlendMode, error) {
	switch strings.ToLower(raw) {
	case "replace":
		return effects.Replace, nil
	case "multiply":
		return effects.Multiply, nil
	case "add":
		return effects.Add, nil
	case "overlay":
		return effects.Overlay, nil
	case "screen":
		return effects.Screen, nil
	}
	return 0, fmt.Errorf("unknown blend mode %q", raw)
}

func parseCycleDirection(raw string) (effects.CycleDirection, error) {
	switch strings.ToLower(raw) {
	case "", "forward":
		return effects.Forward, nil
	case "backward", "reverse":
		return effects.Backward, nil
	case "ping_pong", "pingpong":
		return effects.PingPong, nil
	}
	return 0, fmt.Errorf("unknown direction %q", raw)
}

func parseTransition(raw string) (effects.CycleTransition, error) {
	switch strings.ToLower(raw) {
	case "", "snap":
		return effects.Snap, nil
	case "fade":
		return effects.Fade, nil
	}
	return 0, fmt.Errorf("unknown transition %q", raw)
}

func parseCurve(raw string) (effects.DimmerCurve, error) {
	switch strings.ToLower(raw) {
	case "", "linear":
		return effects.CurveLinear, nil
	case "exponential", "exp":
		return effects.CurveExponential, nil
	case "logarithmic", "log":
		return effects.CurveLogarithmic, nil
	case "sine", "s_curve":
		return effects.CurveSine, nil
	case "cosine", "ease_out":
		return effects.CurveCosine, nil
	}
	return 0, fmt.Errorf("unknown dimmer curve %q", raw)
}

func parsePattern(raw string) (effects.ChasePattern, error) {
	switch strings.ToLower(raw) {
	case "", "linear":
		return effects.ChaseLinear, nil
	case "snake":
		return effects.ChaseSnake, nil
	case "random":
		return effects.ChaseRandom, nil
	}
	return 0, fmt.Errorf("unknown chase pattern %q", raw)
}

func parseChaseDirection(raw string) (effects.ChaseDirection, error) {
	switch strings.ToLower(raw) {
	case "", "left_to_right", "ltr":
		return effects.LeftToRight, nil
	case "right_to_left", "rtl":
		return effects.RightToLeft, nil
	case "top_to_bottom":
		return effects.TopToBottom, nil
	case "bottom_to_top":
		return effects.BottomToTop, nil
	case "clockwise":
		return effects.Clockwise, nil
	case "counter_clockwise", "counterclockwise":
		return effects.CounterClockwise, nil
	}
	return 0, fmt.Errorf("unknown chase direction %q", raw)
}
