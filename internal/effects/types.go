package effects

import "time"

// Layer is the priority tier an effect renders on. Layers are composed in
// ascending order: Background first, Foreground last.
type Layer int

const (
	Background Layer = iota
	Midground
	Foreground
)

func (l Layer) String() string {
	switch l {
	case Background:
		return "background"
	case Midground:
		return "midground"
	case Foreground:
		return "foreground"
	}
	return "unknown"
}

// suffix returns the per-layer suffix used by multiplier channel names.
func (l Layer) suffix() string {
	switch l {
	case Midground:
		return "_mid"
	case Foreground:
		return "_fg"
	default:
		return "_bg"
	}
}

// BlendMode is the arithmetic rule used to combine two channel values.
type BlendMode int

const (
	// Replace: the incoming value completely replaces the existing one.
	Replace BlendMode = iota
	// Multiply: values multiply (good for dimming).
	Multiply
	// Add: values add, capped at 1 (good for color mixing).
	Add
	// Overlay: multiply below 0.5, screen above (good for strobes).
	Overlay
	// Screen: inverted multiply of the inverted values.
	Screen
)

func (m BlendMode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Multiply:
		return "multiply"
	case Add:
		return "add"
	case Overlay:
		return "overlay"
	case Screen:
		return "screen"
	}
	return "unknown"
}

// CycleDirection selects traversal order for color cycles.
type CycleDirection int

const (
	Forward CycleDirection = iota
	Backward
	PingPong
)

// CycleTransition selects how a cycle or chase moves between steps.
type CycleTransition int

const (
	// Snap jumps discretely between steps.
	Snap CycleTransition = iota
	// Fade interpolates smoothly between steps.
	Fade
)

// ChasePattern selects the spatial pattern of a chase.
type ChasePattern int

const (
	ChaseLinear ChasePattern = iota
	ChaseSnake
	ChaseRandom
)

// ChaseDirection selects the spatial traversal order of a chase.
type ChaseDirection int

const (
	LeftToRight ChaseDirection = iota
	RightToLeft
	TopToBottom
	BottomToTop
	Clockwise
	CounterClockwise
)

// reversed reports whether the direction traverses the fixture order
// back to front.
func (d ChaseDirection) reversed() bool {
	switch d {
	case RightToLeft, BottomToTop, CounterClockwise:
		return true
	}
	return false
}

// DimmerCurve remaps linear dimmer progress. The concrete formulas, over
// linear progress p in [0,1]:
//
//	Linear       p
//	Exponential  p*p
//	Logarithmic  log10(1 + 9p)
//	Sine         (1 - cos(pi*p)) / 2
//	Cosine       1 - (1-p)^2
type DimmerCurve int

const (
	CurveLinear DimmerCurve = iota
	CurveExponential
	CurveLogarithmic
	CurveSine
	CurveCosine
)

// EffectType is the closed set of effect variants. Evaluation is a single
// exhaustive type switch in evaluate.go; adding a variant means extending
// that switch.
type EffectType interface {
	effectType()
}

// StaticEffect holds fixed named parameter values, optionally for a bounded
// duration (0 = indefinite).
type StaticEffect struct {
	Parameters map[string]float64
	Duration   time.Duration
}

// ColorCycleEffect advances through an ordered color sequence at the
// resolved speed. Perpetual until replaced.
type ColorCycleEffect struct {
	Colors     []Color
	Speed      Speed
	Direction  CycleDirection
	Transition CycleTransition
}

// StrobeEffect produces a square wave at the resolved frequency, 50% duty
// cycle with the ON phase first. Duration 0 = perpetual.
type StrobeEffect struct {
	Frequency Frequency
	Duration  time.Duration
}

// DimmerEffect transitions brightness from StartLevel to EndLevel over
// Duration, remapped through Curve. Duration 0 = instant.
type DimmerEffect struct {
	StartLevel float64
	EndLevel   float64
	Duration   time.Duration
	Curve      DimmerCurve
}

// ChaseEffect steps an intensity spot through the effect's target fixtures.
// Perpetual until replaced.
type ChaseEffect struct {
	Pattern    ChasePattern
	Speed      Speed
	Direction  ChaseDirection
	Transition CycleTransition
}

// RainbowEffect sweeps hue 0-360 at the resolved speed with fixed
// saturation and brightness. Perpetual until replaced.
type RainbowEffect struct {
	Speed      Speed
	Saturation float64
	Brightness float64
}

// PulseEffect oscillates brightness sinusoidally around BaseLevel.
// Duration 0 = perpetual.
type PulseEffect struct {
	BaseLevel float64
	Amplitude float64
	Frequency Frequency
	Duration  time.Duration
}

func (StaticEffect) effectType()     {}
func (ColorCycleEffect) effectType() {}
func (StrobeEffect) effectType()     {}
func (DimmerEffect) effectType()     {}
func (ChaseEffect) effectType()      {}
func (RainbowEffect) effectType()    {}
func (PulseEffect) effectType()      {}
