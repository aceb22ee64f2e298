package effects

import "time"

// TempoSource converts musical durations into wall-clock durations at a
// given playback position. Implemented by tempo.Map; nil means no tempo
// information is available and the resolver falls back to 120 BPM 4/4.
type TempoSource interface {
	BeatsToDuration(beats float64, at time.Duration, offsetSecs float64) time.Duration
	MeasuresToDuration(measures float64, at time.Duration, offsetSecs float64) time.Duration
}

// Fallback tempo used when no tempo map is supplied: 120 BPM, 4/4.
const (
	fallbackBPM             = 120.0
	fallbackBeatsPerMeasure = 4.0
)

// SpeedUnit tags how a Speed or Frequency value is expressed.
type SpeedUnit int

const (
	// UnitFixed is a rate in cycles per second (or Hz), not tempo-aware.
	UnitFixed SpeedUnit = iota
	// UnitSeconds is a period in seconds, not tempo-aware.
	UnitSeconds
	// UnitMeasures is a period in musical measures, tempo-aware.
	UnitMeasures
	// UnitBeats is a period in musical beats, tempo-aware.
	UnitBeats
)

// Speed is a tempo-aware speed specification. It carries the author's
// intent, not a resolved number: tempo-aware variants are resolved against
// the tempo map on every query, since tempo may change mid-performance.
type Speed struct {
	Unit  SpeedUnit
	Value float64
}

func FixedSpeed(cyclesPerSecond float64) Speed { return Speed{Unit: UnitFixed, Value: cyclesPerSecond} }
func SpeedSeconds(seconds float64) Speed       { return Speed{Unit: UnitSeconds, Value: seconds} }
func SpeedMeasures(measures float64) Speed     { return Speed{Unit: UnitMeasures, Value: measures} }
func SpeedBeats(beats float64) Speed           { return Speed{Unit: UnitBeats, Value: beats} }

// CyclesPerSecond resolves the speed at the given playback time. Zero or
// negative periods resolve to 0 ("stopped"), never an error.
func (s Speed) CyclesPerSecond(tm TempoSource, at time.Duration) float64 {
	return resolveRate(s.Unit, s.Value, tm, at)
}

// Frequency is a tempo-aware frequency specification, resolved to Hz.
type Frequency struct {
	Unit  SpeedUnit
	Value float64
}

func FixedFrequency(hz float64) Frequency       { return Frequency{Unit: UnitFixed, Value: hz} }
func FrequencySeconds(seconds float64) Frequency { return Frequency{Unit: UnitSeconds, Value: seconds} }
func FrequencyMeasures(measures float64) Frequency {
	return Frequency{Unit: UnitMeasures, Value: measures}
}
func FrequencyBeats(beats float64) Frequency { return Frequency{Unit: UnitBeats, Value: beats} }

// Hz resolves the frequency at the given playback time.
func (f Frequency) Hz(tm TempoSource, at time.Duration) float64 {
	return resolveRate(f.Unit, f.Value, tm, at)
}

func resolveRate(unit SpeedUnit, value float64, tm TempoSource, at time.Duration) float64 {
	switch unit {
	case UnitFixed:
		return value
	case UnitSeconds:
		return invertPeriod(value)
	case UnitMeasures:
		if value <= 0.0 {
			return 0.0
		}
		if tm != nil {
			return invertPeriod(tm.MeasuresToDuration(value, at, 0).Seconds())
		}
		return invertPeriod(value * fallbackBeatsPerMeasure * 60.0 / fallbackBPM)
	case UnitBeats:
		if value <= 0.0 {
			return 0.0
		}
		if tm != nil {
			return invertPeriod(tm.BeatsToDuration(value, at, 0).Seconds())
		}
		return invertPeriod(value * 60.0 / fallbackBPM)
	}
	return 0.0
}

// invertPeriod maps a period in seconds to a rate, treating non-positive
// periods as "stopped".
func invertPeriod(seconds float64) float64 {
	if seconds <= 0.0 {
		return 0.0
	}
	return 1.0 / seconds
}
