package effects

import "time"

// crossfade boundary checks are made inclusive with a 1 microsecond
// epsilon to avoid flapping at phase edges.
const crossfadeEpsilon = time.Microsecond

// Instance is a scheduled effect with targeting, layering and crossfade
// timing. Timing fields use 0 to mean "not set".
type Instance struct {
	ID             string
	Type           EffectType
	TargetFixtures []string
	Priority       uint8
	Layer          Layer
	BlendMode      BlendMode

	// StartTime is the song-relative time the effect began running;
	// Started distinguishes "not yet started" from "started at 0".
	StartTime time.Duration
	Started   bool

	UpTime   time.Duration // fade in, 0% to 100%
	HoldTime time.Duration // time at full intensity
	DownTime time.Duration // fade out, 100% to 0%

	Enabled bool
}

// NewInstance builds an effect instance. Effects that carry their own
// duration (timed static, strobe, pulse) default their hold time to that
// duration when no explicit hold is given; dimmers are driven entirely by
// their duration field.
func NewInstance(id string, t EffectType, targets []string, up, hold, down time.Duration) *Instance {
	if hold == 0 {
		switch e := t.(type) {
		case StaticEffect:
			hold = e.Duration
		case StrobeEffect:
			hold = e.Duration
		case PulseEffect:
			hold = e.Duration
		}
	}
	return &Instance{
		ID:             id,
		Type:           t,
		TargetFixtures: targets,
		Layer:          Background,
		BlendMode:      Replace,
		UpTime:         up,
		HoldTime:       hold,
		DownTime:       down,
		Enabled:        true,
	}
}

// IsPermanent reports whether the effect's final state should persist
// after it completes. Indefinite statics and dimmers change the standing
// state of the rig; everything else is a transient show effect.
func (in *Instance) IsPermanent() bool {
	switch e := in.Type.(type) {
	case StaticEffect:
		return e.Duration == 0 && in.UpTime == 0 && in.HoldTime == 0 && in.DownTime == 0
	case DimmerEffect:
		return true
	}
	return false
}

// Elapsed returns the time the effect has been running at the given song
// time, or false if it has not started.
func (in *Instance) Elapsed(now time.Duration) (time.Duration, bool) {
	if !in.Started || now < in.StartTime {
		return 0, in.Started && now >= in.StartTime
	}
	return now - in.StartTime, true
}

// CrossfadeMultiplier returns the envelope multiplier in [0,1] for the
// given elapsed time: fade in over UpTime, hold at 1, fade out over
// DownTime. An effect with neither hold nor down time is indefinite and
// holds at 1 forever once faded in.
func (in *Instance) CrossfadeMultiplier(elapsed time.Duration) float64 {
	upEnd := in.UpTime
	holdEnd := in.UpTime + in.HoldTime
	totalEnd := in.UpTime + in.HoldTime + in.DownTime
	indefinite := in.HoldTime == 0 && in.DownTime == 0

	if in.UpTime > 0 && elapsed < upEnd+crossfadeEpsilon {
		return clamp01(elapsed.Seconds() / in.UpTime.Seconds())
	}
	if indefinite {
		return 1.0
	}
	if elapsed <= holdEnd+crossfadeEpsilon {
		return 1.0
	}
	if elapsed < totalEnd+crossfadeEpsilon {
		if in.DownTime == 0 {
			return 0.0
		}
		fadeOut := elapsed - holdEnd
		if fadeOut < 0 {
			fadeOut = 0
		}
		return 1.0 - clamp01(fadeOut.Seconds()/in.DownTime.Seconds())
	}
	return 0.0
}

// TotalDuration returns the effect's total lifetime and true, or false
// for perpetual effects.
func (in *Instance) TotalDuration() (time.Duration, bool) {
	indefinite := in.HoldTime == 0 && in.DownTime == 0
	if indefinite {
		switch e := in.Type.(type) {
		case StaticEffect:
			if e.Duration == 0 {
				return 0, false
			}
		case ColorCycleEffect, ChaseEffect, RainbowEffect:
			return 0, false
		case StrobeEffect:
			if e.Duration == 0 {
				return 0, false
			}
		case PulseEffect:
			if e.Duration == 0 {
				return 0, false
			}
		}
	}
	if d, ok := in.Type.(DimmerEffect); ok {
		return d.Duration, true
	}
	return in.UpTime + in.HoldTime + in.DownTime, true
}

// HasReachedTerminalState reports whether the effect has arrived at its
// intended end state. Dimmers complete when the end level is reached;
// everything else completes when its total duration elapses. Perpetual
// effects never terminate.
func (in *Instance) HasReachedTerminalState(elapsed time.Duration) bool {
	if d, ok := in.Type.(DimmerEffect); ok {
		if d.Duration == 0 {
			return true
		}
		progress := clamp01(elapsed.Seconds() / d.Duration.Seconds())
		value := d.StartLevel + (d.EndLevel-d.StartLevel)*progress
		return value == d.EndLevel
	}
	total, ok := in.TotalDuration()
	if !ok {
		return false
	}
	return elapsed+crossfadeEpsilon >= total
}
