// Package tempo models the tempo of a performance: an initial BPM and
// time signature plus a list of changes at known positions. It converts
// musical durations (beats, measures) into wall-clock durations so
// effects can run in musical time.
package tempo

import (
	"sort"
	"time"
)

// beatEpsilon absorbs floating point drift when a duration lands exactly
// on a tempo change boundary.
const beatEpsilon = 1e-6

// TimeSignature is a numerator/denominator pair, e.g. 4/4 or 6/8.
type TimeSignature struct {
	Numerator   uint32
	Denominator uint32
}

func NewTimeSignature(numerator, denominator uint32) TimeSignature {
	return TimeSignature{Numerator: numerator, Denominator: denominator}
}

// BeatsPerMeasure returns the number of beats in one measure.
func (ts TimeSignature) BeatsPerMeasure() float64 {
	return float64(ts.Numerator)
}

// Change is a tempo or time signature change at a position in the song.
// Exactly one of At or Measure/Beat positions the change: set HasMeasure
// for a musical position, otherwise At is an absolute time. Changes take
// effect instantly at their position. BPM 0 leaves the tempo unchanged;
// a nil Signature leaves the time signature unchanged.
type Change struct {
	At         time.Duration
	Measure    uint32
	Beat       float64
	HasMeasure bool

	BPM       float64
	Signature *TimeSignature
}

// resolvedChange is a Change with its position resolved to absolute time.
type resolvedChange struct {
	at        time.Duration
	bpm       float64
	signature *TimeSignature
}

// Map tracks tempo and time signature over the course of a song. Changes
// are resolved to absolute time at construction so queries are simple
// walks over a sorted list.
type Map struct {
	startOffset      time.Duration
	initialBPM       float64
	initialSignature TimeSignature
	changes          []resolvedChange
}

// NewMap builds a tempo map. Musical change positions are resolved to
// absolute time sequentially, each using the tempo in force before it.
func NewMap(startOffset time.Duration, initialBPM float64, initialSignature TimeSignature, changes []Change) *Map {
	sorted := make([]Change, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case !a.HasMeasure && !b.HasMeasure:
			return a.At < b.At
		case a.HasMeasure && b.HasMeasure:
			if a.Measure != b.Measure {
				return a.Measure < b.Measure
			}
			return a.Beat < b.Beat
		default:
			// Absolute-time changes sort before musical ones.
			return !a.HasMeasure
		}
	})

	m := &Map{
		startOffset:      startOffset,
		initialBPM:       initialBPM,
		initialSignature: initialSignature,
	}

	bpm := initialBPM
	sig := initialSignature
	accumulatedTime := startOffset
	accumulatedBeats := 0.0

	for _, c := range sorted {
		var at time.Duration
		if c.HasMeasure {
			totalBeats := float64(c.Measure-1)*sig.BeatsPerMeasure() + (c.Beat - 1.0)
			fromLast := totalBeats - accumulatedBeats
			at = accumulatedTime + secondsToDuration(fromLast*60.0/bpm)
			accumulatedBeats = totalBeats
			accumulatedTime = at
		} else {
			at = c.At
			accumulatedBeats = (at - startOffset).Seconds() * bpm / 60.0
			accumulatedTime = at
		}

		m.changes = append(m.changes, resolvedChange{at: at, bpm: c.BPM, signature: c.Signature})

		if c.BPM > 0 {
			bpm = c.BPM
		}
		if c.Signature != nil {
			sig = *c.Signature
		}
	}

	sort.SliceStable(m.changes, func(i, j int) bool { return m.changes[i].at < m.changes[j].at })
	return m
}

// BPMAt returns the tempo in force at the given time. offsetSecs shifts
// the change positions to account for a timeline offset.
func (m *Map) BPMAt(at time.Duration, offsetSecs float64) float64 {
	offset := secondsToDuration(offsetSecs)
	bpm := m.initialBPM
	for _, c := range m.changes {
		if c.at+offset > at {
			break
		}
		if c.bpm > 0 {
			bpm = c.bpm
		}
	}
	return bpm
}

// TimeSignatureAt returns the time signature in force at the given time.
func (m *Map) TimeSignatureAt(at time.Duration, offsetSecs float64) TimeSignature {
	offset := secondsToDuration(offsetSecs)
	sig := m.initialSignature
	for _, c := range m.changes {
		if c.at+offset > at {
			break
		}
		if c.signature != nil {
			sig = *c.signature
		}
	}
	return sig
}

// BeatsToDuration converts a number of beats starting at the given time
// into wall-clock time, integrating across any tempo changes the span
// crosses.
func (m *Map) BeatsToDuration(beats float64, at time.Duration, offsetSecs float64) time.Duration {
	offset := secondsToDuration(offsetSecs)
	remaining := beats
	currentTime := at
	bpm := m.BPMAt(at, offsetSecs)

	for _, c := range m.changes {
		if remaining <= 0 {
			break
		}
		changeTime := c.at + offset
		if changeTime <= currentTime {
			if c.bpm > 0 {
				bpm = c.bpm
			}
			continue
		}

		beatsInSegment := (changeTime - currentTime).Seconds() * bpm / 60.0
		diff := remaining - beatsInSegment
		if diff < -beatEpsilon {
			// All remaining beats fit before this change.
			return currentTime + secondsToDuration(remaining*60.0/bpm) - at
		}
		if diff < beatEpsilon {
			// The span ends exactly at the change.
			return changeTime - at
		}

		remaining -= beatsInSegment
		currentTime = changeTime
		if c.bpm > 0 {
			bpm = c.bpm
		}
	}

	return currentTime + secondsToDuration(remaining*60.0/bpm) - at
}

// MeasuresToDuration converts a number of measures starting at the given
// time into wall-clock time, using the time signature in force at that
// time.
func (m *Map) MeasuresToDuration(measures float64, at time.Duration, offsetSecs float64) time.Duration {
	sig := m.TimeSignatureAt(at, offsetSecs)
	return m.BeatsToDuration(measures*sig.BeatsPerMeasure(), at, offsetSecs)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
