package effects

import (
	"log"
	"sort"
	"strings"
	"time"
)

// defaultReleaseFade is used when a layer release names no fade time and
// the effect has no down time of its own.
const defaultReleaseFade = time.Second

type releaseState struct {
	fade  time.Duration
	start time.Duration
}

// Engine manages active effect instances and composes them into DMX
// output. It is driven by Update at the output frame rate and is not safe
// for concurrent use; callers serialize access (the playback loop owns it).
type Engine struct {
	active   map[string]*Instance
	registry map[string]*FixtureInfo

	// clock is the engine's own elapsed time, advanced only by Update so
	// playback seeking and pausing stay deterministic.
	clock time.Duration

	// states holds channel values persisted by completed permanent
	// effects (indefinite statics, dimmers).
	states map[string]FixtureState

	// locks prevents lower-layer effects from touching channels claimed
	// by a completed foreground Replace effect.
	locks map[string]map[string]struct{}

	tempo TempoSource

	intensityMasters map[Layer]float64
	speedMasters     map[Layer]float64
	frozen           map[Layer]time.Duration
	releasing        map[string]releaseState
}

func NewEngine() *Engine {
	return &Engine{
		active:           make(map[string]*Instance),
		registry:         make(map[string]*FixtureInfo),
		states:           make(map[string]FixtureState),
		locks:            make(map[string]map[string]struct{}),
		intensityMasters: make(map[Layer]float64),
		speedMasters:     make(map[Layer]float64),
		frozen:           make(map[Layer]time.Duration),
		releasing:        make(map[string]releaseState),
	}
}

// SetTempoSource installs the tempo map used to resolve measure and beat
// based speeds. nil falls back to 120 BPM 4/4.
func (e *Engine) SetTempoSource(tm TempoSource) {
	e.tempo = tm
}

// RegisterFixture adds a fixture to the registry. Capability problems are
// logged but do not reject the fixture.
func (e *Engine) RegisterFixture(f FixtureInfo) {
	if err := validateFixture(&f); err != nil {
		log.Printf("[Effects] fixture %s has capability issues: %v", f.Name, err)
	}
	e.registry[f.Name] = &f
}

// StartEffect validates and activates an effect, stopping anything it
// conflicts with.
func (e *Engine) StartEffect(in *Instance) error {
	return e.startEffect(in, 0)
}

// StartEffectElapsed activates an effect as if it had already been running
// for the given time. Used when seeking into a show.
func (e *Engine) StartEffectElapsed(in *Instance, elapsed time.Duration) error {
	return e.startEffect(in, elapsed)
}

func (e *Engine) startEffect(in *Instance, elapsed time.Duration) error {
	if err := validateEffect(e.registry, in); err != nil {
		return err
	}

	log.Printf("[Effects] starting %T id=%s layer=%s blend=%s priority=%d targets=%v",
		in.Type, in.ID, in.Layer, in.BlendMode, in.Priority, in.TargetFixtures)

	e.stopConflicting(in)

	in.StartTime = e.clock - elapsed
	in.Started = true
	e.active[in.ID] = in
	return nil
}

// StopEffect removes a single effect immediately.
func (e *Engine) StopEffect(id string) {
	delete(e.active, id)
	delete(e.releasing, id)
}

// StopAllEffects removes every active effect immediately. Persisted
// permanent states are kept.
func (e *Engine) StopAllEffects() {
	e.active = make(map[string]*Instance)
	e.releasing = make(map[string]releaseState)
}

// StopSequence removes all effects started by the named sequence; their
// IDs carry a "seq_<name>_" prefix.
func (e *Engine) StopSequence(name string) {
	prefix := "seq_" + name + "_"
	for id := range e.active {
		if strings.HasPrefix(id, prefix) {
			delete(e.active, id)
			delete(e.releasing, id)
		}
	}
}

// HasEffect reports whether an effect with the given ID is active.
func (e *Engine) HasEffect(id string) bool {
	_, ok := e.active[id]
	return ok
}

// ActiveEffectCount returns the number of active effects.
func (e *Engine) ActiveEffectCount() int { return len(e.active) }

// Update advances the engine by dt and returns the DMX writes for this
// frame. Effects are composed layer by layer, Background first, and within
// a layer in (priority, start time, ID) order so output is deterministic.
func (e *Engine) Update(dt time.Duration) []DMXCommand {
	e.clock += dt

	// Persisted permanent states are the base for this frame.
	current := make(map[string]FixtureState, len(e.states))
	permanentChannels := make(map[string]map[string]struct{})
	for name, st := range e.states {
		copied := NewFixtureState()
		perm := make(map[string]struct{}, len(st.Channels))
		for ch, cs := range st.Channels {
			copied.Channels[ch] = cs
			perm[ch] = struct{}{}
		}
		current[name] = copied
		permanentChannels[name] = perm
	}

	var completed []string

	for _, layer := range []Layer{Background, Midground, Foreground} {
		ids := e.layerEffectIDs(layer)
		if len(ids) == 0 {
			continue
		}

		layerIntensity := e.LayerIntensityMaster(layer)
		layerSpeed := e.LayerSpeedMaster(layer)
		frozenAt, isFrozen := e.frozen[layer]

		for _, id := range ids {
			in := e.active[id]

			reference := e.clock
			if isFrozen {
				reference = frozenAt
			}
			var baseElapsed time.Duration
			if in.Started && reference > in.StartTime {
				baseElapsed = reference - in.StartTime
			}
			elapsed := baseElapsed
			if layerSpeed != 0.0 && layerSpeed != 1.0 {
				elapsed = time.Duration(float64(baseElapsed) * layerSpeed)
			}

			rel, isReleasing := e.releasing[id]
			expired := in.Started && in.HasReachedTerminalState(elapsed)
			releaseDone := isReleasing && e.clock-rel.start >= rel.fade
			if expired || releaseDone {
				completed = append(completed, id)
				continue
			}

			states := processEffect(e.registry, in, elapsed, e.clock, e.tempo)
			if states == nil {
				continue
			}

			releaseMult := 1.0
			if isReleasing {
				progress := 1.0
				if rel.fade > 0 {
					progress = clamp01((e.clock - rel.start).Seconds() / rel.fade.Seconds())
				}
				releaseMult = 1.0 - progress
			}
			intensity := layerIntensity * releaseMult

			for fixtureName, fs := range states {
				if _, ok := e.registry[fixtureName]; !ok {
					continue
				}
				if intensity != 1.0 {
					for ch, cs := range fs.Channels {
						cs.Value *= intensity
						fs.Channels[ch] = cs
					}
				}
				e.blendLocked(current, fixtureName, fs)
			}
		}
	}

	e.finishCompleted(completed, current, permanentChannels)

	// Rebuild the persisted states from the permanent channels only.
	e.states = make(map[string]FixtureState)
	for name, perm := range permanentChannels {
		st, ok := current[name]
		if !ok {
			continue
		}
		preserved := NewFixtureState()
		for ch := range perm {
			if cs, ok := st.Channels[ch]; ok {
				preserved.Channels[ch] = cs
			}
		}
		if len(preserved.Channels) > 0 {
			e.states[name] = preserved
		}
	}

	var commands []DMXCommand
	for name, st := range current {
		info, ok := e.registry[name]
		if !ok {
			continue
		}
		commands = append(commands, st.ToDMXCommands(info)...)
	}
	return commands
}

// layerEffectIDs returns the enabled effect IDs on a layer sorted by
// (priority, start time, ID).
func (e *Engine) layerEffectIDs(layer Layer) []string {
	var ids []string
	for id, in := range e.active {
		if in.Enabled && in.Layer == layer {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := e.active[ids[i]], e.active[ids[j]]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return ids[i] < ids[j]
	})
	return ids
}

// blendLocked merges an effect's fixture state into the frame, dropping
// channels locked by a completed foreground Replace effect. Dimmer and
// pulse multipliers always pass through so brightness control keeps
// working over locked looks.
func (e *Engine) blendLocked(current map[string]FixtureState, fixtureName string, fs FixtureState) {
	if locked, ok := e.locks[fixtureName]; ok {
		for ch := range fs.Channels {
			if IsMultiplierChannel(ch) || ch == "dimmer" {
				continue
			}
			if _, isLocked := locked[ch]; isLocked {
				delete(fs.Channels, ch)
			}
		}
	}
	if len(fs.Channels) == 0 {
		return
	}
	st, ok := current[fixtureName]
	if !ok {
		st = NewFixtureState()
	}
	st.BlendWith(fs)
	current[fixtureName] = st
}

// finishCompleted removes completed effects. Permanent effects persist
// their final state (and lock their channels when they were a foreground
// Replace); temporary effects drop their layer's multipliers so nothing
// keeps dimming after they are gone.
func (e *Engine) finishCompleted(completed []string, current map[string]FixtureState, permanentChannels map[string]map[string]struct{}) {
	for _, id := range completed {
		delete(e.releasing, id)
		in, ok := e.active[id]
		if !ok {
			continue
		}
		delete(e.active, id)

		finalStates := e.finalState(in)
		if finalStates == nil {
			continue
		}

		if in.IsPermanent() {
			for fixtureName, finalState := range finalStates {
				if _, ok := e.registry[fixtureName]; !ok {
					continue
				}
				st, ok := current[fixtureName]
				if !ok {
					st = NewFixtureState()
				}
				st.BlendWith(finalState)
				current[fixtureName] = st

				if in.Layer == Foreground && in.BlendMode == Replace {
					locked, ok := e.locks[fixtureName]
					if !ok {
						locked = make(map[string]struct{})
						e.locks[fixtureName] = locked
					}
					for ch := range finalState.Channels {
						locked[ch] = struct{}{}
					}
				}

				perm, ok := permanentChannels[fixtureName]
				if !ok {
					perm = make(map[string]struct{})
					permanentChannels[fixtureName] = perm
				}
				for ch := range finalState.Channels {
					perm[ch] = struct{}{}
				}
				for ch := range st.Channels {
					if IsMultiplierChannel(ch) {
						perm[ch] = struct{}{}
					}
				}
			}
		} else {
			dimmerKey := "_dimmer_mult" + in.Layer.suffix()
			pulseKey := "_pulse_mult" + in.Layer.suffix()
			for fixtureName := range finalStates {
				if st, ok := current[fixtureName]; ok {
					delete(st.Channels, dimmerKey)
					delete(st.Channels, pulseKey)
				}
				if st, ok := e.states[fixtureName]; ok {
					delete(st.Channels, dimmerKey)
					delete(st.Channels, pulseKey)
				}
				if perm, ok := permanentChannels[fixtureName]; ok {
					delete(perm, dimmerKey)
					delete(perm, pulseKey)
				}
			}
		}
	}
}

// finalState evaluates a completed effect at its end time (or at zero for
// indefinite effects) to capture the values it should leave behind.
func (e *Engine) finalState(in *Instance) map[string]FixtureState {
	if !in.Enabled {
		return nil
	}
	at := time.Duration(0)
	if in.Started {
		if total, ok := in.TotalDuration(); ok {
			at = total
		}
	}
	return processEffect(e.registry, in, at, e.clock, e.tempo)
}

// ClearLayer immediately stops every effect on the layer, the panic
// button equivalent.
func (e *Engine) ClearLayer(layer Layer) {
	for id, in := range e.active {
		if in.Layer == layer {
			delete(e.active, id)
			delete(e.releasing, id)
		}
	}
	delete(e.frozen, layer)
}

// ReleaseLayer fades out every effect on the layer using each effect's
// down time, defaulting to one second.
func (e *Engine) ReleaseLayer(layer Layer) {
	e.ReleaseLayerWithTime(layer, -1)
}

// ReleaseLayerWithTime fades out every effect on the layer over the given
// time; negative means use each effect's own down time.
func (e *Engine) ReleaseLayerWithTime(layer Layer, fade time.Duration) {
	for id, in := range e.active {
		if in.Layer != layer {
			continue
		}
		if _, already := e.releasing[id]; already {
			continue
		}
		f := fade
		if f < 0 {
			f = in.DownTime
			if f == 0 {
				f = defaultReleaseFade
			}
		}
		e.releasing[id] = releaseState{fade: f, start: e.clock}
	}
	// Resume time for the fade-out if the layer was frozen.
	e.UnfreezeLayer(layer)
}

// FreezeLayer pauses every effect on the layer at its current state.
func (e *Engine) FreezeLayer(layer Layer) {
	if _, ok := e.frozen[layer]; !ok {
		e.frozen[layer] = e.clock
	}
}

// UnfreezeLayer resumes a frozen layer. Effect start times shift forward
// by the frozen span so animations continue where they stopped.
func (e *Engine) UnfreezeLayer(layer Layer) {
	frozenAt, ok := e.frozen[layer]
	if !ok {
		return
	}
	delete(e.frozen, layer)
	frozenFor := e.clock - frozenAt
	for _, in := range e.active {
		if in.Layer == layer && in.Started {
			in.StartTime += frozenFor
		}
	}
}

// IsLayerFrozen reports whether the layer is currently frozen.
func (e *Engine) IsLayerFrozen(layer Layer) bool {
	_, ok := e.frozen[layer]
	return ok
}

// SetLayerIntensityMaster scales all effect output on a layer, clamped to
// [0,1]. 1.0 is the default and clears the entry.
func (e *Engine) SetLayerIntensityMaster(layer Layer, intensity float64) {
	clamped := clamp01(intensity)
	if clamped == 1.0 {
		delete(e.intensityMasters, layer)
	} else {
		e.intensityMasters[layer] = clamped
	}
}

// LayerIntensityMaster returns the layer's intensity master, 1.0 default.
func (e *Engine) LayerIntensityMaster(layer Layer) float64 {
	if v, ok := e.intensityMasters[layer]; ok {
		return v
	}
	return 1.0
}

// SetLayerSpeedMaster scales effect time on a layer: 0.5 half speed, 2.0
// double, 0 freezes the layer in place.
func (e *Engine) SetLayerSpeedMaster(layer Layer, speed float64) {
	if speed < 0 {
		speed = 0
	}
	if speed == 0 {
		e.FreezeLayer(layer)
	} else if prev, ok := e.speedMasters[layer]; ok && prev == 0 {
		e.UnfreezeLayer(layer)
	}
	if speed == 1.0 {
		delete(e.speedMasters, layer)
	} else {
		e.speedMasters[layer] = speed
	}
}

// LayerSpeedMaster returns the layer's speed master, 1.0 default.
func (e *Engine) LayerSpeedMaster(layer Layer) float64 {
	if v, ok := e.speedMasters[layer]; ok {
		return v
	}
	return 1.0
}
