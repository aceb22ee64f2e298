package agent

import (
	"sort"

	"lightshow-agent/internal/effects"
)

// The agent fronts the effect engine for Lua scripts. Loading a new show
// swaps the engine out underneath, so every call resolves it under the
// lock instead of capturing a stale one.

func (a *Agent) StartEffect(in *effects.Instance) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine.StartEffect(in)
}

func (a *Agent) StopEffect(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.engine.StopEffect(id)
}

func (a *Agent) StopAllEffects() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.engine.StopAllEffects()
}

func (a *Agent) SetLayerIntensity(layer effects.Layer, intensity float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.engine.SetLayerIntensityMaster(layer, intensity)
}

func (a *Agent) FixtureNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentShow == nil {
		return nil
	}
	names := make([]string, 0, len(a.currentShow.Fixtures))
	for name := range a.currentShow.Fixtures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
