package effects

// stopConflicting removes active effects that cannot coexist with the new
// one. Conflict rules, in order: effects on different layers never
// conflict; within a layer a higher priority newcomer displaces anything
// it overlaps; otherwise type and blend mode rules decide.
func (e *Engine) stopConflicting(newEffect *Instance) {
	for id, existing := range e.active {
		if !existing.Enabled {
			continue
		}
		if effectsConflict(existing, newEffect) {
			delete(e.active, id)
			delete(e.releasing, id)
		}
	}
}

func effectsConflict(existing, incoming *Instance) bool {
	if existing.Layer != incoming.Layer {
		return false
	}
	if existing.Priority < incoming.Priority {
		return fixturesOverlap(existing, incoming)
	}
	return conflictByType(existing, incoming)
}

func fixturesOverlap(a, b *Instance) bool {
	for _, fa := range a.TargetFixtures {
		for _, fb := range b.TargetFixtures {
			if fa == fb {
				return true
			}
		}
	}
	return false
}

func conflictByType(existing, incoming *Instance) bool {
	if !fixturesOverlap(existing, incoming) {
		return false
	}
	if blendModesCompatible(existing.BlendMode, incoming.BlendMode) {
		return false
	}

	// Dimmer and pulse layer on top of anything.
	switch existing.Type.(type) {
	case DimmerEffect, PulseEffect:
		return false
	}
	switch incoming.Type.(type) {
	case DimmerEffect, PulseEffect:
		return false
	}

	colorLike := func(t EffectType) bool {
		switch t.(type) {
		case StaticEffect, ColorCycleEffect, RainbowEffect:
			return true
		}
		return false
	}
	if colorLike(existing.Type) && colorLike(incoming.Type) {
		return true
	}

	sameKind := func(a, b EffectType) bool {
		switch a.(type) {
		case StrobeEffect:
			_, ok := b.(StrobeEffect)
			return ok
		case ChaseEffect:
			_, ok := b.(ChaseEffect)
			return ok
		}
		return false
	}
	return sameKind(existing.Type, incoming.Type)
}

// blendModesCompatible reports whether two blend modes can layer on the
// same channels. Replace conflicts with everything; the arithmetic modes
// all compose.
func blendModesCompatible(a, b BlendMode) bool {
	return a != Replace && b != Replace
}
