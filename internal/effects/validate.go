package effects

import (
	"fmt"
	"strings"
)

// validateFixture checks the channel map against what the declared fixture
// type implies.
func validateFixture(f *FixtureInfo) error {
	requires := func(ch string) error {
		if _, ok := f.Channels[ch]; !ok {
			return fmt.Errorf("fixture %q of type %q missing %s channel", f.Name, f.FixtureType, ch)
		}
		return nil
	}
	if containsFold(f.FixtureType, "rgb") {
		for _, ch := range []string{"red", "green", "blue"} {
			if err := requires(ch); err != nil {
				return err
			}
		}
	}
	if containsFold(f.FixtureType, "strobe") {
		if err := requires("strobe"); err != nil {
			return err
		}
	}
	if containsFold(f.FixtureType, "movinghead") {
		for _, ch := range []string{"pan", "tilt"} {
			if err := requires(ch); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateEffect checks an effect instance against the fixture registry
// before it is started.
func validateEffect(registry map[string]*FixtureInfo, in *Instance) error {
	for _, name := range in.TargetFixtures {
		if _, ok := registry[name]; !ok {
			return fmt.Errorf("fixture %q not found", name)
		}
	}

	if err := validateCompatibility(registry, in); err != nil {
		return err
	}

	switch e := in.Type.(type) {
	case StaticEffect:
		for key, value := range e.Parameters {
			if value < 0.0 || value > 1.0 {
				return fmt.Errorf("parameter %q must be between 0.0 and 1.0, got %v", key, value)
			}
		}
	case StrobeEffect:
		if e.Frequency.Unit == UnitFixed && e.Frequency.Value < 0.0 {
			return fmt.Errorf("strobe frequency must be non-negative, got %v", e.Frequency.Value)
		}
	case PulseEffect:
		if e.Frequency.Unit == UnitFixed && e.Frequency.Value <= 0.0 {
			return fmt.Errorf("pulse frequency must be positive, got %v", e.Frequency.Value)
		}
	}
	return nil
}

// validateCompatibility rejects effects the fixture physically cannot show.
func validateCompatibility(registry map[string]*FixtureInfo, in *Instance) error {
	for _, name := range in.TargetFixtures {
		fixture, ok := registry[name]
		if !ok {
			continue
		}
		caps := fixture.Capabilities()
		switch in.Type.(type) {
		case ColorCycleEffect:
			if !caps.Has(CapRGBColor) {
				return fmt.Errorf("color cycle effect not compatible with fixture %q (no RGB capability)", name)
			}
		case StrobeEffect:
			if !caps.Has(CapStrobing) && !caps.Has(CapDimming) && !caps.Has(CapRGBColor) {
				return fmt.Errorf("strobe effect not compatible with fixture %q (no strobe, dimmer, or RGB capability)", name)
			}
		case ChaseEffect:
			if !caps.Has(CapRGBColor) && !caps.Has(CapDimming) {
				return fmt.Errorf("chase effect not compatible with fixture %q (no RGB or dimmer capability)", name)
			}
		case RainbowEffect:
			if !caps.Has(CapRGBColor) {
				return fmt.Errorf("rainbow effect not compatible with fixture %q (no RGB capability)", name)
			}
		}
	}
	return nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
