package agent

import (
	"testing"
	"time"

	"lightshow-agent/internal/core"
	"lightshow-agent/internal/dmx"
	"lightshow-agent/internal/effects"
	"lightshow-agent/internal/show"
)

type nullWire struct{}

func (nullWire) SendDMX(universe uint16, data []byte) error { return nil }
func (nullWire) SendSync() error                            { return nil }

func newTestAgent() *Agent {
	fixture := effects.FixtureInfo{
		Name:     "spot",
		Universe: 0,
		Address:  1,
		Channels: map[string]uint16{"dimmer": 1},
	}
	engine := effects.NewEngine()
	engine.RegisterFixture(fixture)

	return &Agent{
		state:    core.NewState(),
		eventBus: core.NewEventBus(),
		engine:   engine,
		output:   dmx.NewOutput(nullWire{}, 44),
		currentShow: &show.Show{
			Name:     "bench",
			Fixtures: map[string]*effects.FixtureInfo{"spot": &fixture},
		},
	}
}

func (a *Agent) dimmerValue(t *testing.T) uint8 {
	t.Helper()
	frame, ok := a.output.Snapshot(0)
	if !ok {
		t.Fatal("no frame for universe 0")
	}
	return frame[0]
}

// Pausing the transport must hold the effect engine still: otherwise the
// engine clock runs ahead of the frozen song position and tempo-aware
// speeds resolve BPM at the wrong place after a resume.
func TestTickHoldsEffectsWhilePaused(t *testing.T) {
	a := newTestAgent()
	a.playing = true

	in := effects.NewInstance("fade_up",
		effects.DimmerEffect{StartLevel: 0, EndLevel: 1, Duration: time.Second},
		[]string{"spot"}, 0, 0, 0)
	if err := a.engine.StartEffect(in); err != nil {
		t.Fatalf("StartEffect: %v", err)
	}

	a.tick(250 * time.Millisecond)
	if got := a.dimmerValue(t); got != 63 {
		t.Fatalf("dimmer after 250ms = %d, want 63", got)
	}

	a.paused = true
	for i := 0; i < 8; i++ {
		a.tick(250 * time.Millisecond)
	}
	if got := a.dimmerValue(t); got != 63 {
		t.Errorf("dimmer while paused = %d, want frozen at 63", got)
	}
	if a.clock != 250*time.Millisecond {
		t.Errorf("show clock while paused = %v, want 250ms", a.clock)
	}

	a.paused = false
	a.tick(250 * time.Millisecond)
	if got := a.dimmerValue(t); got != 127 {
		t.Errorf("dimmer after resume = %d, want 127", got)
	}
	if a.clock != 500*time.Millisecond {
		t.Errorf("show clock after resume = %v, want 500ms", a.clock)
	}
}

// An idle agent with no show playing still animates script-driven
// effects; only the paused transport freezes the engine.
func TestTickAnimatesWhileIdle(t *testing.T) {
	a := newTestAgent()

	in := effects.NewInstance("fade_up",
		effects.DimmerEffect{StartLevel: 0, EndLevel: 1, Duration: time.Second},
		[]string{"spot"}, 0, 0, 0)
	if err := a.engine.StartEffect(in); err != nil {
		t.Fatalf("StartEffect: %v", err)
	}

	a.tick(500 * time.Millisecond)
	if got := a.dimmerValue(t); got != 127 {
		t.Errorf("dimmer after 500ms idle tick = %d, want 127", got)
	}
}
