package show

import (
	"strings"
	"testing"
	"time"

	"lightshow-agent/internal/effects"
)

const sampleShow = `
name: warehouse
audio: songs/warehouse.mp3
offset_ms: 250
fixtures:
  strip:
    type: RGBStrip
    universe: 1
    address: 10
    channels: {red: 1, green: 2, blue: 3}
  spot:
    type: RGBSpot
    universe: 1
    address: 20
    channels: {red: 1, green: 2, blue: 3, dimmer: 4}
    max_strobe_hz: 15
groups:
  all: [strip, spot]
tempo:
  bpm: 128
  signature: "4/4"
  changes:
    - measure: 17
      bpm: 140
cues:
  - at: 10s
    start:
      id: drop_strobe
      type: strobe
      fixtures: [spot]
      layer: foreground
      blend: add
      frequency: 1b
      duration: 2s
  - at: 0s
    start:
      id: intro_wash
      type: static
      fixtures: [all]
      color: "#3040ff"
      fade_in: 2s
  - at: 30s
    stop: intro_wash
  - at: 45s
    release:
      layer: foreground
      fade: 1s
`

func TestParseSampleShow(t *testing.T) {
	s, err := Parse([]byte(sampleShow))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if s.Name != "warehouse" || s.Audio != "songs/warehouse.mp3" {
		t.Errorf("header = %q/%q", s.Name, s.Audio)
	}
	if s.Offset != 250*time.Millisecond {
		t.Errorf("offset = %v, want 250ms", s.Offset)
	}

	spot, ok := s.Fixtures["spot"]
	if !ok {
		t.Fatal("spot fixture missing")
	}
	if spot.Universe != 1 || spot.Address != 20 || spot.MaxStrobeFrequency != 15 {
		t.Errorf("spot = %+v", spot)
	}
	if spot.Channels["dimmer"] != 4 {
		t.Errorf("spot dimmer offset = %d, want 4", spot.Channels["dimmer"])
	}

	// At 128 BPM a beat is 468.75ms; the offset shifts everything.
	if got := s.Tempo.BPMAt(time.Minute, 0); got != 140 {
		t.Errorf("tempo after change = %v, want 140", got)
	}

	if len(s.Cues) != 4 {
		t.Fatalf("cue count = %d, want 4", len(s.Cues))
	}
	// Cues come back sorted by time regardless of file order.
	if s.Cues[0].At != 0 || s.Cues[0].Start == nil || s.Cues[0].Start.ID != "intro_wash" {
		t.Errorf("first cue = %+v", s.Cues[0])
	}

	wash := s.Cues[0].Start
	static, ok := wash.Type.(effects.StaticEffect)
	if !ok {
		t.Fatalf("intro_wash type = %T", wash.Type)
	}
	if got := static.Parameters["blue"]; got != 1.0 {
		t.Errorf("blue param = %v, want 1.0", got)
	}
	if len(wash.TargetFixtures) != 2 {
		t.Errorf("group expansion gave %v", wash.TargetFixtures)
	}
	if wash.UpTime != 2*time.Second {
		t.Errorf("fade in = %v, want 2s", wash.UpTime)
	}

	strobe := s.Cues[1].Start
	if strobe == nil || strobe.Layer != effects.Foreground || strobe.BlendMode != effects.Add {
		t.Fatalf("strobe cue = %+v", strobe)
	}
	se, ok := strobe.Type.(effects.StrobeEffect)
	if !ok {
		t.Fatalf("strobe type = %T", strobe.Type)
	}
	if se.Frequency.Unit != effects.UnitBeats || se.Frequency.Value != 1 {
		t.Errorf("strobe frequency = %+v, want 1 beat", se.Frequency)
	}

	if s.Cues[2].Stop != "intro_wash" {
		t.Errorf("stop cue = %+v", s.Cues[2])
	}
	rel := s.Cues[3]
	if rel.ReleaseLayer == nil || *rel.ReleaseLayer != effects.Foreground || rel.ReleaseFade != time.Second {
		t.Errorf("release cue = %+v", rel)
	}
}

func TestParseGeneratesEffectIDs(t *testing.T) {
	s, err := Parse([]byte(`
fixtures:
  strip: {type: RGBStrip, universe: 1, address: 1, channels: {red: 1, green: 2, blue: 3}}
cues:
  - at: 0s
    start: {type: rainbow, fixtures: [strip], speed: 0.5}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id := s.Cues[0].Start.ID; id == "" {
		t.Error("expected a generated effect id")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown fixture in cue",
			doc: `
fixtures:
  strip: {type: RGBStrip, universe: 1, address: 1, channels: {red: 1, green: 2, blue: 3}}
cues:
  - at: 0s
    start: {type: rainbow, fixtures: [nosuch], speed: 1}
`,
			want: "unknown fixture or group",
		},
		{
			name: "bad color",
			doc: `
fixtures:
  strip: {type: RGBStrip, universe: 1, address: 1, channels: {red: 1, green: 2, blue: 3}}
cues:
  - at: 0s
    start: {type: static, fixtures: [strip], color: "notacolor"}
`,
			want: "invalid hex color",
		},
		{
			name: "unknown effect type",
			doc: `
fixtures:
  strip: {type: RGBStrip, universe: 1, address: 1, channels: {red: 1, green: 2, blue: 3}}
cues:
  - at: 0s
    start: {type: laser, fixtures: [strip]}
`,
			want: "unknown effect type",
		},
		{
			name: "two actions on one cue",
			doc: `
fixtures:
  strip: {type: RGBStrip, universe: 1, address: 1, channels: {red: 1, green: 2, blue: 3}}
cues:
  - at: 0s
    stop: a
    stop_all: true
`,
			want: "exactly one",
		},
		{
			name: "channel past universe end",
			doc: `
fixtures:
  strip: {type: RGBStrip, universe: 1, address: 511, channels: {red: 1, green: 2, blue: 3}}
`,
			want: "past the end",
		},
		{
			name: "group references missing fixture",
			doc: `
fixtures:
  strip: {type: RGBStrip, universe: 1, address: 1, channels: {red: 1, green: 2, blue: 3}}
groups:
  all: [strip, ghost]
`,
			want: "unknown fixture",
		},
		{
			name: "bad time signature",
			doc: `
tempo: {bpm: 120, signature: "waltz"}
`,
			want: "invalid time signature",
		},
		{
			name: "missing speed",
			doc: `
fixtures:
  strip: {type: RGBStrip, universe: 1, address: 1, channels: {red: 1, green: 2, blue: 3}}
cues:
  - at: 0s
    start: {type: chase, fixtures: [strip]}
`,
			want: "missing speed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		raw   string
		unit  effects.SpeedUnit
		value float64
	}{
		{raw: "2hz", unit: effects.UnitFixed, value: 2},
		{raw: "1.5s", unit: effects.UnitSeconds, value: 1.5},
		{raw: "250ms", unit: effects.UnitSeconds, value: 0.25},
		{raw: "2b", unit: effects.UnitBeats, value: 2},
		{raw: "1m", unit: effects.UnitMeasures, value: 1},
		{raw: "0.5", unit: effects.UnitFixed, value: 0.5},
	}
	for _, tt := range tests {
		unit, value, err := ParseRate(tt.raw)
		if err != nil {
			t.Errorf("ParseRate(%q): %v", tt.raw, err)
			continue
		}
		if unit != tt.unit || value != tt.value {
			t.Errorf("ParseRate(%q) = %v/%v, want %v/%v", tt.raw, unit, value, tt.unit, tt.value)
		}
	}
	if _, _, err := ParseRate("fast"); err == nil {
		t.Error("expected an error for a unitless word")
	}
}

func TestDimmerCueDefaultsAndValidation(t *testing.T) {
	s, err := Parse([]byte(`
fixtures:
  spot: {type: RGBSpot, universe: 1, address: 1, channels: {red: 1, green: 2, blue: 3, dimmer: 4}}
cues:
  - at: 0s
    start: {type: dimmer, fixtures: [spot], to: 0.8, duration: 2s, curve: sine}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d, ok := s.Cues[0].Start.Type.(effects.DimmerEffect)
	if !ok {
		t.Fatalf("type = %T", s.Cues[0].Start.Type)
	}
	if d.StartLevel != 0 || d.EndLevel != 0.8 || d.Duration != 2*time.Second || d.Curve != effects.CurveSine {
		t.Errorf("dimmer = %+v", d)
	}

	_, err = Parse([]byte(`
fixtures:
  spot: {type: RGBSpot, universe: 1, address: 1, channels: {red: 1, green: 2, blue: 3, dimmer: 4}}
cues:
  - at: 0s
    start: {type: dimmer, fixtures: [spot], to: 1.5}
`))
	if err == nil || !strings.Contains(err.Error(), "within [0,1]") {
		t.Errorf("out of range level error = %v", err)
	}
}
