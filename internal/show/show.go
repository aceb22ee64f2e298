// Package show loads YAML show definitions: the fixture patch, the tempo
// map and a time-stamped cue list. Everything is validated at load time
// so that playback never hits a malformed value mid-frame.
package show

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lightshow-agent/internal/effects"
	"lightshow-agent/internal/tempo"
)

// Show is a fully resolved show: fixtures keyed by name, named fixture
// groups, the tempo map and the cue list sorted by time.
type Show struct {
	Name     string
	Audio    string
	Offset   time.Duration
	Fixtures map[string]*effects.FixtureInfo
	Groups   map[string][]string
	Tempo    *tempo.Map
	Cues     []Cue
}

// Cue is one scheduled action. Exactly one of the action fields is set.
type Cue struct {
	At time.Duration

	Start        *effects.Instance
	Stop         string
	StopAll      bool
	ReleaseLayer *effects.Layer
	ReleaseFade  time.Duration
	ClearLayer   *effects.Layer
}

type document struct {
	Name     string                `yaml:"name"`
	Audio    string                `yaml:"audio"`
	OffsetMS int                   `yaml:"offset_ms"`
	Fixtures map[string]fixtureDef `yaml:"fixtures"`
	Groups   map[string][]string   `yaml:"groups"`
	Tempo    tempoDef              `yaml:"tempo"`
	Cues     []cueDef              `yaml:"cues"`
}

type fixtureDef struct {
	Type        string            `yaml:"type"`
	Universe    uint16            `yaml:"universe"`
	Address     uint16            `yaml:"address"`
	Channels    map[string]uint16 `yaml:"channels"` // 1-based offsets from the address
	MaxStrobeHz float64           `yaml:"max_strobe_hz"`
}

type tempoDef struct {
	BPM       float64          `yaml:"bpm"`
	Signature string           `yaml:"signature"`
	Changes   []tempoChangeDef `yaml:"changes"`
}

type tempoChangeDef struct {
	At        string  `yaml:"at"`
	Measure   uint32  `yaml:"measure"`
	Beat      float64 `yaml:"beat"`
	BPM       float64 `yaml:"bpm"`
	Signature string  `yaml:"signature"`
}

type cueDef struct {
	At      string      `yaml:"at"`
	Start   *effectDef  `yaml:"start,omitempty"`
	Stop    string      `yaml:"stop,omitempty"`
	StopAll bool        `yaml:"stop_all,omitempty"`
	Release *releaseDef `yaml:"release,omitempty"`
	Clear   string      `yaml:"clear,omitempty"`
}

type releaseDef struct {
	Layer string `yaml:"layer"`
	Fade  string `yaml:"fade"`
}

// Load reads and parses a show file.
func Load(path string) (*Show, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading show file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// Parse parses a YAML show document and resolves every reference.
func Parse(data []byte) (*Show, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}

	s := &Show{
		Name:     doc.Name,
		Audio:    doc.Audio,
		Offset:   time.Duration(doc.OffsetMS) * time.Millisecond,
		Fixtures: make(map[string]*effects.FixtureInfo, len(doc.Fixtures)),
		Groups:   doc.Groups,
	}

	for name, def := range doc.Fixtures {
		info, err := buildFixture(name, def)
		if err != nil {
			return nil, fmt.Errorf("fixture %q: %w", name, err)
		}
		s.Fixtures[name] = info
	}

	for group, members := range doc.Groups {
		for _, member := range members {
			if _, ok := s.Fixtures[member]; !ok {
				return nil, fmt.Errorf("group %q references unknown fixture %q", group, member)
			}
		}
	}

	tm, err := buildTempo(s.Offset, doc.Tempo)
	if err != nil {
		return nil, fmt.Errorf("tempo: %w", err)
	}
	s.Tempo = tm

	for i, def := range doc.Cues {
		cue, err := s.buildCue(def)
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", i, err)
		}
		s.Cues = append(s.Cues, cue)
	}
	sort.SliceStable(s.Cues, func(i, j int) bool { return s.Cues[i].At < s.Cues[j].At })

	return s, nil
}

func buildFixture(name string, def fixtureDef) (*effects.FixtureInfo, error) {
	if def.Address == 0 {
		return nil, fmt.Errorf("missing address")
	}
	if len(def.Channels) == 0 {
		return nil, fmt.Errorf("missing channel table")
	}
	for ch, offset := range def.Channels {
		if offset == 0 {
			return nil, fmt.Errorf("channel %q has offset 0, offsets are 1-based", ch)
		}
		if int(def.Address)+int(offset)-1 > 512 {
			return nil, fmt.Errorf("channel %q lands past the end of the universe", ch)
		}
	}
	return &effects.FixtureInfo{
		Name:               name,
		Universe:           def.Universe,
		Address:            def.Address,
		FixtureType:        def.Type,
		Channels:           def.Channels,
		MaxStrobeFrequency: def.MaxStrobeHz,
	}, nil
}

func buildTempo(offset time.Duration, def tempoDef) (*tempo.Map, error) {
	bpm := def.BPM
	if bpm == 0 {
		bpm = 120
	}
	if bpm < 0 {
		return nil, fmt.Errorf("bpm %v is negative", bpm)
	}

	sig := tempo.NewTimeSignature(4, 4)
	if def.Signature != "" {
		var err error
		sig, err = parseSignature(def.Signature)
		if err != nil {
			return nil, err
		}
	}

	var changes []tempo.Change
	for i, c := range def.Changes {
		change := tempo.Change{BPM: c.BPM}
		if c.Signature != "" {
			s, err := parseSignature(c.Signature)
			if err != nil {
				return nil, fmt.Errorf("change %d: %w", i, err)
			}
			change.Signature = &s
		}
		switch {
		case c.At != "" && c.Measure != 0:
			return nil, fmt.Errorf("change %d: both at and measure given", i)
		case c.At != "":
			at, err := parseDuration(c.At)
			if err != nil {
				return nil, fmt.Errorf("change %d: %w", i, err)
			}
			change.At = at
		case c.Measure != 0:
			change.HasMeasure = true
			change.Measure = c.Measure
			change.Beat = c.Beat
			if change.Beat == 0 {
				change.Beat = 1
			}
		default:
			return nil, fmt.Errorf("change %d: no position given", i)
		}
		changes = append(changes, change)
	}

	return tempo.NewMap(offset, bpm, sig, changes), nil
}

func parseSignature(raw string) (tempo.TimeSignature, error) {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		return tempo.TimeSignature{}, fmt.Errorf("invalid time signature %q", raw)
	}
	num, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil || num == 0 {
		return tempo.TimeSignature{}, fmt.Errorf("invalid time signature %q", raw)
	}
	den, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
	if err != nil || den == 0 {
		return tempo.TimeSignature{}, fmt.Errorf("invalid time signature %q", raw)
	}
	return tempo.NewTimeSignature(uint32(num), uint32(den)), nil
}

func (s *Show) buildCue(def cueDef) (Cue, error) {
	at, err := parseDuration(def.At)
	if err != nil {
		return Cue{}, err
	}
	cue := Cue{At: at}

	actions := 0
	if def.Start != nil {
		actions++
	}
	if def.Stop != "" {
		actions++
	}
	if def.StopAll {
		actions++
	}
	if def.Release != nil {
		actions++
	}
	if def.Clear != "" {
		actions++
	}
	if actions != 1 {
		return Cue{}, fmt.Errorf("exactly one of start/stop/stop_all/release/clear must be set")
	}

	switch {
	case def.Start != nil:
		in, err := s.buildInstance(*def.Start)
		if err != nil {
			return Cue{}, err
		}
		cue.Start = in
	case def.Stop != "":
		cue.Stop = def.Stop
	case def.StopAll:
		cue.StopAll = true
	case def.Release != nil:
		layer, err := parseLayer(def.Release.Layer)
		if err != nil {
			return Cue{}, err
		}
		fade := -time.Nanosecond // engine default when unset
		if def.Release.Fade != "" {
			fade, err = parseDuration(def.Release.Fade)
			if err != nil {
				return Cue{}, err
			}
		}
		cue.ReleaseLayer = &layer
		cue.ReleaseFade = fade
	case def.Clear != "":
		layer, err := parseLayer(def.Clear)
		if err != nil {
			return Cue{}, err
		}
		cue.ClearLayer = &layer
	}
	return cue, nil
}

// expandTargets resolves group names to fixture names, preserving order
// and dropping duplicates.
func (s *Show) expandTargets(refs []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, ref := range refs {
		if members, ok := s.Groups[ref]; ok {
			for _, m := range members {
				add(m)
			}
			continue
		}
		if _, ok := s.Fixtures[ref]; !ok {
			return nil, fmt.Errorf("unknown fixture or group %q", ref)
		}
		add(ref)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no target fixtures")
	}
	return out, nil
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}
