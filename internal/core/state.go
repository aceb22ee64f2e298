package core

import (
	"sync"
	"time"
)

// State holds the single source of truth for the running show.
type State struct {
	mu            sync.RWMutex
	ShowName      string
	ShowPath      string
	AudioFile     string
	Playing       bool
	Paused        bool
	Position      time.Duration
	BPM           float64
	ActiveEffects int
	RunningScript string
}

// NewState creates a new State instance.
func NewState() *State {
	return &State{}
}

// Clone returns a snapshot of the current state for safe reading.
func (s *State) Clone() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		ShowName:      s.ShowName,
		ShowPath:      s.ShowPath,
		AudioFile:     s.AudioFile,
		Playing:       s.Playing,
		Paused:        s.Paused,
		Position:      s.Position,
		BPM:           s.BPM,
		ActiveEffects: s.ActiveEffects,
		RunningScript: s.RunningScript,
	}
}

// SetShow records the loaded show.
func (s *State) SetShow(name, path, audio string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ShowName = name
	s.ShowPath = path
	s.AudioFile = audio
}

// SetPlayback updates the transport state.
func (s *State) SetPlayback(playing, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Playing = playing
	s.Paused = paused
}

// SetPosition updates the playback position and the tempo in force there.
func (s *State) SetPosition(pos time.Duration, bpm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Position = pos
	s.BPM = bpm
}

// SetActiveEffects updates the live effect count.
func (s *State) SetActiveEffects(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ActiveEffects = n
}

// SetRunningScript updates the running script name ("" when idle).
func (s *State) SetRunningScript(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RunningScript = name
}
