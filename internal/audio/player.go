// Package audio plays the show's backing track and exposes the playback
// position, which is the musical clock the lighting cues follow.
package audio

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"
)

const speakerBufferLen = 100 * time.Millisecond

// Player decodes and plays one song at a time through the system mixer.
type Player struct {
	mu       sync.Mutex
	path     string
	format   beep.Format
	streamer beep.StreamSeekCloser
	ctrl     *beep.Ctrl
	playing  bool
	done     chan struct{}
}

func NewPlayer() *Player {
	return &Player{}
}

// Load opens and decodes an audio file, replacing any current song. The
// decoder is picked by extension; mp3 and wav are supported.
func (p *Player) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening audio file: %w", err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		f.Close()
		return fmt.Errorf("unsupported audio format %q", filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(speakerBufferLen)); err != nil {
		streamer.Close()
		return fmt.Errorf("initializing speaker: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer != nil {
		p.streamer.Close()
	}
	p.path = path
	p.streamer = streamer
	p.format = format
	p.ctrl = nil
	p.playing = false
	p.done = nil

	log.Printf("[Audio] loaded %s (%d Hz, %v)", path, format.SampleRate, format.SampleRate.D(streamer.Len()).Round(time.Second))
	return nil
}

// Play starts (or restarts) playback from the beginning. The returned
// channel closes when the song finishes.
func (p *Player) Play() (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return nil, fmt.Errorf("no song loaded")
	}

	speaker.Clear()
	if err := p.streamer.Seek(0); err != nil {
		return nil, fmt.Errorf("rewinding: %w", err)
	}

	done := make(chan struct{})
	p.ctrl = &beep.Ctrl{Streamer: p.streamer}
	p.done = done
	p.playing = true

	speaker.Play(beep.Seq(p.ctrl, beep.Callback(func() {
		close(done)
	})))
	log.Printf("[Audio] playing %s", p.path)
	return done, nil
}

// Pause suspends playback; the position holds.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		return
	}
	speaker.Lock()
	p.ctrl.Paused = true
	speaker.Unlock()
	p.playing = false
}

// Resume continues a paused song.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		return
	}
	speaker.Lock()
	p.ctrl.Paused = false
	speaker.Unlock()
	p.playing = true
}

// Stop halts playback and rewinds.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return
	}
	speaker.Clear()
	if err := p.streamer.Seek(0); err != nil {
		log.Printf("[Audio] rewind failed: %v", err)
	}
	p.ctrl = nil
	p.playing = false
}

// Playing reports whether a song is actively playing.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Elapsed returns the current playback position.
func (p *Player) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return 0
	}
	speaker.Lock()
	pos := p.streamer.Position()
	speaker.Unlock()
	return p.format.SampleRate.D(pos)
}

// Duration returns the length of the loaded song.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return 0
	}
	return p.format.SampleRate.D(p.streamer.Len())
}

// Close releases the decoder.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return nil
	}
	speaker.Clear()
	err := p.streamer.Close()
	p.streamer = nil
	p.ctrl = nil
	p.playing = false
	return err
}
