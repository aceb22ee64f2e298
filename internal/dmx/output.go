package dmx

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lightshow-agent/internal/effects"
)

// DefaultFrameRate is the output refresh rate in frames per second.
const DefaultFrameRate = 44.0

// wire is the packet-level transport under an Output. *Sender implements
// it; tests substitute a recorder.
type wire interface {
	SendDMX(universe uint16, data []byte) error
	SendSync() error
}

// Output holds the current frame for every universe touched so far and
// broadcasts all of them at a fixed rate. Channels keep their last value
// until overwritten, so effects only need to emit what changed.
type Output struct {
	wire      wire
	limiter   *rate.Limiter
	frameRate float64

	mu        sync.Mutex
	universes map[uint16]*[UniverseSize]byte
}

// NewOutput wraps a sender in a frame store paced at frameRate frames
// per second (0 selects DefaultFrameRate).
func NewOutput(w wire, frameRate float64) *Output {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &Output{
		wire:      w,
		limiter:   rate.NewLimiter(rate.Limit(frameRate), 1),
		frameRate: frameRate,
		universes: make(map[uint16]*[UniverseSize]byte),
	}
}

// Apply folds engine output into the frame buffers. Commands addressing
// channels outside 1..512 are dropped with a log line.
func (o *Output) Apply(cmds []effects.DMXCommand) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, cmd := range cmds {
		if cmd.Channel < 1 || cmd.Channel > UniverseSize {
			log.Printf("[DMX] dropping command for universe %d channel %d: out of range", cmd.Universe, cmd.Channel)
			continue
		}
		buf := o.universes[cmd.Universe]
		if buf == nil {
			buf = new([UniverseSize]byte)
			o.universes[cmd.Universe] = buf
		}
		buf[cmd.Channel-1] = cmd.Value
	}
}

// Blackout zeroes every known universe.
func (o *Output) Blackout() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, buf := range o.universes {
		*buf = [UniverseSize]byte{}
	}
}

// Snapshot returns a copy of a universe's current frame, or false if the
// universe has never been written.
func (o *Output) Snapshot(universe uint16) ([UniverseSize]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	buf, ok := o.universes[universe]
	if !ok {
		return [UniverseSize]byte{}, false
	}
	return *buf, true
}

// Flush broadcasts the current frame of every universe, followed by an
// ArtSync when more than one universe is in play.
func (o *Output) Flush() error {
	o.mu.Lock()
	frames := make(map[uint16][]byte, len(o.universes))
	for universe, buf := range o.universes {
		frame := make([]byte, UniverseSize)
		copy(frame, buf[:])
		frames[universe] = frame
	}
	o.mu.Unlock()

	for universe, frame := range frames {
		if err := o.wire.SendDMX(universe, frame); err != nil {
			return fmt.Errorf("universe %d: %w", universe, err)
		}
	}
	if len(frames) > 1 {
		if err := o.wire.SendSync(); err != nil {
			return err
		}
	}
	return nil
}

// Run drives the output loop until the context is cancelled: each frame
// it calls tick with the time elapsed since the previous frame, then
// broadcasts. The tick callback is where the effect engine advances.
func (o *Output) Run(ctx context.Context, tick func(dt time.Duration)) error {
	log.Printf("[DMX] frame loop started at %.0f fps", o.frameRate)
	last := time.Now()
	for {
		if err := o.limiter.Wait(ctx); err != nil {
			log.Println("[DMX] frame loop stopped")
			return nil
		}
		now := time.Now()
		dt := now.Sub(last)
		last = now

		if tick != nil {
			tick(dt)
		}
		if err := o.Flush(); err != nil {
			log.Printf("[DMX] send failed: %v", err)
		}
	}
}
