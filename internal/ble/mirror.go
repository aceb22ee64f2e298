package ble

import (
	"log"
	"sync"

	"lightshow-agent/internal/effects"
)

// Mirror shadows one DMX fixture onto a BLEDOM strip. It reads the
// fixture's red/green/blue channels from rendered universe frames and
// forwards changed colors to the strip.
type Mirror struct {
	ctrl    *Controller
	fixture *effects.FixtureInfo

	mu        sync.Mutex
	connected bool
	lastR     byte
	lastG     byte
	lastB     byte
	sentAny   bool
}

// NewMirror wires a controller to the fixture it should follow.
func NewMirror(ctrl *Controller, fixture *effects.FixtureInfo) *Mirror {
	return &Mirror{ctrl: ctrl, fixture: fixture}
}

// Universe reports which universe the mirrored fixture lives on.
func (m *Mirror) Universe() uint16 {
	return m.fixture.Universe
}

// OnStatusChange is the connection callback for Controller.Run. On
// connect it powers the strip on and replays the last known color.
func (m *Mirror) OnStatusChange(connected bool, rssi int16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = connected
	if !connected {
		return
	}
	log.Printf("[BLE] Mirror active for fixture %q (RSSI %d)", m.fixture.Name, rssi)

	m.ctrl.SetPower(true)
	m.ctrl.SetBrightness(100)
	if m.sentAny {
		m.ctrl.SetColor(int(m.lastR), int(m.lastG), int(m.lastB))
	}
}

// channelValue reads a named channel of the fixture from a frame.
// Offsets in the channel map are 1-based relative to the address.
func (m *Mirror) channelValue(frame *[512]byte, name string) byte {
	offset, ok := m.fixture.Channels[name]
	if !ok {
		return 0
	}
	idx := int(m.fixture.Address) + int(offset) - 2
	if idx < 0 || idx >= len(frame) {
		return 0
	}
	return frame[idx]
}

// Push feeds a rendered universe frame to the mirror. Unchanged colors
// are dropped here so the BLE rate limit is spent on real updates.
func (m *Mirror) Push(frame *[512]byte) {
	r := m.channelValue(frame, "red")
	g := m.channelValue(frame, "green")
	b := m.channelValue(frame, "blue")

	// Fixtures with a dimmer channel scale color on the strip, which
	// has no separate intensity control per color.
	if _, ok := m.fixture.Channels["dimmer"]; ok {
		d := m.channelValue(frame, "dimmer")
		r = byte(int(r) * int(d) / 255)
		g = byte(int(g) * int(d) / 255)
		b = byte(int(b) * int(d) / 255)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sentAny && r == m.lastR && g == m.lastG && b == m.lastB {
		return
	}
	m.lastR, m.lastG, m.lastB = r, g, b
	m.sentAny = true

	if m.connected {
		m.ctrl.SetColor(int(r), int(g), int(b))
	}
}
