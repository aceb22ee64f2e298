package dmx

import (
	"bytes"
	"testing"

	"lightshow-agent/internal/effects"
)

func TestBuildArtDMXHeader(t *testing.T) {
	data := []byte{0xff, 0x80, 0x00, 0x40}
	pkt := buildArtDMX(0x0105, 7, data)

	if len(pkt) != 18+len(data) {
		t.Fatalf("packet length = %d, want %d", len(pkt), 18+len(data))
	}
	if !bytes.Equal(pkt[:8], []byte("Art-Net\x00")) {
		t.Errorf("id = %q", pkt[:8])
	}
	// OpOutput is little-endian on the wire.
	if pkt[8] != 0x00 || pkt[9] != 0x50 {
		t.Errorf("opcode = %02x %02x, want 00 50", pkt[8], pkt[9])
	}
	if pkt[10] != 0x00 || pkt[11] != 14 {
		t.Errorf("protocol version = %02x %02x", pkt[10], pkt[11])
	}
	if pkt[12] != 7 {
		t.Errorf("sequence = %d, want 7", pkt[12])
	}
	// Universe 0x0105: SubUni low byte, Net high byte.
	if pkt[14] != 0x05 || pkt[15] != 0x01 {
		t.Errorf("universe bytes = %02x %02x, want 05 01", pkt[14], pkt[15])
	}
	// Length is big-endian.
	if pkt[16] != 0x00 || pkt[17] != 0x04 {
		t.Errorf("length bytes = %02x %02x, want 00 04", pkt[16], pkt[17])
	}
	if !bytes.Equal(pkt[18:], data) {
		t.Errorf("payload = %x, want %x", pkt[18:], data)
	}
}

func TestBuildArtDMXFullFrameLength(t *testing.T) {
	pkt := buildArtDMX(0, 1, make([]byte, UniverseSize))
	if pkt[16] != 0x02 || pkt[17] != 0x00 {
		t.Errorf("length bytes = %02x %02x, want 02 00 (512)", pkt[16], pkt[17])
	}
}

type recordingWire struct {
	frames map[uint16][]byte
	syncs  int
}

func newRecordingWire() *recordingWire {
	return &recordingWire{frames: make(map[uint16][]byte)}
}

func (r *recordingWire) SendDMX(universe uint16, data []byte) error {
	frame := make([]byte, len(data))
	copy(frame, data)
	r.frames[universe] = frame
	return nil
}

func (r *recordingWire) SendSync() error {
	r.syncs++
	return nil
}

func TestOutputApplyAndFlush(t *testing.T) {
	w := newRecordingWire()
	out := NewOutput(w, 0)

	out.Apply([]effects.DMXCommand{
		{Universe: 1, Channel: 1, Value: 255},
		{Universe: 1, Channel: 10, Value: 128},
		{Universe: 2, Channel: 512, Value: 64},
		{Universe: 2, Channel: 513, Value: 1}, // out of range, dropped
	})
	if err := out.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	u1 := w.frames[1]
	if len(u1) != UniverseSize {
		t.Fatalf("universe 1 frame length = %d", len(u1))
	}
	if u1[0] != 255 || u1[9] != 128 {
		t.Errorf("universe 1 channels = %d/%d, want 255/128", u1[0], u1[9])
	}
	if got := w.frames[2][511]; got != 64 {
		t.Errorf("universe 2 channel 512 = %d, want 64", got)
	}
	// Multiple universes latch together.
	if w.syncs != 1 {
		t.Errorf("syncs = %d, want 1", w.syncs)
	}
}

func TestOutputChannelsPersistAcrossFrames(t *testing.T) {
	w := newRecordingWire()
	out := NewOutput(w, 0)

	out.Apply([]effects.DMXCommand{{Universe: 1, Channel: 5, Value: 200}})
	if err := out.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// Next frame emits nothing; channel 5 keeps its value.
	if err := out.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := w.frames[1][4]; got != 200 {
		t.Errorf("channel 5 after empty frame = %d, want 200", got)
	}
	if w.syncs != 0 {
		t.Errorf("single universe should not sync, got %d", w.syncs)
	}

	out.Blackout()
	if err := out.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := w.frames[1][4]; got != 0 {
		t.Errorf("channel 5 after blackout = %d, want 0", got)
	}
}

func TestOutputSnapshot(t *testing.T) {
	out := NewOutput(newRecordingWire(), 0)
	if _, ok := out.Snapshot(3); ok {
		t.Error("unwritten universe should not snapshot")
	}
	out.Apply([]effects.DMXCommand{{Universe: 3, Channel: 2, Value: 9}})
	frame, ok := out.Snapshot(3)
	if !ok || frame[1] != 9 {
		t.Errorf("snapshot = %v/%d", ok, frame[1])
	}
}
