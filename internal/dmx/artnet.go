// Package dmx sends fixture state to the rig over Art-Net. A Sender owns
// the UDP broadcast socket and the wire format; Output layers per-universe
// frame buffers and a paced frame loop on top of it.
package dmx

import (
	"fmt"
	"net"
	"syscall"
)

const (
	artNetPort = 6454

	// UniverseSize is the number of channels in one DMX universe.
	UniverseSize = 512

	opOutput        = 0x5000
	protocolVersion = 14
)

// Sender broadcasts Art-Net packets on the local network.
type Sender struct {
	conn      *net.UDPConn
	broadcast *net.UDPAddr
	seq       uint8
}

// NewSender opens a UDP socket with broadcast enabled. broadcastAddr is
// the subnet broadcast address ("192.168.1.255"); empty selects the
// limited broadcast address 255.255.255.255.
func NewSender(broadcastAddr string) (*Sender, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("opening udp socket: %w", err)
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("accessing raw socket: %w", err)
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err == nil {
		err = sockErr
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling broadcast: %w", err)
	}

	ip := net.IPv4bcast
	if broadcastAddr != "" {
		ip = net.ParseIP(broadcastAddr)
		if ip == nil {
			conn.Close()
			return nil, fmt.Errorf("invalid broadcast address %q", broadcastAddr)
		}
	}

	return &Sender{
		conn:      conn,
		broadcast: &net.UDPAddr{IP: ip, Port: artNetPort},
		seq:       1,
	}, nil
}

// SendDMX broadcasts one ArtDMX packet carrying up to 512 channels for
// the given universe.
func (s *Sender) SendDMX(universe uint16, data []byte) error {
	if len(data) == 0 || len(data) > UniverseSize {
		return fmt.Errorf("dmx payload of %d channels (1-%d allowed)", len(data), UniverseSize)
	}
	pkt := buildArtDMX(universe, s.seq, data)
	s.seq++
	if s.seq == 0 {
		// Sequence 0 means "disabled" on the wire, skip it.
		s.seq = 1
	}
	if _, err := s.conn.WriteToUDP(pkt, s.broadcast); err != nil {
		return fmt.Errorf("sending ArtDMX: %w", err)
	}
	return nil
}

// SendSync broadcasts an ArtSync packet telling nodes to latch the
// frames they have buffered, so multi-universe rigs update atomically.
func (s *Sender) SendSync() error {
	pkt := []byte("Art-Net\x00\x00\x52\x00\x0e\x00")
	if _, err := s.conn.WriteToUDP(pkt, s.broadcast); err != nil {
		return fmt.Errorf("sending ArtSync: %w", err)
	}
	return nil
}

func (s *Sender) Close() error {
	return s.conn.Close()
}

// buildArtDMX assembles an ArtDMX packet: the Art-Net id string, opcode
// and protocol version, sequence, universe split into SubUni/Net bytes,
// big-endian payload length and the channel data itself.
func buildArtDMX(universe uint16, seq uint8, data []byte) []byte {
	pkt := make([]byte, 18+len(data))
	copy(pkt, "Art-Net\x00")
	pkt[8] = byte(opOutput & 0xff)
	pkt[9] = byte(opOutput >> 8)
	pkt[10] = 0x00
	pkt[11] = protocolVersion
	pkt[12] = seq
	pkt[13] = 0x00 // physical port
	pkt[14] = byte(universe & 0xff)
	pkt[15] = byte((universe >> 8) & 0x7f)
	pkt[16] = byte(len(data) >> 8)
	pkt[17] = byte(len(data) & 0xff)
	copy(pkt[18:], data)
	return pkt
}
