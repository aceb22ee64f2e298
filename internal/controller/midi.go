// Package controller listens to a MIDI input port and turns note
// presses into transport commands, so a pad controller can drive the
// show without the web UI.
package controller

import (
	"fmt"
	"log"
	"strings"

	"lightshow-agent/internal/config"
	"lightshow-agent/internal/core"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

type Controller struct {
	cfg            config.MIDIConfig
	commandChannel core.CommandChannel
	stop           func()
}

// NewController returns a stopped controller. Returns nil when MIDI is
// disabled in the config.
func NewController(cfg config.MIDIConfig, cmdChan core.CommandChannel) *Controller {
	if !cfg.Enabled {
		return nil
	}
	return &Controller{cfg: cfg, commandChannel: cmdChan}
}

// Start opens the configured input port and begins listening. The port
// is matched by substring so "APC" finds "APC mini mk2 Control".
func (c *Controller) Start() error {
	ports := midi.GetInPorts()
	if len(ports) == 0 {
		return fmt.Errorf("no MIDI input ports available")
	}

	var port drivers.In
	for _, p := range ports {
		if c.cfg.PortName == "" || strings.Contains(p.String(), c.cfg.PortName) {
			port = p
			break
		}
	}
	if port == nil {
		return fmt.Errorf("MIDI port %q not found", c.cfg.PortName)
	}

	stop, err := midi.ListenTo(port, c.handleMessage)
	if err != nil {
		return fmt.Errorf("listening to MIDI port %q: %w", port.String(), err)
	}
	c.stop = stop

	log.Printf("[MIDI] Listening on %s", port.String())
	return nil
}

// Stop closes the listener and the driver.
func (c *Controller) Stop() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	midi.CloseDriver()
	log.Println("[MIDI] Stopped.")
}

func (c *Controller) handleMessage(msg midi.Message, timestampms int32) {
	var ch, key, vel uint8
	if !msg.GetNoteOn(&ch, &key, &vel) || vel == 0 {
		return
	}

	var cmdType core.CommandType
	switch key {
	case c.cfg.PlayNote:
		cmdType = core.CmdPlay
	case c.cfg.StopNote:
		cmdType = core.CmdStop
	case c.cfg.PauseNote:
		cmdType = core.CmdPause
	case c.cfg.PanicNote:
		cmdType = core.CmdBlackout
	default:
		return
	}

	log.Printf("[MIDI] Note %d -> %s", key, cmdType)
	select {
	case c.commandChannel <- core.Command{Type: cmdType, Payload: map[string]interface{}{}}:
	default:
		log.Printf("[MIDI] Command channel full, dropping %s", cmdType)
	}
}
