package controller

import (
	"bufio"
	"context"
	"io"
	"log"
	"strings"

	"lightshow-agent/internal/core"
)

// RunKeyboard reads transport commands from an input stream, one per
// line, as a fallback when no MIDI controller is attached. Recognized
// lines: play, stop, pause, resume, blackout, load <show>.
func RunKeyboard(ctx context.Context, r io.Reader, cmdChan core.CommandChannel) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fields := strings.Fields(strings.ToLower(scanner.Text()))
		if len(fields) == 0 {
			continue
		}

		var cmd core.Command
		switch fields[0] {
		case "play", "p":
			cmd = core.Command{Type: core.CmdPlay}
		case "stop", "s":
			cmd = core.Command{Type: core.CmdStop}
		case "pause":
			cmd = core.Command{Type: core.CmdPause}
		case "resume", "r":
			cmd = core.Command{Type: core.CmdResume}
		case "blackout", "b":
			cmd = core.Command{Type: core.CmdBlackout}
		case "load":
			if len(fields) < 2 {
				log.Println("[Keys] load needs a show file name")
				continue
			}
			cmd = core.Command{Type: core.CmdLoadShow, Payload: map[string]interface{}{"file": fields[1]}}
		default:
			log.Printf("[Keys] Unknown command %q", fields[0])
			continue
		}
		if cmd.Payload == nil {
			cmd.Payload = map[string]interface{}{}
		}

		select {
		case cmdChan <- cmd:
		case <-ctx.Done():
			return
		}
	}
}
