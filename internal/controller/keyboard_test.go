package controller

import (
	"context"
	"strings"
	"testing"
	"time"

	"lightshow-agent/internal/core"
)

func TestKeyboardTransportLines(t *testing.T) {
	input := "play\nnonsense\nload warehouse.yaml\nb\n"
	cmdChan := make(core.CommandChannel, 10)

	done := make(chan struct{})
	go func() {
		RunKeyboard(context.Background(), strings.NewReader(input), cmdChan)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reader never finished")
	}

	want := []core.CommandType{core.CmdPlay, core.CmdLoadShow, core.CmdBlackout}
	for i, wt := range want {
		select {
		case cmd := <-cmdChan:
			if cmd.Type != wt {
				t.Errorf("command %d = %s, want %s", i, cmd.Type, wt)
			}
			if wt == core.CmdLoadShow && cmd.Payload["file"] != "warehouse.yaml" {
				t.Errorf("load payload = %v", cmd.Payload)
			}
		default:
			t.Fatalf("missing command %d (%s)", i, wt)
		}
	}
	select {
	case cmd := <-cmdChan:
		t.Errorf("unexpected extra command %s", cmd.Type)
	default:
	}
}
