// Package agent wires every subsystem together: it owns the show state,
// runs the frame loop that renders effects to Art-Net, and dispatches
// commands arriving from the WebSocket server, MQTT, MIDI and the
// scheduler over one channel.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"lightshow-agent/internal/audio"
	"lightshow-agent/internal/ble"
	"lightshow-agent/internal/config"
	"lightshow-agent/internal/controller"
	"lightshow-agent/internal/core"
	"lightshow-agent/internal/dmx"
	"lightshow-agent/internal/effects"
	"lightshow-agent/internal/lua"
	"lightshow-agent/internal/mqtt"
	"lightshow-agent/internal/scheduler"
	"lightshow-agent/internal/server"
	"lightshow-agent/internal/show"
)

type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	wg     sync.WaitGroup

	state          *core.State
	eventBus       *core.EventBus
	commandChannel core.CommandChannel

	sender *dmx.Sender
	output *dmx.Output
	player *audio.Player

	luaEngine  *lua.Engine
	scheduler  *scheduler.Scheduler
	server     *server.Server
	mqttClient *mqtt.Client
	midi       *controller.Controller

	bleController *ble.Controller

	// mu guards the playback state below. The frame loop takes it once
	// per tick, so nothing held under it may block.
	mu          sync.Mutex
	engine      *effects.Engine
	currentShow *show.Show
	showPath    string
	nextCue     int
	playing     bool
	paused      bool
	clock       time.Duration
	hasAudio    bool
	audioDone   <-chan struct{}
	bleMirror   *ble.Mirror
}

func NewAgent(cfg *config.Config) (*Agent, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Agent{
		ctx:            ctx,
		cancel:         cancel,
		config:         cfg,
		state:          core.NewState(),
		eventBus:       core.NewEventBus(),
		commandChannel: make(core.CommandChannel, 20),
		engine:         effects.NewEngine(),
		player:         audio.NewPlayer(),
	}

	sender, err := dmx.NewSender(cfg.DMX.BroadcastAddr)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening Art-Net socket: %w", err)
	}
	a.sender = sender
	a.output = dmx.NewOutput(sender, cfg.DMX.FrameRate)

	a.luaEngine = lua.NewEngine(a, cfg.ScriptsDir, a.eventBus)

	a.scheduler = scheduler.NewScheduler(a.commandChannel, cfg.SchedulesFile)

	a.server = server.NewServer(
		a.luaEngine,
		a.state,
		a.scheduler,
		a.listShows,
		cfg.Server.Port,
		cfg.Server.WebFilesDir,
		cfg.Server.AllowedOrigins,
	)
	a.server.SetHandler(a)

	a.mqttClient = mqtt.NewClient(cfg, a.commandChannel)

	a.midi = controller.NewController(cfg.MIDI, a.commandChannel)

	if cfg.BLE.Enabled {
		scan, connect, heartbeat, retry := cfg.BLE.Durations()
		a.bleController = ble.NewController(ctx, cfg.BLE.DeviceNames,
			scan, connect, heartbeat, retry, cfg.BLE.RateLimit, cfg.BLE.RateBurst)
	}

	return a, nil
}

// Run blocks until Shutdown cancels the context.
func (a *Agent) Run() {
	go a.listenEvents()
	go a.statusLoop()

	if a.mqttClient != nil {
		go func() {
			if err := a.mqttClient.Connect(); err != nil {
				log.Printf("[Agent] MQTT setup error: %v", err)
			}
		}()
	}

	if a.bleController != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.bleController.Run(a.ctx, a.onBLEStatus)
		}()
	}

	if a.midi != nil {
		if err := a.midi.Start(); err != nil {
			log.Printf("[Agent] MIDI setup error: %v", err)
		}
	}

	// Console transport as a fallback when no controller is attached.
	go controller.RunKeyboard(a.ctx, os.Stdin, a.commandChannel)

	a.scheduler.Start()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.output.Run(a.ctx, a.tick); err != nil {
			log.Printf("[Agent] Frame loop error: %v", err)
		}
	}()

	log.Printf("Agent running on http://localhost:%s", a.config.Server.Port)
	go func() {
		if err := a.server.ListenAndServe(); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	if a.config.DefaultShow != "" {
		a.commandChannel <- core.Command{
			Type:    core.CmdLoadShow,
			Payload: map[string]interface{}{"file": a.config.DefaultShow},
		}
	}

	log.Println("Agent orchestrator ready.")
	for {
		select {
		case <-a.ctx.Done():
			log.Println("Agent orchestrator shutting down...")
			return
		case cmd := <-a.commandChannel:
			a.handleCommand(cmd)
		}
	}
}

func (a *Agent) Shutdown() {
	a.scheduler.Stop()
	_ = a.server.Shutdown(context.Background())
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	if a.midi != nil {
		a.midi.Stop()
	}
	a.player.Stop()
	a.cancel()
	a.wg.Wait()

	// Leave the rig dark rather than frozen on the last frame.
	a.output.Blackout()
	if err := a.output.Flush(); err != nil {
		log.Printf("[Agent] Final blackout failed: %v", err)
	}
	_ = a.player.Close()
	_ = a.sender.Close()
}

// tick runs once per output frame. It advances the show clock, fires due
// cues, renders the effect engine and pushes the result to the output.
func (a *Agent) tick(dt time.Duration) {
	var finished bool

	a.mu.Lock()
	if a.playing && !a.paused {
		if !a.hasAudio {
			a.clock += dt
		}
		pos := a.position()

		for a.nextCue < len(a.currentShow.Cues) && a.currentShow.Cues[a.nextCue].At <= pos {
			cue := a.currentShow.Cues[a.nextCue]
			a.dispatchCue(cue, pos)
			a.nextCue++
		}

		if a.hasAudio && a.audioDone != nil {
			select {
			case <-a.audioDone:
				a.playing = false
				a.paused = false
				a.audioDone = nil
				finished = true
			default:
			}
		}
	}
	// A paused transport freezes the engine clock too: effects hold
	// still, and tempo-aware speeds stay aligned with the song position
	// when playback resumes.
	step := dt
	if a.playing && a.paused {
		step = 0
	}
	// The engine has no lock of its own; every call site goes through mu.
	cmds := a.engine.Update(step)
	mirror := a.bleMirror
	a.mu.Unlock()

	a.output.Apply(cmds)

	if mirror != nil {
		if frame, ok := a.output.Snapshot(mirror.Universe()); ok {
			mirror.Push(&frame)
		}
	}

	if finished {
		log.Println("[Agent] Playback finished.")
		a.state.SetPlayback(false, false)
		a.eventBus.Publish(core.Event{Type: core.PlaybackChangedEvent, Payload: map[string]interface{}{"playing": false}})
	}
}

// position reports the current show time. Shows without audio run on an
// internal clock that the frame loop advances. Callers hold mu.
func (a *Agent) position() time.Duration {
	if a.hasAudio {
		return a.player.Elapsed()
	}
	return a.clock
}

// dispatchCue fires one cue action. Callers hold mu. A cue firing late,
// for example right after a seek or a slow frame, starts its effect with
// the elapsed time it should already have.
func (a *Agent) dispatchCue(cue show.Cue, pos time.Duration) {
	switch {
	case cue.Start != nil:
		if err := a.engine.StartEffectElapsed(cue.Start, pos-cue.At); err != nil {
			log.Printf("[Agent] Cue at %s: %v", cue.At, err)
		}
	case cue.Stop != "":
		a.engine.StopEffect(cue.Stop)
	case cue.StopAll:
		a.engine.StopAllEffects()
	case cue.ReleaseLayer != nil:
		if cue.ReleaseFade < 0 {
			a.engine.ReleaseLayer(*cue.ReleaseLayer)
		} else {
			a.engine.ReleaseLayerWithTime(*cue.ReleaseLayer, cue.ReleaseFade)
		}
	case cue.ClearLayer != nil:
		a.engine.ClearLayer(*cue.ClearLayer)
	}
}

// loadShow parses the show file and rebuilds the effect engine around
// its fixtures. Callers hold mu.
func (a *Agent) loadShow(path string) error {
	sh, err := show.Load(path)
	if err != nil {
		return err
	}

	engine := effects.NewEngine()
	for _, f := range sh.Fixtures {
		engine.RegisterFixture(*f)
	}
	engine.SetTempoSource(sh.Tempo)

	a.engine = engine
	a.currentShow = sh
	a.showPath = path
	a.nextCue = 0
	a.clock = 0
	a.hasAudio = false
	a.audioDone = nil

	if sh.Audio != "" {
		audioPath := filepath.Join(filepath.Dir(path), sh.Audio)
		if err := a.player.Load(audioPath); err != nil {
			log.Printf("[Agent] Audio %s unavailable, using internal clock: %v", audioPath, err)
		} else {
			a.hasAudio = true
		}
	}

	if a.bleController != nil {
		a.bleMirror = nil
		if f, ok := sh.Fixtures[a.config.BLE.MirrorFixture]; ok {
			a.bleMirror = ble.NewMirror(a.bleController, f)
		} else {
			log.Printf("[Agent] BLE mirror fixture %q not in show %q", a.config.BLE.MirrorFixture, sh.Name)
		}
	}

	log.Printf("[Agent] Loaded show %q (%d fixtures, %d cues)", sh.Name, len(sh.Fixtures), len(sh.Cues))
	return nil
}

// stopPlayback halts the transport and darkens the rig. Callers hold mu.
func (a *Agent) stopPlayback() {
	if a.hasAudio {
		a.player.Stop()
	}
	a.playing = false
	a.paused = false
	a.clock = 0
	a.nextCue = 0
	a.audioDone = nil
	a.engine.StopAllEffects()
	// StopAllEffects keeps persisted permanent looks; a stop should go
	// dark, so the engine is rebuilt clean around the same fixtures.
	if a.currentShow != nil {
		engine := effects.NewEngine()
		for _, f := range a.currentShow.Fixtures {
			engine.RegisterFixture(*f)
		}
		engine.SetTempoSource(a.currentShow.Tempo)
		a.engine = engine
	}
	a.output.Blackout()
}

func (a *Agent) handleCommand(cmd core.Command) {
	log.Printf("[Agent] Handling command: %s", cmd.Type)

	switch cmd.Type {
	case core.CmdLoadShow:
		file, _ := cmd.Payload["file"].(string)
		if file == "" {
			log.Println("[Agent] loadShow needs a 'file' payload")
			return
		}
		path := filepath.Join(a.config.ShowsDir, filepath.Base(file))

		a.mu.Lock()
		a.stopPlayback()
		err := a.loadShow(path)
		var sh *show.Show
		if err == nil {
			sh = a.currentShow
		}
		a.mu.Unlock()

		if err != nil {
			log.Printf("[Agent] Loading show %s: %v", path, err)
			return
		}
		a.state.SetShow(sh.Name, path, sh.Audio)
		a.state.SetPlayback(false, false)
		a.eventBus.Publish(core.Event{Type: core.ShowLoadedEvent, Payload: map[string]interface{}{"name": sh.Name}})

	case core.CmdPlay:
		a.mu.Lock()
		if a.showPath == "" {
			a.mu.Unlock()
			log.Println("[Agent] No show loaded, nothing to play.")
			return
		}
		a.stopPlayback()
		// Reload so every cue starts from a fresh effect instance.
		if err := a.loadShow(a.showPath); err != nil {
			a.mu.Unlock()
			log.Printf("[Agent] Reloading show: %v", err)
			return
		}
		if a.hasAudio {
			done, err := a.player.Play()
			if err != nil {
				log.Printf("[Agent] Audio start failed, using internal clock: %v", err)
				a.hasAudio = false
			} else {
				a.audioDone = done
			}
		}
		a.playing = true
		a.paused = false
		a.mu.Unlock()

		a.state.SetPlayback(true, false)
		a.eventBus.Publish(core.Event{Type: core.PlaybackChangedEvent, Payload: map[string]interface{}{"playing": true}})

	case core.CmdPause:
		a.mu.Lock()
		if a.playing && !a.paused {
			if a.hasAudio {
				a.player.Pause()
			}
			a.paused = true
		}
		playing, paused := a.playing, a.paused
		a.mu.Unlock()
		a.state.SetPlayback(playing, paused)
		a.eventBus.Publish(core.Event{Type: core.PlaybackChangedEvent, Payload: map[string]interface{}{"paused": paused}})

	case core.CmdResume:
		a.mu.Lock()
		if a.playing && a.paused {
			if a.hasAudio {
				a.player.Resume()
			}
			a.paused = false
		}
		playing, paused := a.playing, a.paused
		a.mu.Unlock()
		a.state.SetPlayback(playing, paused)
		a.eventBus.Publish(core.Event{Type: core.PlaybackChangedEvent, Payload: map[string]interface{}{"paused": paused}})

	case core.CmdStop:
		a.mu.Lock()
		a.stopPlayback()
		a.mu.Unlock()
		a.state.SetPlayback(false, false)
		a.state.SetPosition(0, 0)
		a.eventBus.Publish(core.Event{Type: core.PlaybackChangedEvent, Payload: map[string]interface{}{"playing": false}})

	case core.CmdBlackout:
		a.luaEngine.StopCurrentScript()
		a.mu.Lock()
		a.stopPlayback()
		a.mu.Unlock()
		a.state.SetPlayback(false, false)
		a.eventBus.Publish(core.Event{Type: core.PlaybackChangedEvent, Payload: map[string]interface{}{"playing": false}})

	case core.CmdStartEffect:
		a.mu.Lock()
		sh := a.currentShow
		a.mu.Unlock()
		if sh == nil {
			log.Println("[Agent] startEffect requires a loaded show.")
			return
		}
		raw, err := json.Marshal(cmd.Payload)
		if err != nil {
			log.Printf("[Agent] startEffect payload: %v", err)
			return
		}
		in, err := sh.BuildInstance(raw)
		if err != nil {
			log.Printf("[Agent] startEffect: %v", err)
			return
		}
		if err := a.StartEffect(in); err != nil {
			log.Printf("[Agent] startEffect: %v", err)
		}

	case core.CmdStopEffect:
		if id, ok := cmd.Payload["id"].(string); ok && id != "" {
			a.StopEffect(id)
		}

	case core.CmdStopAllEffects:
		a.StopAllEffects()

	case core.CmdReleaseLayer:
		layer, ok := layerFromPayload(cmd.Payload)
		if !ok {
			return
		}
		a.mu.Lock()
		if fade, ok := cmd.Payload["fade_ms"].(float64); ok {
			a.engine.ReleaseLayerWithTime(layer, time.Duration(fade)*time.Millisecond)
		} else {
			a.engine.ReleaseLayer(layer)
		}
		a.mu.Unlock()

	case core.CmdClearLayer:
		if layer, ok := layerFromPayload(cmd.Payload); ok {
			a.mu.Lock()
			a.engine.ClearLayer(layer)
			a.mu.Unlock()
		}

	case core.CmdFreezeLayer:
		if layer, ok := layerFromPayload(cmd.Payload); ok {
			a.mu.Lock()
			a.engine.FreezeLayer(layer)
			a.mu.Unlock()
		}

	case core.CmdUnfreezeLayer:
		if layer, ok := layerFromPayload(cmd.Payload); ok {
			a.mu.Lock()
			a.engine.UnfreezeLayer(layer)
			a.mu.Unlock()
		}

	case core.CmdSetLayerIntensity:
		if layer, ok := layerFromPayload(cmd.Payload); ok {
			if v, ok := cmd.Payload["value"].(float64); ok {
				a.SetLayerIntensity(layer, v)
			}
		}

	case core.CmdSetLayerSpeed:
		if layer, ok := layerFromPayload(cmd.Payload); ok {
			if v, ok := cmd.Payload["value"].(float64); ok {
				a.mu.Lock()
				a.engine.SetLayerSpeedMaster(layer, v)
				a.mu.Unlock()
			}
		}

	case core.CmdRunScript:
		if name, ok := cmd.Payload["name"].(string); ok {
			a.luaEngine.RunScript(name)
		}

	case core.CmdStopScript:
		a.luaEngine.StopCurrentScript()

	case core.CmdGetScriptCode:
		if name, ok := cmd.Payload["name"].(string); ok {
			if content, err := a.luaEngine.GetScriptCode(name); err == nil {
				a.server.Hub.Broadcast(server.NewMessage("script_code", map[string]string{"name": name, "code": content}))
			} else {
				log.Printf("Error getting script code: %v", err)
			}
		}

	case core.CmdSaveScriptCode:
		name, nameOk := cmd.Payload["name"].(string)
		code, codeOk := cmd.Payload["code"].(string)
		if nameOk && codeOk {
			if err := a.luaEngine.SaveScriptCode(name, code); err != nil {
				log.Printf("Error saving script: %v", err)
			} else {
				scripts, _ := a.luaEngine.GetScriptList()
				a.server.Hub.Broadcast(server.NewMessage("script_list", scripts))
			}
		}

	case core.CmdDeleteScript:
		if name, ok := cmd.Payload["name"].(string); ok {
			if err := a.luaEngine.DeleteScript(name); err != nil {
				log.Printf("Error deleting script '%s': %v", name, err)
			} else {
				scripts, _ := a.luaEngine.GetScriptList()
				a.server.Hub.Broadcast(server.NewMessage("script_list", scripts))
			}
		}

	case core.CmdAddSchedule:
		spec, _ := cmd.Payload["spec"].(string)
		command, _ := cmd.Payload["command"].(string)
		if spec != "" && command != "" {
			a.scheduler.Add(spec, command)
			a.server.Hub.Broadcast(server.NewMessage("schedule_list", a.scheduler.GetAll()))
		}

	case core.CmdRemoveSchedule:
		if idStr, ok := cmd.Payload["id"].(string); ok {
			if id, err := strconv.Atoi(idStr); err == nil {
				a.scheduler.Remove(id)
				a.server.Hub.Broadcast(server.NewMessage("schedule_list", a.scheduler.GetAll()))
			}
		}

	default:
		log.Printf("Unknown command type: %s", cmd.Type)
	}
}

// Handle translates an incoming WebSocket message to a core command.
func (a *Agent) Handle(msg server.Message, hub *server.Hub) {
	var c server.Command
	if err := json.Unmarshal(msg.Raw, &c); err != nil {
		log.Printf("[Agent] Bad WebSocket command: %v", err)
		return
	}
	if c.Payload == nil {
		c.Payload = map[string]interface{}{}
	}
	select {
	case a.commandChannel <- core.Command{Type: core.CommandType(c.Type), Payload: c.Payload}:
	default:
		log.Printf("[Agent] Command channel full, dropping %s", c.Type)
	}
}

// listenEvents keeps the shared state in sync and pushes status updates
// out to WebSocket and MQTT clients.
func (a *Agent) listenEvents() {
	sub := a.eventBus.Subscribe(core.ShowLoadedEvent, core.PlaybackChangedEvent, core.ScriptChangedEvent)

	for {
		select {
		case <-a.ctx.Done():
			return
		case event := <-sub:
			if event.Type == core.ScriptChangedEvent {
				if payload, ok := event.Payload.(map[string]interface{}); ok {
					if running, ok := payload["running"].(string); ok {
						a.state.SetRunningScript(running)
					}
				}
			}
			a.broadcastStatus()
		}
	}
}

// statusLoop samples the playback position a few times per second, which
// is plenty for UI progress bars without spamming every frame.
func (a *Agent) statusLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			playing := a.playing
			var pos time.Duration
			var bpm float64
			if a.currentShow != nil {
				pos = a.position()
				bpm = a.currentShow.Tempo.BPMAt(pos, 0)
			}
			count := a.engine.ActiveEffectCount()
			a.mu.Unlock()

			a.state.SetPosition(pos, bpm)
			a.state.SetActiveEffects(count)
			if playing {
				a.broadcastStatus()
			}
		}
	}
}

func (a *Agent) broadcastStatus() {
	st := a.state.Clone()
	a.server.Hub.Broadcast(server.NewMessage("status", server.StatusPayload(st)))
	if a.mqttClient != nil {
		a.mqttClient.PublishStatus(st)
	}
}

// onBLEStatus forwards connection changes to the active mirror.
func (a *Agent) onBLEStatus(connected bool, rssi int16) {
	a.mu.Lock()
	mirror := a.bleMirror
	a.mu.Unlock()
	if mirror != nil {
		mirror.OnStatusChange(connected, rssi)
	}
}

// listShows lists the YAML files in the shows directory for the UI.
func (a *Agent) listShows() []string {
	entries, err := os.ReadDir(a.config.ShowsDir)
	if err != nil {
		return nil
	}
	var shows []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			shows = append(shows, e.Name())
		}
	}
	sort.Strings(shows)
	return shows
}

func layerFromPayload(payload map[string]interface{}) (effects.Layer, bool) {
	name, _ := payload["layer"].(string)
	switch strings.ToLower(name) {
	case "background", "bg":
		return effects.Background, true
	case "midground", "mid":
		return effects.Midground, true
	case "foreground", "fg":
		return effects.Foreground, true
	}
	log.Printf("[Agent] Unknown layer %q", name)
	return effects.Background, false
}
