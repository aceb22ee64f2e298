package core

// CommandType defines the type of command being dispatched.
type CommandType string

const (
	CmdLoadShow CommandType = "loadShow"
	CmdPlay     CommandType = "play"
	CmdPause    CommandType = "pause"
	CmdResume   CommandType = "resume"
	CmdStop     CommandType = "stop"
	CmdBlackout CommandType = "blackout"

	CmdStartEffect    CommandType = "startEffect"
	CmdStopEffect     CommandType = "stopEffect"
	CmdStopAllEffects CommandType = "stopAllEffects"

	CmdReleaseLayer      CommandType = "releaseLayer"
	CmdClearLayer        CommandType = "clearLayer"
	CmdFreezeLayer       CommandType = "freezeLayer"
	CmdUnfreezeLayer     CommandType = "unfreezeLayer"
	CmdSetLayerIntensity CommandType = "setLayerIntensity"
	CmdSetLayerSpeed     CommandType = "setLayerSpeed"

	CmdRunScript      CommandType = "runScript"
	CmdStopScript     CommandType = "stopScript"
	CmdGetScriptCode  CommandType = "getScriptCode"
	CmdSaveScriptCode CommandType = "saveScriptCode"
	CmdDeleteScript   CommandType = "deleteScript"
	CmdAddSchedule    CommandType = "addSchedule"
	CmdRemoveSchedule CommandType = "removeSchedule"
)

// Command is the envelope for incoming requests to change state or perform actions.
type Command struct {
	Type    CommandType
	Payload map[string]interface{}
}

// CommandChannel is the single channel that the core Agent listens to for commands.
type CommandChannel chan Command
