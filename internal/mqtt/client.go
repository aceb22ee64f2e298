// Package mqtt bridges the agent to an MQTT broker: it publishes the
// playback status and accepts transport commands, so shows can be driven
// from home automation or a lighting desk that speaks MQTT.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"lightshow-agent/internal/config"
	"lightshow-agent/internal/core"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Client struct {
	client         mqtt.Client
	cfg            *config.Config
	commandChannel core.CommandChannel
	prefix         string
}

// NewClient builds a client with retrying connect and a broker-side
// offline will. Returns nil when MQTT is disabled.
func NewClient(cfg *config.Config, cmdChan core.CommandChannel) *Client {
	if !cfg.MQTT.Enabled {
		return nil
	}

	prefix := strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)

	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	// Keep retrying the first connect too, so the agent survives the
	// broker coming up after it.
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetOrderMatters(false)

	// The broker announces us offline if the connection drops.
	opts.SetWill(prefix+"/availability", "offline", 1, true)

	c := &Client{
		cfg:            cfg,
		commandChannel: cmdChan,
		prefix:         prefix,
	}

	opts.SetOnConnectHandler(c.onConnect)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("[MQTT] Connection lost: %v. Retrying in background...", err)
	})

	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		log.Println("[MQTT] Attempting to reconnect...")
	})

	c.client = mqtt.NewClient(opts)

	return c
}

// Connect initiates the connection.
func (c *Client) Connect() error {
	if c.client == nil {
		return nil
	}
	log.Printf("[MQTT] Starting connection loop to %s...", c.cfg.MQTT.Broker)

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		log.Printf("[MQTT] Initial connection error: %v", token.Error())
		return token.Error()
	}

	return nil
}

// Disconnect publishes the offline status first, then closes the socket.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting...")

		token := c.client.Publish(c.prefix+"/availability", 0, true, "offline")
		if token.WaitTimeout(2 * time.Second) {
			if token.Error() != nil {
				log.Printf("[MQTT] Warning: failed to publish offline status: %v", token.Error())
			}
		} else {
			log.Println("[MQTT] Warning: timed out publishing offline status")
		}

		c.client.Disconnect(250)
		log.Println("[MQTT] Disconnected.")
	}
}

// Publish sends a payload under the configured prefix without blocking
// the caller.
func (c *Client) Publish(subtopic string, payload interface{}, retained bool) {
	if c.client == nil || !c.client.IsConnected() {
		return
	}

	topic := fmt.Sprintf("%s/%s", c.prefix, subtopic)
	msg := fmt.Sprintf("%v", payload)

	token := c.client.Publish(topic, 0, retained, msg)

	go func() {
		if token.WaitTimeout(5 * time.Second) {
			if token.Error() != nil {
				log.Printf("[MQTT] Publish error to %s: %v", topic, token.Error())
			}
		} else {
			log.Printf("[MQTT] Timeout publishing to %s", topic)
		}
	}()
}

// PublishStatus publishes the agent status as retained JSON.
func (c *Client) PublishStatus(st core.State) {
	payload := map[string]interface{}{
		"show":           st.ShowName,
		"audio":          st.AudioFile,
		"playing":        st.Playing,
		"paused":         st.Paused,
		"position_ms":    st.Position.Milliseconds(),
		"bpm":            st.BPM,
		"active_effects": st.ActiveEffects,
		"running_script": st.RunningScript,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.Publish("status", string(data), true)
}

// onConnect runs inside Paho's event goroutine.
func (c *Client) onConnect(client mqtt.Client) {
	log.Println("[MQTT] Connected to broker.")

	topics := map[string]mqtt.MessageHandler{
		"playback/set":     c.handlePlayback,
		"show/load":        c.handleShowLoad,
		"script/run":       c.handleScriptRun,
		"script/stop":      c.handleScriptStop,
		"effects/stop_all": c.handleStopAll,
	}

	for sub, handler := range topics {
		topic := fmt.Sprintf("%s/%s", c.prefix, sub)
		if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
		} else {
			log.Printf("[MQTT] Subscribed to %s", topic)
		}
	}

	go c.Publish("availability", "online", true)
}

func (c *Client) send(cmd core.Command) {
	select {
	case c.commandChannel <- cmd:
	default:
		log.Printf("[MQTT] Command channel full, dropping %s", cmd.Type)
	}
}

func (c *Client) handlePlayback(client mqtt.Client, msg mqtt.Message) {
	switch strings.ToLower(strings.TrimSpace(string(msg.Payload()))) {
	case "play", "start":
		c.send(core.Command{Type: core.CmdPlay, Payload: map[string]interface{}{}})
	case "pause":
		c.send(core.Command{Type: core.CmdPause, Payload: map[string]interface{}{}})
	case "resume":
		c.send(core.Command{Type: core.CmdResume, Payload: map[string]interface{}{}})
	case "stop":
		c.send(core.Command{Type: core.CmdStop, Payload: map[string]interface{}{}})
	case "blackout":
		c.send(core.Command{Type: core.CmdBlackout, Payload: map[string]interface{}{}})
	default:
		log.Printf("[MQTT] Unknown playback command %q", msg.Payload())
	}
}

func (c *Client) handleShowLoad(client mqtt.Client, msg mqtt.Message) {
	file := strings.TrimSpace(string(msg.Payload()))
	if file == "" {
		return
	}
	c.send(core.Command{Type: core.CmdLoadShow, Payload: map[string]interface{}{"file": file}})
}

func (c *Client) handleScriptRun(client mqtt.Client, msg mqtt.Message) {
	name := strings.TrimSpace(string(msg.Payload()))
	if name == "" {
		return
	}
	c.send(core.Command{Type: core.CmdRunScript, Payload: map[string]interface{}{"name": name}})
}

func (c *Client) handleScriptStop(client mqtt.Client, msg mqtt.Message) {
	c.send(core.Command{Type: core.CmdStopScript, Payload: map[string]interface{}{}})
}

func (c *Client) handleStopAll(client mqtt.Client, msg mqtt.Message) {
	c.send(core.Command{Type: core.CmdStopAllEffects, Payload: map[string]interface{}{}})
}
