package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"hue-controller/internal/config"
	"hue-controller/internal/core"
	"hue-controller/internal/log"
)

// Client bridges MQTT topics to agent intents and publishes state back.
type Client struct {
	client      mqtt.Client
	cfg         *config.Config
	intents     core.CommandChannel
	eventBus    *core.EventBus
	getPatterns func() ([]string, error)
	prefix      string
	quit        chan struct{}
}

var stateEvents = []core.EventType{
	core.PowerChangedEvent,
	core.BrightnessChangedEvent,
	core.ColorChangedEvent,
	core.PatternChangedEvent,
}

// NewClient builds the client, or returns nil when MQTT is disabled.
func NewClient(cfg *config.Config, intents core.CommandChannel, eb *core.EventBus, getPatterns func() ([]string, error)) *Client {
	if !cfg.MQTT.Enabled {
		return nil
	}
	logger := log.WithComponent("mqtt")

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
	// Keep retrying the first connection so a broker that starts later is picked up.
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetWill(prefix+"/availability", "offline", 1, true)

	c := &Client{
		cfg:         cfg,
		intents:     intents,
		eventBus:    eb,
		getPatterns: getPatterns,
		prefix:      prefix,
		quit:        make(chan struct{}),
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warnf("Connection lost: %v. Retrying in background...", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		logger.Info("Attempting to reconnect...")
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect starts the connection loop and the state publisher.
func (c *Client) Connect() error {
	if c == nil || c.client == nil {
		return nil
	}
	log.WithComponent("mqtt").Infof("Starting connection loop to %s...", c.cfg.MQTT.Broker)

	if c.eventBus != nil {
		go c.publishState(c.eventBus.Subscribe(stateEvents...))
	}

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

// Disconnect publishes offline availability and closes the connection.
func (c *Client) Disconnect() {
	if c == nil {
		return
	}
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
	if c.client == nil || !c.client.IsConnected() {
		return
	}
	logger := log.WithComponent("mqtt")
	logger.Info("Disconnecting...")

	token := c.client.Publish(c.prefix+"/availability", 0, true, "offline")
	if token.WaitTimeout(2 * time.Second) {
		if token.Error() != nil {
			logger.Warnf("Failed to publish offline status: %v", token.Error())
		}
	} else {
		logger.Warn("Timed out publishing offline status")
	}

	c.client.Disconnect(250)
	logger.Info("Disconnected.")
}

// Publish sends payload to <prefix>/<subtopic> without blocking the caller.
func (c *Client) Publish(subtopic string, payload interface{}, retained bool) {
	if c.client == nil || !c.client.IsConnected() {
		return
	}

	topic := fmt.Sprintf("%s/%s", c.prefix, subtopic)
	token := c.client.Publish(topic, 0, retained, fmt.Sprintf("%v", payload))

	go func() {
		logger := log.WithComponent("mqtt")
		if token.WaitTimeout(5 * time.Second) {
			if token.Error() != nil {
				logger.Warnf("Publish error to %s: %v", topic, token.Error())
			}
		} else {
			logger.Warnf("Timeout publishing to %s", topic)
		}
	}()
}

func (c *Client) publishState(sub core.Subscriber) {
	defer c.eventBus.Unsubscribe(sub, stateEvents...)
	for {
		select {
		case <-c.quit:
			return
		case ev := <-sub:
			if subtopic, payload, ok := stateMessage(ev); ok {
				c.Publish(subtopic, payload, true)
			}
		}
	}
}

// stateMessage renders a bus event as a retained state topic update.
func stateMessage(ev core.Event) (string, string, bool) {
	p, ok := ev.Payload.(map[string]interface{})
	if !ok {
		return "", "", false
	}
	switch ev.Type {
	case core.PowerChangedEvent:
		if on, ok := p["isOn"].(bool); ok {
			if on {
				return "power/state", "ON", true
			}
			return "power/state", "OFF", true
		}
	case core.BrightnessChangedEvent:
		if v, ok := p["value"]; ok {
			return "brightness/state", fmt.Sprintf("%v", v), true
		}
	case core.ColorChangedEvent:
		r, rok := p["r"]
		g, gok := p["g"]
		b, bok := p["b"]
		if rok && gok && bok {
			return "color/state", fmt.Sprintf("%v,%v,%v", r, g, b), true
		}
	case core.PatternChangedEvent:
		if name, ok := p["running"].(string); ok {
			return "pattern/state", name, true
		}
	}
	return "", "", false
}

func (c *Client) onConnect(client mqtt.Client) {
	logger := log.WithComponent("mqtt")
	logger.Info("Connected to broker.")

	topics := map[string]mqtt.MessageHandler{
		"power/set":      c.handlePower,
		"brightness/set": c.handleBrightness,
		"color/set":      c.handleColor,
		"pattern/run":    c.handlePatternRun,
		"pattern/stop":   c.handlePatternStop,
	}

	for sub, handler := range topics {
		topic := fmt.Sprintf("%s/%s", c.prefix, sub)
		if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			logger.Warnf("Error subscribing to %s: %v", topic, token.Error())
		} else {
			logger.Debugf("Subscribed to %s", topic)
		}
	}

	// PublishHADiscovery sleeps, keep it off the paho callback goroutine.
	go func() {
		c.Publish("availability", "online", true)
		if c.cfg.MQTT.HADiscoveryEnabled {
			c.PublishHADiscovery()
		}
	}()
}

// PublishHADiscovery announces the light to Home Assistant.
func (c *Client) PublishHADiscovery() {
	time.Sleep(1 * time.Second)

	topic, payload := c.discoveryConfig()
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithComponent("mqtt").Errorf("Marshal HA discovery: %v", err)
		return
	}
	c.client.Publish(topic, 0, true, data)
	log.WithComponent("mqtt").Infof("HA Discovery sent to %s", topic)
}

func (c *Client) discoveryConfig() (string, map[string]interface{}) {
	patterns := []string{}
	if c.getPatterns != nil {
		if list, err := c.getPatterns(); err == nil {
			patterns = list
		} else {
			log.WithComponent("mqtt").Warnf("Could not get patterns for HA discovery: %v", err)
		}
	}

	safeID := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		if r == ' ' {
			return '_'
		}
		return -1
	}, c.cfg.MQTT.ClientID)

	topic := fmt.Sprintf("%s/light/%s/light/config", c.cfg.MQTT.HADiscoveryPrefix, safeID)
	return topic, map[string]interface{}{
		"name":      "Light",
		"unique_id": safeID + "_light",
		"object_id": safeID,
		"icon":      "mdi:lightbulb",

		"command_topic": c.prefix + "/power/set",
		"state_topic":   c.prefix + "/power/state",
		"payload_on":    "ON",
		"payload_off":   "OFF",

		"brightness_command_topic": c.prefix + "/brightness/set",
		"brightness_state_topic":   c.prefix + "/brightness/state",
		"brightness_scale":         255,

		"rgb_command_topic": c.prefix + "/color/set",
		"rgb_state_topic":   c.prefix + "/color/state",

		"effect_command_topic": c.prefix + "/pattern/run",
		"effect_state_topic":   c.prefix + "/pattern/state",
		"effect_list":          patterns,

		"availability_topic":    c.prefix + "/availability",
		"payload_available":     "online",
		"payload_not_available": "offline",

		"device": map[string]interface{}{
			"identifiers":  []string{safeID},
			"name":         "Hue Controller",
			"manufacturer": "Signify",
			"model":        "Hue bridge light",
		},
	}
}

func (c *Client) push(cmd core.Command) {
	select {
	case c.intents <- cmd:
	case <-c.quit:
	}
}

func parsePower(payload string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "on", "true", "1":
		return true, true
	case "off", "false", "0":
		return false, true
	}
	return false, false
}

func parseColor(payload string) (core.RGB, error) {
	payload = strings.TrimSpace(payload)
	if strings.Contains(payload, ",") {
		return core.ParseRGBList(payload)
	}
	return core.ParseHex(payload)
}

func (c *Client) handlePower(_ mqtt.Client, msg mqtt.Message) {
	isOn, ok := parsePower(string(msg.Payload()))
	if !ok {
		log.WithComponent("mqtt").Warnf("Ignoring power payload %q", msg.Payload())
		return
	}
	c.push(core.PowerIntent(isOn))
}

func (c *Client) handleBrightness(_ mqtt.Client, msg mqtt.Message) {
	val, err := strconv.ParseUint(strings.TrimSpace(string(msg.Payload())), 10, 8)
	if err != nil {
		log.WithComponent("mqtt").Warnf("Ignoring brightness payload %q: %v", msg.Payload(), err)
		return
	}
	c.push(core.BrightnessIntent(int(val)))
}

func (c *Client) handleColor(_ mqtt.Client, msg mqtt.Message) {
	rgb, err := parseColor(string(msg.Payload()))
	if err != nil {
		log.WithComponent("mqtt").Warnf("Ignoring color payload %q: %v", msg.Payload(), err)
		return
	}
	c.push(core.ColorIntent(rgb))
}

func (c *Client) handlePatternRun(_ mqtt.Client, msg mqtt.Message) {
	c.push(core.Command{Type: core.CmdRunPattern, Payload: map[string]interface{}{"name": string(msg.Payload())}})
}

func (c *Client) handlePatternStop(_ mqtt.Client, _ mqtt.Message) {
	c.push(core.Command{Type: core.CmdStopPattern})
}
