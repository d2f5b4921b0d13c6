//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zigbee-descriptors/internal/binder"
	"zigbee-descriptors/internal/store"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
}

// bridgeEvent is a zigbee2mqtt-style message on <prefix>/bridge/event.
type bridgeEvent struct {
	Type string `json:"type"`
	Data struct {
		IEEEAddress string `json:"ieee_address"`
		Status      string `json:"status"`
		Model       string `json:"model"`
		ModelID     string `json:"model_id"`
		Definition  *struct {
			Model string `json:"model"`
		} `json:"definition"`
	} `json:"data"`
}

// zigbeeModel returns the model reported by the device, if the event
// carries one.
func (e *bridgeEvent) zigbeeModel() string {
	switch {
	case e.Data.ModelID != "":
		return e.Data.ModelID
	case e.Data.Model != "":
		return e.Data.Model
	case e.Data.Definition != nil:
		return e.Data.Definition.Model
	}
	return ""
}

// Bridge binds devices announced on MQTT and publishes HA discovery for
// their resolved properties.
type Bridge struct {
	client pahomqtt.Client
	binder *binder.Binder
	prefix string
	logger *slog.Logger
	unsub  func()

	// pub sends one message; replaced in tests.
	pub func(topic string, payload []byte, retained bool)
}

func newBridge(b *binder.Binder, prefix string, logger *slog.Logger) *Bridge {
	br := &Bridge{
		binder: b,
		prefix: prefix,
		logger: logger.With("component", "mqtt"),
	}
	br.pub = br.publish
	return br
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(b *binder.Binder, cfg Config, logger *slog.Logger) (*Bridge, error) {
	br := newBridge(b, cfg.TopicPrefix, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "zigbee-descriptors"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			br.logger.Info("MQTT connected")
			br.publishBridgeState("online")
			br.publishAllDiscovery()
			br.subscribeEvents()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			br.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// The client must be set before Connect: the connect handler publishes.
	br.client = pahomqtt.NewClient(opts)
	token := br.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return br, nil
}

// Start subscribes to binder events.
func (br *Bridge) Start() {
	br.unsub = br.binder.Events().OnAll(br.handleEvent)
	br.logger.Info("MQTT bridge started", "prefix", br.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (br *Bridge) Stop() {
	if br.unsub != nil {
		br.unsub()
	}
	br.publishBridgeState("offline")
	if br.client != nil {
		br.client.Disconnect(1000)
	}
	br.logger.Info("MQTT bridge stopped")
}

func (br *Bridge) handleEvent(event binder.Event) {
	switch event.Type {
	case binder.EventDeviceBound:
		if sess, ok := event.Data.(*store.Session); ok {
			br.publishDiscovery(sess)
		}
	case binder.EventDeviceUnbound:
		if sess, ok := event.Data.(*store.Session); ok {
			br.removeDiscovery(sess)
		}
	}
}

func (br *Bridge) subscribeEvents() {
	topic := br.prefix + "/bridge/event"
	br.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		br.handleBridgeEvent(msg.Payload())
	})
}

// handleBridgeEvent binds joined devices and unbinds devices that left.
// A join without a model is ignored; the interview that follows carries it.
func (br *Bridge) handleBridgeEvent(payload []byte) {
	var ev bridgeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		br.logger.Warn("invalid bridge event", "err", err)
		return
	}
	ieee := ev.Data.IEEEAddress
	if ieee == "" {
		return
	}

	switch ev.Type {
	case "device_joined", "device_interview":
		if ev.Type == "device_interview" && ev.Data.Status != "successful" {
			return
		}
		model := ev.zigbeeModel()
		if model == "" {
			br.logger.Debug("join without model", "ieee", ieee, "event", ev.Type)
			return
		}
		// Failures are logged and reported by the binder.
		br.binder.Join(ieee, model)
	case "device_leave":
		if err := br.binder.Leave(ieee); err != nil && !errors.Is(err, store.ErrNotFound) {
			br.logger.Warn("unbind failed", "ieee", ieee, "err", err)
		}
	}
}

func (br *Bridge) publishBridgeState(state string) {
	br.pub(br.prefix+"/bridge/state", []byte(state), true)
}

func (br *Bridge) publishAllDiscovery() {
	sessions, err := br.binder.Sessions()
	if err != nil {
		br.logger.Error("list sessions for discovery", "err", err)
		return
	}
	for _, sess := range sessions {
		br.publishDiscovery(sess)
	}
}

func (br *Bridge) publishDiscovery(sess *store.Session) {
	for _, msg := range buildDiscovery(sess, br.prefix) {
		br.pub(msg.Topic, msg.Payload, true)
	}
	br.logger.Info("published HA discovery", "ieee", sess.IEEEAddress, "name", deviceDisplayName(sess))
}

func (br *Bridge) removeDiscovery(sess *store.Session) {
	for _, msg := range buildRemoveDiscovery(sess) {
		br.pub(msg.Topic, msg.Payload, true)
	}
	br.logger.Info("removed HA discovery", "ieee", sess.IEEEAddress)
}

func (br *Bridge) publish(topic string, payload []byte, retained bool) {
	token := br.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			br.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			br.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
