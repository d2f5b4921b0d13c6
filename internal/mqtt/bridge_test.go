//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"zigbee-descriptors/internal/binder"
	"zigbee-descriptors/internal/descriptor"
	"zigbee-descriptors/internal/devicedb"
	"zigbee-descriptors/internal/store"
	"zigbee-descriptors/internal/zcl"
	"zigbee-descriptors/internal/zcl/clusters"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// recorder captures messages instead of sending them to a broker.
type recorder struct {
	mu   sync.Mutex
	msgs []published
}

func (r *recorder) publish(topic string, payload []byte, retained bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, published{topic, payload, retained})
}

func (r *recorder) topics() map[string][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := make(map[string][]byte, len(r.msgs))
	for _, msg := range r.msgs {
		m[msg.topic] = msg.payload
	}
	return m
}

func newTestBridge(t *testing.T) (*Bridge, *binder.Binder, *recorder) {
	t.Helper()
	logger := testLogger()
	registry := zcl.NewRegistry(logger)
	clusters.RegisterStandard(registry)
	db, err := devicedb.LoadBuiltin(registry, logger)
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	b := binder.New(db, st, binder.NewEventBus(logger), nil, logger)
	rec := &recorder{}
	br := newBridge(b, "zigbee2mqtt", logger)
	br.pub = rec.publish
	br.Start()
	t.Cleanup(func() { br.unsub() })
	return br, b, rec
}

func floatPtr(v float64) *float64 { return &v }

func testSession() *store.Session {
	precision := 1
	return &store.Session{
		IEEEAddress: "00158D00012A3B4C",
		Model:       "aeris-z",
		Vendor:      "ESPRESSIF",
		Properties: []descriptor.ResolvedProperty{
			{Name: "temperature", Property: "temperature", ClusterName: "msTemperatureMeasurement",
				AttributeName: "measuredValue", Access: descriptor.AccessStateReport, Unit: "°C", Precision: &precision},
			{Name: "PM2.5 µg/m3", Property: "PM2.5 µg/m3_4", ClusterName: "genAnalogInput",
				AttributeName: "presentValue", Access: descriptor.AccessStateReport},
			{Name: "state", Property: "state_9", ClusterName: "genOnOff", AttributeName: "onOff",
				Access: descriptor.AccessReadWrite, Values: []string{"OFF", "ON"}},
			{Name: "power_on_behavior", Property: "power_on_behavior_9", ClusterName: "genOnOff",
				AttributeName: "startUpOnOff", Access: descriptor.AccessReadWrite,
				Values: []string{"off", "on", "toggle", "previous"}},
			{Name: "LED Threshold", Property: "LED Threshold_9", ClusterName: "genAnalogOutput",
				AttributeName: "presentValue", Access: descriptor.AccessReadWrite,
				ValueMin: floatPtr(0), ValueMax: floatPtr(65535), ValueStep: floatPtr(1)},
		},
	}
}

func decode(t *testing.T, payload []byte) haDiscovery {
	t.Helper()
	var d haDiscovery
	if err := json.Unmarshal(payload, &d); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return d
}

func TestDiscoveryComponents(t *testing.T) {
	msgs := buildDiscovery(testSession(), "zigbee2mqtt")
	want := []string{
		"homeassistant/sensor/zigbee_00158D00012A3B4C/temperature/config",
		"homeassistant/sensor/zigbee_00158D00012A3B4C/pm2_5__g_m3_4/config",
		"homeassistant/switch/zigbee_00158D00012A3B4C/state_9/config",
		"homeassistant/select/zigbee_00158D00012A3B4C/power_on_behavior_9/config",
		"homeassistant/number/zigbee_00158D00012A3B4C/led_threshold_9/config",
	}
	if len(msgs) != len(want) {
		t.Fatalf("messages = %d, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		if msgs[i].Topic != w {
			t.Errorf("msgs[%d].Topic = %q, want %q", i, msgs[i].Topic, w)
		}
	}
}

func TestDiscoverySensorPayload(t *testing.T) {
	msgs := buildDiscovery(testSession(), "zigbee2mqtt")
	d := decode(t, msgs[0].Payload)

	if d.Name != "ESPRESSIF aeris-z temperature" {
		t.Errorf("name = %q", d.Name)
	}
	if d.UniqueID != "zigbee_00158D00012A3B4C_temperature" {
		t.Errorf("unique_id = %q", d.UniqueID)
	}
	if d.DeviceClass != "temperature" || d.StateClass != "measurement" {
		t.Errorf("class = %q/%q", d.DeviceClass, d.StateClass)
	}
	if d.UnitOfMeasurement != "°C" {
		t.Errorf("unit = %q", d.UnitOfMeasurement)
	}
	if d.Precision == nil || *d.Precision != 1 {
		t.Errorf("precision = %v", d.Precision)
	}
	if d.StateTopic != "zigbee2mqtt/00158D00012A3B4C" {
		t.Errorf("state_topic = %q", d.StateTopic)
	}
	if d.AvailabilityTopic != "zigbee2mqtt/bridge/state" {
		t.Errorf("availability_topic = %q", d.AvailabilityTopic)
	}
	if d.CommandTopic != "" {
		t.Errorf("sensor has command_topic %q", d.CommandTopic)
	}
	if d.ValueTemplate != "{{ value_json['temperature'] }}" {
		t.Errorf("value_template = %q", d.ValueTemplate)
	}
	if d.Device.Manufacturer != "ESPRESSIF" || d.Device.Model != "aeris-z" {
		t.Errorf("device = %+v", d.Device)
	}

	analog := decode(t, msgs[1].Payload)
	if analog.DeviceClass != "" {
		t.Errorf("analog input device_class = %q, want none", analog.DeviceClass)
	}
	if analog.ValueTemplate != "{{ value_json['PM2.5 µg/m3_4'] }}" {
		t.Errorf("value_template = %q", analog.ValueTemplate)
	}
}

func TestDiscoveryWritablePayloads(t *testing.T) {
	msgs := buildDiscovery(testSession(), "zigbee2mqtt")

	sw := decode(t, msgs[2].Payload)
	if sw.CommandTopic != "zigbee2mqtt/00158D00012A3B4C/set/state_9" {
		t.Errorf("switch command_topic = %q", sw.CommandTopic)
	}
	if sw.PayloadOn != "ON" || sw.PayloadOff != "OFF" {
		t.Errorf("switch payloads = %q/%q", sw.PayloadOn, sw.PayloadOff)
	}

	sel := decode(t, msgs[3].Payload)
	if strings.Join(sel.Options, ",") != "off,on,toggle,previous" {
		t.Errorf("select options = %v", sel.Options)
	}

	num := decode(t, msgs[4].Payload)
	if num.Min == nil || *num.Min != 0 || num.Max == nil || *num.Max != 65535 || num.Step == nil || *num.Step != 1 {
		t.Errorf("number range = %v..%v step %v", num.Min, num.Max, num.Step)
	}
	if num.CommandTopic != "zigbee2mqtt/00158D00012A3B4C/set/led_threshold_9" {
		t.Errorf("number command_topic = %q", num.CommandTopic)
	}
}

func TestDiscoveryEmptySession(t *testing.T) {
	if msgs := buildDiscovery(&store.Session{IEEEAddress: "00158D00012A3B4C"}, "z2m"); len(msgs) != 0 {
		t.Errorf("messages = %d, want 0", len(msgs))
	}
}

func TestRemoveDiscovery(t *testing.T) {
	sess := testSession()
	add := buildDiscovery(sess, "zigbee2mqtt")
	remove := buildRemoveDiscovery(sess)
	if len(remove) != len(add) {
		t.Fatalf("remove messages = %d, want %d", len(remove), len(add))
	}
	for i := range remove {
		if remove[i].Topic != add[i].Topic {
			t.Errorf("remove topic %q, want %q", remove[i].Topic, add[i].Topic)
		}
		if len(remove[i].Payload) != 0 {
			t.Errorf("remove payload for %s is not empty", remove[i].Topic)
		}
	}
}

func TestDiscoveryObjectIDCollision(t *testing.T) {
	sess := &store.Session{
		IEEEAddress: "00158D00012A3B4C",
		Properties: []descriptor.ResolvedProperty{
			{Name: "led.mask", Property: "led.mask_6", Access: descriptor.AccessStateReport},
			{Name: "led_mask", Property: "led_mask_6", Access: descriptor.AccessStateReport},
		},
	}
	add := buildDiscovery(sess, "zigbee2mqtt")
	if len(add) != 2 {
		t.Fatalf("messages = %d, want 2", len(add))
	}
	if add[0].Topic != "homeassistant/sensor/zigbee_00158D00012A3B4C/led_mask_6/config" {
		t.Errorf("first topic = %q", add[0].Topic)
	}
	if add[0].Topic == add[1].Topic {
		t.Fatalf("both properties published to %q", add[0].Topic)
	}
	if decode(t, add[0].Payload).UniqueID == decode(t, add[1].Payload).UniqueID {
		t.Error("unique ids collide")
	}

	remove := buildRemoveDiscovery(sess)
	for i := range remove {
		if remove[i].Topic != add[i].Topic {
			t.Errorf("remove topic %q, want %q", remove[i].Topic, add[i].Topic)
		}
	}
}

func TestDiscoveryReadOnlySwitchIsSensor(t *testing.T) {
	sess := &store.Session{
		IEEEAddress: "00158D00012A3B4C",
		Properties: []descriptor.ResolvedProperty{
			{Name: "state", Property: "state_1", ClusterName: "genOnOff", AttributeName: "onOff",
				Access: descriptor.AccessStateReport, Values: []string{"OFF", "ON"}},
		},
	}
	msgs := buildDiscovery(sess, "zigbee2mqtt")
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0].Topic, "homeassistant/sensor/") {
		t.Fatalf("messages = %+v", msgs)
	}
	if cfg := decode(t, msgs[0].Payload); cfg.CommandTopic != "" {
		t.Errorf("command topic = %q, want none", cfg.CommandTopic)
	}
}

func TestDeviceDisplayName(t *testing.T) {
	tests := []struct {
		sess *store.Session
		want string
	}{
		{&store.Session{IEEEAddress: "AA", Model: "m", Vendor: "v"}, "v m"},
		{&store.Session{IEEEAddress: "AA", Model: "m"}, "m"},
		{&store.Session{IEEEAddress: "AA"}, "AA"},
	}
	for _, tt := range tests {
		if got := deviceDisplayName(tt.sess); got != tt.want {
			t.Errorf("deviceDisplayName(%+v) = %q, want %q", tt.sess, got, tt.want)
		}
	}
}

func TestObjectID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"temperature", "temperature"},
		{"LED Threshold_9", "led_threshold_9"},
		{"PM1.0 µg/m3_3", "pm1_0__g_m3_3"},
		{"co2-8", "co2-8"},
	}
	for _, tt := range tests {
		if got := objectID(tt.in); got != tt.want {
			t.Errorf("objectID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBridgeEventJoinPublishesDiscovery(t *testing.T) {
	br, b, rec := newTestBridge(t)

	br.handleBridgeEvent([]byte(`{"type":"device_interview","data":{"ieee_address":"0x00158d00012a3b4c","status":"successful","definition":{"model":"aeris-z"}}}`))

	sess, err := b.Session("00158D00012A3B4C")
	if err != nil {
		t.Fatalf("session not created: %v", err)
	}
	topics := rec.topics()
	if len(topics) != len(sess.Properties) {
		t.Errorf("published %d topics, want %d", len(topics), len(sess.Properties))
	}
	for _, topic := range []string{
		"homeassistant/sensor/zigbee_00158D00012A3B4C/temperature/config",
		"homeassistant/sensor/zigbee_00158D00012A3B4C/co2_8/config",
		"homeassistant/switch/zigbee_00158D00012A3B4C/state_10/config",
		"homeassistant/number/zigbee_00158D00012A3B4C/led_threshold_9/config",
	} {
		if len(topics[topic]) == 0 {
			t.Errorf("missing discovery %s", topic)
		}
	}
	for _, msg := range rec.msgs {
		if !msg.retained {
			t.Errorf("%s not retained", msg.topic)
		}
	}
}

func TestBridgeEventIgnored(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"invalid json", `{`},
		{"no ieee", `{"type":"device_joined","data":{"model_id":"aeris-z"}}`},
		{"join without model", `{"type":"device_joined","data":{"ieee_address":"0x00158d00012a3b4c"}}`},
		{"interview started", `{"type":"device_interview","data":{"ieee_address":"0x00158d00012a3b4c","status":"started","model_id":"aeris-z"}}`},
		{"unknown model", `{"type":"device_joined","data":{"ieee_address":"0x00158d00012a3b4c","model_id":"lumi.weather"}}`},
		{"leave unbound", `{"type":"device_leave","data":{"ieee_address":"0x00158d00012a3b4c"}}`},
		{"other type", `{"type":"device_announce","data":{"ieee_address":"0x00158d00012a3b4c","model_id":"aeris-z"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br, b, rec := newTestBridge(t)
			br.handleBridgeEvent([]byte(tt.payload))
			if sessions, _ := b.Sessions(); len(sessions) != 0 {
				t.Errorf("sessions = %d, want 0", len(sessions))
			}
			if len(rec.msgs) != 0 {
				t.Errorf("published %d messages, want 0", len(rec.msgs))
			}
		})
	}
}

func TestBridgeEventLeaveRemovesDiscovery(t *testing.T) {
	br, b, rec := newTestBridge(t)

	br.handleBridgeEvent([]byte(`{"type":"device_joined","data":{"ieee_address":"0x00158d00012a3b4c","model_id":"aeris-z-lite"}}`))
	sess, err := b.Session("00158D00012A3B4C")
	if err != nil {
		t.Fatalf("session not created: %v", err)
	}
	added := len(rec.msgs)

	br.handleBridgeEvent([]byte(`{"type":"device_leave","data":{"ieee_address":"0x00158d00012a3b4c"}}`))
	if _, err := b.Session("00158D00012A3B4C"); err == nil {
		t.Error("session still present after leave")
	}
	removed := rec.msgs[added:]
	if len(removed) != len(sess.Properties) {
		t.Fatalf("removal messages = %d, want %d", len(removed), len(sess.Properties))
	}
	for _, msg := range removed {
		if len(msg.payload) != 0 || !msg.retained {
			t.Errorf("%s: payload %q retained %v", msg.topic, msg.payload, msg.retained)
		}
	}
}

func TestPublishAllDiscovery(t *testing.T) {
	br, b, rec := newTestBridge(t)
	if _, err := b.Join("00158D00012A3B4C", "aeris-z"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Join("00158D00012A3B4D", "aeris-z-lite"); err != nil {
		t.Fatal(err)
	}
	rec.msgs = nil

	br.publishBridgeState("online")
	br.publishAllDiscovery()

	topics := rec.topics()
	if string(topics["zigbee2mqtt/bridge/state"]) != "online" {
		t.Errorf("bridge state = %q", topics["zigbee2mqtt/bridge/state"])
	}
	if len(topics) != 1+12+13 {
		t.Errorf("topics = %d, want %d", len(topics), 1+12+13)
	}
}

func TestMustJSON(t *testing.T) {
	if got := string(mustJSON(map[string]int{"a": 1})); got != `{"a":1}` {
		t.Errorf("mustJSON = %s", got)
	}
	if got := string(mustJSON(func() {})); got != "{}" {
		t.Errorf("mustJSON(func) = %s, want {}", got)
	}
}
