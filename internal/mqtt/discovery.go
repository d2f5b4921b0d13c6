//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"hash/fnv"
	"strings"

	"zigbee-descriptors/internal/descriptor"
	"zigbee-descriptors/internal/store"
)

const discoveryPrefix = "homeassistant"

// Home Assistant components a property can map to.
const (
	componentSensor = "sensor"
	componentNumber = "number"
	componentSwitch = "switch"
	componentSelect = "select"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/zigbee_00158D.../temperature_1/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	Precision         *int     `json:"suggested_display_precision,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	Min               *float64 `json:"min,omitempty"`
	Max               *float64 `json:"max,omitempty"`
	Step              *float64 `json:"step,omitempty"`
	Mode              string   `json:"mode,omitempty"`
	Options           []string `json:"options,omitempty"`
	Device            haDevice `json:"device"`
}

// sensorClasses maps measurement clusters to HA device classes.
var sensorClasses = map[string]string{
	"msTemperatureMeasurement": "temperature",
	"msRelativeHumidity":       "humidity",
	"msPressureMeasurement":    "atmospheric_pressure",
	"msCO2":                    "carbon_dioxide",
	"msIlluminanceMeasurement": "illuminance",
	"pm25Measurement":          "pm25",
}

// deviceDisplayName returns a display name for the bound device.
func deviceDisplayName(sess *store.Session) string {
	if sess.Vendor != "" && sess.Model != "" {
		return sess.Vendor + " " + sess.Model
	}
	if sess.Model != "" {
		return sess.Model
	}
	return sess.IEEEAddress
}

// deviceIdentifier returns the unique identifier for HA device registry.
func deviceIdentifier(sess *store.Session) string {
	return "zigbee_" + sess.IEEEAddress
}

// deviceTopicName returns the topic name for a device.
func deviceTopicName(sess *store.Session) string {
	return sess.IEEEAddress
}

// objectID sanitizes a property key for use in MQTT topics and unique ids:
// lowercase, keeping only safe characters.
func objectID(property string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, strings.ToLower(property))
}

// component picks the HA component for a resolved property.
func component(p descriptor.ResolvedProperty) string {
	switch {
	case !p.Access.Writable():
		return componentSensor
	case p.Values != nil && p.ClusterName == "genOnOff" && p.AttributeName == "onOff":
		return componentSwitch
	case p.Values != nil:
		return componentSelect
	default:
		return componentNumber
	}
}

// objectIDs assigns each property a distinct object id. Keys that sanitize
// to an id already taken get a hash suffix of the original key; earlier
// properties keep the plain id.
func objectIDs(props []descriptor.ResolvedProperty) []string {
	ids := make([]string, len(props))
	seen := make(map[string]bool, len(props))
	for i, p := range props {
		id := objectID(p.Property)
		if seen[id] {
			h := fnv.New32a()
			h.Write([]byte(p.Property))
			id = fmt.Sprintf("%s_%08x", id, h.Sum32())
		}
		for n := 2; seen[id]; n++ {
			id = fmt.Sprintf("%s_%d", objectID(p.Property), n)
		}
		seen[id] = true
		ids[i] = id
	}
	return ids
}

func discoveryTopic(comp string, sess *store.Session, objID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", discoveryPrefix, comp, deviceIdentifier(sess), objID)
}

// buildDiscovery generates one HA discovery message per resolved property
// of a session.
func buildDiscovery(sess *store.Session, prefix string) []discoveryMsg {
	if len(sess.Properties) == 0 {
		return nil
	}

	avail := prefix + "/bridge/state"
	stateTopic := prefix + "/" + deviceTopicName(sess)
	nodeID := deviceIdentifier(sess)
	displayName := deviceDisplayName(sess)

	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: sess.Vendor,
		Model:        sess.Model,
		Name:         displayName,
	}

	ids := objectIDs(sess.Properties)
	msgs := make([]discoveryMsg, 0, len(sess.Properties))
	for i, p := range sess.Properties {
		comp := component(p)
		payload := haDiscovery{
			Name:              displayName + " " + p.Property,
			UniqueID:          nodeID + "_" + ids[i],
			StateTopic:        stateTopic,
			AvailabilityTopic: avail,
			ValueTemplate:     "{{ value_json['" + p.Property + "'] }}",
			UnitOfMeasurement: p.Unit,
			Precision:         p.Precision,
			Device:            haDev,
		}
		if comp != componentSensor {
			payload.CommandTopic = stateTopic + "/set/" + ids[i]
		}
		switch comp {
		case componentSensor:
			payload.StateClass = "measurement"
			if p.AttributeName == "measuredValue" {
				payload.DeviceClass = sensorClasses[p.ClusterName]
			}
		case componentNumber:
			payload.Min = p.ValueMin
			payload.Max = p.ValueMax
			payload.Step = p.ValueStep
			payload.Mode = "box"
		case componentSwitch:
			payload.PayloadOn = "ON"
			payload.PayloadOff = "OFF"
		case componentSelect:
			payload.Options = p.Values
		}
		msgs = append(msgs, discoveryMsg{
			Topic:   discoveryTopic(comp, sess, ids[i]),
			Payload: mustJSON(payload),
		})
	}
	return msgs
}

// buildRemoveDiscovery generates empty retained messages that remove every
// entity published for a session.
func buildRemoveDiscovery(sess *store.Session) []discoveryMsg {
	ids := objectIDs(sess.Properties)
	msgs := make([]discoveryMsg, 0, len(sess.Properties))
	for i, p := range sess.Properties {
		msgs = append(msgs, discoveryMsg{
			Topic:   discoveryTopic(component(p), sess, ids[i]),
			Payload: nil, // empty retained = delete
		})
	}
	return msgs
}
