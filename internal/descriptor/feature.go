package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"zigbee-descriptors/internal/zcl"
)

// Kind selects the feature variant.
type Kind string

const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
	KindPressure    Kind = "pressure"
	KindCO2         Kind = "co2"
	KindIlluminance Kind = "illuminance"
	KindPM25        Kind = "pm25"
	KindNumeric     Kind = "numeric"
	KindOnOff       Kind = "onoff"
)

// Descriptor is the static description of one device model.
type Descriptor struct {
	Endpoints EndpointMap   `json:"endpoints" yaml:"endpoints"`
	Features  []FeatureSpec `json:"features" yaml:"features"`
}

// FeatureSpec is one declared feature of a device model. Kind selects which
// fields apply; build values with the variant constructors (Temperature,
// Numeric, OnOff, ...) rather than by hand.
type FeatureSpec struct {
	Kind        Kind             `json:"kind" yaml:"kind"`
	Endpoints   []string         `json:"endpoint_names,omitempty" yaml:"endpoint_names,omitempty"`
	Access      string           `json:"access,omitempty" yaml:"access,omitempty"`
	Unit        string           `json:"unit,omitempty" yaml:"unit,omitempty"`
	Precision   *int             `json:"precision,omitempty" yaml:"precision,omitempty"`
	Scale       float64          `json:"scale,omitempty" yaml:"scale,omitempty"`
	Reporting   *ReportingPolicy `json:"reporting,omitempty" yaml:"reporting,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`

	// numeric
	Name      string       `json:"name,omitempty" yaml:"name,omitempty"`
	Cluster   string       `json:"cluster,omitempty" yaml:"cluster,omitempty"`
	Attribute AttributeRef `json:"attribute,omitzero" yaml:"attribute,omitempty"`
	ValueMin  *float64     `json:"value_min,omitempty" yaml:"value_min,omitempty"`
	ValueMax  *float64     `json:"value_max,omitempty" yaml:"value_max,omitempty"`
	ValueStep *float64     `json:"value_step,omitempty" yaml:"value_step,omitempty"`

	// onoff
	PowerOnBehavior *bool `json:"power_on_behavior,omitempty" yaml:"power_on_behavior,omitempty"`
}

// SensorOptions configures the measurement variants. Zero values select the
// per-kind defaults.
type SensorOptions struct {
	Endpoints   []string
	Access      string
	Unit        string
	Precision   *int
	Scale       float64
	Reporting   *ReportingPolicy
	Description string
}

// NumericOptions configures a Numeric feature bound to an arbitrary attribute.
type NumericOptions struct {
	Name        string
	Cluster     string
	Attribute   AttributeRef
	ValueMin    *float64
	ValueMax    *float64
	ValueStep   *float64
	Endpoints   []string
	Access      string // defaults to read-write
	Unit        string
	Precision   *int
	Scale       float64
	Reporting   *ReportingPolicy // nil: no reporting configured
	Description string
}

// OnOffOptions configures an OnOff feature.
type OnOffOptions struct {
	Endpoints       []string
	Access          string // applies to state; empty means read-write
	Description     string
	PowerOnBehavior *bool // nil means true
}

func sensor(kind Kind, o SensorOptions) FeatureSpec {
	return FeatureSpec{
		Kind:        kind,
		Endpoints:   o.Endpoints,
		Access:      o.Access,
		Unit:        o.Unit,
		Precision:   o.Precision,
		Scale:       o.Scale,
		Reporting:   o.Reporting,
		Description: o.Description,
	}
}

func Temperature(o SensorOptions) FeatureSpec { return sensor(KindTemperature, o) }
func Humidity(o SensorOptions) FeatureSpec    { return sensor(KindHumidity, o) }
func Pressure(o SensorOptions) FeatureSpec    { return sensor(KindPressure, o) }
func CO2(o SensorOptions) FeatureSpec         { return sensor(KindCO2, o) }
func Illuminance(o SensorOptions) FeatureSpec { return sensor(KindIlluminance, o) }
func PM25(o SensorOptions) FeatureSpec        { return sensor(KindPM25, o) }

// Numeric declares a numeric property on an explicit cluster and attribute.
func Numeric(o NumericOptions) FeatureSpec {
	return FeatureSpec{
		Kind:        KindNumeric,
		Name:        o.Name,
		Cluster:     o.Cluster,
		Attribute:   o.Attribute,
		ValueMin:    o.ValueMin,
		ValueMax:    o.ValueMax,
		ValueStep:   o.ValueStep,
		Endpoints:   o.Endpoints,
		Access:      o.Access,
		Unit:        o.Unit,
		Precision:   o.Precision,
		Scale:       o.Scale,
		Reporting:   o.Reporting,
		Description: o.Description,
	}
}

// OnOff declares a switchable output.
func OnOff(o OnOffOptions) FeatureSpec {
	return FeatureSpec{
		Kind:            KindOnOff,
		Endpoints:       o.Endpoints,
		Access:          o.Access,
		Description:     o.Description,
		PowerOnBehavior: o.PowerOnBehavior,
	}
}

func Float(v float64) *float64 { return &v }
func Int(v int) *int           { return &v }
func Bool(v bool) *bool        { return &v }

// AttributeRef names an attribute either by its well-known name within the
// cluster or by an explicit ID and wire type (for manufacturer attributes).
type AttributeRef struct {
	Name string
	ID   uint16
	Type uint8
}

// AttributeName references a well-known attribute.
func AttributeName(name string) AttributeRef { return AttributeRef{Name: name} }

// AttributeID references an attribute by ID and wire type.
func AttributeID(id uint16, typeID uint8) AttributeRef { return AttributeRef{ID: id, Type: typeID} }

// Explicit reports whether the reference carries its own ID and type.
func (a AttributeRef) Explicit() bool { return a.Name == "" }

func (a AttributeRef) String() string {
	if a.Explicit() {
		return fmt.Sprintf("0x%04X/%s", a.ID, zcl.TypeName(a.Type))
	}
	return a.Name
}

// IsZero lets encoding/json and yaml omit an unset reference.
func (a AttributeRef) IsZero() bool { return a == AttributeRef{} }

type attributeRefWire struct {
	ID   uint16      `json:"id" yaml:"id"`
	Type interface{} `json:"type" yaml:"type"`
}

func (a *AttributeRef) fromWire(w attributeRefWire) error {
	a.Name = ""
	a.ID = w.ID
	switch t := w.Type.(type) {
	case float64:
		if t < 0 || t > 255 || t != float64(uint8(t)) {
			return fmt.Errorf("%w: type %v", ErrUnsupportedWireType, t)
		}
		a.Type = uint8(t)
	case int:
		if t < 0 || t > 255 {
			return fmt.Errorf("%w: type %d", ErrUnsupportedWireType, t)
		}
		a.Type = uint8(t)
	case string:
		id, err := zcl.ParseType(t)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupportedWireType, err)
		}
		a.Type = id
	default:
		return fmt.Errorf("%w: missing or malformed type", ErrUnsupportedWireType)
	}
	return nil
}

// UnmarshalJSON accepts "presentValue" or {"id": 61455, "type": 41}; type may
// also be a name such as "int16".
func (a *AttributeRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		*a = AttributeRef{}
		return json.Unmarshal(data, &a.Name)
	}
	var w attributeRefWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return a.fromWire(w)
}

func (a AttributeRef) MarshalJSON() ([]byte, error) {
	if !a.Explicit() {
		return json.Marshal(a.Name)
	}
	return json.Marshal(attributeRefWire{ID: a.ID, Type: a.Type})
}

func (a *AttributeRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*a = AttributeRef{Name: value.Value}
		return nil
	}
	var w attributeRefWire
	if err := value.Decode(&w); err != nil {
		return err
	}
	return a.fromWire(w)
}

func (a AttributeRef) MarshalYAML() (interface{}, error) {
	if !a.Explicit() {
		return a.Name, nil
	}
	return attributeRefWire{ID: a.ID, Type: a.Type}, nil
}

// Interval is a reporting interval: a number of seconds or one of the symbolic
// names understood by zcl.ParseReportInterval ("MIN", "MAX", "1_HOUR", ...).
type Interval string

const (
	IntervalMin Interval = "MIN"
	IntervalMax Interval = "MAX"
)

// Seconds returns a literal interval.
func Seconds(n uint16) Interval { return Interval(strconv.Itoa(int(n))) }

func (iv *Interval) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*iv = Interval(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: interval %s", ErrInvalidReporting, data)
	}
	*iv = Interval(n.String())
	return nil
}

func (iv *Interval) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: interval must be a scalar", ErrInvalidReporting, value.Line)
	}
	*iv = Interval(value.Value)
	return nil
}

// ReportingPolicy controls when a device reports an attribute on its own.
// Change is in raw attribute units.
type ReportingPolicy struct {
	Min    Interval `json:"min" yaml:"min"`
	Max    Interval `json:"max" yaml:"max"`
	Change float64  `json:"change" yaml:"change"`
}

// Report builds a reporting policy.
func Report(min, max Interval, change float64) *ReportingPolicy {
	return &ReportingPolicy{Min: min, Max: max, Change: change}
}
