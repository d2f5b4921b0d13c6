package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Endpoint names a device endpoint.
type Endpoint struct {
	Name string `json:"name" yaml:"name"`
	ID   uint8  `json:"id" yaml:"id"`
}

// EndpointMap is the ordered mapping from endpoint names to endpoint IDs.
// In JSON and YAML it is written as an object ({"1": 1, "2": 2}) whose key
// order is preserved; a list of {name, id} pairs is accepted as well.
type EndpointMap []Endpoint

// Lookup returns the endpoint registered under name.
func (m EndpointMap) Lookup(name string) (Endpoint, bool) {
	for _, ep := range m {
		if ep.Name == name {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// Default returns the endpoint used by features that name no endpoint: the
// first entry of the map.
func (m EndpointMap) Default() Endpoint {
	if len(m) == 0 {
		return Endpoint{}
	}
	return m[0]
}

// Validate checks that the map is non-empty, names and IDs are unique, and
// every ID is an application endpoint (1-240).
func (m EndpointMap) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("%w: no endpoints", ErrInvalidEndpointMap)
	}
	names := make(map[string]bool, len(m))
	ids := make(map[uint8]bool, len(m))
	for _, ep := range m {
		if ep.Name == "" {
			return fmt.Errorf("%w: empty endpoint name", ErrInvalidEndpointMap)
		}
		if ep.ID == 0 || ep.ID > 240 {
			return fmt.Errorf("%w: endpoint %q id %d outside 1-240", ErrInvalidEndpointMap, ep.Name, ep.ID)
		}
		if names[ep.Name] {
			return fmt.Errorf("%w: duplicate endpoint name %q", ErrInvalidEndpointMap, ep.Name)
		}
		if ids[ep.ID] {
			return fmt.Errorf("%w: duplicate endpoint id %d", ErrInvalidEndpointMap, ep.ID)
		}
		names[ep.Name] = true
		ids[ep.ID] = true
	}
	return nil
}

// UnmarshalJSON decodes an object or a list, keeping declaration order.
func (m *EndpointMap) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []Endpoint
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*m = list
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected object or list, got %v", ErrInvalidEndpointMap, tok)
	}
	var out EndpointMap
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)
		var id uint8
		if err := dec.Decode(&id); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidEndpointMap, name, err)
		}
		out = append(out, Endpoint{Name: name, ID: id})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// MarshalJSON encodes the map as an object in declaration order.
func (m EndpointMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ep := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ep.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", ep.ID)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML decodes a mapping or a sequence, keeping declaration order.
func (m *EndpointMap) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []Endpoint
		if err := value.Decode(&list); err != nil {
			return err
		}
		*m = list
		return nil
	case yaml.MappingNode:
		out := make(EndpointMap, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			var id uint8
			if err := value.Content[i+1].Decode(&id); err != nil {
				return fmt.Errorf("%w: %q: %v", ErrInvalidEndpointMap, value.Content[i].Value, err)
			}
			out = append(out, Endpoint{Name: value.Content[i].Value, ID: id})
		}
		*m = out
		return nil
	}
	return fmt.Errorf("%w: line %d: expected mapping or sequence", ErrInvalidEndpointMap, value.Line)
}

// MarshalYAML encodes the map as a mapping in declaration order.
func (m EndpointMap) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, ep := range m {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: ep.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprint(ep.ID)},
		)
	}
	return node, nil
}
