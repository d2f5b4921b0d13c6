package descriptor

import (
	"fmt"
	"math"
	"slices"

	"zigbee-descriptors/internal/zcl"
)

// ClusterLookup finds cluster definitions by descriptor name. *zcl.Registry
// implements it.
type ClusterLookup interface {
	LookupCluster(name string) *zcl.ClusterDef
}

// Reporting is a normalized reporting policy with all sentinels replaced by
// concrete values.
type Reporting struct {
	Min    uint16  `json:"min" yaml:"min"`
	Max    uint16  `json:"max" yaml:"max"`
	Change float64 `json:"change" yaml:"change"`
}

// ResolvedProperty is one device property bound to a concrete endpoint,
// cluster and attribute.
type ResolvedProperty struct {
	Name          string     `json:"name"`
	Property      string     `json:"property"`
	Endpoint      string     `json:"endpoint"`
	EndpointID    uint8      `json:"endpoint_id"`
	Cluster       uint16     `json:"cluster"`
	ClusterName   string     `json:"cluster_name"`
	Attribute     uint16     `json:"attribute"`
	AttributeName string     `json:"attribute_name,omitempty"`
	Type          uint8      `json:"type"`
	Access        Access     `json:"access"`
	Unit          string     `json:"unit,omitempty"`
	Precision     *int       `json:"precision,omitempty"`
	Scale         float64    `json:"scale"`
	ValueMin      *float64   `json:"value_min,omitempty"`
	ValueMax      *float64   `json:"value_max,omitempty"`
	ValueStep     *float64   `json:"value_step,omitempty"`
	Values        []string   `json:"values,omitempty"`
	Description   string     `json:"description,omitempty"`
	Reporting     *Reporting `json:"reporting,omitempty"`
}

// Equal reports whether two properties are identical field by field.
func (p ResolvedProperty) Equal(o ResolvedProperty) bool {
	return p.Name == o.Name &&
		p.Property == o.Property &&
		p.Endpoint == o.Endpoint &&
		p.EndpointID == o.EndpointID &&
		p.Cluster == o.Cluster &&
		p.ClusterName == o.ClusterName &&
		p.Attribute == o.Attribute &&
		p.AttributeName == o.AttributeName &&
		p.Type == o.Type &&
		p.Access == o.Access &&
		p.Unit == o.Unit &&
		eqPtr(p.Precision, o.Precision) &&
		p.Scale == o.Scale &&
		eqPtr(p.ValueMin, o.ValueMin) &&
		eqPtr(p.ValueMax, o.ValueMax) &&
		eqPtr(p.ValueStep, o.ValueStep) &&
		slices.Equal(p.Values, o.Values) &&
		p.Description == o.Description &&
		eqPtr(p.Reporting, o.Reporting)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameTarget reports whether both properties address the same attribute of
// the same endpoint.
func (p ResolvedProperty) sameTarget(o ResolvedProperty) bool {
	return p.EndpointID == o.EndpointID && p.Cluster == o.Cluster && p.Attribute == o.Attribute
}

// PowerOnBehaviorValues are the startUpOnOff enum values in wire order.
var PowerOnBehaviorValues = []string{"off", "on", "toggle", "previous"}

// Resolver binds feature specs to concrete endpoints and attributes. It holds
// no state besides the cluster lookup and is safe for concurrent use as long
// as the lookup is.
type Resolver struct {
	clusters ClusterLookup
}

// NewResolver creates a resolver backed by the given cluster table.
func NewResolver(clusters ClusterLookup) *Resolver {
	return &Resolver{clusters: clusters}
}

// ResolveDescriptor resolves d.Features against d.Endpoints.
func (r *Resolver) ResolveDescriptor(d Descriptor) ([]ResolvedProperty, error) {
	return r.Resolve(d.Endpoints, d.Features)
}

// Resolve resolves d against a cluster table. It is shorthand for
// NewResolver(clusters).ResolveDescriptor(d).
func (d Descriptor) Resolve(clusters ClusterLookup) ([]ResolvedProperty, error) {
	return NewResolver(clusters).ResolveDescriptor(d)
}

// Resolve turns the feature list into properties in declaration order. Within
// a feature, properties follow its endpoint names. Identical duplicates
// collapse to the first occurrence. Any validation failure aborts the call and
// no properties are returned; the error is always a *ValidationError.
func (r *Resolver) Resolve(endpoints EndpointMap, features []FeatureSpec) ([]ResolvedProperty, error) {
	if err := endpoints.Validate(); err != nil {
		return nil, &ValidationError{Index: -1, Err: err}
	}

	var out []ResolvedProperty
	for i, f := range features {
		fail := func(endpoint string, err error) error {
			return &ValidationError{Index: i, Kind: f.Kind, Endpoint: endpoint, Err: err}
		}

		eps, err := featureEndpoints(endpoints, f)
		if err != nil {
			return nil, fail("", err)
		}
		templates, err := r.templates(f)
		if err != nil {
			return nil, fail("", err)
		}

		for _, ep := range eps {
			for _, tmpl := range templates {
				p := tmpl
				p.Endpoint = ep.Name
				p.EndpointID = ep.ID
				p.Property = p.Name
				if len(f.Endpoints) > 0 {
					p.Property = p.Name + "_" + ep.Name
				}

				dup, err := checkConflict(out, p)
				if err != nil {
					return nil, fail(ep.Name, err)
				}
				if !dup {
					out = append(out, p)
				}
			}
		}
	}
	return out, nil
}

// featureEndpoints resolves the endpoint names a feature targets. A feature
// without names binds to the first endpoint of the map.
func featureEndpoints(m EndpointMap, f FeatureSpec) ([]Endpoint, error) {
	if len(f.Endpoints) == 0 {
		return []Endpoint{m.Default()}, nil
	}
	eps := make([]Endpoint, 0, len(f.Endpoints))
	for _, name := range f.Endpoints {
		ep, ok := m.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// checkConflict reports whether p duplicates an already resolved property.
// A property that shares the target or the property key of an earlier one
// without being identical to it is a conflict.
func checkConflict(resolved []ResolvedProperty, p ResolvedProperty) (bool, error) {
	for _, q := range resolved {
		if !q.sameTarget(p) && q.Property != p.Property {
			continue
		}
		if q.Equal(p) {
			return true, nil
		}
		if q.sameTarget(p) {
			return false, fmt.Errorf("%w: %s.%s on endpoint %q already bound to %q",
				ErrConflictingProperty, p.ClusterName, attrLabel(p), p.Endpoint, q.Property)
		}
		return false, fmt.Errorf("%w: property %q already bound to %s.%s on endpoint %q",
			ErrConflictingProperty, p.Property, q.ClusterName, attrLabel(q), q.Endpoint)
	}
	return false, nil
}

func attrLabel(p ResolvedProperty) string {
	if p.AttributeName != "" {
		return p.AttributeName
	}
	return fmt.Sprintf("0x%04X", p.Attribute)
}

// templates builds the endpoint-independent part of every property a feature
// produces.
func (r *Resolver) templates(f FeatureSpec) ([]ResolvedProperty, error) {
	if f.Precision != nil && *f.Precision < 0 {
		return nil, fmt.Errorf("%w: negative precision %d", ErrInvalidFeature, *f.Precision)
	}
	if f.Scale < 0 {
		return nil, fmt.Errorf("%w: negative scale %v", ErrInvalidFeature, f.Scale)
	}

	switch f.Kind {
	case KindNumeric:
		p, err := r.numeric(f)
		if err != nil {
			return nil, err
		}
		return []ResolvedProperty{p}, nil
	case KindOnOff:
		return r.onOff(f)
	}
	def, ok := sensorKinds[f.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidFeature, f.Kind)
	}
	p, err := r.sensor(f, def)
	if err != nil {
		return nil, err
	}
	return []ResolvedProperty{p}, nil
}

func (r *Resolver) sensor(f FeatureSpec, def sensorDefaults) (ResolvedProperty, error) {
	access, err := ParseAccess(f.Access, AccessStateReport)
	if err != nil {
		return ResolvedProperty{}, err
	}
	if err := checkScale(f.Scale); err != nil {
		return ResolvedProperty{}, err
	}
	cluster, attr, err := r.namedAttribute(def.cluster, def.attribute)
	if err != nil {
		return ResolvedProperty{}, err
	}
	policy := def.reporting
	if f.Reporting != nil {
		policy = *f.Reporting
	}
	rep, err := normalizeReporting(policy)
	if err != nil {
		return ResolvedProperty{}, err
	}

	p := ResolvedProperty{
		Name:          def.name,
		Cluster:       cluster.ID,
		ClusterName:   clusterLabel(cluster),
		Attribute:     attr.ID,
		AttributeName: attr.Key,
		Type:          attr.Type,
		Access:        access,
		Unit:          orDefault(f.Unit, def.unit),
		Precision:     f.Precision,
		Scale:         def.scale,
		Description:   orDefault(f.Description, def.description),
		Reporting:     rep,
	}
	if f.Scale > 0 {
		p.Scale = f.Scale
	}
	return p, nil
}

func (r *Resolver) numeric(f FeatureSpec) (ResolvedProperty, error) {
	switch {
	case f.Name == "":
		return ResolvedProperty{}, fmt.Errorf("%w: numeric feature needs a name", ErrInvalidFeature)
	case f.Cluster == "":
		return ResolvedProperty{}, fmt.Errorf("%w: numeric %q needs a cluster", ErrInvalidFeature, f.Name)
	case f.Attribute.IsZero():
		return ResolvedProperty{}, fmt.Errorf("%w: numeric %q needs an attribute", ErrInvalidFeature, f.Name)
	}
	access, err := ParseAccess(f.Access, AccessReadWrite)
	if err != nil {
		return ResolvedProperty{}, err
	}
	if err := checkScale(f.Scale); err != nil {
		return ResolvedProperty{}, err
	}

	cluster := r.clusters.LookupCluster(f.Cluster)
	if cluster == nil {
		return ResolvedProperty{}, fmt.Errorf("%w: cluster %q", ErrUnknownAttribute, f.Cluster)
	}
	p := ResolvedProperty{
		Name:        f.Name,
		Cluster:     cluster.ID,
		ClusterName: clusterLabel(cluster),
		Access:      access,
		Unit:        f.Unit,
		Precision:   f.Precision,
		Scale:       1,
		ValueMin:    f.ValueMin,
		ValueMax:    f.ValueMax,
		ValueStep:   f.ValueStep,
		Description: f.Description,
	}
	if f.Scale > 0 {
		p.Scale = f.Scale
	}

	if f.Attribute.Explicit() {
		p.Attribute = f.Attribute.ID
		p.Type = f.Attribute.Type
		if known := cluster.FindAttribute(f.Attribute.ID); known != nil {
			p.AttributeName = known.Key
		}
	} else {
		attr := cluster.FindAttributeByName(f.Attribute.Name)
		if attr == nil {
			return ResolvedProperty{}, fmt.Errorf("%w: %s has no attribute %q", ErrUnknownAttribute, clusterLabel(cluster), f.Attribute.Name)
		}
		p.Attribute = attr.ID
		p.AttributeName = attr.Key
		p.Type = attr.Type
	}
	if !zcl.IsPrimitive(p.Type) {
		return ResolvedProperty{}, fmt.Errorf("%w: %s for %q", ErrUnsupportedWireType, zcl.TypeName(p.Type), f.Name)
	}

	if err := checkRange(p); err != nil {
		return ResolvedProperty{}, err
	}
	if f.Reporting != nil {
		rep, err := normalizeReporting(*f.Reporting)
		if err != nil {
			return ResolvedProperty{}, err
		}
		p.Reporting = rep
	}
	return p, nil
}

// checkRange validates the declared bounds against each other and against
// what the wire type can carry once scaled back to raw units.
func checkRange(p ResolvedProperty) error {
	bounds := []struct {
		name string
		v    *float64
	}{{"value_min", p.ValueMin}, {"value_max", p.ValueMax}, {"value_step", p.ValueStep}}
	for _, b := range bounds {
		if b.v != nil && !finite(*b.v) {
			return fmt.Errorf("%w: %s %v is not a finite number", ErrInvalidRange, b.name, *b.v)
		}
	}
	if p.ValueMin != nil && p.ValueMax != nil && *p.ValueMin > *p.ValueMax {
		return fmt.Errorf("%w: value_min %v > value_max %v", ErrInvalidRange, *p.ValueMin, *p.ValueMax)
	}
	if p.ValueStep != nil && *p.ValueStep <= 0 {
		return fmt.Errorf("%w: value_step %v must be positive", ErrInvalidRange, *p.ValueStep)
	}
	lo, hi, ok := zcl.TypeRange(p.Type)
	if !ok {
		return nil
	}
	for _, v := range []*float64{p.ValueMin, p.ValueMax} {
		if v == nil {
			continue
		}
		raw := *v * p.Scale
		if raw < lo || raw > hi {
			return fmt.Errorf("%w: %v does not fit %s", ErrInvalidRange, *v, zcl.TypeName(p.Type))
		}
	}
	return nil
}

// onOff exposes the switch state and, unless disabled, its power-on
// behavior. The declared access applies to state only; power-on behavior is a
// setting and stays writable.
func (r *Resolver) onOff(f FeatureSpec) ([]ResolvedProperty, error) {
	access, err := ParseAccess(f.Access, AccessReadWrite)
	if err != nil {
		return nil, err
	}
	cluster, attr, err := r.namedAttribute(onOffCluster, onOffAttribute)
	if err != nil {
		return nil, err
	}
	rep, err := normalizeReporting(onOffReporting)
	if err != nil {
		return nil, err
	}
	props := []ResolvedProperty{{
		Name:          "state",
		Cluster:       cluster.ID,
		ClusterName:   clusterLabel(cluster),
		Attribute:     attr.ID,
		AttributeName: attr.Key,
		Type:          attr.Type,
		Access:        access,
		Scale:         1,
		Values:        []string{"OFF", "ON"},
		Description:   orDefault(f.Description, onOffDescription),
		Reporting:     rep,
	}}

	if f.PowerOnBehavior == nil || *f.PowerOnBehavior {
		startUp := cluster.FindAttributeByName(startUpOnOffAttr)
		if startUp == nil {
			return nil, fmt.Errorf("%w: %s has no attribute %q", ErrUnknownAttribute, clusterLabel(cluster), startUpOnOffAttr)
		}
		props = append(props, ResolvedProperty{
			Name:          powerOnPropertyName,
			Cluster:       cluster.ID,
			ClusterName:   clusterLabel(cluster),
			Attribute:     startUp.ID,
			AttributeName: startUp.Key,
			Type:          startUp.Type,
			Access:        AccessReadWrite,
			Scale:         1,
			Values:        slices.Clone(PowerOnBehaviorValues),
			Description:   powerOnDescription,
		})
	}
	return props, nil
}

func (r *Resolver) namedAttribute(cluster, attribute string) (*zcl.ClusterDef, *zcl.AttributeDef, error) {
	c := r.clusters.LookupCluster(cluster)
	if c == nil {
		return nil, nil, fmt.Errorf("%w: cluster %q", ErrUnknownAttribute, cluster)
	}
	a := c.FindAttributeByName(attribute)
	if a == nil {
		return nil, nil, fmt.Errorf("%w: %s has no attribute %q", ErrUnknownAttribute, clusterLabel(c), attribute)
	}
	return c, a, nil
}

// normalizeReporting replaces symbolic intervals with seconds. Empty bounds
// mean the protocol defaults.
func normalizeReporting(p ReportingPolicy) (*Reporting, error) {
	minIv, maxIv := p.Min, p.Max
	if minIv == "" {
		minIv = IntervalMin
	}
	if maxIv == "" {
		maxIv = IntervalMax
	}
	lo, err := zcl.ParseReportInterval(string(minIv))
	if err != nil {
		return nil, fmt.Errorf("%w: min: %v", ErrInvalidReporting, err)
	}
	hi, err := zcl.ParseReportInterval(string(maxIv))
	if err != nil {
		return nil, fmt.Errorf("%w: max: %v", ErrInvalidReporting, err)
	}
	if lo > hi {
		return nil, fmt.Errorf("%w: min %d > max %d", ErrInvalidReporting, lo, hi)
	}
	if !finite(p.Change) || p.Change < 0 {
		return nil, fmt.Errorf("%w: change %v must be a finite non-negative number", ErrInvalidReporting, p.Change)
	}
	return &Reporting{Min: lo, Max: hi, Change: p.Change}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// checkScale rejects a declared scale the value conversion cannot use. Zero
// means the kind's default.
func checkScale(scale float64) error {
	if !finite(scale) || scale < 0 {
		return fmt.Errorf("%w: scale %v must be a finite positive number", ErrInvalidFeature, scale)
	}
	return nil
}

func clusterLabel(c *zcl.ClusterDef) string {
	if c.Key != "" {
		return c.Key
	}
	return c.Name
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
