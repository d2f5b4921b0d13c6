package devicedb

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"zigbee-descriptors/internal/descriptor"
	"zigbee-descriptors/internal/zcl"
)

// Definition describes one device model: how it identifies itself on the
// network and which features its endpoints expose.
type Definition struct {
	Vendor       string                   `json:"vendor" yaml:"vendor"`
	Model        string                   `json:"model" yaml:"model"`
	ZigbeeModels []string                 `json:"zigbee_model,omitempty" yaml:"zigbee_model,omitempty"`
	Description  string                   `json:"description,omitempty" yaml:"description,omitempty"`
	Endpoints    descriptor.EndpointMap   `json:"endpoints" yaml:"endpoints"`
	Features     []descriptor.FeatureSpec `json:"features" yaml:"features"`

	// Source is the file the definition was loaded from.
	Source string `json:"source,omitempty" yaml:"-"`
}

// Descriptor returns the resolvable part of the definition.
func (d *Definition) Descriptor() descriptor.Descriptor {
	return descriptor.Descriptor{Endpoints: d.Endpoints, Features: d.Features}
}

// DB holds validated device definitions keyed by model.
type DB struct {
	mu       sync.RWMutex
	defs     map[string]*Definition
	aliases  map[string]string // zigbee model -> model
	registry *zcl.Registry
	resolver *descriptor.Resolver
	logger   *slog.Logger
}

// New creates an empty database. Custom clusters found in definition files
// are merged into registry.
func New(registry *zcl.Registry, logger *slog.Logger) *DB {
	return &DB{
		defs:     make(map[string]*Definition),
		aliases:  make(map[string]string),
		registry: registry,
		resolver: descriptor.NewResolver(registry),
		logger:   logger.With("component", "devicedb"),
	}
}

// Resolver returns the resolver definitions are validated with.
func (db *DB) Resolver() *descriptor.Resolver {
	return db.resolver
}

// Add validates a definition by resolving it and inserts it. A definition
// for an existing model replaces the old one.
func (db *DB) Add(def Definition) error {
	if def.Model == "" {
		return fmt.Errorf("definition without model")
	}
	if _, err := db.resolver.ResolveDescriptor(def.Descriptor()); err != nil {
		return fmt.Errorf("model %s: %w", def.Model, err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if old, ok := db.defs[def.Model]; ok {
		db.logger.Warn("definition replaced", "model", def.Model, "old", old.Source, "new", def.Source)
		for _, zm := range old.ZigbeeModels {
			delete(db.aliases, zm)
		}
	}
	cp := def
	db.defs[def.Model] = &cp
	for _, zm := range def.ZigbeeModels {
		if prev, ok := db.aliases[zm]; ok && prev != def.Model {
			db.logger.Warn("zigbee model claimed twice", "zigbee_model", zm, "model", def.Model, "previous", prev)
		}
		db.aliases[zm] = def.Model
	}
	return nil
}

// Lookup finds a definition by the model identifier a device reports,
// falling back to the definition's own model name. Returns nil if unknown.
func (db *DB) Lookup(zigbeeModel string) *Definition {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if model, ok := db.aliases[zigbeeModel]; ok {
		return db.defs[model]
	}
	return db.defs[zigbeeModel]
}

// All returns every definition ordered by model.
func (db *DB) All() []*Definition {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*Definition, 0, len(db.defs))
	for _, d := range db.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// Len returns the number of definitions.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.defs)
}
