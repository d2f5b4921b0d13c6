package zcl

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Registry holds all known ZCL cluster definitions.
type Registry struct {
	mu       sync.RWMutex
	clusters map[uint16]*ClusterDef
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clusters: make(map[uint16]*ClusterDef),
		logger:   logger,
	}
}

// Register adds a cluster definition to the registry.
func (r *Registry) Register(c ClusterDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clusters[c.ID]; ok {
		existing.Merge(&c)
		r.logger.Debug("cluster merged", "id", fmt.Sprintf("0x%04X", c.ID), "name", existing.Name)
		return
	}
	r.clusters[c.ID] = c.DeepCopy()
	r.logger.Debug("cluster registered", "id", fmt.Sprintf("0x%04X", c.ID), "name", c.Name, "key", c.Key)
}

// Get returns a cluster definition by ID, or nil if not found.
// The returned value is a deep copy; callers may modify it safely.
func (r *Registry) Get(id uint16) *ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.clusters[id]
	if c == nil {
		return nil
	}
	return c.DeepCopy()
}

// LookupCluster finds a cluster by descriptor key ("msTemperatureMeasurement"),
// display name ("Temperature Measurement") or numeric ID ("0x0402", "1026").
// Name matching is case-insensitive. Returns nil if nothing matches.
func (r *Registry) LookupCluster(name string) *ClusterDef {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if id, err := strconv.ParseUint(name, 0, 16); err == nil {
		return r.Get(uint16(id))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	// Keys win over display names; ties go to the lowest cluster ID.
	ids := slices.Sorted(maps.Keys(r.clusters))
	for _, id := range ids {
		if c := r.clusters[id]; strings.EqualFold(c.Key, name) {
			return c.DeepCopy()
		}
	}
	for _, id := range ids {
		if c := r.clusters[id]; strings.EqualFold(c.Name, name) {
			return c.DeepCopy()
		}
	}
	return nil
}

// LookupAttribute resolves a named attribute of a named cluster.
func (r *Registry) LookupAttribute(cluster, attribute string) (*ClusterDef, *AttributeDef, error) {
	c := r.LookupCluster(cluster)
	if c == nil {
		return nil, nil, fmt.Errorf("zcl: unknown cluster %q", cluster)
	}
	a := c.FindAttributeByName(attribute)
	if a == nil {
		return c, nil, fmt.Errorf("zcl: cluster %s has no attribute %q", c.Key, attribute)
	}
	return c, a, nil
}

// All returns all registered cluster definitions ordered by ID.
// Each entry is a deep copy; callers may modify them safely.
func (r *Registry) All() []ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]ClusterDef, 0, len(r.clusters))
	for _, c := range r.clusters {
		result = append(result, *c.DeepCopy())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
