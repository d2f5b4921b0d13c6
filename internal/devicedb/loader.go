package devicedb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"zigbee-descriptors/internal/zcl"
)

// definitionFile is the structure of one file in a definitions directory.
type definitionFile struct {
	Clusters []zcl.ClusterDef `json:"clusters,omitempty" yaml:"clusters,omitempty"`
	Devices  []Definition     `json:"devices,omitempty" yaml:"devices,omitempty"`
}

var extensions = map[string]bool{".json": true, ".yaml": true, ".yml": true, ".lua": true}

// parseFile decodes a definition file according to its extension.
func parseFile(name string, data []byte) (definitionFile, error) {
	var df definitionFile
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		if err := json.Unmarshal(data, &df); err != nil {
			return df, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &df); err != nil {
			return df, err
		}
	case ".lua":
		return parseLua(name, data)
	default:
		return df, fmt.Errorf("unsupported file type %q", filepath.Ext(name))
	}
	return df, nil
}

// load registers the clusters of every file before adding any device, so a
// definition may refer to a cluster declared in another file.
func (db *DB) load(fsys fs.FS, names []string) error {
	files := make([]definitionFile, len(names))
	for i, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		df, err := parseFile(name, data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for _, c := range df.Clusters {
			db.registry.Register(c)
		}
		files[i] = df
	}

	for i, df := range files {
		for _, d := range df.Devices {
			d.Source = names[i]
			if err := db.Add(d); err != nil {
				return fmt.Errorf("%s: %w", names[i], err)
			}
		}
		db.logger.Info("loaded definition file", "path", names[i],
			"clusters", len(df.Clusters), "devices", len(df.Devices))
	}
	return nil
}

// LoadDir reads every *.json, *.yaml, *.yml and *.lua file in dir. Loading
// stops at the first file that fails to parse or definition that fails to
// resolve. A missing directory is not an error.
func (db *DB) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		db.logger.Info("definitions directory not found", "dir", dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read definitions dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !extensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		db.logger.Info("no definition files found", "dir", dir)
		return nil
	}

	if err := db.load(os.DirFS(dir), names); err != nil {
		return err
	}
	db.logger.Info("definitions loaded", "dir", dir, "files", len(names), "devices", db.Len())
	return nil
}

// LoadDir creates a database from the definition files in dir.
func LoadDir(dir string, registry *zcl.Registry, logger *slog.Logger) (*DB, error) {
	db := New(registry, logger)
	return db, db.LoadDir(dir)
}
