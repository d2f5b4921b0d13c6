package devicedb

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"zigbee-descriptors/internal/zcl"
)

//go:embed definitions
var builtinFS embed.FS

// LoadBuiltin adds the definitions compiled into the binary.
func (db *DB) LoadBuiltin() error {
	sub, err := fs.Sub(builtinFS, "definitions")
	if err != nil {
		return err
	}
	names, err := fs.Glob(sub, "*.yaml")
	if err != nil {
		return err
	}
	if err := db.load(sub, names); err != nil {
		return fmt.Errorf("builtin definitions: %w", err)
	}
	return nil
}

// LoadBuiltin creates a database holding only the built-in definitions.
func LoadBuiltin(registry *zcl.Registry, logger *slog.Logger) (*DB, error) {
	db := New(registry, logger)
	return db, db.LoadBuiltin()
}
