package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"zigbee-descriptors/internal/devicedb"
	"zigbee-descriptors/internal/zcl"
	"zigbee-descriptors/internal/zcl/clusters"
)

// runCheck validates the definition files in each directory and stops at
// the first invalid one.
func runCheck(dirs []string, out io.Writer, logger *slog.Logger) error {
	if len(dirs) == 0 {
		return errors.New("usage: zigbee-descriptors check <dir>...")
	}
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: not a directory", dir)
		}

		// Each directory gets its own registry so custom clusters do not
		// leak between them.
		registry := zcl.NewRegistry(logger)
		clusters.RegisterStandard(registry)
		db, err := devicedb.LoadDir(dir, registry, logger)
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}

		props := 0
		for _, def := range db.All() {
			resolved, err := db.Resolver().ResolveDescriptor(def.Descriptor())
			if err != nil {
				return fmt.Errorf("%s: model %s: %w", dir, def.Model, err)
			}
			props += len(resolved)
		}
		fmt.Fprintf(out, "%s: %d definitions, %d properties\n", dir, db.Len(), props)
	}
	return nil
}
