package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"signalgrid.ai/internal/persistence/indexdb"
)

// openRuntimeIndex opens the sqlite read model unless disabled by flag or SG_INDEX_BACKEND.
func openRuntimeIndex(worldDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SG_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported SG_INDEX_BACKEND: %s", backend)
	}
}
