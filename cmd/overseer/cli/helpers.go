package cli

import (
	"os"
	"time"

	"github.com/overseerhq/overseer/internal/config"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// OVERSEER_DATA_DIR env var, or ~/.overseer as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("OVERSEER_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.overseer"
}

// openStore opens the SQLite operator store, defaulting to ~/.overseer
// if no data dir was specified.
func openStore() (*config.Store, error) {
	return config.NewStore(resolveDataDir())
}

// parseDuration parses a duration string, falling back to def when the
// value is empty or malformed.
func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}
