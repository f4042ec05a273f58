// Package sqlitepath resolves where the session ledger database lives.
package sqlitepath

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvVar overrides the default ledger location.
const EnvVar = "SOLO_SQLITE"

// ResolveSQLitePath returns override when set, then $SOLO_SQLITE, then
// ~/.solo/ledger.db.
func ResolveSQLitePath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if env := os.Getenv(EnvVar); env != "" {
		return env, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find home directory: %w", err)
	}
	return filepath.Join(home, ".solo", "ledger.db"), nil
}
