package config

import (
	"os"
	"path/filepath"
)

// defaultStagingPath returns the path for the boltdb-backed staging
// registry: a hidden directory that is a sibling of the current working
// directory, named after it. Staging is tied to the project the operator
// is standing in rather than to a single global per-user store, so two
// checkouts staging files at the same time don't clobber each other.
func defaultStagingPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			home = "."
		}
		cwd = home
	}
	parent := filepath.Dir(cwd)
	hidden := "." + filepath.Base(cwd) + ".beam"
	return filepath.Join(parent, hidden, "staging.db")
}
