package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Build-time identity, injected via -ldflags. The defaults apply to plain
// go-run development builds.
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

func GetVersion() string   { return Version }
func GetBuild() string     { return Build }
func GetGitCommit() string { return GitCommit }

// GetFullVersion renders the complete build identity for startup output.
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, Build, GitCommit)
}

// LoadVersionFromFile lets a deployed binary pick up its version from a
// .version file dropped next to the executable, overriding the compiled-in
// value. Returns the effective version either way.
func LoadVersionFromFile() string {
	exe, err := os.Executable()
	if err != nil {
		return Version
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(exe), ".version"))
	if err != nil {
		return Version
	}

	if v := strings.TrimSpace(string(data)); v != "" {
		Version = v
	}
	return Version
}
