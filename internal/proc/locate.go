package proc

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/agentlink/agentlink/internal/sdkerr"
)

// binName is the agent CLI binary searched for on PATH and in the common
// install locations.
const binName = "claude"

// binPathEnv overrides discovery with an explicit binary path.
const binPathEnv = "AGENTLINK_BIN"

// commonInstallDirs are checked after PATH, covering installs that do not
// touch the user's PATH.
func commonInstallDirs() []string {
	dirs := []string{"/usr/local/bin", "/usr/bin", "/opt/homebrew/bin"}

	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".npm-global", "bin"),
			filepath.Join(home, "node_modules", ".bin"),
		)
	}

	return dirs
}

// Locate finds the agent CLI binary. Search order: the explicit path,
// the AGENTLINK_BIN environment variable, PATH, then common install
// directories. Returns AgentNotFoundError listing everywhere it looked.
func Locate(ctx context.Context, log *slog.Logger, explicit string) (string, error) {
	searched := make([]string, 0, 8)

	for _, candidate := range []string{explicit, os.Getenv(binPathEnv)} {
		if candidate == "" {
			continue
		}

		if isExecutable(candidate) {
			log.Debug("Using explicit agent CLI path", "path", candidate)

			return candidate, nil
		}

		searched = append(searched, candidate)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if path, err := exec.LookPath(binName); err == nil {
		log.Debug("Found agent CLI on PATH", "path", path)

		return path, nil
	}

	searched = append(searched, "$PATH/"+binName)

	for _, dir := range commonInstallDirs() {
		candidate := filepath.Join(dir, binName)
		if isExecutable(candidate) {
			log.Debug("Found agent CLI in install directory", "path", candidate)

			return candidate, nil
		}

		searched = append(searched, candidate)
	}

	return "", &sdkerr.AgentNotFoundError{Searched: searched}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	return info.Mode()&0o111 != 0
}
