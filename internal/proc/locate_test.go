package proc

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentlink/agentlink/internal/sdkerr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func writeFakeBinary(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))

	return path
}

func TestLocateExplicitPath(t *testing.T) {
	bin := writeFakeBinary(t, t.TempDir(), "agent")

	path, err := Locate(context.Background(), discardLogger(), bin)
	require.NoError(t, err)
	require.Equal(t, bin, path)
}

func TestLocateEnvOverride(t *testing.T) {
	bin := writeFakeBinary(t, t.TempDir(), "agent")
	t.Setenv(binPathEnv, bin)

	path, err := Locate(context.Background(), discardLogger(), "")
	require.NoError(t, err)
	require.Equal(t, bin, path)
}

func TestLocateExplicitBeatsEnv(t *testing.T) {
	dir := t.TempDir()
	explicit := writeFakeBinary(t, dir, "explicit")
	fromEnv := writeFakeBinary(t, dir, "env")
	t.Setenv(binPathEnv, fromEnv)

	path, err := Locate(context.Background(), discardLogger(), explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, path)
}

func TestLocateNotFound(t *testing.T) {
	t.Setenv(binPathEnv, "")
	t.Setenv("PATH", t.TempDir())

	_, err := Locate(context.Background(), discardLogger(), "")
	require.Error(t, err)

	var notFound *sdkerr.AgentNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.NotEmpty(t, notFound.Searched)
}

func TestLocateRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(binPathEnv, "")
	t.Setenv("PATH", dir)

	// A directory named like the binary must not satisfy discovery.
	require.NoError(t, os.Mkdir(filepath.Join(dir, binName), 0o755))

	_, err := Locate(context.Background(), discardLogger(), filepath.Join(dir, binName))
	require.Error(t, err)
}
