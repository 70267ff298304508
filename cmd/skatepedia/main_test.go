package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/internal/config"
	"github.com/fyrsmithlabs/skatepedia/internal/telemetry"
	"github.com/fyrsmithlabs/skatepedia/pkg/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		configPath = ""
		catalogPath = ""
	})
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
}

func TestTricksCmd(t *testing.T) {
	out, err := execute(t, "tricks")
	require.NoError(t, err)
	assert.Contains(t, out, "Beginner")
	assert.Contains(t, out, "kickflip")
	assert.Contains(t, out, "tre_flip")
}

func TestTricksCmd_BadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tricks.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[section]]\nid = \"\"\n"), 0o600))
	_, err := execute(t, "tricks", "--catalog", path)
	require.Error(t, err)
}

func TestTokenCmd(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\nauth:\n  secret: test-secret\n")

	out, err := execute(t, "token", "--config", path, "u1")
	require.NoError(t, err)

	tokens, err := auth.NewTokens("test-secret", "skatepedia", 0)
	require.NoError(t, err)
	userID, err := tokens.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestTokenCmd_RejectsBadUserID(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\nauth:\n  secret: test-secret\n")
	_, err := execute(t, "token", "--config", path, "not a user")
	require.Error(t, err)
}

func TestInitServices_MemoryDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "memory"

	deps, err := initDependencies(cfg, zap.NewNop())
	require.NoError(t, err)
	defer deps.Close()
	assert.NoError(t, deps.health())

	svc, err := initServices(cfg, deps, telemetry.NewTestTelemetry().Telemetry, prometheus.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = svc.Screens.Shutdown() }()

	assert.NotNil(t, svc.Posts)
	assert.NotNil(t, svc.Pros)
	assert.Positive(t, svc.Catalog.Len())
}
