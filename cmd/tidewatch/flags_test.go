package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	f, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "tidewatch.yaml", f.configPath)
	assert.Equal(t, "info", f.logLevel)
	assert.Equal(t, "json", f.logFormat)
	assert.Equal(t, ":9090", f.opsAddr)
	assert.Equal(t, 30*time.Second, f.shutdownTimeout)
	assert.False(t, f.checkConfig)
}

func TestParseFlagsOverride(t *testing.T) {
	f, err := parseFlags([]string{
		"-config", "/etc/tidewatch/prod.yaml",
		"-log-level", "debug",
		"-log-format", "text",
		"-shutdown-timeout", "10s",
		"-check-config",
	})
	require.NoError(t, err)
	assert.Equal(t, "/etc/tidewatch/prod.yaml", f.configPath)
	assert.Equal(t, "debug", f.logLevel)
	assert.Equal(t, "text", f.logFormat)
	assert.Equal(t, 10*time.Second, f.shutdownTimeout)
	assert.True(t, f.checkConfig)
}

func TestParseFlagsEnvFallback(t *testing.T) {
	t.Setenv("TIDEWATCH_CONFIG", "/tmp/env.yaml")
	t.Setenv("TIDEWATCH_SHUTDOWN_TIMEOUT", "5s")

	f, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.yaml", f.configPath)
	assert.Equal(t, 5*time.Second, f.shutdownTimeout)

	// Explicit flags beat the environment.
	f, err = parseFlags([]string{"-config", "/tmp/flag.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/flag.yaml", f.configPath)
}

func TestEnvDurationOrMilliseconds(t *testing.T) {
	t.Setenv("TIDEWATCH_SHUTDOWN_TIMEOUT", "1500")
	assert.Equal(t, 1500*time.Millisecond, envDurationOr("TIDEWATCH_SHUTDOWN_TIMEOUT", time.Second))

	t.Setenv("TIDEWATCH_SHUTDOWN_TIMEOUT", "not-a-duration")
	assert.Equal(t, time.Second, envDurationOr("TIDEWATCH_SHUTDOWN_TIMEOUT", time.Second))
}
