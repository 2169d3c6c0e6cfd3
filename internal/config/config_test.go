// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultBusConfigValidates(t *testing.T) {
	require.NoError(t, DefaultBusConfig().Validate())
}

func TestLoadBusConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_address: \":9000\"\nmax_envelope_bytes: 4096\n"), 0o644))

	cfg, err := LoadBusConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, 4096, cfg.MaxEnvelopeBytes)
}

func TestLoadBusConfigEnvOverrides(t *testing.T) {
	t.Setenv("BUS_SERVER_PORT", "5050")
	t.Setenv("BUS_MAX_ENV_BYTES", "2048")
	t.Setenv("BUS_OVERLOAD", "true")

	cfg, err := LoadBusConfig("")
	require.NoError(t, err)
	require.Equal(t, ":5050", cfg.ListenAddress)
	require.Equal(t, 2048, cfg.MaxEnvelopeBytes)
	require.Equal(t, "on", cfg.Overload)
}

func TestBusConfigValidateRejectsBadOverload(t *testing.T) {
	cfg := DefaultBusConfig()
	cfg.Overload = "sideways"
	require.Error(t, cfg.Validate())
}

func TestLoadAgentConfigRequiresAgentID(t *testing.T) {
	_, err := LoadAgentConfig("")
	require.Error(t, err)
}

func TestLoadAgentConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent_id: endpoint-1\ninterval: 15s\n"), 0o644))

	cfg, err := LoadAgentConfig(path)
	require.NoError(t, err)
	require.Equal(t, "endpoint-1", cfg.AgentID)
	require.Equal(t, 15*time.Second, cfg.Interval)
}
