// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amoskys/amoskys/internal/model"
)

func TestFIMCollectorDetectsNewFile(t *testing.T) {
	root := t.TempDir()
	baseline := filepath.Join(t.TempDir(), "baseline.json")

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))

	c := NewFIMCollector("dev-1", []string{root}, baseline)
	envs, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, envs, 1, "first cycle must report every file as created against an empty baseline")

	require.FileExists(t, baseline)

	envs, err = c.Collect(context.Background())
	require.NoError(t, err)
	require.Empty(t, envs, "no change since last cycle means nothing to report")
}

func TestFIMCollectorDetectsModifiedFile(t *testing.T) {
	root := t.TempDir()
	baseline := filepath.Join(t.TempDir(), "baseline.json")
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	c := NewFIMCollector("dev-1", []string{root}, baseline)
	_, err := c.Collect(context.Background())
	require.NoError(t, err)

	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
	require.NoError(t, os.WriteFile(path, []byte("changed contents"), 0o644))

	envs, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, envs, 1)
	require.Equal(t, model.EventAudit, envs[0].Payload.Telemetry.Events[0].EventType)
}

func TestSaveAndLoadBaselineRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "baseline.json")
	baseline := map[string]model.FileState{
		"/etc/passwd": {Size: 42},
	}
	require.NoError(t, saveBaseline(path, baseline))

	loaded, err := loadBaseline(path)
	require.NoError(t, err)
	require.Equal(t, baseline, loaded)
}
