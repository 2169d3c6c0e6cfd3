// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amoskys/amoskys/internal/model"
)

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.log")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAuthLogCollectorParsesSSHFailure(t *testing.T) {
	path := writeLog(t)
	c := NewAuthLogCollector("dev-1", path)

	require.NoError(t, os.WriteFile(path, []byte("Jul 1 sshd[123]: Failed password for invalid user root from 10.0.0.5 port 22 ssh2\n"), 0o644))
	envs, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, envs, 1)

	dt := envs[0].Payload.Telemetry
	require.NotNil(t, dt)
	require.Len(t, dt.Events, 1)
	require.Equal(t, model.OutcomeFailure, dt.Events[0].Security.Outcome)
}

func TestAuthLogCollectorTailsFromEndOnFirstOpen(t *testing.T) {
	path := writeLog(t, "Jul 1 sshd[1]: Accepted publickey for alice from 10.0.0.1 port 22 ssh2")
	c := NewAuthLogCollector("dev-1", path)

	envs, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Empty(t, envs, "pre-existing lines must not be replayed on first cycle")
}

func TestAuthLogCollectorDetectsNewSudoLine(t *testing.T) {
	path := writeLog(t)
	c := NewAuthLogCollector("dev-1", path)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("Jul 1 sudo: bob : TTY=pts/0 ; PWD=/home/bob ; USER=root ; COMMAND=/bin/cat /etc/shadow\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	envs, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, envs, 1)
}

func TestParseAuthLineRecognizesAllThreeForms(t *testing.T) {
	now := time.Now()

	ev, ok := parseAuthLine("sshd[1]: Failed password for bob from 1.2.3.4 port 22 ssh2", now)
	require.True(t, ok)
	require.Equal(t, model.OutcomeFailure, ev.Security.Outcome)
	require.Equal(t, "1.2.3.4", ev.Security.SourceIP)

	ev, ok = parseAuthLine("sshd[1]: Accepted password for bob from 1.2.3.4 port 22 ssh2", now)
	require.True(t, ok)
	require.Equal(t, model.OutcomeSuccess, ev.Security.Outcome)

	ev, ok = parseAuthLine("sudo: bob : COMMAND=/usr/bin/whoami", now)
	require.True(t, ok)
	require.Equal(t, model.OutcomeSudo, ev.Security.Outcome)
	require.Equal(t, "/usr/bin/whoami", ev.Security.Command)

	_, ok = parseAuthLine("some unrelated log line", now)
	require.False(t, ok)
}
