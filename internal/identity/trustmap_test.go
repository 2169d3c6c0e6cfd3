// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package identity

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeEd25519PEM(t *testing.T, dir, name string, pub ed25519.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o644))
	return path
}

func TestLoadTrustMapAndVerify(t *testing.T) {
	dir := t.TempDir()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	keyPath := writeEd25519PEM(t, dir, "agent-1.pub", pub)

	tmFile := TrustMapFile{Agents: map[string]string{"agent-1": keyPath}}
	raw, err := yaml.Marshal(tmFile)
	require.NoError(t, err)
	mapPath := filepath.Join(dir, "trust.yaml")
	require.NoError(t, os.WriteFile(mapPath, raw, 0o644))

	tm, err := LoadTrustMap(mapPath)
	require.NoError(t, err)
	require.True(t, tm.Trusted("agent-1"))
	require.False(t, tm.Trusted("agent-2"))

	msg := []byte("canonical envelope bytes")
	sig := ed25519.Sign(priv, msg)
	require.True(t, tm.VerifySignature("agent-1", msg, sig))
	require.False(t, tm.VerifySignature("agent-1", msg, append([]byte{}, sig[:len(sig)-1]...)))
	require.False(t, tm.VerifySignature("unknown", msg, sig))
}

func TestLoadTrustMapRejectsMissingFile(t *testing.T) {
	_, err := LoadTrustMap(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestLoadTrustMapRejectsNonEd25519Key(t *testing.T) {
	dir := t.TempDir()
	badPath := filepath.Join(dir, "bad.pub")
	require.NoError(t, os.WriteFile(badPath, []byte("not a pem key"), 0o644))

	mapPath := filepath.Join(dir, "trust.yaml")
	raw, err := yaml.Marshal(TrustMapFile{Agents: map[string]string{"agent-1": badPath}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(mapPath, raw, 0o644))

	_, err = LoadTrustMap(mapPath)
	require.Error(t, err)
}
