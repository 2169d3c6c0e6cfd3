// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package identity derives an envelope's `source_identity` field
// from an mTLS certificate common name, and
// loads the trust map that associates each trusted peer CN
// with an Ed25519 public key for the reserved envelope signature (not
// enforced by the current admission pipeline, but available so a
// future mandatory-signature mode is a configuration change, not a
// rewrite).
package identity

import (
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/amoskys/amoskys/internal/errors"
)

// TrustMapFile is the on-disk shape: `agents: { <peer-cn>:
// <path-to-ed25519-public-key> }`.
type TrustMapFile struct {
	Agents map[string]string `yaml:"agents"`
}

// TrustMap resolves a peer common name to its loaded Ed25519 public
// key.
type TrustMap struct {
	keys map[string]ed25519.PublicKey
}

// LoadTrustMap reads and parses the YAML trust map at path, loading
// every referenced public key eagerly so a malformed trust map fails
// fast at startup rather than at first verification attempt.
func LoadTrustMap(path string) (*TrustMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindPermanent, "read trust map")
	}
	var file TrustMapFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, errors.KindPermanent, "parse trust map")
	}

	tm := &TrustMap{keys: make(map[string]ed25519.PublicKey, len(file.Agents))}
	for cn, keyPath := range file.Agents {
		pub, err := loadEd25519PublicKey(keyPath)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindPermanent, "load public key for %q", cn)
		}
		tm.keys[cn] = pub
	}
	return tm, nil
}

func loadEd25519PublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New(errors.KindPermanent, "not PEM encoded")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New(errors.KindPermanent, "not an Ed25519 public key")
	}
	return edPub, nil
}

// Lookup returns the public key trusted for cn, if any.
func (tm *TrustMap) Lookup(cn string) (ed25519.PublicKey, bool) {
	pub, ok := tm.keys[cn]
	return pub, ok
}

// Trusted reports whether cn appears in the trust map at all,
// independent of signature verification. The EventBus admission
// pipeline does not call it: no admission path rejects an unknown peer
// CN, and none returns Ack status UNAUTHORIZED.
func (tm *TrustMap) Trusted(cn string) bool {
	_, ok := tm.keys[cn]
	return ok
}

// VerifySignature checks sig against canonical using cn's registered
// public key. Reserved for a future mandatory-signature mode; the
// current admission pipeline does not call this on the hot path.
func (tm *TrustMap) VerifySignature(cn string, canonical, sig []byte) bool {
	pub, ok := tm.keys[cn]
	if !ok {
		return false
	}
	return ed25519.Verify(pub, canonical, sig)
}

// PeerIdentity extracts the `source_identity` from an
// established mTLS connection state: the leaf certificate's common
// name.
func PeerIdentity(state tls.ConnectionState) (string, error) {
	if len(state.PeerCertificates) == 0 {
		return "", errors.New(errors.KindSecurity, "no peer certificate presented")
	}
	cn := state.PeerCertificates[0].Subject.CommonName
	if cn == "" {
		return "", errors.New(errors.KindSecurity, "peer certificate missing common name")
	}
	return cn, nil
}
