// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package envelope implements the wire-unit codec: a
// versioned envelope carrying exactly one payload variant, with a
// deterministic canonical serialization for the (reserved) signature and
// a legacy-bytes fallback that re-parses into the same tagged union, so
// the decode side never has to dynamically dispatch on payload type.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/amoskys/amoskys/internal/errors"
	"github.com/amoskys/amoskys/internal/model"
)

// CurrentVersion is the only protocol version this codec emits.
const CurrentVersion = "v1"

// DefaultMaxBytes is MAX_ENV_BYTES unless overridden by
// BUS_MAX_ENV_BYTES.
const DefaultMaxBytes = 131072

// Kind tags which variant of Payload is populated.
type Kind int

const (
	KindUnknown Kind = iota
	KindFlow
	KindDeviceTelemetry
	KindProcess
	KindLegacy
)

// Payload is the tagged union: exactly one field is non-nil,
// selected by Kind. Legacy holds raw bytes that are re-parsed into one of
// the structured variants on decode, a compatibility fallback for
// senders still emitting the dynamically-dispatched payload shape.
type Payload struct {
	Kind      Kind                   `json:"kind"`
	Flow      *model.FlowEvent       `json:"flow,omitempty"`
	Telemetry *model.DeviceTelemetry `json:"telemetry,omitempty"`
	Process   *model.ProcessEvent    `json:"process,omitempty"`
	Legacy    []byte                 `json:"legacy,omitempty"`
}

// Envelope is the wire unit exchanged between agent and bus.
type Envelope struct {
	Version        string  `json:"version"`
	TSNs           uint64  `json:"ts_ns"`
	IdempotencyKey string  `json:"idempotency_key"`
	SourceIdentity string  `json:"source_identity"`
	Payload        Payload `json:"payload"`
	// Signature is reserved: Ed25519 over CanonicalBytes. Not enforced
	// by the current admission pipeline.
	Signature []byte `json:"signature,omitempty"`
}

// Validate checks the invariants that do not depend on size.
func (e *Envelope) Validate() error {
	if e.TSNs == 0 {
		return errors.New(errors.KindPermanent, "ts_ns must be > 0")
	}
	if e.IdempotencyKey == "" {
		return errors.New(errors.KindPermanent, "idempotency_key must be non-empty")
	}
	if len(e.IdempotencyKey) > 128 {
		return errors.New(errors.KindPermanent, "idempotency_key exceeds 128 bytes")
	}
	if e.Payload.Kind == KindUnknown {
		return errors.New(errors.KindPermanent, "envelope missing flow/payload")
	}
	return nil
}

// CanonicalBytes returns the deterministic serialization used as the
// signature basis: fixed field order (struct declaration order, which
// encoding/json preserves) with the Signature field itself excluded.
func (e *Envelope) CanonicalBytes() ([]byte, error) {
	unsigned := *e
	unsigned.Signature = nil
	return json.Marshal(unsigned)
}

// Encode serializes the full envelope, including the signature, for
// transport and WAL storage.
func Encode(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Size returns the exact wire length of e, matching the admission
// pipeline's size gate (no partial parse required).
func Size(e *Envelope) (int, error) {
	b, err := Encode(e)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Decode parses wire bytes into an Envelope. The codec tolerates unknown
// fields for forward compatibility: decoding into the versioned struct
// simply drops fields it doesn't recognize.
func Decode(b []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrap(err, errors.KindPermanent, "malformed envelope")
	}
	if e.Payload.Kind == KindLegacy && len(e.Payload.Legacy) > 0 {
		if reparsed, ok := reparseLegacy(e.Payload.Legacy); ok {
			e.Payload = reparsed
		}
	}
	return &e, nil
}

// reparseLegacy attempts to decode legacy bytes into one of the structured
// payload variants, in the order DeviceTelemetry, FlowEvent, ProcessEvent.
// This is the only place in the codec that pattern-matches on shape;
// everything downstream works off the typed Kind tag instead.
func reparseLegacy(raw []byte) (Payload, bool) {
	var dt model.DeviceTelemetry
	if err := json.Unmarshal(raw, &dt); err == nil && dt.DeviceID != "" {
		return Payload{Kind: KindDeviceTelemetry, Telemetry: &dt}, true
	}
	var fe model.FlowEvent
	if err := json.Unmarshal(raw, &fe); err == nil && (fe.SrcIP != "" || fe.DstIP != "") {
		return Payload{Kind: KindFlow, Flow: &fe}, true
	}
	var pe model.ProcessEvent
	if err := json.Unmarshal(raw, &pe); err == nil && pe.Executable != "" {
		return Payload{Kind: KindProcess, Process: &pe}, true
	}
	return Payload{}, false
}

// NewFlow builds a v1 envelope wrapping a FlowEvent.
func NewFlow(tsNs uint64, idemKey, sourceIdentity string, fe model.FlowEvent) *Envelope {
	return &Envelope{
		Version:        CurrentVersion,
		TSNs:           tsNs,
		IdempotencyKey: idemKey,
		SourceIdentity: sourceIdentity,
		Payload:        Payload{Kind: KindFlow, Flow: &fe},
	}
}

// NewTelemetry builds a v1 envelope wrapping a DeviceTelemetry batch.
func NewTelemetry(tsNs uint64, idemKey, sourceIdentity string, dt model.DeviceTelemetry) *Envelope {
	return &Envelope{
		Version:        CurrentVersion,
		TSNs:           tsNs,
		IdempotencyKey: idemKey,
		SourceIdentity: sourceIdentity,
		Payload:        Payload{Kind: KindDeviceTelemetry, Telemetry: &dt},
	}
}

// NewProcess builds a v1 envelope wrapping a ProcessEvent.
func NewProcess(tsNs uint64, idemKey, sourceIdentity string, pe model.ProcessEvent) *Envelope {
	return &Envelope{
		Version:        CurrentVersion,
		TSNs:           tsNs,
		IdempotencyKey: idemKey,
		SourceIdentity: sourceIdentity,
		Payload:        Payload{Kind: KindProcess, Process: &pe},
	}
}

// CheckSize enforces the wire-size limit, formatting the reason as
// "Envelope too large (N > LIMIT bytes)".
func CheckSize(e *Envelope, maxBytes int) (int, error) {
	n, err := Size(e)
	if err != nil {
		return 0, err
	}
	if n > maxBytes {
		return n, fmt.Errorf("Envelope too large (%d > %d bytes)", n, maxBytes)
	}
	return n, nil
}
