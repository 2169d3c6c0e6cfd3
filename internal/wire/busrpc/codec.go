// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package busrpc implements the wire protocol directly against
// google.golang.org/grpc's codegen contract (grpc.ServiceDesc,
// grpc.MethodDesc, grpc.StreamDesc) rather than protoc-generated stubs:
// a JSON encoding.Codec stands in for the protobuf wire format, so the
// Legacy and Universal services are ordinary Go structs moved over a
// real gRPC transport (HTTP/2, mTLS, deadlines, flow control) without a
// .proto toolchain step.
package busrpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec implements encoding.Codec. It registers itself under the
// name "proto" so it transparently replaces grpc-go's built-in
// protobuf codec for every message exchanged by this process — there
// are no other RPC clients or generated protobuf types sharing the
// process, so nothing else depends on the real wire format.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
