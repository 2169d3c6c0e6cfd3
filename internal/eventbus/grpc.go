// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package eventbus

import (
	"context"
	"io"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/envelope"
	"github.com/amoskys/amoskys/internal/wire/busrpc"
)

// Publish implements busrpc.LegacyServer.
func (s *Server) Publish(ctx context.Context, env *envelope.Envelope) (*busrpc.PublishAck, error) {
	res := s.Admit(env)
	return &busrpc.PublishAck{Status: res.Status, Reason: res.Reason, BackoffHintMs: res.BackoffMs}, nil
}

// PublishTelemetry implements busrpc.UniversalServer: each streamed
// envelope runs through the same Admit pipeline; the aggregate ack
// reports how many were accepted and surfaces the last non-OK status,
// if any, using its additional PROCESSING_ERROR status for
// unexpected stream errors.
func (s *Server) PublishTelemetry(stream busrpc.Universal_PublishTelemetryServer) error {
	var accepted int32
	lastStatus := busrpc.StatusOK
	var lastReason string

	for {
		env, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&busrpc.UniversalAck{
				Status:               lastStatus,
				Reason:               lastReason,
				ProcessedTimestampNs: uint64(clock.Now().UnixNano()),
				EventsAccepted:       accepted,
			})
		}
		if err != nil {
			return stream.SendAndClose(&busrpc.UniversalAck{
				Status:         busrpc.StatusProcessingError,
				Reason:         "stream read failed",
				EventsAccepted: accepted,
			})
		}

		res := s.Admit(env)
		if res.Status == busrpc.StatusOK {
			accepted++
		} else {
			lastStatus = res.Status
			lastReason = res.Reason
		}
	}
}
