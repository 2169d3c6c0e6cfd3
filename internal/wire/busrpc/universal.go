// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package busrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/amoskys/amoskys/internal/envelope"
)

// UniversalServer is implemented by the EventBus to serve the
// client-streaming PublishTelemetry RPC: an agent streams any number
// of envelopes and receives one aggregate UniversalAck when it closes
// its send side.
type UniversalServer interface {
	PublishTelemetry(stream Universal_PublishTelemetryServer) error
}

// Universal_PublishTelemetryServer is the server-side stream handle.
type Universal_PublishTelemetryServer interface {
	Recv() (*envelope.Envelope, error)
	SendAndClose(*UniversalAck) error
	grpc.ServerStream
}

type universalPublishTelemetryServer struct {
	grpc.ServerStream
}

func (x *universalPublishTelemetryServer) Recv() (*envelope.Envelope, error) {
	m := new(envelope.Envelope)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (x *universalPublishTelemetryServer) SendAndClose(m *UniversalAck) error {
	return x.ServerStream.SendMsg(m)
}

func _Universal_PublishTelemetry_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(UniversalServer).PublishTelemetry(&universalPublishTelemetryServer{ServerStream: stream})
}

// Universal_ServiceDesc is the hand-authored equivalent of what protoc
// would generate for a service with a single client-streaming method.
var Universal_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "amoskys.bus.Universal",
	HandlerType: (*UniversalServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "PublishTelemetry",
			Handler:       _Universal_PublishTelemetry_Handler,
			ClientStreams: true,
		},
	},
	Metadata: "amoskys/bus/universal",
}

// RegisterUniversalServer registers srv against s.
func RegisterUniversalServer(s grpc.ServiceRegistrar, srv UniversalServer) {
	s.RegisterService(&Universal_ServiceDesc, srv)
}

// UniversalClient is the agent-side handle for the Universal service.
type UniversalClient interface {
	PublishTelemetry(ctx context.Context, opts ...grpc.CallOption) (Universal_PublishTelemetryClient, error)
}

type universalClient struct {
	cc grpc.ClientConnInterface
}

// NewUniversalClient wraps an established *grpc.ClientConn as a
// UniversalClient.
func NewUniversalClient(cc grpc.ClientConnInterface) UniversalClient {
	return &universalClient{cc: cc}
}

func (c *universalClient) PublishTelemetry(ctx context.Context, opts ...grpc.CallOption) (Universal_PublishTelemetryClient, error) {
	stream, err := c.cc.NewStream(ctx, &Universal_ServiceDesc.Streams[0], "/amoskys.bus.Universal/PublishTelemetry", opts...)
	if err != nil {
		return nil, err
	}
	return &universalPublishTelemetryClient{ClientStream: stream}, nil
}

// Universal_PublishTelemetryClient is the client-side stream handle.
type Universal_PublishTelemetryClient interface {
	Send(*envelope.Envelope) error
	CloseAndRecv() (*UniversalAck, error)
	grpc.ClientStream
}

type universalPublishTelemetryClient struct {
	grpc.ClientStream
}

func (x *universalPublishTelemetryClient) Send(m *envelope.Envelope) error {
	return x.ClientStream.SendMsg(m)
}

func (x *universalPublishTelemetryClient) CloseAndRecv() (*UniversalAck, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(UniversalAck)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
