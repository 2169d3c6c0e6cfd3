// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package busrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/amoskys/amoskys/internal/envelope"
)

// LegacyServer is implemented by the EventBus to serve the single
// unary Publish RPC.
type LegacyServer interface {
	Publish(ctx context.Context, env *envelope.Envelope) (*PublishAck, error)
}

// LegacyClient is the agent-side handle for the Legacy service.
type LegacyClient interface {
	Publish(ctx context.Context, env *envelope.Envelope, opts ...grpc.CallOption) (*PublishAck, error)
}

type legacyClient struct {
	cc grpc.ClientConnInterface
}

// NewLegacyClient wraps an established *grpc.ClientConn as a
// LegacyClient.
func NewLegacyClient(cc grpc.ClientConnInterface) LegacyClient {
	return &legacyClient{cc: cc}
}

func (c *legacyClient) Publish(ctx context.Context, env *envelope.Envelope, opts ...grpc.CallOption) (*PublishAck, error) {
	out := new(PublishAck)
	if err := c.cc.Invoke(ctx, "/amoskys.bus.Legacy/Publish", env, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Legacy_Publish_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(envelope.Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LegacyServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/amoskys.bus.Legacy/Publish"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LegacyServer).Publish(ctx, req.(*envelope.Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

// Legacy_ServiceDesc is the hand-authored equivalent of what protoc
// would generate for a service with a single unary method.
var Legacy_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "amoskys.bus.Legacy",
	HandlerType: (*LegacyServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: _Legacy_Publish_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "amoskys/bus/legacy",
}

// RegisterLegacyServer registers srv against s the way a generated
// RegisterXxxServer function would.
func RegisterLegacyServer(s grpc.ServiceRegistrar, srv LegacyServer) {
	s.RegisterService(&Legacy_ServiceDesc, srv)
}
