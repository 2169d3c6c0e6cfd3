// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package busrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/amoskys/amoskys/internal/envelope"
)

// The operations below are named in §4.1/§6.1 as reserved: batch
// publish, device lifecycle, health/metrics, and subscribe. None has a
// designed admission path yet, so every handler responds UNIMPLEMENTED
// without touching the WAL, dedupe cache, or in-flight gate.

// PublishBatchRequest carries a batch of envelopes for a single RPC.
type PublishBatchRequest struct {
	Envelopes []*envelope.Envelope
}

// PublishBatchAck is the batch publish response; only Status/Reason
// are populated while the operation is unimplemented.
type PublishBatchAck struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// RegisterDeviceRequest names a device the agent runtime intends to
// register its lifecycle against.
type RegisterDeviceRequest struct {
	DeviceID   string
	DeviceType string
}

// RegisterDeviceAck is the device-registration response.
type RegisterDeviceAck struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// GetHealthRequest is the (empty) health-query request.
type GetHealthRequest struct{}

// GetHealthAck is the health-query response.
type GetHealthAck struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// GetMetricsRequest is the (empty) metrics-query request.
type GetMetricsRequest struct{}

// GetMetricsAck is the metrics-query response.
type GetMetricsAck struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// SubscribeRequest names the device whose stream a caller wants to
// subscribe to. Real-time streaming to UI clients is a non-goal
// (§1); this RPC exists only so the reserved operation has a slot.
type SubscribeRequest struct {
	DeviceID string
}

// SubscribeAck is the subscribe response.
type SubscribeAck struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func unimplementedAck(reason string) (status, msg string) {
	return StatusUnimplemented, reason
}

// ReservedServer is implemented by the EventBus to serve the reserved,
// not-yet-designed operations named in §4.1: PublishBatch,
// RegisterDevice, GetHealth, GetMetrics, and Subscribe. The default
// implementation embedded by Server (UnimplementedReservedServer)
// answers all of them with UNIMPLEMENTED.
type ReservedServer interface {
	PublishBatch(ctx context.Context, req *PublishBatchRequest) (*PublishBatchAck, error)
	RegisterDevice(ctx context.Context, req *RegisterDeviceRequest) (*RegisterDeviceAck, error)
	GetHealth(ctx context.Context, req *GetHealthRequest) (*GetHealthAck, error)
	GetMetrics(ctx context.Context, req *GetMetricsRequest) (*GetMetricsAck, error)
	Subscribe(ctx context.Context, req *SubscribeRequest) (*SubscribeAck, error)
}

// UnimplementedReservedServer answers every reserved operation with
// UNIMPLEMENTED. Embed it in a concrete server so adding a new
// reserved method to the interface never breaks existing callers.
type UnimplementedReservedServer struct{}

func (UnimplementedReservedServer) PublishBatch(context.Context, *PublishBatchRequest) (*PublishBatchAck, error) {
	status, reason := unimplementedAck("PublishBatch is reserved and not yet designed")
	return &PublishBatchAck{Status: status, Reason: reason}, nil
}

func (UnimplementedReservedServer) RegisterDevice(context.Context, *RegisterDeviceRequest) (*RegisterDeviceAck, error) {
	status, reason := unimplementedAck("RegisterDevice is reserved and not yet designed")
	return &RegisterDeviceAck{Status: status, Reason: reason}, nil
}

func (UnimplementedReservedServer) GetHealth(context.Context, *GetHealthRequest) (*GetHealthAck, error) {
	status, reason := unimplementedAck("GetHealth is reserved and not yet designed")
	return &GetHealthAck{Status: status, Reason: reason}, nil
}

func (UnimplementedReservedServer) GetMetrics(context.Context, *GetMetricsRequest) (*GetMetricsAck, error) {
	status, reason := unimplementedAck("GetMetrics is reserved and not yet designed")
	return &GetMetricsAck{Status: status, Reason: reason}, nil
}

func (UnimplementedReservedServer) Subscribe(context.Context, *SubscribeRequest) (*SubscribeAck, error) {
	status, reason := unimplementedAck("Subscribe is reserved and not yet designed")
	return &SubscribeAck{Status: status, Reason: reason}, nil
}

func _Reserved_PublishBatch_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PublishBatchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReservedServer).PublishBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/amoskys.bus.Reserved/PublishBatch"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReservedServer).PublishBatch(ctx, req.(*PublishBatchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Reserved_RegisterDevice_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RegisterDeviceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReservedServer).RegisterDevice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/amoskys.bus.Reserved/RegisterDevice"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReservedServer).RegisterDevice(ctx, req.(*RegisterDeviceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Reserved_GetHealth_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetHealthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReservedServer).GetHealth(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/amoskys.bus.Reserved/GetHealth"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReservedServer).GetHealth(ctx, req.(*GetHealthRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Reserved_GetMetrics_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetMetricsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReservedServer).GetMetrics(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/amoskys.bus.Reserved/GetMetrics"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReservedServer).GetMetrics(ctx, req.(*GetMetricsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Reserved_Subscribe_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubscribeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReservedServer).Subscribe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/amoskys.bus.Reserved/Subscribe"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReservedServer).Subscribe(ctx, req.(*SubscribeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Reserved_ServiceDesc is the hand-authored equivalent of what protoc
// would generate for the reserved operations' service.
var Reserved_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "amoskys.bus.Reserved",
	HandlerType: (*ReservedServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PublishBatch", Handler: _Reserved_PublishBatch_Handler},
		{MethodName: "RegisterDevice", Handler: _Reserved_RegisterDevice_Handler},
		{MethodName: "GetHealth", Handler: _Reserved_GetHealth_Handler},
		{MethodName: "GetMetrics", Handler: _Reserved_GetMetrics_Handler},
		{MethodName: "Subscribe", Handler: _Reserved_Subscribe_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "amoskys/bus/reserved",
}

// RegisterReservedServer registers srv against s.
func RegisterReservedServer(s grpc.ServiceRegistrar, srv ReservedServer) {
	s.RegisterService(&Reserved_ServiceDesc, srv)
}
