// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package busrpc

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/amoskys/amoskys/internal/envelope"
	"github.com/amoskys/amoskys/internal/model"
)

type fakeLegacyServer struct {
	received []*envelope.Envelope
}

func (f *fakeLegacyServer) Publish(ctx context.Context, env *envelope.Envelope) (*PublishAck, error) {
	f.received = append(f.received, env)
	return &PublishAck{Status: StatusOK, Reason: "accepted"}, nil
}

type fakeUniversalServer struct {
	received []*envelope.Envelope
}

func (f *fakeUniversalServer) PublishTelemetry(stream Universal_PublishTelemetryServer) error {
	count := int32(0)
	for {
		env, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&UniversalAck{Status: StatusOK, EventsAccepted: count})
		}
		if err != nil {
			return err
		}
		f.received = append(f.received, env)
		count++
	}
}

func startTestServer(t *testing.T, legacy LegacyServer, universal UniversalServer) *grpc.ClientConn {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	if legacy != nil {
		RegisterLegacyServer(srv, legacy)
	}
	if universal != nil {
		RegisterUniversalServer(srv, universal)
	}
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestLegacyPublishRoundTrip(t *testing.T) {
	fake := &fakeLegacyServer{}
	conn := startTestServer(t, fake, nil)
	client := NewLegacyClient(conn)

	env := envelope.NewFlow(1000, "key-1", "agent-1", model.FlowEvent{SrcIP: "10.0.0.1", DstIP: "10.0.0.2"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ack, err := client.Publish(ctx, env)
	require.NoError(t, err)
	require.Equal(t, StatusOK, ack.Status)
	require.Len(t, fake.received, 1)
	require.Equal(t, "key-1", fake.received[0].IdempotencyKey)
	require.Equal(t, envelope.KindFlow, fake.received[0].Payload.Kind)
	require.Equal(t, "10.0.0.1", fake.received[0].Payload.Flow.SrcIP)
}

func TestUniversalPublishTelemetryStreams(t *testing.T) {
	fake := &fakeUniversalServer{}
	conn := startTestServer(t, nil, fake)
	client := NewUniversalClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.PublishTelemetry(ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		env := envelope.NewProcess(uint64(1000+i), string(rune('a'+i)), "agent-1", model.ProcessEvent{PID: i, Executable: "/bin/sh"})
		require.NoError(t, stream.Send(env))
	}

	ack, err := stream.CloseAndRecv()
	require.NoError(t, err)
	require.Equal(t, StatusOK, ack.Status)
	require.Equal(t, int32(3), ack.EventsAccepted)
	require.Len(t, fake.received, 3)
}

func TestReservedOperationsAreUnimplemented(t *testing.T) {
	var s UnimplementedReservedServer
	ctx := context.Background()

	batchAck, err := s.PublishBatch(ctx, &PublishBatchRequest{})
	require.NoError(t, err)
	require.Equal(t, StatusUnimplemented, batchAck.Status)

	regAck, err := s.RegisterDevice(ctx, &RegisterDeviceRequest{DeviceID: "dev-1"})
	require.NoError(t, err)
	require.Equal(t, StatusUnimplemented, regAck.Status)

	healthAck, err := s.GetHealth(ctx, &GetHealthRequest{})
	require.NoError(t, err)
	require.Equal(t, StatusUnimplemented, healthAck.Status)

	metricsAck, err := s.GetMetrics(ctx, &GetMetricsRequest{})
	require.NoError(t, err)
	require.Equal(t, StatusUnimplemented, metricsAck.Status)

	subAck, err := s.Subscribe(ctx, &SubscribeRequest{DeviceID: "dev-1"})
	require.NoError(t, err)
	require.Equal(t, StatusUnimplemented, subAck.Status)
}
