// Package rpcwatch serves the broker's watch path as a server-streaming gRPC
// method. Requests and responses are google.protobuf.Struct messages holding
// the same JSON objects the socket transports exchange.
package rpcwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
)

const (
	// ServiceName is the fully qualified gRPC service name
	ServiceName = "shellwatch.v1.Events"
	// WatchMethod is the full method path of Watch
	WatchMethod = "/" + ServiceName + "/Watch"
)

// ErrWatchRejected is returned by Watch when the server answers the
// request with an error response
var ErrWatchRejected = errors.New("watch request rejected")

// EventsServer is the server API for the Events service
type EventsServer interface {
	// Watch subscribes the stream to the requested topics. The first
	// message sent is the watch response; records follow.
	Watch(req *structpb.Struct, stream WatchStream) error
}

// WatchStream is the server side of a Watch call
type WatchStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchStream struct {
	grpc.ServerStream
}

func (s *watchStream) Send(msg *structpb.Struct) error {
	return s.ServerStream.SendMsg(msg)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(EventsServer).Watch(req, &watchStream{stream})
}

// ServiceDesc describes the Events service for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventsServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "shellwatch/v1/events.proto",
}

// RegisterEventsServer registers srv with s
func RegisterEventsServer(s grpc.ServiceRegistrar, srv EventsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Stream is the client side of an accepted Watch call
type Stream struct {
	cs grpc.ClientStream
}

// Watch subscribes to events over conn. A nil list watches every topic the
// server knows; an empty non-nil list is an empty explicit list. Watch
// returns once the server has accepted the request.
func Watch(ctx context.Context, conn grpc.ClientConnInterface, events []string) (*Stream, error) {
	cs, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], WatchMethod)
	if err != nil {
		return nil, fmt.Errorf("failed to open watch stream: %w", err)
	}

	body := map[string]any{}
	if events != nil {
		body[brokerpkg.EventsField] = events
	}
	req, err := toStruct(body)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, fmt.Errorf("failed to send watch request: %w", err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, fmt.Errorf("failed to close send side: %w", err)
	}

	first := new(structpb.Struct)
	if err := cs.RecvMsg(first); err != nil {
		return nil, fmt.Errorf("failed to receive watch response: %w", err)
	}
	resp := brokerpkg.Response(first.AsMap())
	if !resp.IsOK() {
		return nil, fmt.Errorf("%w: %s", ErrWatchRejected, resp.Message())
	}
	return &Stream{cs: cs}, nil
}

// Recv blocks for the next record. It returns io.EOF when the server ends
// the stream.
func (s *Stream) Recv() (*record.Record, error) {
	msg := new(structpb.Struct)
	if err := s.cs.RecvMsg(msg); err != nil {
		return nil, err
	}
	return record.FromMap(msg.AsMap())
}

// toStruct converts any JSON-encodable value holding an object into a Struct
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	msg := new(structpb.Struct)
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to convert message: %w", err)
	}
	return msg, nil
}
