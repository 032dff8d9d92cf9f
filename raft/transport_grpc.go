package raft

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// jsonCodecName is the content-subtype both client and server negotiate
// on. No .proto-generated types exist for this service; every message
// that crosses the wire is one of the plain structs in messages.go,
// marshaled as JSON instead of protobuf wire format.
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return jsonCodecName }

const serviceName = "raft.Election"

var heartbeatMethod = serviceName + "/Heartbeat"
var voteRequestMethod = serviceName + "/RequestVote"

// serviceDesc wires the two RPCs by hand: there is no generated stub
// package to import, so the handlers decode straight into the structs
// defined in messages.go via the json codec registered above.
func serviceDesc(s *grpcServerImpl) grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Heartbeat",
				Handler: func(_ interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
					var req HeartbeatReq
					if err := dec(&req); err != nil {
						return nil, err
					}
					return s.target.Heartbeat(ctx, req)
				},
			},
			{
				MethodName: "RequestVote",
				Handler: func(_ interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
					var req VoteReq
					if err := dec(&req); err != nil {
						return nil, err
					}
					return s.target.VoteRequest(ctx, req)
				},
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "raft/transport_grpc.go",
	}
}

type grpcServerImpl struct {
	target LocalNode
}

// GRPCServer hosts a single node's RPC surface for remote peers.
type GRPCServer struct {
	server *grpc.Server
}

// NewGRPCServer builds a *grpc.Server exposing node over the network.
// The caller is responsible for calling Serve on a net.Listener.
func NewGRPCServer(node LocalNode) *GRPCServer {
	srv := grpc.NewServer()
	impl := &grpcServerImpl{target: node}
	desc := serviceDesc(impl)
	srv.RegisterService(&desc, impl)
	return &GRPCServer{server: srv}
}

// Server exposes the underlying *grpc.Server so the caller can attach it
// to a listener (grpc.Server.Serve) or register additional services.
func (s *GRPCServer) Server() *grpc.Server { return s.server }

// GracefulStop stops accepting new RPCs and waits for in-flight ones to
// finish.
func (s *GRPCServer) GracefulStop() { s.server.GracefulStop() }

// GRPCTransport is a network Transport backed by grpc-go, resolving
// peer addresses through an AddressBook and caching one connection per
// peer for the lifetime of the transport.
type GRPCTransport struct {
	book    *AddressBook
	timeout time.Duration

	mu    sync.Mutex
	conns map[NodeId]*grpc.ClientConn
}

// NewGRPCTransport returns a GRPCTransport resolving peers via book,
// with a per-RPC timeout.
func NewGRPCTransport(book *AddressBook, timeout time.Duration) *GRPCTransport {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &GRPCTransport{
		book:    book,
		timeout: timeout,
		conns:   make(map[NodeId]*grpc.ClientConn),
	}
}

func (t *GRPCTransport) connFor(target NodeId) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if conn, ok := t.conns[target]; ok {
		return conn, nil
	}

	addr, ok := t.book.Lookup(target)
	if !ok {
		return nil, fmt.Errorf("raft: no address registered for %s", target)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	t.conns[target] = conn
	return conn, nil
}

func (t *GRPCTransport) SendHeartbeat(ctx context.Context, target NodeId, req HeartbeatReq) (HeartbeatResp, error) {
	conn, err := t.connFor(target)
	if err != nil {
		return HeartbeatResp{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var resp HeartbeatResp
	if err := conn.Invoke(ctx, "/"+heartbeatMethod, req, &resp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return HeartbeatResp{}, err
	}
	return resp, nil
}

func (t *GRPCTransport) SendVoteRequest(ctx context.Context, target NodeId, req VoteReq) (VoteResp, error) {
	conn, err := t.connFor(target)
	if err != nil {
		return VoteResp{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var resp VoteResp
	if err := conn.Invoke(ctx, "/"+voteRequestMethod, req, &resp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return VoteResp{}, err
	}
	return resp, nil
}

// Close tears down every cached connection.
func (t *GRPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for id, conn := range t.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close connection to %s: %w", id, err)
		}
	}
	t.conns = make(map[NodeId]*grpc.ClientConn)
	return firstErr
}
