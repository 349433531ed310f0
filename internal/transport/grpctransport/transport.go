// Package grpctransport is the real point-to-point transport: a single
// Deliver unary RPC carrying transport/codec.Envelope values, registered
// with a hand-written grpc.ServiceDesc instead of protoc-generated
// stubs, since the envelope is deliberately not a protobuf message
// (spec.md §1 keeps the payload codec a pluggable collaborator; only
// the RPC plumbing itself is real grpc.Server/grpc.ClientConn, per
// SPEC_FULL.md §B).
package grpctransport

import (
	"context"
	"fmt"
	"reflect"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"minhton/internal/logger"
	"minhton/internal/mdomain"
	"minhton/internal/transport/codec"
)

// Handler is implemented by whatever owns message dispatch for a node
// (internal/mnode.Node): decode the payload per envelope.Header.Type
// and run it through the FSM/algorithm layer.
type Handler interface {
	Deliver(ctx context.Context, h mdomain.Header, payload any) error
}

// Server adapts a Handler to the hand-written Transport grpc service.
type Server struct {
	handler Handler
	lgr     logger.Logger
}

// NewServer wraps h for registration with a grpc.Server via
// RegisterTransportServer.
func NewServer(h Handler, lgr logger.Logger) *Server {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Server{handler: h, lgr: lgr}
}

func (s *Server) deliver(ctx context.Context, env *codec.Envelope) (*codec.Envelope, error) {
	payload, err := mdomain.NewPayload(env.PayloadType)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := codec.Decode(env, payload); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode payload: %v", err)
	}
	if err := env.Header.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.handler.Deliver(ctx, env.Header, derefPayload(payload)); err != nil {
		s.lgr.Warn("grpctransport: handler error", logger.F("type", env.Header.Type.String()), logger.F("err", err))
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &codec.Envelope{Header: mdomain.Header{Sender: env.Header.Target, Target: env.Header.Sender, Type: mdomain.MsgEmpty, EventID: env.Header.EventID}}, nil
}

// derefPayload unwraps the pointer mdomain.NewPayload hands back into
// the plain value every algorithm Handle* method expects.
func derefPayload(p any) any {
	v := reflect.ValueOf(p)
	if v.Kind() == reflect.Ptr {
		return v.Elem().Interface()
	}
	return p
}

// RegisterTransportServer registers s with gs using the hand-written
// ServiceDesc below.
func RegisterTransportServer(gs *grpc.Server, s *Server) {
	gs.RegisterService(&serviceDesc, s)
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	env := new(codec.Envelope)
	if err := dec(env); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).deliver(ctx, env)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/minhton.transport.v1.Transport/Deliver"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).deliver(ctx, req.(*codec.Envelope))
	}
	return interceptor(ctx, env, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "minhton.transport.v1.Transport",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "minhton/transport.proto",
}

// Client implements algorithm.Sender over a pool of grpc.ClientConns,
// one per physical address, mirroring the teacher's client.ClientPool
// shape.
type Client struct {
	pool *connPool
	lgr  logger.Logger
}

// NewClient creates a Client with its own connection pool.
func NewClient(lgr logger.Logger) *Client {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Client{pool: newConnPool(), lgr: lgr}
}

func (c *Client) Send(ctx context.Context, to mdomain.NodeRef, h mdomain.Header, payload any) error {
	if !to.Physical.Initialized() {
		return fmt.Errorf("grpctransport: target %s has no physical address", to.Logical.String())
	}
	conn, err := c.pool.get(to.Physical)
	if err != nil {
		return err
	}
	env, err := codec.Encode(h, payload)
	if err != nil {
		return err
	}
	out := new(codec.Envelope)
	return conn.Invoke(ctx, "/minhton.transport.v1.Transport/Deliver", env, out)
}

// SendExact is not implemented at the transport layer: spec.md §4.8
// routes search-exact hop by hop through algorithm/searchexact, each
// hop using Send against a concretely known neighbor.
func (c *Client) SendExact(ctx context.Context, target mdomain.LogicalPosition, h mdomain.Header, payload any) error {
	return fmt.Errorf("grpctransport: SendExact is not a transport primitive; route via algorithm/searchexact")
}

// Close releases every pooled connection.
func (c *Client) Close() error { return c.pool.closeAll() }
