package grpctransport

import (
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"minhton/internal/mdomain"
	"minhton/internal/transport/codec"
)

func init() {
	encoding.RegisterCodec(codec.GRPCCodec{})
}

// connPool is a reusable-connection pool keyed by physical address,
// adapted from the teacher's client.ClientPool to dial with the
// envelope codec forced on every call instead of protobuf's default.
type connPool struct {
	mu    sync.RWMutex
	conns map[string]*grpc.ClientConn
	opts  []grpc.DialOption
}

func newConnPool(opts ...grpc.DialOption) *connPool {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.ForceCodec(codec.GRPCCodec{})))
	return &connPool{conns: make(map[string]*grpc.ClientConn), opts: opts}
}

func (p *connPool) get(addr mdomain.PhysicalAddress) (*grpc.ClientConn, error) {
	key := addr.String()
	p.mu.RLock()
	conn, ok := p.conns[key]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok = p.conns[key]; ok {
		return conn, nil
	}
	newConn, err := grpc.NewClient(fmt.Sprintf("%s:%d", addr.IP, addr.Port), p.opts...)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: dial %s: %w", key, err)
	}
	p.conns[key] = newConn
	return newConn, nil
}

func (p *connPool) closeAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for addr, conn := range p.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.conns, addr)
	}
	return firstErr
}
