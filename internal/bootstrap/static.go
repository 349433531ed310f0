package bootstrap

import (
	"context"

	"minhton/internal/mdomain"
)

// Static resolves to a fixed, operator-supplied peer list.
type Static struct {
	peers []mdomain.PhysicalAddress
}

// NewStatic parses cfg's "host:port" peer list once at construction.
func NewStatic(peers []string) (*Static, error) {
	addrs := make([]mdomain.PhysicalAddress, 0, len(peers))
	for _, p := range peers {
		a, err := parseAddr(p)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return &Static{peers: addrs}, nil
}

func (s *Static) Discover(ctx context.Context) ([]mdomain.PhysicalAddress, error) {
	return s.peers, nil
}
