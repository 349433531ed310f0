// Package register implements self-registration: once a node has
// joined the overlay (spec.md §4.4), it advertises itself in a
// rendezvous store so later joiners' internal/bootstrap discovery can
// find it, independent of whatever discovery mode those joiners use.
package register

import (
	"context"
	"fmt"

	"minhton/internal/config"
)

// Registrar publishes and retracts a node's reachability record.
type Registrar interface {
	RegisterNode(ctx context.Context, nodeID, targetHost string, port int) error
	DeregisterNode(ctx context.Context, nodeID, targetHost string, port int) error
	RenewNode(ctx context.Context, nodeID, targetHost string, port int) error
	Close() error
}

// New builds the Registrar named by cfg.Backend.
func New(ctx context.Context, cfg config.RegisterConfig) (Registrar, error) {
	switch cfg.Backend {
	case "route53":
		return NewRoute53Registrar(ctx, cfg.Route53.HostedZoneID, cfg.Route53.DomainSuffix, cfg.Route53.TTL)
	case "etcd":
		return NewEtcdRegistrar(cfg.Etcd.Endpoints, cfg.Etcd.KeyPrefix, cfg.Etcd.LeaseTTL)
	default:
		return nil, fmt.Errorf("register: unsupported backend %q", cfg.Backend)
	}
}
