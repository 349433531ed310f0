// Package bootstrap implements spec.md §4.4 step (1)'s candidate
// discovery: locating the physical addresses of already-connected
// nodes a joining node can send BootstrapDiscover to. It never decides
// overlay membership itself (that is internal/algorithm/bootstrap's
// job) — it only answers "who might I ask".
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"minhton/internal/config"
	"minhton/internal/logger"
	"minhton/internal/mdomain"
)

// Discoverer resolves the set of candidate peer addresses to contact.
type Discoverer interface {
	Discover(ctx context.Context) ([]mdomain.PhysicalAddress, error)
}

// New builds a Discoverer for the configured mode.
func New(cfg config.BootstrapConfig, lgr logger.Logger) (Discoverer, error) {
	switch cfg.Mode {
	case "static":
		return NewStatic(cfg.Peers)
	case "dns":
		return NewDNS(cfg, lgr), nil
	case "route53":
		return NewRoute53(cfg, lgr)
	case "docker":
		return NewDocker(cfg.Docker), nil
	default:
		return nil, fmt.Errorf("bootstrap: unsupported mode %q", cfg.Mode)
	}
}

// parseAddr turns a "host:port" string into a PhysicalAddress, returning
// an error for a malformed entry.
func parseAddr(s string) (mdomain.PhysicalAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return mdomain.PhysicalAddress{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return mdomain.PhysicalAddress{}, fmt.Errorf("bootstrap: invalid port in %q: %w", s, err)
	}
	return mdomain.PhysicalAddress{IP: host, Port: uint16(port)}, nil
}
