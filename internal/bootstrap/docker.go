package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"minhton/internal/config"
	"minhton/internal/mdomain"
)

// Docker discovers candidate peers by container name suffix on a
// shared Docker network, using the Engine API client directly rather
// than shelling out to the docker CLI.
type Docker struct {
	suffix  string
	port    uint16
	network string
}

func NewDocker(cfg config.DockerBootstrapConfig) *Docker {
	return &Docker{
		suffix:  strings.TrimSpace(cfg.Suffix),
		port:    uint16(cfg.Port),
		network: strings.TrimSpace(cfg.Network),
	}
}

func (d *Docker) Discover(ctx context.Context) ([]mdomain.PhysicalAddress, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: client init: %w", err)
	}
	defer cli.Close()

	containers, err := cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("docker: list containers: %w", err)
	}

	var out []mdomain.PhysicalAddress
	for _, c := range containers {
		name := strings.TrimPrefix(firstName(c.Names), "/")
		if name == "" || !strings.Contains(name, d.suffix) {
			continue
		}
		if c.NetworkSettings == nil {
			continue
		}
		net, ok := c.NetworkSettings.Networks[d.network]
		if !ok || net == nil || net.IPAddress == "" {
			continue
		}
		// use the container name (container-DNS-resolvable within the
		// network) rather than the IP, matching how the harness's own
		// compose network resolves peers.
		out = append(out, mdomain.PhysicalAddress{IP: name, Port: d.port})
	}
	return out, nil
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}
