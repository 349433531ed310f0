// Package harness is a docker-backed multi-node test harness: it
// launches real cmd/minhton-node containers on a shared network so
// integration tests can exercise join/leave/find across an actual
// overlay instead of in-process loopback transport.
package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Harness owns a set of containers on a single Docker network and
// tears all of them down together.
type Harness struct {
	cli        *client.Client
	image      string
	network    string
	namePrefix string
	containers []string
}

// New connects to the local Docker daemon. image must already be
// built and available (e.g. "minhton-node:test"); network must exist
// (docker network create minhton-test).
func New(image, dockerNetwork, namePrefix string) (*Harness, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("harness: docker client: %w", err)
	}
	return &Harness{cli: cli, image: image, network: dockerNetwork, namePrefix: namePrefix}, nil
}

// StartNode runs one minhton-node container with env overriding its
// config (NODE_ID, JOIN_MODE, JOIN_VIA_ADDRESS, ...; see
// internal/config's ApplyEnvOverrides) and returns its container name,
// which is also its address on the shared network (name:port).
func (h *Harness) StartNode(ctx context.Context, suffix string, port int, env []string) (string, error) {
	name := fmt.Sprintf("%s-%s", h.namePrefix, suffix)

	resp, err := h.cli.ContainerCreate(ctx,
		&container.Config{
			Image: h.image,
			Env:   env,
			ExposedPorts: map[string]struct{}{
				fmt.Sprintf("%d/tcp", port): {},
			},
		},
		&container.HostConfig{NetworkMode: container.NetworkMode(h.network)},
		&network.NetworkingConfig{},
		nil,
		name,
	)
	if err != nil {
		return "", fmt.Errorf("harness: create %s: %w", name, err)
	}
	if err := h.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("harness: start %s: %w", name, err)
	}
	h.containers = append(h.containers, resp.ID)
	return fmt.Sprintf("%s:%d", name, port), nil
}

// Logs returns a started container's combined stdout/stderr, useful
// when a test wants to assert on a node's startup log lines.
func (h *Harness) Logs(ctx context.Context, containerID string) (string, error) {
	rc, err := h.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer rc.Close()
	var out, errBuf strings.Builder
	if _, err := stdcopy.StdCopy(&out, &errBuf, rc); err != nil {
		return "", err
	}
	return out.String() + errBuf.String(), nil
}

// Stop stops and removes every container this Harness started, best
// effort: it keeps going past individual failures and returns the
// first one seen.
func (h *Harness) Stop(ctx context.Context) error {
	var firstErr error
	for _, id := range h.containers {
		if err := h.cli.ContainerStop(ctx, id, container.StopOptions{}); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("harness: stop %s: %w", id, err)
		}
		if err := h.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("harness: remove %s: %w", id, err)
		}
	}
	h.containers = nil
	return firstErr
}

// Close releases the underlying Docker API client.
func (h *Harness) Close() error { return h.cli.Close() }
