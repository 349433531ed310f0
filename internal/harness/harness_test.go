package harness

import (
	"context"
	"testing"
	"time"
)

// TestHarnessLifecycle spins up two minhton-node containers and tears
// them down. It needs a local Docker daemon plus a prebuilt
// "minhton-node:test" image and "minhton-test" network. It skips itself
// when the Docker client cannot be set up; a missing image or network
// fails the test.
func TestHarnessLifecycle(t *testing.T) {
	h, err := New("minhton-node:test", "minhton-test", "harness")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.cli.Ping(ctx); err != nil {
		t.Skipf("docker daemon not reachable: %v", err)
	}

	rootAddr, err := h.StartNode(ctx, "root", 4000, []string{"JOIN_MODE=root", "NODE_PORT=4000"})
	if err != nil {
		t.Fatalf("start root node: %v", err)
	}
	defer h.Stop(context.Background())

	_, err = h.StartNode(ctx, "peer-1", 4000, []string{
		"JOIN_MODE=address",
		"JOIN_VIA_ADDRESS=" + rootAddr,
		"NODE_PORT=4000",
	})
	if err != nil {
		t.Fatalf("start peer node: %v", err)
	}

	if err := h.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
