package register

import (
	"context"
	"testing"

	"minhton/internal/config"
)

func TestNewUnsupportedBackend(t *testing.T) {
	_, err := New(context.Background(), config.RegisterConfig{Backend: "carrier-pigeon"})
	if err == nil {
		t.Fatalf("expected an error for an unsupported register backend")
	}
}
