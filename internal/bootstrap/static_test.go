package bootstrap

import (
	"context"
	"testing"

	"minhton/internal/config"
	"minhton/internal/mdomain"
)

func TestNewStatic(t *testing.T) {
	tests := []struct {
		name    string
		peers   []string
		want    []mdomain.PhysicalAddress
		wantErr bool
	}{
		{
			name:  "two valid peers",
			peers: []string{"10.0.0.1:4000", "10.0.0.2:4001"},
			want: []mdomain.PhysicalAddress{
				{IP: "10.0.0.1", Port: 4000},
				{IP: "10.0.0.2", Port: 4001},
			},
		},
		{
			name:    "missing port",
			peers:   []string{"10.0.0.1"},
			wantErr: true,
		},
		{
			name:    "non-numeric port",
			peers:   []string{"10.0.0.1:abc"},
			wantErr: true,
		},
		{
			name:  "empty list",
			peers: nil,
			want:  []mdomain.PhysicalAddress{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStatic(tt.peers)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := s.Discover(context.Background())
			if err != nil {
				t.Fatalf("Discover: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d addresses, want %d", len(got), len(tt.want))
			}
			for i, a := range got {
				if a != tt.want[i] {
					t.Fatalf("address %d: got %v, want %v", i, a, tt.want[i])
				}
			}
		})
	}
}

func TestNewUnsupportedMode(t *testing.T) {
	_, err := New(config.BootstrapConfig{Mode: "carrier-pigeon"}, nil)
	if err == nil {
		t.Fatalf("expected an error for an unsupported bootstrap mode")
	}
}
