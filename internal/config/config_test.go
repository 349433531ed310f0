package config

import (
	"testing"
	"time"

	"minhton/internal/fsm"
)

func validConfig() Config {
	return Config{
		Logger:    LoggerConfig{Level: "info", Encoding: "console", Mode: "stdout"},
		Telemetry: TelemetryConfig{},
		Node:      NodeConfig{Port: 4000},
		Topology:  TopologyConfig{Fanout: 2},
		Join:      JoinConfig{Mode: "root"},
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid root join", mutate: func(c *Config) {}, wantErr: false},
		{name: "fanout too low", mutate: func(c *Config) { c.Topology.Fanout = 1 }, wantErr: true},
		{name: "fanout too high", mutate: func(c *Config) { c.Topology.Fanout = 256 }, wantErr: true},
		{
			name: "address join without viaAddress",
			mutate: func(c *Config) {
				c.Join.Mode = "address"
			},
			wantErr: true,
		},
		{
			name: "address join with malformed viaAddress",
			mutate: func(c *Config) {
				c.Join.Mode = "address"
				c.Join.ViaAddress = "not-a-host-port"
			},
			wantErr: true,
		},
		{
			name: "address join with valid viaAddress",
			mutate: func(c *Config) {
				c.Join.Mode = "address"
				c.Join.ViaAddress = "10.0.0.1:5000"
			},
			wantErr: false,
		},
		{
			name: "bootstrap join requires a bootstrap mode",
			mutate: func(c *Config) {
				c.Join.Mode = "bootstrap"
				c.Bootstrap.Mode = "nonsense"
			},
			wantErr: true,
		},
		{
			name: "bootstrap join over dns requires a name",
			mutate: func(c *Config) {
				c.Join.Mode = "bootstrap"
				c.Bootstrap.Mode = "dns"
			},
			wantErr: true,
		},
		{
			name: "bootstrap join over static peers",
			mutate: func(c *Config) {
				c.Join.Mode = "bootstrap"
				c.Bootstrap.Mode = "static"
				c.Bootstrap.Peers = []string{"10.0.0.1:4000", "10.0.0.2:4000"}
			},
			wantErr: false,
		},
		{
			name: "register enabled without backend",
			mutate: func(c *Config) {
				c.Register.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "register enabled with etcd backend but no endpoints",
			mutate: func(c *Config) {
				c.Register.Enabled = true
				c.Register.Backend = "etcd"
			},
			wantErr: true,
		},
		{
			name: "register enabled with valid etcd backend",
			mutate: func(c *Config) {
				c.Register.Enabled = true
				c.Register.Backend = "etcd"
				c.Register.Etcd.Endpoints = []string{"127.0.0.1:2379"}
				c.Register.Etcd.LeaseTTL = 30 * time.Second
			},
			wantErr: false,
		},
		{
			name: "unknown timeout kind",
			mutate: func(c *Config) {
				c.Timeouts = TimeoutsConfig{"NotARealTimeout": time.Second}
			},
			wantErr: true,
		},
		{
			name: "tracing enabled without endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.Exporter = "jaeger"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.ValidateConfig()
			if tt.wantErr && err == nil {
				t.Fatalf("expected an error, got none")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTimeoutsConfigResolve(t *testing.T) {
	t.Run("known names resolve to their kind", func(t *testing.T) {
		timeouts := TimeoutsConfig{
			fsm.TimeoutBootstrapResponse.String(): 2 * time.Second,
			fsm.TimeoutJoinRetry.String():          5 * time.Second,
		}
		resolved, unknown := timeouts.Resolve()
		if len(unknown) != 0 {
			t.Fatalf("expected no unknown names, got %v", unknown)
		}
		if resolved[fsm.TimeoutBootstrapResponse] != 2*time.Second {
			t.Fatalf("bootstrap response timeout not resolved correctly")
		}
	})

	t.Run("unknown names are reported, not silently dropped", func(t *testing.T) {
		timeouts := TimeoutsConfig{"garbage": time.Second}
		_, unknown := timeouts.Resolve()
		if len(unknown) != 1 || unknown[0] != "garbage" {
			t.Fatalf("expected [garbage], got %v", unknown)
		}
	})
}

func TestApplyEnvOverridesDefaultsBind(t *testing.T) {
	cfg := Config{}
	cfg.ApplyEnvOverrides()
	if cfg.Node.Bind != "0.0.0.0" {
		t.Fatalf("expected default bind 0.0.0.0, got %q", cfg.Node.Bind)
	}
}
