package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"minhton/internal/configloader"
	"minhton/internal/fsm"
	"minhton/internal/logger"
)

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

type LoggerConfig struct {
	Active   bool             `yaml:"active"`
	Level    string           `yaml:"level"`
	Encoding string           `yaml:"encoding"`
	Mode     string           `yaml:"mode"`
	File     FileLoggerConfig `yaml:"file"`
}

// NodeConfig describes the local participant: its identity and the
// address it listens and advertises on.
type NodeConfig struct {
	ID       string `yaml:"id"`       // optional; a ULID is minted if empty
	AddrMode string `yaml:"addrMode"` // "public" or "private", used to auto-pick an interface when Host is empty
	Bind     string `yaml:"bind"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
}

// TopologyConfig fixes the overlay's fanout (spec.md §3's m-ary tree).
type TopologyConfig struct {
	Fanout uint16 `yaml:"fanout"`
}

// JoinConfig selects one of the three start modes of spec.md §6.
type JoinConfig struct {
	Mode       string `yaml:"mode"` // "root" | "bootstrap" | "address"
	ViaAddress string `yaml:"viaAddress"`
}

// DockerBootstrapConfig discovers sibling containers by name suffix on
// a shared Docker network, mirroring the teacher's docker-backed test
// bootstrap.
type DockerBootstrapConfig struct {
	Suffix  string `yaml:"suffix"`
	Port    int    `yaml:"port"`
	Network string `yaml:"network"`
}

// BootstrapConfig configures spec.md §4.4 step (1): how a joining node
// locates candidate peers to send BootstrapDiscover to.
type BootstrapConfig struct {
	Mode         string                `yaml:"mode"` // "static" | "dns" | "route53" | "docker"
	DNSName      string                `yaml:"dnsName"`
	SRV          bool                  `yaml:"srv"`
	Port         int                   `yaml:"port"`
	Resolver     string                `yaml:"resolver"`
	Peers        []string              `yaml:"peers"`
	HostedZoneID string                `yaml:"hostedZoneId"` // route53 mode only
	Docker       DockerBootstrapConfig `yaml:"docker"`
}

type Route53RegisterConfig struct {
	HostedZoneID string `yaml:"hostedZoneId"`
	DomainSuffix string `yaml:"domainSuffix"`
	TTL          int64  `yaml:"ttl"`
}

type EtcdRegisterConfig struct {
	Endpoints []string      `yaml:"endpoints"`
	KeyPrefix string        `yaml:"keyPrefix"`
	LeaseTTL  time.Duration `yaml:"leaseTtl"`
}

// RegisterConfig configures self-registration (spec.md §4.4's
// "candidates may also be learned from a rendezvous register") once a
// node has joined: it advertises itself so later joiners can find it.
type RegisterConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Backend string                `yaml:"backend"` // "route53" | "etcd"
	Route53 Route53RegisterConfig `yaml:"route53"`
	Etcd    EtcdRegisterConfig    `yaml:"etcd"`
}

// TimeoutsConfig overrides mnode's default per-kind timer lengths,
// keyed by fsm.TimeoutKind.String().
type TimeoutsConfig map[string]time.Duration

// Resolve converts the YAML-keyed overrides into the
// map[fsm.TimeoutKind]time.Duration mnode.WithTimeoutOverrides expects,
// skipping (and reporting) names that don't name a known timeout kind.
func (t TimeoutsConfig) Resolve() (map[fsm.TimeoutKind]time.Duration, []string) {
	named := map[string]fsm.TimeoutKind{
		fsm.TimeoutBootstrapResponse.String():        fsm.TimeoutBootstrapResponse,
		fsm.TimeoutJoinAcceptResponse.String():       fsm.TimeoutJoinAcceptResponse,
		fsm.TimeoutJoinAcceptAckResponse.String():    fsm.TimeoutJoinAcceptAckResponse,
		fsm.TimeoutReplacementOfferResponse.String(): fsm.TimeoutReplacementOfferResponse,
		fsm.TimeoutReplacementAckResponse.String():   fsm.TimeoutReplacementAckResponse,
		fsm.TimeoutDsnAggregation.String():           fsm.TimeoutDsnAggregation,
		fsm.TimeoutInquiryAggregation.String():       fsm.TimeoutInquiryAggregation,
		fsm.TimeoutSelfDepartureRetry.String():       fsm.TimeoutSelfDepartureRetry,
		fsm.TimeoutJoinRetry.String():                fsm.TimeoutJoinRetry,
	}
	out := make(map[fsm.TimeoutKind]time.Duration, len(t))
	var unknown []string
	for name, d := range t {
		kind, ok := named[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out[kind] = d
	}
	return out, unknown
}

// AlgorithmConfig names, per message category, which Strategy
// implementation mnode should select (spec.md §9's "algorithm
// polymorphism"). Only "default" ships today; the field is still
// surfaced so a deployment config can name the variant it wants once a
// second implementation exists.
type AlgorithmConfig struct {
	Bootstrap   string `yaml:"bootstrap"`
	Join        string `yaml:"join"`
	Leave       string `yaml:"leave"`
	SearchExact string `yaml:"searchExact"`
	EntitySearch string `yaml:"entitySearch"`
	Response    string `yaml:"response"`
}

type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Node      NodeConfig      `yaml:"node"`
	Topology  TopologyConfig  `yaml:"topology"`
	Join      JoinConfig      `yaml:"join"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Register  RegisterConfig  `yaml:"register"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Algorithm AlgorithmConfig `yaml:"algorithm"`
}

// LoadConfig loads the configuration from a YAML file at the given path.
//
// This function performs only syntactic parsing; call
// cfg.ValidateConfig() afterwards to check structural correctness.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := configloader.LoadYAML(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration, for the fields that are typically deployment- or
// node-specific rather than baked into the shipped YAML.
func (cfg *Config) ApplyEnvOverrides() {
	configloader.OverrideString(&cfg.Node.ID, "NODE_ID")
	configloader.OverrideString(&cfg.Node.Bind, "NODE_BIND")
	if cfg.Node.Bind == "" {
		cfg.Node.Bind = "0.0.0.0"
	}
	configloader.OverrideString(&cfg.Node.Host, "NODE_HOST")
	configloader.OverrideInt(&cfg.Node.Port, "NODE_PORT")

	configloader.OverrideString(&cfg.Join.Mode, "JOIN_MODE")
	configloader.OverrideString(&cfg.Join.ViaAddress, "JOIN_VIA_ADDRESS")

	configloader.OverrideString(&cfg.Bootstrap.Mode, "BOOTSTRAP_MODE")
	configloader.OverrideString(&cfg.Bootstrap.DNSName, "BOOTSTRAP_DNSNAME")
	configloader.OverrideBool(&cfg.Bootstrap.SRV, "BOOTSTRAP_SRV")
	configloader.OverrideInt(&cfg.Bootstrap.Port, "BOOTSTRAP_PORT")
	configloader.OverrideStringSlice(&cfg.Bootstrap.Peers, "BOOTSTRAP_PEERS")

	configloader.OverrideBool(&cfg.Register.Enabled, "REGISTER_ENABLED")
	configloader.OverrideString(&cfg.Register.Backend, "REGISTER_BACKEND")
	configloader.OverrideString(&cfg.Register.Route53.HostedZoneID, "REGISTER_ZONE_ID")
	configloader.OverrideString(&cfg.Register.Route53.DomainSuffix, "REGISTER_SUFFIX")
	configloader.OverrideInt64(&cfg.Register.Route53.TTL, "REGISTER_TTL")
	configloader.OverrideStringSlice(&cfg.Register.Etcd.Endpoints, "REGISTER_ETCD_ENDPOINTS")
	configloader.OverrideDuration(&cfg.Register.Etcd.LeaseTTL, "REGISTER_ETCD_LEASE_TTL")

	configloader.OverrideBool(&cfg.Telemetry.Tracing.Enabled, "TRACE_ENABLED")
	configloader.OverrideString(&cfg.Telemetry.Tracing.Exporter, "TRACE_EXPORTER")
	configloader.OverrideString(&cfg.Telemetry.Tracing.Endpoint, "TRACE_ENDPOINT")

	configloader.OverrideBool(&cfg.Logger.Active, "LOGGER_ENABLED")
	configloader.OverrideString(&cfg.Logger.Level, "LOGGER_LEVEL")
	configloader.OverrideString(&cfg.Logger.Encoding, "LOGGER_ENCODING")
	configloader.OverrideString(&cfg.Logger.Mode, "LOGGER_MODE")
	configloader.OverrideString(&cfg.Logger.File.Path, "LOGGER_FILE_PATH")
}

// ValidateConfig performs structural validation of the loaded
// configuration: required fields, value ranges, and enum-like fields.
// It does not check protocol-level invariants derived at runtime (e.g.
// whether a configured ViaAddress is actually reachable).
func (cfg *Config) ValidateConfig() error {
	var errs []string

	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.level: %s", cfg.Logger.Level))
	}
	switch cfg.Logger.Encoding {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.encoding: %s", cfg.Logger.Encoding))
	}
	switch cfg.Logger.Mode {
	case "stdout":
	case "file":
		if cfg.Logger.File.Path == "" {
			errs = append(errs, "logger.file.path is required when mode=file")
		}
		if cfg.Logger.File.MaxSize < 0 || cfg.Logger.File.MaxBackups < 0 || cfg.Logger.File.MaxAge < 0 {
			errs = append(errs, "logger.file.* values must be non-negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.mode: %s", cfg.Logger.Mode))
	}

	if cfg.Topology.Fanout < 2 || cfg.Topology.Fanout > 255 {
		errs = append(errs, "topology.fanout must be in [2,255]")
	}

	switch cfg.Join.Mode {
	case "root":
	case "bootstrap":
	case "address":
		if cfg.Join.ViaAddress == "" {
			errs = append(errs, "join.viaAddress is required when join.mode=address")
		} else if _, _, err := net.SplitHostPort(cfg.Join.ViaAddress); err != nil {
			errs = append(errs, fmt.Sprintf("invalid join.viaAddress %q: %v", cfg.Join.ViaAddress, err))
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid join.mode: %s (must be root, bootstrap or address)", cfg.Join.Mode))
	}

	if cfg.Join.Mode == "bootstrap" {
		b := cfg.Bootstrap
		switch b.Mode {
		case "dns":
			if b.DNSName == "" {
				errs = append(errs, "bootstrap.dnsName is required in mode=dns")
			}
			if !b.SRV && b.Port <= 0 {
				errs = append(errs, "bootstrap.port must be > 0 when using A/AAAA (srv=false)")
			}
		case "static":
			for _, p := range b.Peers {
				if _, _, err := net.SplitHostPort(p); err != nil {
					errs = append(errs, fmt.Sprintf("invalid peer address %q in bootstrap.peers: %v", p, err))
				}
			}
		case "route53":
		case "docker":
			if b.Docker.Suffix == "" {
				errs = append(errs, "bootstrap.docker.suffix is required in mode=docker")
			}
		default:
			errs = append(errs, fmt.Sprintf("invalid bootstrap.mode: %s (must be dns, static, route53 or docker)", b.Mode))
		}
	}

	if cfg.Register.Enabled {
		switch cfg.Register.Backend {
		case "route53":
			if cfg.Register.Route53.HostedZoneID == "" {
				errs = append(errs, "register.route53.hostedZoneId is required when register.enabled=true")
			}
			if cfg.Register.Route53.DomainSuffix == "" {
				errs = append(errs, "register.route53.domainSuffix is required when register.enabled=true")
			}
			if cfg.Register.Route53.TTL <= 0 {
				errs = append(errs, "register.route53.ttl must be > 0 when register.enabled=true")
			}
		case "etcd":
			if len(cfg.Register.Etcd.Endpoints) == 0 {
				errs = append(errs, "register.etcd.endpoints is required when register.backend=etcd")
			}
			if cfg.Register.Etcd.LeaseTTL <= 0 {
				errs = append(errs, "register.etcd.leaseTtl must be > 0 when register.backend=etcd")
			}
		default:
			errs = append(errs, fmt.Sprintf("invalid register.backend: %s (must be route53 or etcd)", cfg.Register.Backend))
		}
	}

	if cfg.Node.Port < 0 || cfg.Node.Port > 65535 {
		errs = append(errs, fmt.Sprintf("node.port must be in [0,65535], got %d", cfg.Node.Port))
	}
	switch cfg.Node.AddrMode {
	case "", "public", "private":
	default:
		errs = append(errs, fmt.Sprintf("invalid node.addrMode: %s", cfg.Node.AddrMode))
	}

	if _, unknown := cfg.Timeouts.Resolve(); len(unknown) > 0 {
		errs = append(errs, fmt.Sprintf("unknown timeout kind(s) in timeouts: %s", strings.Join(unknown, ", ")))
	}

	if cfg.Telemetry.Tracing.Enabled {
		switch cfg.Telemetry.Tracing.Exporter {
		case "stdout", "jaeger", "otlp":
		default:
			errs = append(errs, fmt.Sprintf("invalid telemetry.tracing.exporter: %s", cfg.Telemetry.Tracing.Exporter))
		}
		if cfg.Telemetry.Tracing.Endpoint == "" {
			errs = append(errs, "telemetry.tracing.endpoint is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogConfig prints the loaded configuration at DEBUG level.
func (cfg *Config) LogConfig(lgr logger.Logger) {
	lgr.Debug("Loaded configuration",
		logger.F("logger.active", cfg.Logger.Active),
		logger.F("logger.level", cfg.Logger.Level),
		logger.F("logger.encoding", cfg.Logger.Encoding),
		logger.F("logger.mode", cfg.Logger.Mode),
		logger.F("logger.file.path", cfg.Logger.File.Path),

		logger.F("node.id", cfg.Node.ID),
		logger.F("node.addrMode", cfg.Node.AddrMode),
		logger.F("node.host", cfg.Node.Host),
		logger.F("node.port", cfg.Node.Port),

		logger.F("topology.fanout", cfg.Topology.Fanout),

		logger.F("join.mode", cfg.Join.Mode),
		logger.F("join.viaAddress", cfg.Join.ViaAddress),

		logger.F("bootstrap.mode", cfg.Bootstrap.Mode),
		logger.F("bootstrap.dnsName", cfg.Bootstrap.DNSName),
		logger.F("bootstrap.peers", cfg.Bootstrap.Peers),

		logger.F("register.enabled", cfg.Register.Enabled),
		logger.F("register.backend", cfg.Register.Backend),

		logger.F("telemetry.tracing.enabled", cfg.Telemetry.Tracing.Enabled),
		logger.F("telemetry.tracing.exporter", cfg.Telemetry.Tracing.Exporter),
		logger.F("telemetry.tracing.endpoint", cfg.Telemetry.Tracing.Endpoint),
	)
}
