// Command minhton-node runs one MINHTON participant: it loads
// configuration, opens its transport listener, joins the overlay per
// the configured JoinConfig, and serves Deliver RPCs until a signal
// asks it to leave.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"minhton/internal/bootstrap"
	"minhton/internal/config"
	"minhton/internal/logger"
	zapadapter "minhton/internal/logger/zap"
	"minhton/internal/mdomain"
	"minhton/internal/mnode"
	"minhton/internal/register"
	"minhton/internal/telemetry"
	"minhton/internal/telemetry/lookuptrace"
	"minhton/internal/transport/grpctransport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the node's YAML configuration")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minhton-node: load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "minhton-node: invalid config: %v\n", err)
		os.Exit(1)
	}

	lgr, err := newLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minhton-node: logger init: %v\n", err)
		os.Exit(1)
	}
	cfg.LogConfig(lgr)

	if cfg.Node.ID == "" {
		cfg.Node.ID = ulid.Make().String()
	}

	lis, advertised, err := cfg.Node.Listen()
	if err != nil {
		lgr.Error("listen failed", logger.F("err", err))
		os.Exit(1)
	}
	physical, err := physicalFromAdvertised(advertised)
	if err != nil {
		lgr.Error("invalid advertised address", logger.F("addr", advertised), logger.F("err", err))
		os.Exit(1)
	}

	shutdownTracer := telemetry.InitTracer(cfg.Telemetry, "minhton-node", cfg.Node.ID)
	defer shutdownTracer(context.Background())

	transportClient := grpctransport.NewClient(lgr.Named("transport"))
	defer transportClient.Close()

	timeouts, _ := cfg.Timeouts.Resolve()
	opts := []mnode.Option{
		mnode.WithLogger(lgr.Named("node")),
		mnode.WithTimeoutOverrides(timeouts),
	}
	if cfg.Join.Mode == "bootstrap" {
		disc, err := bootstrap.New(cfg.Bootstrap, lgr.Named("bootstrap"))
		if err != nil {
			lgr.Error("bootstrap init failed", logger.F("err", err))
			os.Exit(1)
		}
		self := mdomain.NodeRef{Physical: physical, Status: mdomain.StatusRunning}
		sender := bootstrap.NewSender(disc, transportClient, self, lgr.Named("bootstrap"))
		opts = append(opts, mnode.WithDiscover(sender.Send))
	}

	node, err := mnode.New(cfg.Topology.Fanout, physical, transportClient, opts...)
	if err != nil {
		lgr.Error("node init failed", logger.F("err", err))
		os.Exit(1)
	}

	grpcServer := newGRPCServer(node, lgr)

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- grpcServer.Serve(lis) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := startNode(ctx, node, cfg.Join); err != nil {
		lgr.Error("join failed", logger.F("err", err))
		grpcServer.GracefulStop()
		os.Exit(1)
	}
	lgr.Info("node joined overlay", logger.F("id", cfg.Node.ID), logger.F("advertised", advertised), logger.F("join.mode", cfg.Join.Mode))

	var registrar register.Registrar
	if cfg.Register.Enabled {
		registrar, err = register.New(ctx, cfg.Register)
		if err != nil {
			lgr.Error("register init failed", logger.F("err", err))
		} else if err := registrar.RegisterNode(ctx, cfg.Node.ID, physical.IP, int(physical.Port)); err != nil {
			lgr.Error("register failed", logger.F("err", err))
		} else {
			go renewLoop(ctx, registrar, cfg, physical, lgr)
		}
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		lgr.Info("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			lgr.Error("grpc server stopped unexpectedly", logger.F("err", err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if registrar != nil {
		if err := registrar.DeregisterNode(shutdownCtx, cfg.Node.ID, physical.IP, int(physical.Port)); err != nil {
			lgr.Warn("deregister failed", logger.F("err", err))
		}
		registrar.Close()
	}
	if err := node.Stop(shutdownCtx); err != nil {
		lgr.Warn("graceful leave failed", logger.F("err", err))
	}
	grpcServer.GracefulStop()
	lgr.Info("shutdown complete")
}

func newLogger(cfg config.LoggerConfig) (logger.Logger, error) {
	if !cfg.Active {
		return &logger.NopLogger{}, nil
	}
	zl, err := zapadapter.New(cfg)
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapAdapter(zl), nil
}

func newGRPCServer(node *mnode.Node, lgr logger.Logger) *grpc.Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(lookuptrace.ServerInterceptor()),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	grpctransport.RegisterTransportServer(gs, grpctransport.NewServer(node, lgr.Named("transport")))
	return gs
}

func startNode(ctx context.Context, node *mnode.Node, join config.JoinConfig) error {
	switch join.Mode {
	case "root":
		return node.Start(ctx, mnode.JoinInfo{AsRoot: true})
	case "bootstrap":
		return node.Start(ctx, mnode.JoinInfo{ViaBootstrap: true})
	case "address":
		addr, err := physicalFromAdvertised(join.ViaAddress)
		if err != nil {
			return err
		}
		return node.Start(ctx, mnode.JoinInfo{ViaAddress: addr})
	default:
		return fmt.Errorf("minhton-node: unknown join.mode %q", join.Mode)
	}
}

func renewLoop(ctx context.Context, r register.Registrar, cfg *config.Config, physical mdomain.PhysicalAddress, lgr logger.Logger) {
	interval := cfg.Register.Etcd.LeaseTTL / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RenewNode(ctx, cfg.Node.ID, physical.IP, int(physical.Port)); err != nil {
				lgr.Warn("register renew failed", logger.F("err", err))
			}
		}
	}
}

func physicalFromAdvertised(addr string) (mdomain.PhysicalAddress, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return mdomain.PhysicalAddress{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return mdomain.PhysicalAddress{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return mdomain.PhysicalAddress{IP: host, Port: uint16(port)}, nil
}
