package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ringkv/internal/config"
	"ringkv/internal/httpapi"
	"ringkv/internal/logging"
	"ringkv/internal/node"
	"ringkv/internal/resp"
)

type flags struct {
	configPath string
	nodeID     string
	listen     string
	advertise  string
	httpAddr   string
	respAddr   string
	join       string
	peers      string
	rf         int
	vnodes     int
	timeout    time.Duration
	logLevel   string
	logJSON    bool
}

func parseFlags(args []string) (*flags, map[string]bool, error) {
	f := &flags{}
	fs := flag.NewFlagSet("kvstore", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "path to YAML config file")
	fs.StringVar(&f.nodeID, "node-id", "", "unique node id")
	fs.StringVar(&f.listen, "listen", "", "peer gRPC listen address")
	fs.StringVar(&f.advertise, "advertise", "", "peer address published to the cluster (defaults to --listen)")
	fs.StringVar(&f.httpAddr, "http", "", "HTTP API listen address (empty disables)")
	fs.StringVar(&f.respAddr, "resp", "", "RESP listen address (empty disables)")
	fs.StringVar(&f.join, "join", "", "peer address of a running node to join through")
	fs.StringVar(&f.peers, "peers", "", "static seed members: id1=addr1,id2=addr2")
	fs.IntVar(&f.rf, "rf", 0, "replication factor")
	fs.IntVar(&f.vnodes, "vnodes", 0, "ring positions per node")
	fs.DurationVar(&f.timeout, "timeout", 0, "replica request timeout")
	fs.StringVar(&f.logLevel, "log-level", "", "debug|info|warn|error")
	fs.BoolVar(&f.logJSON, "log-json", false, "emit JSON logs")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// applyFlags overrides file values with the flags given on the command line.
func applyFlags(cfg *config.Config, f *flags, set map[string]bool) error {
	if set["node-id"] {
		cfg.Node.ID = f.nodeID
	}
	if set["listen"] {
		cfg.Node.GRPCAddr = f.listen
	}
	if set["advertise"] {
		cfg.Node.AdvertiseAddr = f.advertise
	}
	if set["http"] {
		cfg.HTTP.Addr = f.httpAddr
	}
	if set["resp"] {
		cfg.RESP.Addr = f.respAddr
	}
	if set["join"] {
		cfg.Cluster.Join = f.join
	}
	if set["peers"] {
		peers, err := config.ParsePeers(f.peers)
		if err != nil {
			return err
		}
		cfg.Cluster.Seeds = peers
	}
	if set["rf"] {
		cfg.Cluster.ReplicationFactor = f.rf
	}
	if set["vnodes"] {
		cfg.Cluster.VNodes = f.vnodes
	}
	if set["timeout"] {
		cfg.Cluster.RequestTimeout = f.timeout
	}
	if set["log-level"] {
		cfg.Logger.Level = f.logLevel
	}
	if set["log-json"] {
		cfg.Logger.JSON = f.logJSON
	}
	return nil
}

func loadConfig(args []string) (config.Config, error) {
	f, set, err := parseFlags(args)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if err := applyFlags(&cfg, f, set); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvstore: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvstore: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("node exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	n := node.New(node.OptionsFromConfig(cfg, logger))

	lis, err := net.Listen("tcp", cfg.Node.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Node.GRPCAddr, err)
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- n.Serve(lis) }()
	defer n.Stop()

	if cfg.HTTP.Addr != "" {
		srv := httpapi.NewServer(n, cfg.HTTP.Addr, logger.With(zap.String("node", cfg.Node.ID)))
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			if err := srv.Stop(); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
		}()
	}

	if cfg.RESP.Addr != "" {
		srv := resp.NewServer(cfg.RESP.Addr, n, logger.With(zap.String("node", cfg.Node.ID)))
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			if err := srv.Stop(); err != nil {
				logger.Warn("resp shutdown", zap.Error(err))
			}
		}()
	}

	if err := n.Start(ctx); err != nil {
		// the prober keeps running; a later admin join can still succeed
		logger.Warn("startup join failed", zap.Error(err))
	}

	logger.Info("node ready",
		zap.String("node", cfg.Node.ID),
		zap.String("grpc", cfg.Node.GRPCAddr),
		zap.String("http", cfg.HTTP.Addr),
		zap.String("resp", cfg.RESP.Addr),
		zap.Int("replication_factor", cfg.Cluster.ReplicationFactor),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-serveErr:
		return err
	}
}
