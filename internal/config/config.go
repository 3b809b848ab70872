package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"ringkv/internal/ring"
)

// Peer represents a peer node in the cluster.
type Peer struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// NodeConfig identifies this node and where peers reach it.
type NodeConfig struct {
	ID       string `yaml:"id"`
	GRPCAddr string `yaml:"grpc_addr"`
	// AdvertiseAddr is the address published to peers. Defaults to GRPCAddr.
	AdvertiseAddr string `yaml:"advertise_addr"`
}

// HTTPConfig is the REST listener. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// RESPConfig is the Redis-protocol listener. An empty Addr disables it.
type RESPConfig struct {
	Addr string `yaml:"addr"`
}

// ClusterConfig holds replication and membership settings.
type ClusterConfig struct {
	ReplicationFactor int           `yaml:"replication_factor"`
	VNodes            int           `yaml:"vnodes"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	// Join is the address of a running node contacted at startup.
	Join           string        `yaml:"join"`
	Seeds          []Peer        `yaml:"seeds"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	SuspectTimeout time.Duration `yaml:"suspect_timeout"`
}

// LoggerConfig selects the log level and encoding.
type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config holds the node configuration.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	HTTP    HTTPConfig    `yaml:"http"`
	RESP    RESPConfig    `yaml:"resp"`
	Cluster ClusterConfig `yaml:"cluster"`
	Logger  LoggerConfig  `yaml:"logger"`
}

// Default returns a single-node configuration listening on local ports.
func Default() Config {
	return Config{
		Node: NodeConfig{
			ID:       "n1",
			GRPCAddr: "127.0.0.1:7001",
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8001"},
		Cluster: ClusterConfig{
			ReplicationFactor: 3,
			VNodes:            1,
			RequestTimeout:    2 * time.Second,
			ProbeInterval:     time.Second,
			SuspectTimeout:    5 * time.Second,
		},
		Logger: LoggerConfig{Level: "info"},
	}
}

// Load reads a YAML file on top of Default. A missing file yields Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Node.ID) == "" {
		errs = append(errs, errors.New("node.id is required"))
	}
	if c.Node.GRPCAddr == "" {
		errs = append(errs, errors.New("node.grpc_addr is required"))
	}
	if c.Cluster.ReplicationFactor < 1 {
		errs = append(errs, fmt.Errorf("cluster.replication_factor must be >= 1, got %d", c.Cluster.ReplicationFactor))
	}
	if c.Cluster.VNodes < 1 {
		errs = append(errs, fmt.Errorf("cluster.vnodes must be >= 1, got %d", c.Cluster.VNodes))
	}
	if c.Cluster.RequestTimeout <= 0 {
		errs = append(errs, errors.New("cluster.request_timeout must be positive"))
	}
	if c.Cluster.ProbeInterval <= 0 {
		errs = append(errs, errors.New("cluster.probe_interval must be positive"))
	}
	if c.Cluster.SuspectTimeout <= 0 {
		errs = append(errs, errors.New("cluster.suspect_timeout must be positive"))
	}
	if !logLevels[strings.ToLower(c.Logger.Level)] {
		errs = append(errs, fmt.Errorf("logger.level %q is not one of debug|info|warn|error", c.Logger.Level))
	}
	return errors.Join(errs...)
}

// Advertise returns the address peers should use to reach this node.
func (c *Config) Advertise() string {
	if c.Node.AdvertiseAddr != "" {
		return c.Node.AdvertiseAddr
	}
	return c.Node.GRPCAddr
}

// ParsePeers parses a comma-separated list of peers in the format:
// "id1=addr1,id2=addr2,id3=addr3"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		id := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])

		if id == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}

		peers = append(peers, Peer{ID: id, Addr: addr})
	}

	return peers, nil
}

// SeedNodes converts the configured seeds into ring nodes, skipping self.
func (c *Config) SeedNodes() []ring.Node {
	nodes := make([]ring.Node, 0, len(c.Cluster.Seeds))
	for _, peer := range c.Cluster.Seeds {
		if peer.ID == c.Node.ID {
			continue
		}
		nodes = append(nodes, ring.Node{ID: peer.ID, Addr: peer.Addr})
	}
	return nodes
}
