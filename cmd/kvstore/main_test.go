package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	data := "node:\n  id: from-file\n  grpc_addr: 127.0.0.1:7001\ncluster:\n  replication_factor: 2\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig([]string{
		"--config", path,
		"--node-id", "n2",
		"--peers", "n1=127.0.0.1:7001,n2=127.0.0.1:7002",
		"--timeout", "750ms",
	})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Node.ID != "n2" {
		t.Errorf("node id = %q, want flag value n2", cfg.Node.ID)
	}
	if cfg.Node.GRPCAddr != "127.0.0.1:7001" {
		t.Errorf("grpc addr = %q, want file value", cfg.Node.GRPCAddr)
	}
	if cfg.Cluster.ReplicationFactor != 2 {
		t.Errorf("rf = %d, want file value 2", cfg.Cluster.ReplicationFactor)
	}
	if cfg.Cluster.RequestTimeout != 750*time.Millisecond {
		t.Errorf("timeout = %v, want 750ms", cfg.Cluster.RequestTimeout)
	}
	if len(cfg.Cluster.Seeds) != 2 {
		t.Errorf("seeds = %+v", cfg.Cluster.Seeds)
	}
	if got := cfg.SeedNodes(); len(got) != 1 || got[0].ID != "n1" {
		t.Errorf("SeedNodes() = %+v, want only n1", got)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad peers", []string{"--peers", "n1"}},
		{"zero rf", []string{"--rf", "0"}},
		{"bad level", []string{"--log-level", "chatty"}},
		{"unknown flag", []string{"--nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(tt.args); err == nil {
				t.Errorf("loadConfig(%v) = nil error", tt.args)
			}
		})
	}
}
