package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpfile, err := os.CreateTemp(t.TempDir(), "ledgerd-test-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoad(t *testing.T) {
	t.Setenv("LEDGER_TEST_SECRET", "s3cret")

	path := writeConfig(t, `
node:
  id: node1
  bind_addr: 127.0.0.1:7000
  data_dir: /tmp/data
  bootstrap: true
  peer_addrs:
    node2: 127.0.0.1:7001

raft:
  enabled: true
  leadership_transfer_interval: 10m
  log_store: boltdb

ledger:
  owner: owner-1
  rate_window: 50

server:
  http_addr: 0.0.0.0:9090
  requests_per_second: 20

auth:
  jwt_secret: ${LEDGER_TEST_SECRET}

export:
  enabled: true
  host: localhost
  database: audit
  user: ledger

alerts:
  enabled: false

verify:
  interval: 1m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Node.ID != "node1" {
		t.Errorf("expected node.id=node1, got %s", cfg.Node.ID)
	}
	if cfg.Node.PeerAddrs["node2"] != "127.0.0.1:7001" {
		t.Errorf("expected peer node2, got %v", cfg.Node.PeerAddrs)
	}
	if cfg.Raft.LogStore != LogStoreBoltDB {
		t.Errorf("expected log_store=boltdb, got %s", cfg.Raft.LogStore)
	}
	if cfg.Ledger.Owner != "owner-1" || cfg.Ledger.RateWindow != 50 {
		t.Errorf("unexpected ledger section: %+v", cfg.Ledger)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("expected expanded jwt_secret, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Burst != 20 {
		t.Errorf("expected burst defaulted to 20, got %d", cfg.Server.Burst)
	}
	if cfg.Export.Port != 5432 || cfg.Export.Table != "ledger_operations" {
		t.Errorf("expected export defaults, got %+v", cfg.Export)
	}
	if cfg.LeadershipTransferDuration() != 10*time.Minute {
		t.Errorf("expected 10m transfer interval, got %v", cfg.LeadershipTransferDuration())
	}
	if cfg.VerifyIntervalDuration() != time.Minute {
		t.Errorf("expected 1m verify interval, got %v", cfg.VerifyIntervalDuration())
	}
	if cfg.TokenTTLDuration() != 24*time.Hour {
		t.Errorf("expected default token ttl, got %v", cfg.TokenTTLDuration())
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LEDGERD_LEDGER_OWNER", "env-owner")

	path := writeConfig(t, `
node:
  id: node1
  data_dir: /tmp/data
ledger:
  owner: file-owner
auth:
  jwt_secret: x
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Ledger.Owner != "env-owner" {
		t.Errorf("expected env override, got %s", cfg.Ledger.Owner)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/ledgerd.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func validConfig() Config {
	return Config{
		Node:   NodeConfig{ID: "node1", DataDir: "/data"},
		Ledger: LedgerConfig{Owner: "owner"},
		Auth:   AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", modify: func(c *Config) {}},
		{name: "missing node id", modify: func(c *Config) { c.Node.ID = "" }, wantErr: true},
		{name: "missing data dir", modify: func(c *Config) { c.Node.DataDir = "" }, wantErr: true},
		{name: "missing owner", modify: func(c *Config) { c.Ledger.Owner = "" }, wantErr: true},
		{name: "missing jwt secret", modify: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: true},
		{name: "bad token ttl", modify: func(c *Config) { c.Auth.TokenTTL = "soon" }, wantErr: true},
		{
			name:    "raft without bind addr",
			modify:  func(c *Config) { c.Raft.Enabled = true },
			wantErr: true,
		},
		{
			name: "raft with unknown log store",
			modify: func(c *Config) {
				c.Raft.Enabled = true
				c.Node.BindAddr = "127.0.0.1:7000"
				c.Raft.LogStore = "leveldb"
			},
			wantErr: true,
		},
		{
			name: "raft with bad transfer interval",
			modify: func(c *Config) {
				c.Raft.Enabled = true
				c.Node.BindAddr = "127.0.0.1:7000"
				c.Raft.LeadershipTransferInterval = "-5m"
			},
			wantErr: true,
		},
		{
			name:    "export without host",
			modify:  func(c *Config) { c.Export = ExportConfig{Enabled: true, Database: "d", User: "u"} },
			wantErr: true,
		},
		{
			name:    "alerts without webhook",
			modify:  func(c *Config) { c.Alerts.Enabled = true },
			wantErr: true,
		},
		{
			name:    "negative request rate",
			modify:  func(c *Config) { c.Server.RequestsPerSecond = -1 },
			wantErr: true,
		},
		{
			name:    "bad verify interval",
			modify:  func(c *Config) { c.Verify.Interval = "often" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Raft.Enabled = true
	cfg.Node.BindAddr = "127.0.0.1:7000"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Raft.LogStore != LogStoreBbolt {
		t.Errorf("expected default log store bbolt, got %s", cfg.Raft.LogStore)
	}
	if cfg.Server.HTTPAddr == "" {
		t.Error("expected default http addr")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
	if cfg.LeadershipTransferDuration() != 0 {
		t.Errorf("expected rotation disabled, got %v", cfg.LeadershipTransferDuration())
	}
}

func TestConnectionString(t *testing.T) {
	export := ExportConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "testdb",
		User:     "testuser",
		Password: "testpass",
		SSLMode:  "require",
	}

	connStr := export.ConnectionString()
	expected := "host=localhost port=5432 dbname=testdb user=testuser password=testpass sslmode=require"

	if connStr != expected {
		t.Errorf("ConnectionString() = %v, want %v", connStr, expected)
	}
}
