package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	LogStoreBbolt  = "bbolt"
	LogStoreBoltDB = "boltdb"
)

type Config struct {
	Node    NodeConfig    `mapstructure:"node"`
	Raft    RaftConfig    `mapstructure:"raft"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Export  ExportConfig  `mapstructure:"export"`
	Alerts  AlertsConfig  `mapstructure:"alerts"`
	Verify  VerifyConfig  `mapstructure:"verify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type NodeConfig struct {
	ID        string            `mapstructure:"id"`
	BindAddr  string            `mapstructure:"bind_addr"`
	DataDir   string            `mapstructure:"data_dir"`
	Bootstrap bool              `mapstructure:"bootstrap"`
	PeerAddrs map[string]string `mapstructure:"peer_addrs"`
}

type RaftConfig struct {
	// Enabled selects replicated mode. A disabled node applies commands
	// locally.
	Enabled                    bool   `mapstructure:"enabled"`
	LeadershipTransferInterval string `mapstructure:"leadership_transfer_interval"`
	LogStore                   string `mapstructure:"log_store"`
}

type LedgerConfig struct {
	Owner      string `mapstructure:"owner"`
	RateWindow uint64 `mapstructure:"rate_window"`
}

type ServerConfig struct {
	HTTPAddr          string  `mapstructure:"http_addr"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	TokenTTL  string `mapstructure:"token_ttl"`
}

// ExportConfig describes the Postgres table operation records are mirrored
// into.
type ExportConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	Table    string `mapstructure:"table"`
}

type AlertsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SlackWebhook string `mapstructure:"slack_webhook"`
}

type VerifyConfig struct {
	Interval string `mapstructure:"interval"`
	// PauseOnTamper makes the node run emergency_stop as the owner when the
	// verifier finds a broken audit entry.
	PauseOnTamper bool `mapstructure:"pause_on_tamper"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvPrefix("LEDGERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if expanded := os.ExpandEnv(val); expanded != val {
			v.Set(key, expanded)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks required fields and fills in defaults.
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node.id is required")
	}
	if c.Node.DataDir == "" {
		return fmt.Errorf("node.data_dir is required")
	}
	if c.Ledger.Owner == "" {
		return fmt.Errorf("ledger.owner is required")
	}

	if c.Raft.Enabled {
		if c.Node.BindAddr == "" {
			return fmt.Errorf("node.bind_addr is required when raft is enabled")
		}
		if c.Raft.LogStore == "" {
			c.Raft.LogStore = LogStoreBbolt
		}
		if c.Raft.LogStore != LogStoreBbolt && c.Raft.LogStore != LogStoreBoltDB {
			return fmt.Errorf("invalid raft.log_store: %s (valid options: %s, %s)", c.Raft.LogStore, LogStoreBbolt, LogStoreBoltDB)
		}
		if _, err := optionalDuration(c.Raft.LeadershipTransferInterval); err != nil {
			return fmt.Errorf("invalid raft.leadership_transfer_interval: %w", err)
		}
	}

	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.RequestsPerSecond < 0 {
		return fmt.Errorf("server.requests_per_second must not be negative")
	}
	if c.Server.RequestsPerSecond > 0 && c.Server.Burst <= 0 {
		c.Server.Burst = int(c.Server.RequestsPerSecond)
		if c.Server.Burst < 1 {
			c.Server.Burst = 1
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = "24h"
	}
	if _, err := time.ParseDuration(c.Auth.TokenTTL); err != nil {
		return fmt.Errorf("invalid auth.token_ttl: %w", err)
	}

	if c.Export.Enabled {
		if c.Export.Host == "" {
			return fmt.Errorf("export.host is required")
		}
		if c.Export.Database == "" {
			return fmt.Errorf("export.database is required")
		}
		if c.Export.User == "" {
			return fmt.Errorf("export.user is required")
		}
		if c.Export.Port == 0 {
			c.Export.Port = 5432
		}
		if c.Export.SSLMode == "" {
			c.Export.SSLMode = "disable"
		}
		if c.Export.Table == "" {
			c.Export.Table = "ledger_operations"
		}
	}

	if c.Alerts.Enabled && c.Alerts.SlackWebhook == "" {
		return fmt.Errorf("alerts.slack_webhook is required when alerts are enabled")
	}

	if _, err := optionalDuration(c.Verify.Interval); err != nil {
		return fmt.Errorf("invalid verify.interval: %w", err)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	return nil
}

// TokenTTLDuration returns the parsed auth.token_ttl.
func (c *Config) TokenTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.Auth.TokenTTL)
	return d
}

// LeadershipTransferDuration returns 0 when rotation is disabled.
func (c *Config) LeadershipTransferDuration() time.Duration {
	d, _ := optionalDuration(c.Raft.LeadershipTransferInterval)
	return d
}

// VerifyIntervalDuration returns 0 when periodic verification is disabled.
func (c *Config) VerifyIntervalDuration() time.Duration {
	d, _ := optionalDuration(c.Verify.Interval)
	return d
}

func (e *ExportConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		e.Host, e.Port, e.Database, e.User, e.Password, e.SSLMode)
}

func optionalDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %s is negative", s)
	}
	return d, nil
}
