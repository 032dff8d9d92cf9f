// Package config loads the raftdemo harness's configuration from a file
// and environment variables.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cod-technologies/tender/raft"
)

// Config holds everything needed to start one node of the demo harness.
type Config struct {
	Node     NodeConfig     `mapstructure:"node"`
	Cluster  ClusterConfig  `mapstructure:"cluster"`
	Election ElectionConfig `mapstructure:"election"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

// NodeConfig identifies this process within its group.
type NodeConfig struct {
	GroupID  uint64 `mapstructure:"group_id"`
	NodeID   uint64 `mapstructure:"node_id"`
	Weight   int64  `mapstructure:"weight"`
	GRPCAddr string `mapstructure:"grpc_addr"`
}

// PeerConfig describes one other member of the group.
type PeerConfig struct {
	NodeID uint64 `mapstructure:"node_id"`
	Weight int64  `mapstructure:"weight"`
	Addr   string `mapstructure:"addr"`
}

// ClusterConfig describes the rest of the group.
type ClusterConfig struct {
	Peers       []PeerConfig `mapstructure:"peers"`
	ForceLeader bool         `mapstructure:"force_leader"`
}

// ElectionConfig holds the tunables mapped onto raft.Options.
type ElectionConfig struct {
	TimeoutMinMS int    `mapstructure:"timeout_min_ms"`
	TimeoutMaxMS int    `mapstructure:"timeout_max_ms"`
	HeartbeatMS  int    `mapstructure:"heartbeat_ms"`
	LeaseMS      int    `mapstructure:"lease_ms"`
	Quorum       string `mapstructure:"quorum"` // "major", "any:<k>", "weighted:<w>"
}

// StorageConfig selects the HardStateStore backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // mem, file, badger
	DataDir string `mapstructure:"data_dir"`
}

// LogConfig controls the zap logger's level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// HTTPConfig controls the demo status/metrics HTTP server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

var defaults = map[string]interface{}{
	"node.group_id":  1,
	"node.weight":    1,
	"node.grpc_addr": "127.0.0.1:7000",

	"cluster.force_leader": false,

	"election.timeout_min_ms": 150,
	"election.timeout_max_ms": 300,
	"election.heartbeat_ms":   50,
	"election.lease_ms":       1000,
	"election.quorum":         "major",

	"storage.backend":  "mem",
	"storage.data_dir": "./data",

	"log.level": "info",

	"http.addr": "127.0.0.1:8080",
}

// Load reads configuration from a "raftdemo" config file (if present) in
// the current directory, ./config, or /etc/raftdemo, then overlays
// RAFTDEMO_-prefixed environment variables.
func Load() (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("RAFTDEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("raftdemo")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/raftdemo")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate rejects a configuration that would never produce a working
// node.
func (c *Config) Validate() error {
	if c.Node.NodeID == 0 {
		return fmt.Errorf("node.node_id is required")
	}
	if c.Node.GRPCAddr == "" {
		return fmt.Errorf("node.grpc_addr is required")
	}
	if c.Election.TimeoutMinMS <= 0 || c.Election.TimeoutMaxMS <= 0 {
		return fmt.Errorf("election timeouts must be positive")
	}
	if c.Election.TimeoutMaxMS <= c.Election.TimeoutMinMS {
		return fmt.Errorf("election.timeout_max_ms must exceed election.timeout_min_ms")
	}
	switch c.Storage.Backend {
	case "mem", "file", "badger":
	default:
		return fmt.Errorf("unknown storage.backend %q (want mem, file, or badger)", c.Storage.Backend)
	}
	if _, err := ParseQuorum(c.Election.Quorum); err != nil {
		return err
	}
	return nil
}

// ParseQuorum parses the "major", "any:<k>", "weighted:<w>" mini-syntax
// used by election.quorum.
func ParseQuorum(s string) (raft.QuorumPolicy, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch {
	case s == "" || s == "major":
		return raft.Major(), nil
	case strings.HasPrefix(s, "any:"):
		k, err := strconv.Atoi(strings.TrimPrefix(s, "any:"))
		if err != nil || k <= 0 {
			return raft.QuorumPolicy{}, fmt.Errorf("invalid any:k quorum %q", s)
		}
		return raft.Any(k), nil
	case strings.HasPrefix(s, "weighted:"):
		w, err := strconv.ParseInt(strings.TrimPrefix(s, "weighted:"), 10, 64)
		if err != nil {
			return raft.QuorumPolicy{}, fmt.Errorf("invalid weighted:w quorum %q", s)
		}
		return raft.AnyWeighted(raft.VoteFactor(w)), nil
	default:
		return raft.QuorumPolicy{}, fmt.Errorf("unrecognized quorum %q (want major, any:<k>, or weighted:<w>)", s)
	}
}

// Options converts the election section into raft.Options.
func (c *Config) Options() (raft.Options, error) {
	policy, err := ParseQuorum(c.Election.Quorum)
	if err != nil {
		return raft.Options{}, err
	}
	return raft.Options{
		ElectionTimeoutMin: time.Duration(c.Election.TimeoutMinMS) * time.Millisecond,
		ElectionTimeoutMax: time.Duration(c.Election.TimeoutMaxMS) * time.Millisecond,
		HeartbeatInterval:  time.Duration(c.Election.HeartbeatMS) * time.Millisecond,
		LeaderLease:        time.Duration(c.Election.LeaseMS) * time.Millisecond,
		QuorumPolicy:       policy,
	}, nil
}

// Self returns this process's NodeId.
func (c *Config) Self() raft.NodeId {
	return raft.NodeId{GroupID: c.Node.GroupID, NodeID: c.Node.NodeID}
}

// Membership builds the full group membership, including self.
func (c *Config) Membership() raft.Membership {
	weights := map[raft.NodeId]raft.VoteFactor{
		c.Self(): raft.VoteFactor(c.Node.Weight),
	}
	for _, p := range c.Cluster.Peers {
		weights[raft.NodeId{GroupID: c.Node.GroupID, NodeID: p.NodeID}] = raft.VoteFactor(p.Weight)
	}
	return raft.NewMembership(weights)
}

// AddressBook builds an address book covering every peer (not self).
func (c *Config) AddressBook() *raft.AddressBook {
	addrs := make(map[raft.NodeId]string, len(c.Cluster.Peers))
	for _, p := range c.Cluster.Peers {
		addrs[raft.NodeId{GroupID: c.Node.GroupID, NodeID: p.NodeID}] = p.Addr
	}
	return raft.NewAddressBook(addrs)
}
