// Package config loads the daemon configuration: built-in defaults, merged
// with an optional yaml file, then environment overrides.
package config

import (
	"os"
	"strings"
	"time"

	"bond-mesh/go-node/internal/bond"
	"bond-mesh/go-node/internal/transport"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	Network  transport.Config
	Bond     bond.Config
	Identity IdentitySettings
	Metrics  MetricsSettings
	LogLevel string
}

type IdentitySettings struct {
	SeedPath string
}

type MetricsSettings struct {
	Enabled       bool
	ListenAddress string
}

type FileConfig struct {
	Network  NetworkFileConfig  `yaml:"network"`
	Bond     BondFileConfig     `yaml:"bond"`
	Identity IdentityFileConfig `yaml:"identity"`
	Metrics  MetricsFileConfig  `yaml:"metrics"`
	LogLevel string             `yaml:"logLevel"`
}

type NetworkFileConfig struct {
	Backend             string        `yaml:"backend"`
	Port                int           `yaml:"port"`
	AdvertiseAddress    string        `yaml:"advertiseAddress"`
	EnableRelay         *bool         `yaml:"enableRelay"`
	EnableStore         *bool         `yaml:"enableStore"`
	BootstrapNodes      []string      `yaml:"bootstrapNodes"`
	MinPeers            int           `yaml:"minPeers"`
	ReconnectInterval   time.Duration `yaml:"reconnectInterval"`
	ReconnectBackoffMax time.Duration `yaml:"reconnectBackoffMax"`
}

type BondFileConfig struct {
	HandshakeTimeout     time.Duration `yaml:"handshakeTimeout"`
	MaxActiveBonds       int           `yaml:"maxActiveBonds"`
	HalfLifeDays         float64       `yaml:"halfLifeDays"`
	HandshakeRatePerPeer float64       `yaml:"handshakeRatePerPeer"`
	HandshakeBurst       int           `yaml:"handshakeBurst"`
}

type IdentityFileConfig struct {
	SeedPath string `yaml:"seedPath"`
}

type MetricsFileConfig struct {
	Enabled       *bool  `yaml:"enabled"`
	ListenAddress string `yaml:"listenAddress"`
}

func Defaults() Settings {
	return Settings{
		Network:  transport.DefaultConfig(),
		Bond:     bond.DefaultConfig(),
		Identity: IdentitySettings{SeedPath: "data/identity.seed"},
		Metrics:  MetricsSettings{Enabled: false, ListenAddress: "127.0.0.1:9464"},
		LogLevel: "info",
	}
}

func LoadFromPath(configPath string) Settings {
	cfg := Defaults()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"configs/config.yaml",
			"config.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}

		merged := cfg
		Merge(&merged, parsed)
		ApplyEnvOverrides(&merged)
		return merged
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

func Merge(dst *Settings, src FileConfig) {
	if src.Network.Backend != "" {
		dst.Network.Backend = src.Network.Backend
	}
	if src.Network.Port != 0 {
		dst.Network.Port = src.Network.Port
	}
	if src.Network.AdvertiseAddress != "" {
		dst.Network.AdvertiseAddress = src.Network.AdvertiseAddress
	}
	if src.Network.EnableRelay != nil {
		dst.Network.EnableRelay = *src.Network.EnableRelay
	}
	if src.Network.EnableStore != nil {
		dst.Network.EnableStore = *src.Network.EnableStore
	}
	if src.Network.BootstrapNodes != nil {
		dst.Network.BootstrapNodes = src.Network.BootstrapNodes
	}
	if src.Network.MinPeers != 0 {
		dst.Network.MinPeers = src.Network.MinPeers
	}
	if src.Network.ReconnectInterval != 0 {
		dst.Network.ReconnectInterval = src.Network.ReconnectInterval
	}
	if src.Network.ReconnectBackoffMax != 0 {
		dst.Network.ReconnectBackoffMax = src.Network.ReconnectBackoffMax
	}

	if src.Bond.HandshakeTimeout != 0 {
		dst.Bond.HandshakeTimeout = src.Bond.HandshakeTimeout
	}
	if src.Bond.MaxActiveBonds != 0 {
		dst.Bond.MaxActiveBonds = src.Bond.MaxActiveBonds
	}
	if src.Bond.HalfLifeDays != 0 {
		dst.Bond.HalfLifeDays = src.Bond.HalfLifeDays
	}
	if src.Bond.HandshakeRatePerPeer != 0 {
		dst.Bond.HandshakeRatePerPeer = src.Bond.HandshakeRatePerPeer
	}
	if src.Bond.HandshakeBurst != 0 {
		dst.Bond.HandshakeBurst = src.Bond.HandshakeBurst
	}

	if src.Identity.SeedPath != "" {
		dst.Identity.SeedPath = src.Identity.SeedPath
	}

	if src.Metrics.Enabled != nil {
		dst.Metrics.Enabled = *src.Metrics.Enabled
	}
	if src.Metrics.ListenAddress != "" {
		dst.Metrics.ListenAddress = src.Metrics.ListenAddress
	}

	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

func ApplyEnvOverrides(cfg *Settings) {
	if backend := strings.TrimSpace(os.Getenv("BOND_NETWORK_BACKEND")); backend != "" {
		cfg.Network.Backend = backend
	}
	if seedPath := strings.TrimSpace(os.Getenv("BOND_IDENTITY_SEED_PATH")); seedPath != "" {
		cfg.Identity.SeedPath = seedPath
	}
	if listen := strings.TrimSpace(os.Getenv("BOND_METRICS_LISTEN")); listen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = listen
	}
	if level := strings.TrimSpace(os.Getenv("BOND_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}
}
