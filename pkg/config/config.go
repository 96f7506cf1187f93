// Package config loads and writes the porep configuration file.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-porep/pkg/porep"
	"github.com/filecoin-project/go-porep/pkg/types"
)

// Config is an in memory representation of the porep configuration file
type Config struct {
	Graph         *GraphConfig         `toml:"graph"`
	Proof         *ProofConfig         `toml:"proof"`
	Storage       *StorageConfig       `toml:"storage"`
	Registry      *RegistryConfig      `toml:"registry"`
	Observability *ObservabilityConfig `toml:"observability"`
}

// GraphConfig holds the shape of the stacked graph.
type GraphConfig struct {
	// SectorSize is the size of the sealed data, e.g. "16KiB". It must be a
	// multiple of the node size.
	SectorSize      string `toml:"sectorSize"`
	BaseDegree      int    `toml:"baseDegree"`
	ExpansionDegree int    `toml:"expansionDegree"`
	Layers          int    `toml:"layers"`
	Seed            uint64 `toml:"seed"`
	Hasher          string `toml:"hasher"`
	Combine         string `toml:"combine"`
}

func newDefaultGraphConfig() *GraphConfig {
	return &GraphConfig{
		SectorSize:      "16KiB",
		BaseDegree:      6,
		ExpansionDegree: 8,
		Layers:          4,
		Seed:            42,
		Hasher:          "sha256",
		Combine:         "xor",
	}
}

// ProofConfig holds the challenge and parallelism options.
type ProofConfig struct {
	Challenges int `toml:"challenges"`
	Workers    int `toml:"workers"`
}

func newDefaultProofConfig() *ProofConfig {
	return &ProofConfig{
		Challenges: 20,
	}
}

// StorageConfig says where sealed layers live.
type StorageConfig struct {
	Type string `toml:"type"`
	Path string `toml:"path"`
}

func newDefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		Type: "disk",
		Path: "~/.porep/layers",
	}
}

// RegistryConfig holds the datastore options of the replica registry.
type RegistryConfig struct {
	Type string `toml:"type"`
	Path string `toml:"path"`
}

func newDefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		Type: "badgerds",
		Path: "~/.porep/registry",
	}
}

// ObservabilityConfig is a container for the metrics and tracing options.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `toml:"metrics"`
	Tracing *TraceConfig   `toml:"tracing"`
}

// MetricsConfig holds the prometheus exporter options.
type MetricsConfig struct {
	PrometheusEnabled  bool   `toml:"prometheusEnabled"`
	ReportInterval     string `toml:"reportInterval"`
	PrometheusEndpoint string `toml:"prometheusEndpoint"`
}

// TraceConfig holds the jaeger exporter options.
type TraceConfig struct {
	JaegerTracingEnabled bool    `toml:"jaegerTracingEnabled"`
	ProbabilitySampler   float64 `toml:"probabilitySampler"`
	JaegerEndpoint       string  `toml:"jaegerEndpoint"`
	ServerName           string  `toml:"servername"`
}

func newDefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		Metrics: &MetricsConfig{
			PrometheusEnabled:  false,
			ReportInterval:     "5s",
			PrometheusEndpoint: "127.0.0.1:9400",
		},
		Tracing: &TraceConfig{
			JaegerTracingEnabled: false,
			ProbabilitySampler:   1.0,
			JaegerEndpoint:       "localhost:6831",
			ServerName:           "porep",
		},
	}
}

// Interval parses ReportInterval.
func (mc *MetricsConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(mc.ReportInterval)
	if err != nil {
		return 0, types.NewInvalidParameters("report interval %q: %s", mc.ReportInterval, err)
	}
	return d, nil
}

// NewDefaultConfig returns a config object with all the fields filled out to
// their default values
func NewDefaultConfig() *Config {
	return &Config{
		Graph:         newDefaultGraphConfig(),
		Proof:         newDefaultProofConfig(),
		Storage:       newDefaultStorageConfig(),
		Registry:      newDefaultRegistryConfig(),
		Observability: newDefaultObservabilityConfig(),
	}
}

// WriteFile writes the config to the given filepath.
func (cfg *Config) WriteFile(file string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if err := toml.NewEncoder(f).Encode(*cfg); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// ReadFile reads a config file from disk. Missing keys keep their defaults.
func ReadFile(file string) (*Config, error) {
	cfg := NewDefaultConfig()
	if _, err := toml.DecodeFile(file, cfg); err != nil {
		return nil, xerrors.Errorf("reading config %s: %w", file, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Nodes returns the node count the sector size amounts to.
func (gc *GraphConfig) Nodes() (uint64, error) {
	size, err := units.RAMInBytes(gc.SectorSize)
	if err != nil {
		return 0, types.NewInvalidParameters("sector size %q: %s", gc.SectorSize, err)
	}
	if size <= 0 || size%types.NodeSize != 0 {
		return 0, types.NewInvalidParameters("sector size %s is not a positive multiple of %d bytes", gc.SectorSize, types.NodeSize)
	}
	return uint64(size) / types.NodeSize, nil
}

// Validate checks the options that Setup would not see.
func (cfg *Config) Validate() error {
	if _, err := cfg.Graph.Nodes(); err != nil {
		return err
	}
	if cfg.Proof.Workers < 0 {
		return types.NewInvalidParameters("workers must not be negative, got %d", cfg.Proof.Workers)
	}
	switch cfg.Storage.Type {
	case "disk", "memory":
	default:
		return types.NewInvalidParameters("unknown storage type %q", cfg.Storage.Type)
	}
	switch cfg.Registry.Type {
	case "badgerds", "mapds":
	default:
		return types.NewInvalidParameters("unknown registry type %q", cfg.Registry.Type)
	}
	if _, err := cfg.Observability.Metrics.Interval(); err != nil {
		return err
	}
	if p := cfg.Observability.Tracing.ProbabilitySampler; p < 0 || p > 1 {
		return types.NewInvalidParameters("probability sampler must be within [0, 1], got %v", p)
	}
	return nil
}

// SetupParams converts the graph and proof sections into setup parameters.
func (cfg *Config) SetupParams() (porep.SetupParams, error) {
	n, err := cfg.Graph.Nodes()
	if err != nil {
		return porep.SetupParams{}, err
	}
	return porep.SetupParams{
		Nodes:           n,
		BaseDegree:      cfg.Graph.BaseDegree,
		ExpansionDegree: cfg.Graph.ExpansionDegree,
		Layers:          cfg.Graph.Layers,
		Seed:            types.SeedFromUint64(cfg.Graph.Seed),
		Hasher:          cfg.Graph.Hasher,
		Combine:         cfg.Graph.Combine,
		ChallengeCount:  cfg.Proof.Challenges,
		Workers:         cfg.Proof.Workers,
	}, nil
}

// StoragePath returns the layer directory with ~ expanded.
func (cfg *Config) StoragePath() (string, error) {
	return homedir.Expand(cfg.Storage.Path)
}

// RegistryPath returns the registry directory with ~ expanded.
func (cfg *Config) RegistryPath() (string, error) {
	return homedir.Expand(cfg.Registry.Path)
}
