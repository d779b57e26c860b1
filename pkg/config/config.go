// Package config provides configuration management for the shuffle engine.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for a shuffle-engine process.
type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	Shuffle   ShuffleConfig   `mapstructure:"shuffle"`
	IO        IOConfig        `mapstructure:"io"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
}

// TransportConfig holds the collective process-group configuration.
type TransportConfig struct {
	Backend      string `mapstructure:"backend"` // "tcp" (only backend implemented)
	Rank         int    `mapstructure:"rank"`
	WorldSize    int    `mapstructure:"world_size"`
	MasterAddr   string `mapstructure:"master_addr"`
	MasterPort   int    `mapstructure:"master_port"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`
	Codec        string `mapstructure:"codec"` // "none", "gzip", "zstd"
}

// ShuffleConfig holds the chunking/message-size knobs that bound peak
// memory during the edge and feature shuffle phases.
type ShuffleConfig struct {
	EdgeChunkRows    int   `mapstructure:"edge_chunk_rows"`
	FeatureMsgCapMB  int   `mapstructure:"feature_mesg_size_mb"`
	NumParts         int   `mapstructure:"num_parts"`
	SaveOrigNIDs     bool  `mapstructure:"save_orig_nids"`
	SaveOrigEIDs     bool  `mapstructure:"save_orig_eids"`
	GraphFormats     []string `mapstructure:"graph_formats"`
}

// IOConfig holds input/output path configuration.
type IOConfig struct {
	SchemaFile       string `mapstructure:"schema_file"`
	PartitionsDir    string `mapstructure:"partitions_dir"`
	OutputDir        string `mapstructure:"output_dir"`
}

// StorageConfig holds the output sink configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
	Compress  bool   `mapstructure:"compress"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// Load reads configuration from the specified file path, falling back to
// defaults and SHUFFLE_*-prefixed environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/shuffle")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("SHUFFLE")
	// Nested keys map to underscored names: transport.world_size is read
	// from SHUFFLE_TRANSPORT_WORLD_SIZE.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// RANK/MASTER_ADDR/MASTER_PORT are read without the SHUFFLE_ prefix,
	// matching the process-group rendezvous convention.
	_ = v.BindEnv("transport.rank", "RANK")
	_ = v.BindEnv("transport.master_addr", "MASTER_ADDR")
	_ = v.BindEnv("transport.master_port", "MASTER_PORT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from an in-memory buffer (used by tests).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("transport.backend", "tcp")
	v.SetDefault("transport.rank", 0)
	v.SetDefault("transport.world_size", 1)
	v.SetDefault("transport.timeout_secs", 300) // 5 minutes, matching the original's default.
	v.SetDefault("transport.codec", "none")

	v.SetDefault("shuffle.edge_chunk_rows", 100_000_000)
	v.SetDefault("shuffle.feature_mesg_size_mb", 200)
	v.SetDefault("shuffle.graph_formats", []string{"coo"})

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./output")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Transport.WorldSize < 1 {
		return fmt.Errorf("transport.world_size must be at least 1")
	}
	if c.Transport.Rank < 0 || c.Transport.Rank >= c.Transport.WorldSize {
		return fmt.Errorf("transport.rank %d out of range [0, %d)", c.Transport.Rank, c.Transport.WorldSize)
	}
	if c.Shuffle.NumParts > 0 && c.Shuffle.NumParts%c.Transport.WorldSize != 0 {
		return fmt.Errorf("num_parts (%d) must be a multiple of world_size (%d)", c.Shuffle.NumParts, c.Transport.WorldSize)
	}
	if c.Shuffle.NumParts > 0 && c.Shuffle.NumParts < c.Transport.WorldSize {
		return fmt.Errorf("num_parts (%d) must be >= world_size (%d)", c.Shuffle.NumParts, c.Transport.WorldSize)
	}

	switch c.Storage.Type {
	case "local", "cos":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	return nil
}
