// Package config loads streamlat settings from flags, the environment and an
// optional config file. Environment variables use the STREAMLAT_ prefix with
// dots replaced by underscores, e.g. STREAMLAT_TRANSPORT_CREDENTIAL.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by streamlat.
const EnvPrefix = "streamlat"

// Transport kinds.
const (
	KindMemory = "memory"
	KindRedis  = "redis"
	KindKafka  = "kafka"
	KindNATS   = "nats"
	KindZMQ    = "zmq"
	KindAMQP   = "amqp"
)

// Reader modes.
const (
	ReaderModeProcess = "process"
	ReaderModeThread  = "thread"
)

// Output formats.
const (
	FormatTable    = "table"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// Kinds lists every supported transport kind.
var Kinds = []string{KindMemory, KindRedis, KindKafka, KindNATS, KindZMQ, KindAMQP}

type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	Run       RunConfig       `mapstructure:"run"`
	Output    OutputConfig    `mapstructure:"output"`
	Log       LogConfig       `mapstructure:"log"`
}

type TransportConfig struct {
	Kind string `mapstructure:"kind"`
	Host string `mapstructure:"host"`
	// Port zero selects the default port of the transport kind.
	Port        int           `mapstructure:"port"`
	Credential  string        `mapstructure:"credential"`
	InitTimeout time.Duration `mapstructure:"init_timeout"`
	// MemoryDelay is the delivery delay of the in-process transport.
	MemoryDelay time.Duration `mapstructure:"memory_delay"`
}

type RunConfig struct {
	// DT is the target inter-batch interval in seconds.
	DT                 float64       `mapstructure:"dt"`
	BatchSize          int           `mapstructure:"batch_size"`
	NSamples           int           `mapstructure:"n_samples"`
	SampleSize         int           `mapstructure:"sample_size"`
	NumReaders         int           `mapstructure:"num_readers"`
	ReadSimultaneously bool          `mapstructure:"read_simultaneously"`
	Settle             time.Duration `mapstructure:"settle"`
	ReplayPayload      bool          `mapstructure:"replay_payload"`
	ReaderMode         string        `mapstructure:"reader_mode"`
	SnapshotDir        string        `mapstructure:"snapshot_dir"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads the configuration into a Config. Flags must already be bound to v.
// An empty path skips the config file.
func Load(v *viper.Viper, path string) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Transport.Port == 0 {
		cfg.Transport.Port = DefaultPort(cfg.Transport.Kind)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport.kind", KindRedis)
	v.SetDefault("transport.host", "127.0.0.1")
	v.SetDefault("transport.port", 0)
	v.SetDefault("transport.credential", "")
	v.SetDefault("transport.init_timeout", 5*time.Second)
	v.SetDefault("transport.memory_delay", 0)

	v.SetDefault("run.dt", 0.01)
	v.SetDefault("run.batch_size", 1)
	v.SetDefault("run.n_samples", 1000)
	v.SetDefault("run.sample_size", 8)
	v.SetDefault("run.num_readers", 1)
	v.SetDefault("run.read_simultaneously", true)
	v.SetDefault("run.settle", time.Second)
	v.SetDefault("run.replay_payload", false)
	v.SetDefault("run.reader_mode", ReaderModeProcess)
	v.SetDefault("run.snapshot_dir", "")

	v.SetDefault("output.format", FormatTable)
	v.SetDefault("log.level", "info")
}

// DefaultPort returns the conventional port of a transport kind.
func DefaultPort(kind string) int {
	switch kind {
	case KindRedis:
		return 6379
	case KindKafka:
		return 9092
	case KindNATS:
		return 4222
	case KindZMQ:
		return 5563
	case KindAMQP:
		return 5672
	default:
		return 0
	}
}

// Validate checks the enumerated settings. Numeric run parameters are checked
// where they are used.
func (c Config) Validate() error {
	if !slices.Contains(Kinds, c.Transport.Kind) {
		return fmt.Errorf("transport.kind must be one of %s, got %q", strings.Join(Kinds, ", "), c.Transport.Kind)
	}
	if c.Run.ReaderMode != ReaderModeProcess && c.Run.ReaderMode != ReaderModeThread {
		return fmt.Errorf("run.reader_mode must be %q or %q, got %q", ReaderModeProcess, ReaderModeThread, c.Run.ReaderMode)
	}
	switch c.Output.Format {
	case FormatTable, FormatCSV, FormatMarkdown:
	default:
		return fmt.Errorf("output.format must be one of table, csv, markdown, got %q", c.Output.Format)
	}
	return nil
}
