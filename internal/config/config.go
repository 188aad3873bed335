// Package config is the layered settings loader shared by chaind and
// chainagent: a viper.Viper instance reads a YAML/TOML file and
// NFGRAPH_-prefixed environment variables, mapstructure decodes into a
// typed struct, go-playground/validator checks it, and ApplyDefaults
// backfills anything left unset.
//
// Precedence (highest to lowest): environment variables, config file,
// defaults. Environment variables only override keys present in the
// config file, and none are read when no config file is found. CLI
// flags that cmd/chaind and cmd/chainagent copy onto the loaded Config
// after Load take precedence over all three.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the daemon/agent process configuration. chaind and chainagent share one struct since both read
// the same file shape; a process only consults the sections relevant
// to its role.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`

	// Cache configures the compiler's content-addressed compile cache
	// (chaind only).
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Store configures the compiled-artifact backend (chaind only).
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Registry configures the sqlite or postgres agent registry (chaind
	// only).
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`

	// Compiler configures the chain compiler (chaind only).
	Compiler CompilerConfig `mapstructure:"compiler" yaml:"compiler"`

	// Dataplane configures the agent's AF_XDP fallback loop
	// (chainagent only).
	Dataplane DataplaneConfig `mapstructure:"dataplane" yaml:"dataplane"`

	// ShutdownTimeout bounds graceful shutdown for either process.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry tracing and Pyroscope
// profiling.
type TelemetryConfig struct {
	Enabled    bool            `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string          `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool            `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64         `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	Profiling  ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls continuous profiling export.
type ProfilingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// MetricsConfig controls the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// AuthConfig controls the compiler's RequestChain auth: "none"
// (default), "jwt" (shared-secret bearer tokens), or "kerberos" (agent
// Kerberos tickets verified against a service keytab).
type AuthConfig struct {
	Mode      string             `mapstructure:"mode" validate:"omitempty,oneof=none jwt kerberos" yaml:"mode"`
	JWTSecret string             `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Kerberos  KerberosAuthConfig `mapstructure:"kerberos" yaml:"kerberos"`
}

// KerberosAuthConfig configures the "kerberos" auth mode: keytab path,
// service principal, krb5.conf path. That is all agent-ticket
// verification needs; nfgraph has no Unix uid/gid concept to map
// identities onto.
type KerberosAuthConfig struct {
	KeytabPath       string `mapstructure:"keytab_path" yaml:"keytab_path"`
	ServicePrincipal string `mapstructure:"service_principal" yaml:"service_principal"`
	Krb5Conf         string `mapstructure:"krb5_conf" yaml:"krb5_conf"`
}

// CacheConfig configures the compiler's badger compile cache.
type CacheConfig struct {
	Dir string `mapstructure:"dir" validate:"required_with=Enabled" yaml:"dir"`
}

// StoreConfig configures the compiled-artifact backend.
type StoreConfig struct {
	Type      string `mapstructure:"type" validate:"omitempty,oneof=local s3" yaml:"type"`
	Dir       string `mapstructure:"dir" yaml:"dir"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
}

// RegistryConfig configures the agent registry's backing database:
// sqlite (default, single-node) or postgres (HA-capable).
type RegistryConfig struct {
	Type     string                 `mapstructure:"type" validate:"omitempty,oneof=sqlite postgres" yaml:"type"`
	Path     string                 `mapstructure:"path" yaml:"path"`
	Postgres RegistryPostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// RegistryPostgresConfig holds the connection fields the postgres
// registry backend needs.
type RegistryPostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Database string `mapstructure:"database" yaml:"database"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	SSLMode  string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
}

// CompilerConfig lists the target triples chaind builds and serves. An
// empty list falls back to the built-in defaults.
type CompilerConfig struct {
	Targets []TargetConfig `mapstructure:"targets" yaml:"targets"`
}

// TargetConfig is one supported target triple and its optional vmlinux
// BTF override for cross-kernel builds.
type TargetConfig struct {
	Triple      string `mapstructure:"triple" validate:"required" yaml:"triple"`
	VmlinuxPath string `mapstructure:"vmlinux_path" yaml:"vmlinux_path"`
}

// DataplaneConfig configures the agent's per-core AF_XDP loop. The
// interface is left optional here since chaind reads the same file;
// chainagent run enforces it at flag level.
type DataplaneConfig struct {
	Interface     string `mapstructure:"interface" yaml:"interface"`
	NumCores      int    `mapstructure:"num_cores" validate:"omitempty,min=1" yaml:"num_cores"`
	ShareUMEM     bool   `mapstructure:"share_umem" yaml:"share_umem"`
	DisposalMode  string `mapstructure:"disposal_mode" validate:"omitempty,oneof=first-thread extra-thread" yaml:"disposal_mode"`
	PollTimeoutMs int    `mapstructure:"poll_timeout_ms" validate:"omitempty,min=1" yaml:"poll_timeout_ms"`
}

// Load reads configPath (or the default location if empty), applies
// environment overrides to the keys the file sets, backfills defaults,
// and validates. When no config file is found it returns
// DefaultConfig() without reading the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := DefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

var validate = validator.New()

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("NFGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}

func defaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "nfgraph")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "nfgraph")
}

// DefaultConfigPath is the config file Load consults with an empty
// configPath.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

// DefaultConfig returns a Config usable with no file present: the
// defaults for a local-first deployment.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults backfills any zero-valued field Load left unset.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.Profiling.Endpoint == "" {
		cfg.Telemetry.Profiling.Endpoint = "http://localhost:4040"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = filepath.Join(defaultConfigDir(), "cache")
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "local"
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = filepath.Join(defaultConfigDir(), "artifacts")
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = "none"
	}
	if cfg.Registry.Type == "" {
		cfg.Registry.Type = "sqlite"
	}
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = filepath.Join(defaultConfigDir(), "registry.db")
	}
	if cfg.Registry.Type == "postgres" && cfg.Registry.Postgres.Port == 0 {
		cfg.Registry.Postgres.Port = 5432
	}
	if cfg.Dataplane.NumCores == 0 {
		cfg.Dataplane.NumCores = 1
	}
	if cfg.Dataplane.DisposalMode == "" {
		cfg.Dataplane.DisposalMode = "first-thread"
	}
	if cfg.Dataplane.PollTimeoutMs == 0 {
		cfg.Dataplane.PollTimeoutMs = 5
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}
