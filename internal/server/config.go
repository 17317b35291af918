package server

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds server configuration. YAML documents write durations
// as Go duration strings ("30s", "5m").
type Config struct {
	// Identity
	Name string `json:"name"`

	// Network settings. Port serves websocket, QUICPort serves quic;
	// Transports selects which of the two are started.
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	QUICPort   int      `json:"quic_port"`
	Transports []string `json:"transports"`

	// ArchiveDir allows Instantiate requests to name .fmu files from
	// this directory. Empty disables archive loading.
	ArchiveDir string `json:"archive_dir"`

	// Limits
	MaxInstances int `json:"max_instances"`
	MaxConns     int `json:"max_conns"`

	// Health monitoring
	InstanceIdleTimeout time.Duration `json:"instance_idle_timeout"`
	HealthInterval      time.Duration `json:"health_interval"`

	// Shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// Logging
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Name:                "fmukit",
		Host:                "127.0.0.1",
		Port:                8080,
		QUICPort:            8443,
		Transports:          []string{"websocket"},
		MaxInstances:        256,
		MaxConns:            128,
		InstanceIdleTimeout: 5 * time.Minute,
		HealthInterval:      30 * time.Second,
		ShutdownTimeout:     10 * time.Second,
		LogLevel:            "info",
	}
}

// LoadConfig reads a YAML config file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "open config")
	}
	defer func() { _ = f.Close() }()

	if err = yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err = cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// yamlConfig mirrors Config with durations as Go duration strings.
type yamlConfig struct {
	Name                string   `yaml:"name"`
	Host                string   `yaml:"host"`
	Port                int      `yaml:"port"`
	QUICPort            int      `yaml:"quic_port"`
	Transports          []string `yaml:"transports"`
	ArchiveDir          string   `yaml:"archive_dir"`
	MaxInstances        int      `yaml:"max_instances"`
	MaxConns            int      `yaml:"max_conns"`
	InstanceIdleTimeout string   `yaml:"instance_idle_timeout"`
	HealthInterval      string   `yaml:"health_interval"`
	ShutdownTimeout     string   `yaml:"shutdown_timeout"`
	LogLevel            string   `yaml:"log_level"`
}

// UnmarshalYAML decodes over the values already present, so a partial
// document keeps the defaults for whatever it omits.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	aux := yamlConfig{
		Name:                c.Name,
		Host:                c.Host,
		Port:                c.Port,
		QUICPort:            c.QUICPort,
		Transports:          c.Transports,
		ArchiveDir:          c.ArchiveDir,
		MaxInstances:        c.MaxInstances,
		MaxConns:            c.MaxConns,
		InstanceIdleTimeout: c.InstanceIdleTimeout.String(),
		HealthInterval:      c.HealthInterval.String(),
		ShutdownTimeout:     c.ShutdownTimeout.String(),
		LogLevel:            c.LogLevel,
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}

	idle, err := time.ParseDuration(aux.InstanceIdleTimeout)
	if err != nil {
		return errors.Wrapf(err, "instance_idle_timeout %q", aux.InstanceIdleTimeout)
	}
	health, err := time.ParseDuration(aux.HealthInterval)
	if err != nil {
		return errors.Wrapf(err, "health_interval %q", aux.HealthInterval)
	}
	shutdown, err := time.ParseDuration(aux.ShutdownTimeout)
	if err != nil {
		return errors.Wrapf(err, "shutdown_timeout %q", aux.ShutdownTimeout)
	}

	c.Name = aux.Name
	c.Host = aux.Host
	c.Port = aux.Port
	c.QUICPort = aux.QUICPort
	c.Transports = aux.Transports
	c.ArchiveDir = aux.ArchiveDir
	c.MaxInstances = aux.MaxInstances
	c.MaxConns = aux.MaxConns
	c.InstanceIdleTimeout = idle
	c.HealthInterval = health
	c.ShutdownTimeout = shutdown
	c.LogLevel = aux.LogLevel
	return nil
}

// Validate checks the configuration for contradictions.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.Wrapf(ErrInvalidConfig, "port %d out of range", c.Port)
	}
	if c.QUICPort < 0 || c.QUICPort > 65535 {
		return errors.Wrapf(ErrInvalidConfig, "quic port %d out of range", c.QUICPort)
	}
	if len(c.Transports) == 0 {
		return errors.Wrap(ErrInvalidConfig, "no transports configured")
	}
	for _, name := range c.Transports {
		switch name {
		case TransportWebSocket, TransportQUIC:
		default:
			return errors.Wrapf(ErrUnknownTransport, "%q", name)
		}
	}
	if c.MaxInstances <= 0 {
		return errors.Wrap(ErrInvalidConfig, "max_instances must be positive")
	}
	if c.MaxConns <= 0 {
		return errors.Wrap(ErrInvalidConfig, "max_conns must be positive")
	}
	if c.HealthInterval <= 0 {
		return errors.Wrap(ErrInvalidConfig, "health_interval must be positive")
	}
	return nil
}

func (c Config) websocketAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) quicAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.QUICPort))
}
