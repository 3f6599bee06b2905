// Package config owns the TOML configuration surface.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cablecast/cablecast/internal/discovery"
)

// Duration is a time.Duration that unmarshals from TOML strings such as
// "250ms" or "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the full configuration of one cablecast process.
type Config struct {
	UDPPort           int      `toml:"udp_port"`
	TCPPort           int      `toml:"tcp_port"`
	BroadcastInterval Duration `toml:"broadcast_interval"`
	AllowLoopback     bool     `toml:"allow_loopback"`
	ConnectTimeout    Duration `toml:"connect_timeout"`
	Timeout           Duration `toml:"timeout"`
	Transport         string   `toml:"transport"`
}

// Default returns the stock configuration.
func Default() Config {
	opts := discovery.DefaultOptions()
	return Config{
		UDPPort:           opts.UDPPort,
		TCPPort:           opts.TCPPort,
		BroadcastInterval: Duration{opts.BroadcastInterval},
		AllowLoopback:     opts.AllowLoopback,
		ConnectTimeout:    Duration{opts.ConnectTimeout},
		Timeout:           Duration{opts.Timeout},
		Transport:         "json",
	}
}

// Load reads a TOML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the session cannot run with.
func Validate(cfg Config) error {
	if cfg.UDPPort < 1 || cfg.UDPPort > 65535 {
		return fmt.Errorf("config udp_port %d out of range", cfg.UDPPort)
	}
	if cfg.TCPPort < 1 || cfg.TCPPort > 65535 {
		return fmt.Errorf("config tcp_port %d out of range", cfg.TCPPort)
	}
	if cfg.UDPPort == cfg.TCPPort {
		return fmt.Errorf("config udp_port and tcp_port must differ")
	}
	if cfg.BroadcastInterval.Duration <= 0 {
		return fmt.Errorf("config broadcast_interval must be positive")
	}
	if cfg.ConnectTimeout.Duration <= 0 {
		return fmt.Errorf("config connect_timeout must be positive")
	}
	if cfg.Timeout.Duration < 0 {
		return fmt.Errorf("config timeout must not be negative")
	}
	if cfg.Transport != "json" && cfg.Transport != "byte" {
		return fmt.Errorf("config transport %q must be json or byte", cfg.Transport)
	}
	return nil
}

// DiscoveryOptions maps the config onto discovery session options.
func (c Config) DiscoveryOptions() discovery.Options {
	return discovery.Options{
		UDPPort:           c.UDPPort,
		TCPPort:           c.TCPPort,
		BroadcastInterval: c.BroadcastInterval.Duration,
		AllowLoopback:     c.AllowLoopback,
		ConnectTimeout:    c.ConnectTimeout.Duration,
		Timeout:           c.Timeout.Duration,
	}
}
