// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is
// given.
var configSearchPaths = []string{
	"/etc/spyglass/config.toml",
	"configs/config.toml",
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Tunnel   TunnelConfig   `toml:"tunnel"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Host                  string  `toml:"host"`
	Port                  int     `toml:"port"`
	ReceiveTimeoutSeconds int     `toml:"receive_timeout_seconds"`
	AcceptRate            float64 `toml:"accept_rate"` // accepted conns/sec, 0 = unlimited
	TCPKeepAlive          string  `toml:"tcp_keepalive"`
}

// UpstreamConfig holds outbound HTTP settings.
type UpstreamConfig struct {
	TimeoutSeconds     int `toml:"timeout_seconds"`
	DialTimeoutSeconds int `toml:"dial_timeout_seconds"`
}

// TunnelConfig holds CONNECT tunnel settings.
type TunnelConfig struct {
	ConnectTimeoutSeconds int `toml:"connect_timeout_seconds"`
}

// LogConfig holds request-log and diagnostic-log settings.
type LogConfig struct {
	File   string `toml:"file"`
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:                  "127.0.0.1",
			Port:                  8888,
			ReceiveTimeoutSeconds: 30,
			TCPKeepAlive:          "45:45:3",
		},
		Upstream: UpstreamConfig{
			TimeoutSeconds:     30,
			DialTimeoutSeconds: 30,
		},
		Tunnel: TunnelConfig{
			ConnectTimeoutSeconds: 30,
		},
		Log: LogConfig{
			File:   "proxy_log.json",
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the TOML config file over the defaults. When path is empty the
// search paths are tried in order; a missing file then just means defaults.
// An explicitly named file must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = findConfig()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func findConfig() string {
	for _, p := range configSearchPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the listen address as host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ReceiveTimeout returns the receive phase timeout as a duration.
func (s ServerConfig) ReceiveTimeout() time.Duration {
	return time.Duration(s.ReceiveTimeoutSeconds) * time.Second
}

// Timeout returns the whole-request outbound timeout.
func (u UpstreamConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// DialTimeout returns the outbound connect timeout.
func (u UpstreamConfig) DialTimeout() time.Duration {
	return time.Duration(u.DialTimeoutSeconds) * time.Second
}

// ConnectTimeout returns the tunnel connect timeout.
func (c TunnelConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// ParseTCPKeepAlive parses the on|off|keepidle:keepintvl:keepcnt syntax.
func ParseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
