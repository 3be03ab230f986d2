// Package config provides the configuration of the example rate limited
// server: the redis-cell connection, the default policy and per route
// overrides.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aryangodara/cell_rate_limiter/cell"
)

// Config is the top-level configuration.
type Config struct {
	// Server configures the HTTP listener of the example server.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Redis configures the connection to the redis-cell server.
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`

	// Policy is applied to every route without an override.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// Routes override the policy for path prefixes. The longest matching
	// prefix wins.
	Routes []RouteConfig `yaml:"routes" mapstructure:"routes" validate:"omitempty,dive"`

	// KeyHeaders build the key from request headers. The client address is
	// used when empty.
	KeyHeaders []string `yaml:"key_headers" mapstructure:"key_headers" validate:"omitempty,max=3,dive,required"`

	// TrustForwarded makes the address key honour X-Forwarded-For and
	// X-Real-IP. Only enable it behind a proxy that sets them.
	TrustForwarded bool `yaml:"trust_forwarded" mapstructure:"trust_forwarded"`

	// RateLimitHeaders adds X-RateLimit-* headers to responses.
	RateLimitHeaders bool `yaml:"rate_limit_headers" mapstructure:"rate_limit_headers"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"required,hostname_port"`
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// RedisConfig configures the go-redis client.
type RedisConfig struct {
	// Addrs holds one address for a single node, several for a cluster.
	Addrs        []string      `yaml:"addrs" mapstructure:"addrs" validate:"required,min=1,dive,hostname_port"`
	Username     string        `yaml:"username" mapstructure:"username"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db" validate:"gte=0"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout" validate:"gte=0"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"gte=0"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size" validate:"gte=0"`
}

// PolicyConfig mirrors cell.Policy.
type PolicyConfig struct {
	Name   string        `yaml:"name" mapstructure:"name"`
	Burst  uint          `yaml:"burst" mapstructure:"burst"`
	Tokens uint          `yaml:"tokens" mapstructure:"tokens" validate:"required,gt=0"`
	Period time.Duration `yaml:"period" mapstructure:"period" validate:"required,min=1s"`
	Apply  uint          `yaml:"apply" mapstructure:"apply" validate:"required,gt=0"`
}

// RouteConfig overrides the policy below a path prefix.
type RouteConfig struct {
	PathPrefix string       `yaml:"path_prefix" mapstructure:"path_prefix" validate:"required,startswith=/"`
	Policy     PolicyConfig `yaml:"policy" mapstructure:"policy"`
	// Exempt routes are not rate limited at all.
	Exempt bool `yaml:"exempt" mapstructure:"exempt"`
}

// Policy converts c to a cell.Policy.
func (c PolicyConfig) Policy() cell.Policy {
	return cell.NewPolicy(c.Burst, c.Tokens, c.Period, c.Apply).WithName(c.Name)
}

// RoutePolicy returns the policy for path and whether the path is limited
// at all.
func (c *Config) RoutePolicy(path string) (cell.Policy, bool) {
	var best *RouteConfig
	for i := range c.Routes {
		r := &c.Routes[i]
		if !strings.HasPrefix(path, r.PathPrefix) {
			continue
		}
		if best == nil || len(r.PathPrefix) > len(best.PathPrefix) {
			best = r
		}
	}

	switch {
	case best == nil:
		return c.Policy.Policy(), true
	case best.Exempt:
		return cell.Policy{}, false
	default:
		return best.Policy.Policy(), true
	}
}

// NewClient creates the go-redis client. A single address gives a plain
// client, more than one a cluster client.
func (c RedisConfig) NewClient() redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        c.Addrs,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     c.PoolSize,
	})
}

// Level parses LogLevel, defaulting to info.
func (c ServerConfig) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
