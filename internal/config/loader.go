package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/aryangodara/cell_rate_limiter/cell"
)

// EnvPrefix prefixes environment overrides, e.g. CELL_REDIS_ADDRS
// overrides redis.addrs.
const EnvPrefix = "CELL"

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. An empty path loads from the
// environment and defaults only.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only sees keys viper already knows, so every key gets a
	// default.
	def := cell.DefaultPolicy()
	v.SetDefault("server.http_addr", "127.0.0.1:8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addrs", []string{"127.0.0.1:6379"})
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 0)
	v.SetDefault("policy.name", "default")
	v.SetDefault("policy.burst", def.Burst())
	v.SetDefault("policy.tokens", def.Tokens())
	v.SetDefault("policy.period", def.Period())
	v.SetDefault("policy.apply", def.Apply())
	v.SetDefault("key_headers", []string{})
	v.SetDefault("trust_forwarded", false)
	v.SetDefault("rate_limit_headers", true)

	return v
}

// SetDefaults completes route overrides: a route without its own rate
// inherits the default policy under the route's name. Exempt routes get one
// too so they validate, it is never used.
func (c *Config) SetDefaults() {
	for i := range c.Routes {
		r := &c.Routes[i]
		if r.Policy.Tokens == 0 && r.Policy.Period == 0 {
			name := r.Policy.Name
			burst := r.Policy.Burst
			r.Policy = c.Policy
			r.Policy.Name = name
			if burst != 0 {
				r.Policy.Burst = burst
			}
		}
		if r.Policy.Apply == 0 {
			r.Policy.Apply = 1
		}
		if r.Policy.Name == "" {
			r.Policy.Name = r.PathPrefix
		}
	}
}
