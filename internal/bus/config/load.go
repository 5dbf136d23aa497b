package config

import (
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for all environment variables read by Load.
// Example: CURALINK_RABBITMQ_URL maps onto Config.RabbitMQ.URL.
const EnvPrefix = "CURALINK_"

// Load reads the configuration from the environment. Validation happens
// separately so callers can report all problems at once.
func Load() (*Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", -1)
	}), nil)
	if err != nil {
		return nil, err
	}

	result := DefaultConfig()
	if err := k.Unmarshal("", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DefaultConfig returns sensible, but not complete, default configuration
// values. The transport-specific keys still come from the environment.
func DefaultConfig() Config {
	return Config{
		PubSubSystem: "rabbitmq",
		PoisonQueue:  "curalink.poison",
	}
}
