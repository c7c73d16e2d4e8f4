package server

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "netsage.db")

	// Plugin defaults
	v.SetDefault("plugins.checks.tick", "15s")
	v.SetDefault("plugins.checks.check_timeout", "5s")
	v.SetDefault("plugins.checks.ping_count", 3)
	v.SetDefault("plugins.checks.consecutive_failures", 3)
	v.SetDefault("plugins.checks.retention_period", "720h")
	v.SetDefault("plugins.checks.max_workers", 10)
	v.SetDefault("plugins.checks.maintenance_interval", "1h")
	v.SetDefault("plugins.llm.provider", "ollama")
	v.SetDefault("plugins.llm.ollama.url", "http://localhost:11434")
	v.SetDefault("plugins.llm.ollama.model", "qwen2.5:32b")
	v.SetDefault("plugins.llm.ollama.timeout", "5m")
	v.SetDefault("plugins.assist.cache_ttl", "30s")
	v.SetDefault("plugins.assist.history_limit", 10)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("netsage")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/netsage")
	}

	// Environment variable support: NS_SERVER_PORT=9090
	v.SetEnvPrefix("NS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
