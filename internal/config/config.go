package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server ServerConfig
	Data   DataConfig
	Auth   AuthConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string
}

// DataConfig holds persistence settings.
type DataConfig struct {
	Dir string
}

// AuthConfig holds session settings.
type AuthConfig struct {
	SessionTimeoutMinutes int
}

// Load reads configuration from file and env. Env var overrides use prefix GRIDBOOK_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("data.dir", "DATA")
	v.SetDefault("auth.session_timeout_minutes", 24*60)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("GRIDBOOK_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("gridbook")
	}

	v.SetEnvPrefix("GRIDBOOK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
