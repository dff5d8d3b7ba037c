package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/litewrap/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	envPrefix = "LITEWRAP"

	cfgKeyEngine      = "engine"
	cfgKeyBusyTimeout = "busy_timeout_ms"
	cfgKeyMaxRetries  = "max_retries"
	cfgKeyRetryDelay  = "retry_delay_us"
	cfgKeyLogLevel    = "log_level"
	cfgKeyDataDir     = "data_dir"
)

// loadConfig reads config.yaml from configDir and the LITEWRAP_* environment on
// top of the defaults. A missing config.yaml is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	def := types.DefaultConfig()

	v := viper.New()
	v.SetDefault(cfgKeyEngine, def.Engine)
	v.SetDefault(cfgKeyBusyTimeout, def.BusyTimeoutMs)
	v.SetDefault(cfgKeyMaxRetries, def.MaxRetries)
	v.SetDefault(cfgKeyRetryDelay, def.RetryDelayUs)
	v.SetDefault(cfgKeyLogLevel, def.LogLevel)
	v.SetDefault(cfgKeyDataDir, "")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// decodeConfig extracts and validates the connection settings.
func decodeConfig(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
