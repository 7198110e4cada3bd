package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/ttscraper/ttscraper-go/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. TTSCRAPER_DOWNLOAD_SAVE_TO
const EnvPrefix = "TTSCRAPER"

// LoadConfig loads configuration from defaults, file, .env and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	// .env values never override the real environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.ttscraper")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// bindEnvKeys registers every known key so that environment values are
// picked up by Unmarshal even when no config file sets the key
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"server.enabled", "server.host", "server.port",
		"endpoint.root_url", "endpoint.timestamp_file", "endpoint.tree_file",
		"download.save_to", "download.parallel_downloads", "download.parallel_dir_fetches",
		"download.max_size", "download.path_prefix", "download.path_glob",
		"download.poll_interval", "download.idle_polls", "download.max_retries",
		"download.retry_delay", "download.request_timeout", "download.stall_timeout",
		"download.progress_interval",
		"store.database_path",
		"cache.driver", "cache.dir", "cache.redis_url", "cache.key_prefix",
		"progress.enabled", "progress.width",
		"notification.enabled", "notification.sound", "notification.method",
		"logging.level", "logging.format", "logging.output_path", "logging.logs_dir",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.SaveTo = expandPath(config.Download.SaveTo)
	config.Store.DatabasePath = expandPath(config.Store.DatabasePath)
	config.Cache.Dir = expandPath(config.Cache.Dir)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return domain.ConfigError("invalid server port: %d", config.Server.Port)
	}

	if config.Download.SaveTo == "" {
		return domain.ConfigError("download.save_to not configured")
	}

	if config.Download.ParallelDownloads < 1 {
		return domain.ConfigError("download.parallel_downloads must be at least 1")
	}

	if config.Download.ParallelDirFetches < 1 {
		return domain.ConfigError("download.parallel_dir_fetches must be at least 1")
	}

	if config.Download.MaxRetries < 0 {
		return domain.ConfigError("download.max_retries cannot be negative")
	}

	if config.Download.MaxSize < 0 {
		return domain.ConfigError("download.max_size cannot be negative")
	}

	if config.Download.PollInterval <= 0 {
		return domain.ConfigError("download.poll_interval must be positive")
	}

	if config.Download.PathGlob != "" {
		if _, err := filepath.Match(config.Download.PathGlob, ""); err != nil {
			return domain.ConfigError("invalid download.path_glob %q: %v", config.Download.PathGlob, err)
		}
	}

	if config.Store.DatabasePath == "" {
		return domain.ConfigError("store.database_path not configured")
	}

	switch config.Cache.Driver {
	case "file", "redis":
	default:
		return domain.ConfigError("unknown cache.driver: %s", config.Cache.Driver)
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}
