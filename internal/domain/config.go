package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Endpoint     EndpointConfig     `mapstructure:"endpoint"`
	Download     DownloadConfig     `mapstructure:"download"`
	Store        StoreConfig        `mapstructure:"store"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Progress     ProgressConfig     `mapstructure:"progress"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains status server configuration
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// EndpointConfig describes the remote listing site
type EndpointConfig struct {
	RootURL       string `mapstructure:"root_url"`
	TimestampFile string `mapstructure:"timestamp_file"`
	TreeFile      string `mapstructure:"tree_file"`
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	SaveTo             string        `mapstructure:"save_to"`
	ParallelDownloads  int           `mapstructure:"parallel_downloads"`
	ParallelDirFetches int           `mapstructure:"parallel_dir_fetches"`
	MaxSize            int64         `mapstructure:"max_size"`    // exclusive ceiling in bytes, 0 = none
	PathPrefix         string        `mapstructure:"path_prefix"` // e.g. "Books"
	PathGlob           string        `mapstructure:"path_glob"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	IdlePolls          int           `mapstructure:"idle_polls"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	StallTimeout       time.Duration `mapstructure:"stall_timeout"`
	ProgressInterval   time.Duration `mapstructure:"progress_interval"`
}

// Filter returns the pending filter described by the configuration
func (c DownloadConfig) Filter() PendingFilter {
	return PendingFilter{
		PathPrefix: c.PathPrefix,
		PathGlob:   c.PathGlob,
		MaxSize:    c.MaxSize,
	}
}

// StoreConfig contains record store configuration
type StoreConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// CacheConfig selects where the remote tree is cached
type CacheConfig struct {
	Driver    string `mapstructure:"driver"` // file, redis
	Dir       string `mapstructure:"dir"`
	RedisURL  string `mapstructure:"redis_url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ProgressConfig contains terminal progress configuration
type ProgressConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Width   int  `mapstructure:"width"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // category logs, empty disables them
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    8090,
		},
		Endpoint: EndpointConfig{
			TimestampFile: "timestamp.txt",
			TreeFile:      "tree.json",
		},
		Download: DownloadConfig{
			SaveTo:             "$HOME/Downloads/ttscraper",
			ParallelDownloads:  5,
			ParallelDirFetches: 10,
			PollInterval:       2 * time.Second,
			IdlePolls:          2,
			MaxRetries:         3,
			RetryDelay:         time.Second,
			RequestTimeout:     30 * time.Second,
			StallTimeout:       60 * time.Second,
			ProgressInterval:   150 * time.Millisecond,
		},
		Store: StoreConfig{
			DatabasePath: "$HOME/.ttscraper/ttscraper.db",
		},
		Cache: CacheConfig{
			Driver:    "file",
			Dir:       "./cache",
			RedisURL:  "redis://localhost:6379/0",
			KeyPrefix: "ttscraper",
		},
		Progress: ProgressConfig{
			Enabled: true,
			Width:   40,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Sound:   false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stderr",
		},
	}
}
