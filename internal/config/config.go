package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Fire       FireConfig       `yaml:"fire"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Log        LogConfig        `yaml:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Security   SecurityConfig   `yaml:"security"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite, postgres
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type SchedulerConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`   // usage rule re-evaluation cadence
	SampleWindow   time.Duration `yaml:"sample_window"`   // cpu utilization averaging window
	ActionTimeout  time.Duration `yaml:"action_timeout"`  // upper bound per execution
	StatusInterval time.Duration `yaml:"status_interval"` // websocket status push cadence
}

// FireConfig 24Fire 面板 API 凭据（备份动作使用）
type FireConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	ServerID string        `yaml:"server_id"`
	Timeout  time.Duration `yaml:"timeout"`
}

type WebhookConfig struct {
	DefaultURL string `yaml:"default_url"` // fallback Discord webhook
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json, text
	Output     string `yaml:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`    // MB
	MaxAge     int    `yaml:"max_age"`     // days
	MaxBackups int    `yaml:"max_backups"` // number of backup files
	Compress   bool   `yaml:"compress"`    // compress backup files
}

type MonitoringConfig struct {
	Enabled bool          `yaml:"enabled"`
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig OpenTelemetry 追踪配置
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP gRPC 端点
	Insecure    bool    `yaml:"insecure"`     // 是否使用明文（本地/开发）
	SampleRatio float64 `yaml:"sample_ratio"` // 采样率 0.0~1.0
	ServiceName string  `yaml:"service_name"` // 缺省使用 "hostpilot"
}

type SecurityConfig struct {
	APIToken     string             `yaml:"api_token"` // empty disables auth
	CORS         CORSConfig         `yaml:"cors"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RateLimitingConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

func Load() *Config {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}
	applyDefaults(&config)
	return &config
}

// applyDefaults fills zero values with the defaults from GetDefaultConfig,
// so a partial config file is enough to run.
func applyDefaults(cfg *Config) {
	def := GetDefaultConfig()
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = def.Database.Driver
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = def.Database.Path
	}
	if cfg.Scheduler.PollInterval <= 0 {
		cfg.Scheduler.PollInterval = def.Scheduler.PollInterval
	}
	if cfg.Scheduler.SampleWindow <= 0 {
		cfg.Scheduler.SampleWindow = def.Scheduler.SampleWindow
	}
	if cfg.Scheduler.ActionTimeout <= 0 {
		cfg.Scheduler.ActionTimeout = def.Scheduler.ActionTimeout
	}
	if cfg.Scheduler.StatusInterval <= 0 {
		cfg.Scheduler.StatusInterval = def.Scheduler.StatusInterval
	}
	if cfg.Fire.BaseURL == "" {
		cfg.Fire.BaseURL = def.Fire.BaseURL
	}
	if cfg.Fire.Timeout <= 0 {
		cfg.Fire.Timeout = def.Fire.Timeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = def.Log.Output
	}
	if cfg.Log.FilePath == "" {
		cfg.Log.FilePath = def.Log.FilePath
	}
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 62599,
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Path:    "./hostpilot.db",
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			Name:    "hostpilot",
			SSLMode: "disable",
		},
		Scheduler: SchedulerConfig{
			PollInterval:   5 * time.Minute,
			SampleWindow:   time.Second,
			ActionTimeout:  30 * time.Second,
			StatusInterval: 5 * time.Second,
		},
		Fire: FireConfig{
			BaseURL: "https://api.24fire.de",
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "both",
			FilePath:   "./logs/hostpilot.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "http://localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "hostpilot",
			},
		},
		Security: SecurityConfig{
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
			},
			RateLimiting: RateLimitingConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             10,
			},
		},
	}
}
