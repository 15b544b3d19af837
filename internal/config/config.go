package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	LogMode bool   `mapstructure:"log_mode"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LocalConfig is where guest sessions keep their device-local files.
type LocalConfig struct {
	Dir string `mapstructure:"dir"`
}

type BackupConfig struct {
	Dir string `mapstructure:"dir"`
}

type AIConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
}

type ChatConfig struct {
	TransactionWindow int `mapstructure:"transaction_window"`
	MarketWindow      int `mapstructure:"market_window"`
}

type SessionConfig struct {
	IdleMinutes      int `mapstructure:"idle_minutes"`
	TaskRetentionMin int `mapstructure:"task_retention_min"`
}

type CategoriesConfig struct {
	Income  []string `mapstructure:"income"`
	Expense []string `mapstructure:"expense"`
	// AutoRegister adds unknown import labels to the sets. When off they
	// are filed under the catch-all.
	AutoRegister bool `mapstructure:"auto_register"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Security   SecurityConfig   `mapstructure:"security"`
	Log        LogConfig        `mapstructure:"log"`
	Local      LocalConfig      `mapstructure:"local"`
	Backup     BackupConfig     `mapstructure:"backup"`
	AI         AIConfig         `mapstructure:"ai"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Session    SessionConfig    `mapstructure:"session"`
	Categories CategoriesConfig `mapstructure:"categories"`
}

var (
	appConfig *Config
	once      sync.Once
)

// Load loads configuration from given file path (e.g. "config.yaml").
// If path is empty it looks for config.yaml in the working directory, and a
// missing file falls back to defaults plus FINTRACK_* environment variables.
func Load(path string) (*Config, error) {
	var err error
	once.Do(func() {
		appConfig, err = load(path)
	})

	if err != nil {
		return nil, err
	}
	return appConfig, nil
}

func load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	// environment overrides, e.g. FINTRACK_SERVER_PORT=9000
	v.SetEnvPrefix("FINTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.path", "data/fintrack.db")
	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.issuer", "fintrack")
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("log.level", "info")
	v.SetDefault("local.dir", "data/local")
	v.SetDefault("backup.dir", "data/backups")
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.max_concurrent", 3)
	v.SetDefault("ai.timeout_sec", 120)
	v.SetDefault("chat.transaction_window", 100)
	v.SetDefault("chat.market_window", 50)
	v.SetDefault("session.idle_minutes", 30)
	v.SetDefault("session.task_retention_min", 10)
	v.SetDefault("categories.auto_register", true)
}

// Get returns the loaded global configuration.
// Call Load() once at application startup.
func Get() *Config {
	return appConfig
}
