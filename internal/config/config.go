package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Library  LibraryConfig  `mapstructure:"library"  yaml:"library"`
	Log      LogConfig      `mapstructure:"log"      yaml:"log"`
}

type DatabaseConfig struct {
	Path          string `mapstructure:"path"            yaml:"path"`
	MaxOpenConns  int    `mapstructure:"max_open_conns"  yaml:"max_open_conns"`
	MaxIdleConns  int    `mapstructure:"max_idle_conns"  yaml:"max_idle_conns"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

type LibraryConfig struct {
	// Extensions lists file suffixes treated as library media during scans.
	Extensions []string `mapstructure:"extensions"      yaml:"extensions"`
	// ScanBatchSize is the number of repaired files committed per transaction.
	ScanBatchSize int    `mapstructure:"scan_batch_size" yaml:"scan_batch_size"`
	FlushDelayMS  int    `mapstructure:"flush_delay_ms"  yaml:"flush_delay_ms"`
	CacheSize     int    `mapstructure:"cache_size"      yaml:"cache_size"`
}

type LogConfig struct {
	Level      string            `mapstructure:"level"       yaml:"level"`
	TimeFormat string            `mapstructure:"time_format" yaml:"time_format"`
	File       string            `mapstructure:"file"        yaml:"file"`
	NoColor    bool              `mapstructure:"no_color"    yaml:"no_color"`
	JSON       bool              `mapstructure:"json"        yaml:"json"`
	NoTerminal bool              `mapstructure:"no_terminal" yaml:"no_terminal"`
	Rotation   LogRotationConfig `mapstructure:"rotation"    yaml:"rotation"`
}

type LogRotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"    yaml:"max_size"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"     yaml:"max_age"`
	Compress   bool `mapstructure:"compress"    yaml:"compress"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	setDefaults()

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}
