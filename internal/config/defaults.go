package config

import "github.com/spf13/viper"

func GetDefault() Config {
	return Config{
		Database: DatabaseConfig{
			Path:          "data/library.db",
			MaxOpenConns:  10,
			MaxIdleConns:  2,
			BusyTimeoutMS: 5000,
		},
		Library: LibraryConfig{
			Extensions:    []string{".png", ".jpg", ".jpeg", ".webp", ".gif"},
			ScanBatchSize: 100,
			FlushDelayMS:  500,
			CacheSize:     1024,
		},
		Log: LogConfig{
			Level:      "INFO",
			TimeFormat: "2006-01-02 15:04:05",
			File:       "",
			NoColor:    false,
			JSON:       false,
			NoTerminal: false,
			Rotation: LogRotationConfig{
				MaxSize:    128,
				MaxBackups: 5,
				MaxAge:     16,
				Compress:   false,
			},
		},
	}
}

func setDefaults() {
	defaults := GetDefault()

	viper.SetDefault("database.path", defaults.Database.Path)
	viper.SetDefault("database.max_open_conns", defaults.Database.MaxOpenConns)
	viper.SetDefault("database.max_idle_conns", defaults.Database.MaxIdleConns)
	viper.SetDefault("database.busy_timeout_ms", defaults.Database.BusyTimeoutMS)

	viper.SetDefault("library.extensions", defaults.Library.Extensions)
	viper.SetDefault("library.scan_batch_size", defaults.Library.ScanBatchSize)
	viper.SetDefault("library.flush_delay_ms", defaults.Library.FlushDelayMS)
	viper.SetDefault("library.cache_size", defaults.Library.CacheSize)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.time_format", defaults.Log.TimeFormat)
	viper.SetDefault("log.file", defaults.Log.File)
	viper.SetDefault("log.no_color", defaults.Log.NoColor)
	viper.SetDefault("log.json", defaults.Log.JSON)
	viper.SetDefault("log.no_terminal", defaults.Log.NoTerminal)
	viper.SetDefault("log.rotation.max_size", defaults.Log.Rotation.MaxSize)
	viper.SetDefault("log.rotation.max_backups", defaults.Log.Rotation.MaxBackups)
	viper.SetDefault("log.rotation.max_age", defaults.Log.Rotation.MaxAge)
	viper.SetDefault("log.rotation.compress", defaults.Log.Rotation.Compress)
}
