package cli

import (
	"fmt"
	"time"

	"github.com/erroralex/Image-Generation-Toolbox-sub000/internal/config"
	"github.com/erroralex/Image-Generation-Toolbox-sub000/internal/library"
	"github.com/erroralex/Image-Generation-Toolbox-sub000/internal/storage"
	"github.com/erroralex/Image-Generation-Toolbox-sub000/pkg/log"
)

// runtimeEnv bundles everything a command needs: parsed configuration,
// the root logger and the opened library. Close releases the store.
type runtimeEnv struct {
	cfg    *config.Config
	logger log.LoggerService
	lib    *library.Library
}

func (r *runtimeEnv) Close() error {
	return r.lib.Close()
}

// openLibrary is the composition point: config, logger, store, facade.
// A migration failure aborts here before any command logic runs.
func openLibrary() (*runtimeEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := log.NewLoggerService("igtlib", log.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		JSON:       cfg.Log.JSON,
		NoTerminal: cfg.Log.NoTerminal,
		NoColor:    cfg.Log.NoColor,
		TimeFormat: cfg.Log.TimeFormat,
		Rotation: log.RotationConfig{
			MaxSize:    cfg.Log.Rotation.MaxSize,
			MaxBackups: cfg.Log.Rotation.MaxBackups,
			MaxAge:     cfg.Log.Rotation.MaxAge,
			Compress:   cfg.Log.Rotation.Compress,
		},
	})

	store, err := storage.NewSQLiteStore(cfg.Database.Path, storage.Options{
		MaxOpenConns:  cfg.Database.MaxOpenConns,
		MaxIdleConns:  cfg.Database.MaxIdleConns,
		BusyTimeoutMS: cfg.Database.BusyTimeoutMS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open library database: %w", err)
	}

	lib, err := library.New(store, logger.Named("library"), library.Options{
		FlushDelay: time.Duration(cfg.Library.FlushDelayMS) * time.Millisecond,
		CacheSize:  cfg.Library.CacheSize,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &runtimeEnv{cfg: cfg, logger: logger, lib: lib}, nil
}
