package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"nyordd/internal/alert"
	"nyordd/internal/config"
	"nyordd/internal/feed"
	"nyordd/internal/observability/pprof"
	"nyordd/internal/popup"
	"nyordd/internal/push"
	"nyordd/internal/storage"
	"nyordd/internal/store"
	logx "nyordd/pkg/logx"
)

// Mapping helpers translate the user-facing config (string durations, cron
// specs) into each service's typed config. They double as the validation
// surface for hot reloads: a config that fails to map is rejected before it
// is committed.

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// validateConfig runs every mapping helper against cfg and returns the first
// failure. Used as the reload validator so a bad edit never commits.
func validateConfig(cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapFeedOptions(cfg); err != nil {
		return err
	}
	if _, err := refreshSpec(cfg); err != nil {
		return err
	}
	if _, err := evictSpec(cfg); err != nil {
		return err
	}
	if _, err := mapAlertConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPopupConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPushConfig(cfg); err != nil {
		return err
	}
	if _, err := mapHistoryLimits(cfg); err != nil {
		return err
	}
	if _, err := cfg.Server.BearerToken(); err != nil {
		return err
	}
	return nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Toast: logx.ToastConfig{
			Enabled:    cfg.Logging.Toast.Enabled,
			MinLevel:   cfg.Logging.Toast.MinLevel,
			RatePerSec: cfg.Logging.Toast.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	driver := strings.TrimSpace(strings.ToLower(cfg.Storage.Driver))
	if driver != "" && driver != "none" && strings.TrimSpace(cfg.Storage.Path) == "" {
		return storage.Config{}, fmt.Errorf("storage.path required for driver %q", driver)
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapFeedOptions(cfg *config.Config) (feed.Options, error) {
	poll, err := config.ParseDurationOrDefault("feed.poll_interval", cfg.Feed.PollInterval, 10*time.Second)
	if err != nil {
		return feed.Options{}, err
	}
	return feed.Options{
		Stream:       cfg.Feed.Stream,
		WSURL:        cfg.Server.WSURL,
		PollInterval: poll,
		ReconnectMax: cfg.Feed.ReconnectMax,
	}, nil
}

func refreshSpec(cfg *config.Config) (string, error) {
	spec := strings.TrimSpace(cfg.Feed.RefreshSpec)
	if spec == "" {
		spec = "@every 30s"
	}
	if _, err := cronParser.Parse(spec); err != nil {
		return "", fmt.Errorf("feed.refresh_spec: %w", err)
	}
	return spec, nil
}

func evictSpec(cfg *config.Config) (string, error) {
	spec := strings.TrimSpace(cfg.History.EvictSpec)
	if spec == "" {
		spec = "@every 1h"
	}
	if _, err := cronParser.Parse(spec); err != nil {
		return "", fmt.Errorf("history.evict_spec: %w", err)
	}
	return spec, nil
}

func mapAlertConfig(cfg *config.Config) (alert.Config, error) {
	autoClose, err := config.ParseDurationOrDefault("alerts.auto_close", cfg.Alerts.AutoClose, 5*time.Second)
	if err != nil {
		return alert.Config{}, err
	}
	return alert.Config{
		Enabled:    cfg.Alerts.Enabled,
		StateDir:   cfg.Alerts.StateDir,
		RatePerSec: float64(cfg.Alerts.RatePerSec),
		AutoClose:  autoClose,
	}, nil
}

func mapPopupConfig(cfg *config.Config) (popup.Config, error) {
	hide, err := config.ParseDurationOrDefault("popups.auto_hide", cfg.Popups.AutoHide, 6*time.Second)
	if err != nil {
		return popup.Config{}, err
	}
	return popup.Config{
		MaxVisible: cfg.Popups.MaxVisible,
		AutoHide:   hide,
	}, nil
}

func mapPushConfig(cfg *config.Config) (push.Config, error) {
	if cfg.Push.Enabled {
		if _, err := push.DecodeVAPIDKey(cfg.Push.VAPIDPublicKey); err != nil {
			return push.Config{}, fmt.Errorf("push.vapid_public_key: %w", err)
		}
	}
	return push.Config{
		Enabled:        cfg.Push.Enabled,
		VAPIDPublicKey: cfg.Push.VAPIDPublicKey,
	}, nil
}

func mapHistoryLimits(cfg *config.Config) (store.Limits, error) {
	maxAge, err := config.ParseDurationOrDefault("history.max_age", cfg.History.MaxAge, 720*time.Hour)
	if err != nil {
		return store.Limits{}, err
	}
	max := cfg.History.MaxRecords
	if max == 0 {
		max = 200
	}
	if max < 0 {
		return store.Limits{}, fmt.Errorf("history.max_records must be >= 0")
	}
	return store.Limits{MaxRecords: max, MaxAge: maxAge}, nil
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
	}
}
