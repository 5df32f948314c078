package config

import (
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"time"

	"furnidesk/internal/models"

	"github.com/sirupsen/logrus"
)

const defaultReloadInterval = 5 * time.Second

// ChangeFunc receives the previous and the freshly loaded configuration.
type ChangeFunc func(previous, current *models.Config)

// Reloader polls a config file and hands every valid new version to the
// registered change funcs. Settings that need a restart are only reported.
type Reloader struct {
	path     string
	interval time.Duration
	logger   *logrus.Logger

	mu       sync.RWMutex
	current  *models.Config
	digest   [sha256.Size]byte
	handlers []ChangeFunc
}

func NewReloader(path string, logger *logrus.Logger) *Reloader {
	return &Reloader{path: path, interval: defaultReloadInterval, logger: logger}
}

// Current returns the last configuration that loaded cleanly.
func (r *Reloader) Current() *models.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *Reloader) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

// Watch loads the file once and then polls it until ctx ends. Only the
// first load can fail; later errors are logged and the old config kept.
func (r *Reloader) Watch(ctx context.Context) error {
	raw, err := os.ReadFile(r.path) // #nosec G304 - LoadConfig validates the same path
	if err != nil {
		return err
	}
	cfg, err := LoadConfig(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.current = cfg
	r.digest = sha256.Sum256(raw)
	r.mu.Unlock()

	r.logger.WithField("path", r.path).Info("Watching configuration file")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.poll()
		}
	}
}

func (r *Reloader) poll() {
	raw, err := os.ReadFile(r.path) // #nosec G304 - LoadConfig validates the same path
	if err != nil {
		r.logger.WithError(err).Warn("Cannot read configuration file")
		return
	}
	sum := sha256.Sum256(raw)
	r.mu.RLock()
	unchanged := sum == r.digest
	r.mu.RUnlock()
	if unchanged {
		return
	}
	r.reload(sum)
}

func (r *Reloader) reload(sum [sha256.Size]byte) {
	cfg, err := LoadConfig(r.path)
	if err != nil {
		r.logger.WithError(err).Error("Configuration reload rejected, keeping the running config")
		return
	}

	r.mu.Lock()
	previous := r.current
	r.current = cfg
	r.digest = sum
	handlers := append([]ChangeFunc(nil), r.handlers...)
	r.mu.Unlock()

	if previous != nil && restartRequired(previous, cfg) {
		r.logger.Warn("Server, database or WhatsApp settings changed; restart to apply")
	}
	r.logger.Info("Configuration reloaded")

	for _, fn := range handlers {
		r.notify(fn, previous, cfg)
	}
}

func (r *Reloader) notify(fn ChangeFunc, previous, current *models.Config) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.WithField("panic", p).Error("Configuration change handler panicked")
		}
	}()
	fn(previous, current)
}

func restartRequired(a, b *models.Config) bool {
	return a.Server.Port != b.Server.Port ||
		a.Database.Path != b.Database.Path ||
		a.WhatsApp.APIBaseURL != b.WhatsApp.APIBaseURL ||
		a.WhatsApp.Enabled != b.WhatsApp.Enabled
}

// ApplyLogLevel keeps logger at the configured level.
func ApplyLogLevel(logger *logrus.Logger) ChangeFunc {
	return func(previous, current *models.Config) {
		level, err := logrus.ParseLevel(current.LogLevel)
		if err != nil || logger.GetLevel() == level {
			return
		}
		logger.WithFields(logrus.Fields{
			"from": logger.GetLevel().String(),
			"to":   level.String(),
		}).Info("Log level changed")
		logger.SetLevel(level)
	}
}

// ApplyStaleThreshold forwards delivery threshold changes to set.
func ApplyStaleThreshold(set func(time.Duration)) ChangeFunc {
	return func(previous, current *models.Config) {
		if previous != nil && previous.Delivery.StaleThresholdSec == current.Delivery.StaleThresholdSec {
			return
		}
		set(time.Duration(current.Delivery.StaleThresholdSec) * time.Second)
	}
}
