package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"furnidesk/internal/metrics"

	"github.com/sirupsen/logrus"
)

type StaleMessageCounter interface {
	CountStaleMessages(ctx context.Context, threshold time.Duration) (int, error)
}

// DeliveryMonitor reports messages that never left sending. The threshold
// can be changed while it runs.
type DeliveryMonitor struct {
	store     StaleMessageCounter
	interval  time.Duration
	threshold atomic.Int64
	lastCount atomic.Int64
	logger    *logrus.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

func NewDeliveryMonitor(store StaleMessageCounter, interval, threshold time.Duration, logger *logrus.Logger) *DeliveryMonitor {
	m := &DeliveryMonitor{
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	m.threshold.Store(int64(threshold))
	return m
}

func (m *DeliveryMonitor) StaleThreshold() time.Duration {
	return time.Duration(m.threshold.Load())
}

func (m *DeliveryMonitor) SetStaleThreshold(d time.Duration) {
	if d <= 0 {
		return
	}
	m.threshold.Store(int64(d))
	m.logger.WithField("stale_threshold", d).Info("Stale delivery threshold updated")
}

// Start blocks until ctx ends or Stop is called.
func (m *DeliveryMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.CheckStaleMessages(ctx)
		}
	}
}

func (m *DeliveryMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// CheckStaleMessages runs one sweep and returns the stale count. A warning
// is logged only when the count changes.
func (m *DeliveryMonitor) CheckStaleMessages(ctx context.Context) int {
	threshold := m.StaleThreshold()
	count, err := m.store.CountStaleMessages(ctx, threshold)
	if err != nil {
		m.logger.WithError(err).Error("Stale message sweep failed")
		return 0
	}
	metrics.SetGauge("delivery_stale_messages", float64(count), nil, "Messages stuck in sending status")

	previous := m.lastCount.Swap(int64(count))
	switch {
	case count > 0 && int64(count) != previous:
		m.logger.WithFields(logrus.Fields{
			LogFieldCount: count,
			"threshold":   threshold,
		}).Warn("Messages stuck in sending")
	case count == 0 && previous > 0:
		m.logger.Info("No messages stuck in sending")
	}
	return count
}
