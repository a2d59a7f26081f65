// Package monitor periodically compares the indexer's committed position
// against the chain head and reports the lag.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dinahmaccodes/pifp-stellar/internal/metrics"
)

// HeadSource reports the latest ledger known to the upstream node.
type HeadSource interface {
	LatestLedger(ctx context.Context) (uint32, error)
}

// PositionSource reports the indexer's last committed ledger.
type PositionSource interface {
	LastLedger() uint32
}

// Monitor samples chain head and indexer position on a fixed interval.
type Monitor struct {
	head     HeadSource
	position PositionSource
	interval time.Duration
	logger   *zap.Logger
}

// New creates a chain-lag monitor.
func New(head HeadSource, position PositionSource, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		head:     head,
		position: position,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the sampling loop. It returns when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Sample once at startup so the lag gauge is populated immediately.
	m.sample(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	head, err := m.head.LatestLedger(ctx)
	if err != nil {
		m.logger.Warn("chain head probe failed", zap.Error(err))
		return
	}
	metrics.ChainHead.Set(float64(head))

	pos := m.position.LastLedger()
	var lag uint32
	if head > pos {
		lag = head - pos
	}

	m.logger.Debug("chain lag sampled",
		zap.Uint32("head", head),
		zap.Uint32("position", pos),
		zap.Uint32("lag", lag))
}
