// Package ingestor runs the indexing pipeline: fetch a batch of raw
// contract events, decode them, drop duplicates, and commit the survivors
// together with the advanced cursor in one transaction.
package ingestor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dinahmaccodes/pifp-stellar/internal/config"
	"github.com/dinahmaccodes/pifp-stellar/internal/database"
	"github.com/dinahmaccodes/pifp-stellar/internal/metrics"
	"github.com/dinahmaccodes/pifp-stellar/internal/rpc"
)

// Fetcher supplies raw event batches from the chain. Implemented by
// rpc.Client; tests substitute a fake.
type Fetcher interface {
	FetchNext(ctx context.Context, afterLedger uint32, afterCursor string, limit int) (rpc.Batch, error)
}

// Ingestor is the single active writer to the event store and cursor.
type Ingestor struct {
	cfg     *config.Config
	db      *database.DB
	fetcher Fetcher
	logger  *zap.Logger

	mu         sync.RWMutex
	lastLedger uint32
	stored     int64
	duplicates int64
	malformed  int64
}

func New(cfg *config.Config, db *database.DB, fetcher Fetcher, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		cfg:     cfg,
		db:      db,
		fetcher: fetcher,
		logger:  logger,
	}
}

// LastLedger returns the highest ledger committed by this process.
func (i *Ingestor) LastLedger() uint32 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastLedger
}

// Stats returns pipeline counters since startup.
func (i *Ingestor) Stats() map[string]int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return map[string]int64{
		"stored":     i.stored,
		"duplicates": i.duplicates,
		"malformed":  i.malformed,
	}
}

// Run drives the pipeline until ctx is canceled. The stop signal is honored
// only between iterations, never inside a commit. Transient fetch failures
// back off and retry forever; a rejected cursor or a cursor regression is
// fatal and returns an error.
func (i *Ingestor) Run(ctx context.Context) error {
	cur, err := i.db.Cursor()
	if err != nil {
		return err
	}
	i.setLastLedger(cur.LastLedger)
	i.logger.Info("ingestor starting",
		zap.String("contract_id", i.cfg.ContractID),
		zap.Uint32("resume_ledger", i.resumeLedger(cur)))

	backoff := i.cfg.BackoffInitial

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		advanced, err := i.step(ctx)
		switch {
		case err == nil:
			backoff = i.cfg.BackoffInitial
			if !advanced {
				// Caught up with the chain tip.
				if !sleep(ctx, i.cfg.PollInterval) {
					return ctx.Err()
				}
			}

		case errors.Is(err, rpc.ErrUnavailable):
			metrics.FetchErrors.Inc()
			i.logger.Warn("fetch failed, backing off",
				zap.Duration("backoff", backoff), zap.Error(err))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff *= 2
			if backoff > i.cfg.BackoffMax {
				backoff = i.cfg.BackoffMax
			}

		case errors.Is(err, rpc.ErrInvalidCursor):
			i.logger.Error("upstream rejected the resume cursor; operator must re-seed", zap.Error(err))
			return err

		case errors.Is(err, database.ErrInvalidProgress):
			i.logger.Error("cursor regression detected, halting", zap.Error(err))
			return err

		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err

		default:
			// Storage hiccup: nothing was durably advanced, so re-running
			// the iteration is safe.
			i.logger.Warn("iteration failed, retrying", zap.Error(err))
			if !sleep(ctx, i.cfg.PollInterval) {
				return ctx.Err()
			}
		}
	}
}

// step performs one fetch→decode→dedupe→commit iteration. It reports
// whether the cursor advanced; false with a nil error means the batch was
// empty and the caller should wait for new ledgers.
func (i *Ingestor) step(ctx context.Context) (bool, error) {
	cur, err := i.db.Cursor()
	if err != nil {
		return false, fmt.Errorf("reading cursor: %w", err)
	}

	batch, err := i.fetcher.FetchNext(ctx, i.resumeLedger(cur), cur.LastCursor, i.cfg.MaxBatchSize)
	if err != nil {
		return false, err
	}

	if len(batch.Events) == 0 {
		return false, nil
	}

	events, maxLedger, malformed := i.decodeBatch(batch.Events)
	if malformed > 0 {
		i.logger.Warn("skipped malformed events", zap.Int("count", malformed))
	}

	fresh, dupes, err := i.filterStored(events)
	if err != nil {
		return false, fmt.Errorf("checking duplicates: %w", err)
	}

	if maxLedger < cur.LastLedger {
		// The upstream re-delivered an already-committed range; keep the
		// bookmark where it is.
		maxLedger = cur.LastLedger
	}

	inserted, err := i.db.CommitBatch(fresh, database.Cursor{
		LastLedger: maxLedger,
		LastCursor: batch.Cursor,
	})
	if err != nil {
		return false, err
	}

	i.recordCommit(maxLedger, inserted, dupes+len(fresh)-inserted, malformed)
	i.logger.Info("committed batch",
		zap.Int("raw", len(batch.Events)),
		zap.Int("stored", inserted),
		zap.Int("duplicates", dupes+len(fresh)-inserted),
		zap.Int("malformed", malformed),
		zap.Uint32("last_ledger", maxLedger))

	return true, nil
}

// resumeLedger picks the fetch position: the committed bookmark, or the
// configured start ledger on a fresh store.
func (i *Ingestor) resumeLedger(cur database.Cursor) uint32 {
	if cur.LastLedger == 0 && i.cfg.StartLedger > 0 {
		return i.cfg.StartLedger
	}
	return cur.LastLedger
}

// decodeBatch decodes every raw payload, skipping malformed items
// individually. Returns the decoded events, the highest ledger seen in the
// raw batch, and the malformed count.
func (i *Ingestor) decodeBatch(raw []rpc.RawEvent) ([]*database.Event, uint32, int) {
	var (
		events    []*database.Event
		maxLedger uint32
		malformed int
	)
	for _, r := range raw {
		if r.Ledger > maxLedger {
			maxLedger = r.Ledger
		}
		e, err := Decode(r)
		if err != nil {
			malformed++
			metrics.EventsMalformed.Inc()
			i.logger.Warn("dropping malformed event",
				zap.String("event_id", r.ID), zap.Error(err))
			continue
		}
		events = append(events, e)
	}
	return events, maxLedger, malformed
}

// filterStored drops events already present under the duplicate-suppression
// key. The unique index catches anything that slips through; this keeps
// redelivered batches from inflating the insert path.
func (i *Ingestor) filterStored(events []*database.Event) ([]*database.Event, int, error) {
	var fresh []*database.Event
	dupes := 0
	for _, e := range events {
		exists, err := i.db.HasEvent(e.ContractID, e.TxHash, e.EventType, e.Ledger)
		if err != nil {
			return nil, 0, err
		}
		if exists {
			dupes++
			continue
		}
		fresh = append(fresh, e)
	}
	return fresh, dupes, nil
}

func (i *Ingestor) recordCommit(lastLedger uint32, stored, duplicates, malformed int) {
	i.mu.Lock()
	i.lastLedger = lastLedger
	i.stored += int64(stored)
	i.duplicates += int64(duplicates)
	i.malformed += int64(malformed)
	i.mu.Unlock()

	metrics.EventsStored.Add(float64(stored))
	metrics.EventsDuplicate.Add(float64(duplicates))
	metrics.LastLedger.Set(float64(lastLedger))
}

func (i *Ingestor) setLastLedger(ledger uint32) {
	i.mu.Lock()
	i.lastLedger = ledger
	i.mu.Unlock()
	metrics.LastLedger.Set(float64(ledger))
}

// sleep waits for d or until ctx is canceled; false means canceled.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
