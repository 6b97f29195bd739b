package insights

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gustavo/insight-cli/internal/model"
)

// DefaultPollInterval is the fixed feed polling period.
const DefaultPollInterval = 30 * time.Second

// Source is the remote feed boundary the poller drives.
type Source interface {
	Fetch(ctx context.Context) ([]model.Insight, error)
	Delete(ctx context.Context, identity string) error
}

// Status is the consumer-visible polling state.
type Status struct {
	Err      string
	Empty    bool
	InFlight bool
	LastSync time.Time
	Cycles   uint64
}

// Poller owns the reconciliation cache and the fixed-interval fetch loop.
// A fetch failure preserves the cache and surfaces an error string; the loop
// keeps its period regardless.
type Poller struct {
	source   Source
	logger   *zap.Logger
	interval time.Duration
	grace    uint
	now      func() time.Time

	mu       sync.Mutex
	cache    []Cached
	fetching bool
	lastErr  string
	empty    bool
	lastSync time.Time
	cycles   uint64
}

func NewPoller(source Source, interval time.Duration, grace uint, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		source:   source,
		logger:   logger,
		interval: interval,
		grace:    grace,
		now:      time.Now,
	}
}

// Run fetches immediately, then on every tick until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.Refresh(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh runs one fetch-and-merge cycle. A refresh invoked while another is
// in flight coalesces into a no-op and reports false; this also serializes
// merges, so cache state never races between overlapping cycles.
func (p *Poller) Refresh(ctx context.Context) bool {
	p.mu.Lock()
	if p.fetching {
		p.mu.Unlock()
		return false
	}
	p.fetching = true
	p.mu.Unlock()

	batch, err := p.source.Fetch(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetching = false
	p.cycles++
	if err != nil {
		p.lastErr = err.Error()
		p.logger.Warn("insights fetch failed, keeping cached batch",
			zap.Error(err),
			zap.Int("cached", len(p.cache)))
		return true
	}

	p.cache = Merge(p.cache, batch, p.grace)
	p.lastErr = ""
	p.empty = len(batch) == 0
	p.lastSync = p.now()
	p.logger.Info("insights merged",
		zap.Int("fresh", len(batch)),
		zap.Int("cached", len(p.cache)))
	return true
}

// Delete optimistically drops the identities locally, issues the remote
// deletes, then re-fetches to reconcile. A failed remote delete needs no
// rollback: the entry simply reappears on the next successful fetch.
func (p *Poller) Delete(ctx context.Context, ids []string) error {
	p.mu.Lock()
	p.cache = Remove(p.cache, ids)
	p.mu.Unlock()

	var errs []error
	for _, identity := range ids {
		if err := p.source.Delete(ctx, identity); err != nil {
			p.logger.Warn("remote delete failed", zap.String("identity", identity), zap.Error(err))
			errs = append(errs, err)
		}
	}

	p.Refresh(ctx)
	return errors.Join(errs...)
}

// Snapshot returns a copy of the cache; consumers never see internal state.
func (p *Poller) Snapshot() []Cached {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Cached, len(p.cache))
	copy(out, p.cache)
	return out
}

func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Err:      p.lastErr,
		Empty:    p.empty,
		InFlight: p.fetching,
		LastSync: p.lastSync,
		Cycles:   p.cycles,
	}
}
