package cleanup

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/raditia/duet-media/internal/mediastore"
)

// Destroyer issues destroy calls against the remote store.
type Destroyer interface {
	Destroy(ctx context.Context, publicID string, kind mediastore.Kind) (*mediastore.DestroyResult, error)
}

// Coordinator deletes temporary assets after their dependent transform has
// completed, success or failure. Deletion failures are logged, never
// escalated; the journal keeps the asset until a later sweep succeeds.
type Coordinator struct {
	store   Destroyer
	journal *Journal
	logger  zerolog.Logger
}

// NewCoordinator wires a Coordinator over the given store and journal.
func NewCoordinator(store Destroyer, journal *Journal, logger zerolog.Logger) *Coordinator {
	return &Coordinator{store: store, journal: journal, logger: logger}
}

// Track journals a temporary asset before its transform runs, so a crash
// between upload and release still leaves a deletion record.
func (c *Coordinator) Track(ctx context.Context, publicID string, kind mediastore.Kind) {
	if err := c.journal.Add(publicID, kind); err != nil {
		c.logger.Warn().Err(err).Str("public_id", publicID).Msg("failed to journal temp asset")
	}
}

// Release destroys a temporary asset, best-effort. A store-side "not found"
// counts as cleaned up, so releasing an already-deleted asset is
// idempotent.
func (c *Coordinator) Release(ctx context.Context, publicID string, kind mediastore.Kind) {
	res, err := c.store.Destroy(ctx, publicID, kind)
	if err != nil {
		c.logger.Warn().Err(err).Str("public_id", publicID).Msg("temp asset deletion failed, kept in journal")
		return
	}
	if !res.Deleted() {
		c.logger.Warn().Str("public_id", publicID).Str("result", res.Result).Msg("store refused temp asset deletion")
		return
	}

	if err := c.journal.Remove(publicID, kind); err != nil {
		c.logger.Warn().Err(err).Str("public_id", publicID).Msg("failed to clear journal entry")
	}
}

// Sweep retries every journaled deletion. Called at startup and on a timer
// to pick up assets orphaned by failures or crashes.
func (c *Coordinator) Sweep(ctx context.Context) {
	entries, err := c.journal.Pending()
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to list pending temp assets")
		return
	}
	for _, e := range entries {
		c.Release(ctx, e.PublicID, e.Kind)
	}
	if len(entries) > 0 {
		c.logger.Info().Int("count", len(entries)).Msg("swept pending temp assets")
	}
}

// Run sweeps on the given interval until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}
