// Package poller fetches the authoritative session snapshot on a fixed
// interval and feeds it to the store. It is one of the two producers
// writing into the reconciler; the push channel is the other.
package poller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quarterdeck/core/clock"
	"github.com/quarterdeck/core/errors"
	"github.com/quarterdeck/core/pkg/models"
	"github.com/quarterdeck/core/pkg/store"
)

// DefaultInterval is the snapshot cadence when none is configured.
const DefaultInterval = 30 * time.Second

// SnapshotSource produces the full session list. Implemented by the
// gateway client; tests supply fakes.
type SnapshotSource interface {
	ListSessions(ctx context.Context) (models.SessionsSnapshot, error)
}

// Poller drives the snapshot cycle. Each tick is fire-and-forget: the
// fetch runs in its own goroutine so a slow or failed poll never
// blocks the next scheduled one, and never touches the push channel.
type Poller struct {
	source   SnapshotSource
	store    *store.Store
	interval time.Duration
	clk      clock.Clock
	logger   *logrus.Entry
}

// New creates a Poller. A non-positive interval falls back to
// DefaultInterval.
func New(source SnapshotSource, st *store.Store, interval time.Duration, clk clock.Clock, logger *logrus.Entry) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:   source,
		store:    st,
		interval: interval,
		clk:      clk,
		logger:   logger,
	}
}

// Run polls until the context is cancelled. The first fetch happens
// immediately; subsequent fetches follow the ticker.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clk.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.WithField("interval", p.interval).Info("Starting snapshot poller")

	go p.fetch(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go p.fetch(ctx)
		}
	}
}

// fetch performs one snapshot cycle. A failure records a non-fatal
// poll error on the store and leaves the loaded sessions intact; the
// next tick retries.
func (p *Poller) fetch(ctx context.Context) {
	snap, err := p.source.ListSessions(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.WithError(err).Warn("Snapshot fetch failed")
		p.store.SetPollError(errors.Wrap(err, errors.ErrCodeSnapshotFetchFailed, "failed to fetch session snapshot"))
		return
	}

	p.store.ApplySnapshot(snap)
	p.logger.WithFields(logrus.Fields{
		"sessions": len(snap.Sessions),
		"active":   snap.Active,
	}).Debug("Applied snapshot")
}
