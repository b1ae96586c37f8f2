package signature

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Reaper purges ephemeral signature display copies once their retention
// horizon passes. Audit fields — ip address, consent timestamp, the storage
// key of the signed artifact — are retained permanently.
type Reaper struct {
	db       *gorm.DB
	blobs    Blobs
	interval time.Duration
	log      *logrus.Logger
	now      func() time.Time
}

// NewReaper builds a reaper sweeping on the given interval.
func NewReaper(gdb *gorm.DB, blobs Blobs, interval time.Duration, log *logrus.Logger) *Reaper {
	return &Reaper{db: gdb, blobs: blobs, interval: interval, log: log, now: time.Now}
}

// Run sweeps periodically until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.log.WithError(err).Warn("signature retention sweep failed")
			} else if n > 0 {
				r.log.WithField("purged", n).Info("purged ephemeral signature copies")
			}
		}
	}
}

// Sweep purges every display copy at or past its scheduled deletion instant
// and returns how many were purged.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	var due []Signature
	err := r.db.WithContext(ctx).
		Where("deleted_at IS NULL AND display_key <> '' AND scheduled_deletion_at <= ?", r.now()).
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	purged := 0
	for i := range due {
		sig := &due[i]
		if err := r.blobs.Delete(ctx, sig.DisplayKey); err != nil {
			// Transient storage failure: the next sweep retries.
			r.log.WithError(err).WithField("signature_id", sig.ID).Warn("display copy delete failed")
			continue
		}

		now := r.now()
		updates := map[string]any{"display_key": "", "deleted_at": &now}
		if err := r.db.WithContext(ctx).Model(sig).Updates(updates).Error; err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}
