package upload

import (
	"context"
	"time"

	"github.com/lexiqai/insight-gateway/internal/observability"
)

// Janitor periodically sweeps stale uploads out of a Store
type Janitor struct {
	store    *Store
	interval time.Duration
	maxAge   time.Duration
}

// NewJanitor creates a janitor for store
func NewJanitor(store *Store, interval, maxAge time.Duration) *Janitor {
	return &Janitor{store: store, interval: interval, maxAge: maxAge}
}

// Run sweeps once immediately, then every interval until ctx is done
func (j *Janitor) Run(ctx context.Context) error {
	logger := observability.GetLogger()

	logger.Info().
		Str("dir", j.store.Dir()).
		Dur("interval", j.interval).
		Dur("max_age", j.maxAge).
		Msg("Upload janitor started")

	j.sweep()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-ctx.Done():
			logger.Info().Msg("Upload janitor stopped")
			return nil
		}
	}
}

func (j *Janitor) sweep() {
	removed, err := j.store.Sweep(j.maxAge)
	if err != nil {
		logger := observability.GetLogger()
		logger.Error().Err(err).Msg("Upload sweep failed")
		observability.RecordError("sweep", "upload")
		return
	}
	if removed > 0 {
		observability.RecordSweptFiles(removed)
		logger := observability.GetLogger()
		logger.Info().Int("removed", removed).Msg("Swept stale uploads")
	}
}
