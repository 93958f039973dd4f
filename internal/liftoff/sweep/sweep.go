package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/liftoffhq/liftoff/internal/data/stores"
)

// Start launches a background goroutine that periodically sweeps expired KV
// entries, such as stale inference caches and update-check results. It blocks
// until the context is cancelled.
func Start(ctx context.Context, kvStore *stores.KVStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := kvStore.SweepExpired(ctx); err != nil {
				log.Debug().Err(err).Msg("kv sweep failed")
			}
		}
	}
}
