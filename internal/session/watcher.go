package session

import (
	"context"
	"time"
)

// Watch polls the storage revision every interval and calls Sync when it moves,
// so changes made by other processes reach this one. It returns when ctx is done.
func (h *Holder) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.Sync(); err != nil {
				h.logger.Debug("session watch", "err", err)
			}
		}
	}
}
