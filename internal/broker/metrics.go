package broker

import (
	"context"
	"log"
	"time"

	"github.com/SilentByte/aviator5g/internal/registry"
)

// RunMetrics logs the connection count every interval until ctx is
// canceled, skipping ticks with no connections. A non-positive interval
// disables it. Grounded on server/metrics.go.
func RunMetrics(ctx context.Context, reg *registry.Registry, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := reg.Len(); n > 0 {
				log.Printf("[metrics] connections=%d", n)
			}
		}
	}
}
