package actorutils

import (
	"context"
	"log/slog"
	"time"

	"github.com/tochemey/goakt/v3/actor"
	"google.golang.org/protobuf/proto"
)

// Schedule sends a message built by next to target every interval until ctx
// is cancelled or target stops. The first message is sent after one interval.
func Schedule(ctx context.Context, target *actor.PID, next func(now time.Time) proto.Message, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.DebugContext(ctx, "scheduled message cancelled")
				return
			case now := <-ticker.C:
				if !target.IsRunning() {
					slog.DebugContext(ctx, "actor is not alive, shutting down", "actor", target.Name())
					return
				}
				if err := actor.Tell(ctx, target, next(now)); err != nil {
					slog.ErrorContext(ctx, "failed to send scheduled message",
						"actor", target.Name(),
						"error", err)
				}
			}
		}
	}()
}
