// Package reaper removes expired session records from stores that do not
// expire them on their own. It runs as a goakt actor fed by a ticker.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tochemey/goakt/v3/actor"
	"github.com/tochemey/goakt/v3/goaktpb"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/traego/oncesession/internal/logger"
	"github.com/traego/oncesession/internal/metrics"
	"github.com/traego/oncesession/pkg/actorutils"
	"github.com/traego/oncesession/pkg/session/store"
)

const ActorName = "session-reaper"

// Reaper purges records whose ttl elapsed before the time carried by each
// tick it receives
type Reaper struct {
	purger store.Purger
}

var _ actor.Actor = (*Reaper)(nil)

// New creates a reaper actor for p
func New(p store.Purger) *Reaper {
	return &Reaper{purger: p}
}

func (r *Reaper) PreStart(ctx context.Context) error {
	return nil
}

func (r *Reaper) Receive(ctx *actor.ReceiveContext) {
	switch msg := ctx.Message().(type) {
	case *goaktpb.PostStart:
		slog.DebugContext(ctx.Context(), "Session reaper started")
	case *timestamppb.Timestamp:
		n, err := r.purger.Purge(ctx.Context(), msg.AsTime())
		if err != nil {
			slog.ErrorContext(ctx.Context(), "Failed to purge expired sessions", "error", err)
			return
		}
		metrics.ReapedSessions.Add(float64(n))
		if n > 0 {
			slog.InfoContext(ctx.Context(), "Purged expired sessions", "count", n)
		}
	default:
		ctx.Unhandled()
	}
}

func (r *Reaper) PostStop(ctx context.Context) error {
	return nil
}

// System owns the actor system hosting the reaper
type System struct {
	actorSystem actor.ActorSystem
	pid         *actor.PID
	cancel      context.CancelFunc
}

// Start spawns a reaper for p in its own actor system and ticks it every
// interval until Stop
func Start(ctx context.Context, p store.Purger, interval time.Duration, log *logger.Slog) (*System, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("reaper interval must be positive, got %s", interval)
	}
	if log == nil {
		log = logger.DiscardSlogLogger
	}

	actorSystem, err := actor.NewActorSystem("oncesession-reaper",
		actor.WithLogger(log),
		actor.WithPassivationDisabled())
	if err != nil {
		return nil, fmt.Errorf("failed to create actor system: %w", err)
	}
	if err := actorSystem.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start actor system: %w", err)
	}

	pid, err := actorSystem.Spawn(ctx, ActorName, New(p))
	if err != nil {
		_ = actorSystem.Stop(ctx)
		return nil, fmt.Errorf("failed to start session reaper: %w", err)
	}

	tickCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	actorutils.Schedule(tickCtx, pid, func(now time.Time) proto.Message {
		return timestamppb.New(now)
	}, interval)

	slog.InfoContext(ctx, "Session reaper scheduled", "interval", interval)
	return &System{actorSystem: actorSystem, pid: pid, cancel: cancel}, nil
}

// PID returns the reaper actor
func (s *System) PID() *actor.PID {
	return s.pid
}

// Stop cancels the ticker and shuts the actor system down
func (s *System) Stop(ctx context.Context) error {
	s.cancel()
	if err := s.actorSystem.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop reaper actor system: %w", err)
	}
	return nil
}
