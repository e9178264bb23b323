package core

import (
	"context"
	"fmt"

	"github.com/mikey/image-mod-relay/internal/metrics"
	"go.uber.org/zap"
)

// Route is the terminal category an event is classified into
type Route int

const (
	RouteIgnored Route = iota
	RouteAdminCommand
	RouteImageModeration
)

func (r Route) String() string {
	switch r {
	case RouteAdminCommand:
		return "admin_command"
	case RouteImageModeration:
		return "image_moderation"
	default:
		return "ignored"
	}
}

// ClassifyEvent decides which route ev takes under the current policy
func ClassifyEvent(ev *Event, policy PolicyReader) Route {
	if ev == nil || ev.Kind != EventKindMessage || ev.Scope != ScopeGroup {
		return RouteIgnored
	}
	if !policy.IsWhitelisted(ev.GroupID) {
		if policy.IsAdmin(ev.UserID) {
			return RouteAdminCommand
		}
		return RouteIgnored
	}
	if ev.HasImage() {
		return RouteImageModeration
	}
	return RouteIgnored
}

// Router classifies inbound events and hands the routed work to the
// scheduler so the receive loop never waits on it
type Router struct {
	policy     PolicyReader
	commands   *CommandHandler
	moderation *ModerationService
	scheduler  Scheduler
	logger     *zap.Logger
}

// NewRouter creates a new event router
func NewRouter(
	policy PolicyReader,
	commands *CommandHandler,
	moderation *ModerationService,
	scheduler Scheduler,
	logger *zap.Logger,
) *Router {
	return &Router{
		policy:     policy,
		commands:   commands,
		moderation: moderation,
		scheduler:  scheduler,
		logger:     logger,
	}
}

// Dispatch routes ev and queues its work. It returns once the work is
// queued, not when it is done.
func (r *Router) Dispatch(ctx context.Context, ev *Event) (Route, error) {
	route := ClassifyEvent(ev, r.policy)
	metrics.EventsRouted.WithLabelValues(route.String()).Inc()

	switch route {
	case RouteAdminCommand:
		groupID, text := ev.GroupID, ev.Text()
		r.logger.Debug("Routing admin text",
			zap.String("group_id", groupID),
			zap.String("user_id", ev.UserID))
		return route, r.enqueue(ctx, ev, func(ctx context.Context) error {
			_, err := r.commands.Handle(ctx, groupID, text)
			return err
		})

	case RouteImageModeration:
		r.logger.Debug("Routing image message",
			zap.String("group_id", ev.GroupID),
			zap.String("user_id", ev.UserID),
			zap.Int("images", len(ev.Images())))
		return route, r.enqueue(ctx, ev, func(ctx context.Context) error {
			_, err := r.moderation.ModerateEvent(ctx, ev)
			return err
		})

	default:
		return route, nil
	}
}

func (r *Router) enqueue(ctx context.Context, ev *Event, task func(context.Context) error) error {
	if err := r.scheduler.AddWork(ctx, ev.GroupID+":"+ev.UserID, task); err != nil {
		return fmt.Errorf("failed to queue event: %w", err)
	}
	return nil
}
