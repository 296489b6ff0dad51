package widget

import (
	"context"

	"github.com/goliatone/go-formwidget/pkg/activity"
	"github.com/sirupsen/logrus"
)

// WithActivityHooks attaches activity hooks to the widget. Hooks are cloned and
// nil entries dropped; emission is enabled when at least one hook remains.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *config) {
		cfg.activityHooks = normalized
	}
}

// WithActivityChannel overrides the default "widget" channel on events.
func WithActivityChannel(channel string) Option {
	return func(cfg *config) {
		cfg.activityChannel = channel
	}
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}

// eventSink emits lifecycle events and logs hook failures; hook errors never
// reach widget callers.
type eventSink struct {
	ctx     context.Context
	emitter *activity.Emitter
	log     logrus.FieldLogger
}

func newEventSink(ctx context.Context, cfg config, log logrus.FieldLogger) *eventSink {
	emitter := activity.NewEmitter(cfg.activityHooks, activity.Config{
		Enabled:  len(cfg.activityHooks) > 0,
		Channel:  cfg.activityChannel,
		WidgetID: cfg.widgetID,
	})
	return &eventSink{ctx: ctx, emitter: emitter, log: log.WithField("component", "activity")}
}

func (s *eventSink) emit(event activity.Event) {
	if s == nil || !s.emitter.Enabled() {
		return
	}
	if err := s.emitter.Emit(s.ctx, event); err != nil {
		s.log.WithError(err).WithField("verb", event.Verb).Warn("activity hook failed")
	}
}
