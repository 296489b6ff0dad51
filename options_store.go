package widget

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-formwidget/internal/hydrate"
	"github.com/goliatone/go-formwidget/pkg/activity"
	"github.com/goliatone/go-formwidget/pkg/observe"
	"github.com/sirupsen/logrus"
)

// OptionsStore holds the last-known widget options. It is empty until the
// host pushes a value or a Save succeeds.
type OptionsStore struct {
	subject *observe.Subject[WidgetOptions]
	decoder *hydrate.Decoder[WidgetOptions]
	saver   OptionsSaver
	present bool
	log     logrus.FieldLogger
	events  *eventSink
}

func newOptionsStore(b Binding, log logrus.FieldLogger, events *eventSink) *OptionsStore {
	s := &OptionsStore{
		subject: observe.New(observe.WithReplay[WidgetOptions](nil)),
		saver:   b.saver,
		present: b.present,
		log:     log.WithField("component", "options"),
		events:  events,
	}
	s.decoder = hydrate.NewDecoder[WidgetOptions](
		hydrate.WithPreHook[WidgetOptions](coerceColumnCount),
		hydrate.WithPostHook[WidgetOptions](s.warnInvalid),
	)
	return s
}

// coerceColumnCount accepts a columnCount stored as a numeric string.
func coerceColumnCount(_ hydrate.Context, raw map[string]any) (map[string]any, error) {
	text, ok := raw["columnCount"].(string)
	if !ok {
		return raw, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("columnCount %q is not a number", text)
	}
	raw["columnCount"] = n
	return raw, nil
}

// warnInvalid keeps pushed options that fail validation and only logs them.
func (s *OptionsStore) warnInvalid(ctx hydrate.Context, options *WidgetOptions) error {
	if err := options.Validate(); err != nil {
		s.log.WithError(err).WithField("source", ctx.Source).Warn("host pushed options that fail validation")
	}
	return nil
}

// Subscribe registers listener. If options are already known listener is
// invoked once with them before Subscribe returns.
func (s *OptionsStore) Subscribe(listener func(WidgetOptions)) {
	if listener == nil {
		return
	}
	s.subject.Subscribe(func(options WidgetOptions) {
		listener(options.Clone())
	})
}

// OnHostPush handles an options-changed notification. A nil payload is a
// transient empty push and is ignored, as is a payload that cannot be decoded.
func (s *OptionsStore) OnHostPush(raw map[string]any) {
	if raw == nil {
		return
	}
	options, err := s.decoder.Decode(hydrate.Context{Source: "options"}, raw)
	if err != nil {
		s.log.WithError(err).Warn("ignoring malformed options push")
		return
	}
	s.subject.Publish(options.Clone())
	s.events.emit(activity.BuildOptionsUpdatedEvent(activity.EventInput{
		Metadata: map[string]any{"questions": len(options.Questions)},
	}))
}

// Save asks the host to persist options and updates the cached copy on
// success. Without a host, or a host that cannot persist options, Save logs
// and returns nil without calling anything.
func (s *OptionsStore) Save(ctx context.Context, options WidgetOptions) error {
	if !s.present {
		s.log.Warn("save options skipped: standalone mode")
		return nil
	}
	if s.saver == nil {
		s.log.Warn("save options skipped: host cannot persist options")
		return nil
	}
	if err := options.Validate(); err != nil {
		return err
	}
	raw, err := hydrate.Encode(options)
	if err != nil {
		return fmt.Errorf("widget: save options: %w", err)
	}
	if err := s.saver.SetOptions(ctx, raw); err != nil {
		s.log.WithError(err).Error("host rejected options save")
		return fmt.Errorf("widget: save options: %w", err)
	}
	s.subject.Publish(options.Clone())
	s.events.emit(activity.BuildOptionsSavedEvent(activity.EventInput{
		Metadata: map[string]any{"questions": len(options.Questions)},
	}))
	return nil
}

// Current returns the cached options and whether any are known.
func (s *OptionsStore) Current() (WidgetOptions, bool) {
	options, ok := s.subject.Current()
	if !ok {
		return WidgetOptions{}, false
	}
	return options.Clone(), true
}
