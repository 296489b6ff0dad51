// Package promsink counts widget activity events with a Prometheus counter
// vector labelled by verb and object type.
package promsink

import (
	"context"

	"github.com/goliatone/go-formwidget/pkg/activity"
	"github.com/prometheus/client_golang/prometheus"
)

// Hook increments Events for every normalized activity event.
type Hook struct {
	Events *prometheus.CounterVec
}

// New registers a counter vector on reg (the default registerer when nil) and
// returns a hook backed by it.
func New(reg prometheus.Registerer, namespace string) (*Hook, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "widget",
		Name:      "events_total",
		Help:      "Widget lifecycle events by verb.",
	}, []string{"verb", "object_type"})
	if err := reg.Register(events); err != nil {
		return nil, err
	}
	return &Hook{Events: events}, nil
}

// Notify implements activity.ActivityHook.
func (h *Hook) Notify(_ context.Context, event activity.Event) error {
	if h == nil || h.Events == nil {
		return nil
	}
	normalized := activity.NormalizeEvent(event)
	if normalized.Verb == "" {
		return nil
	}
	h.Events.WithLabelValues(normalized.Verb, normalized.ObjectType).Inc()
	return nil
}
