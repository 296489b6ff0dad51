package hydrate

import (
	"encoding/json"
	"fmt"
)

// Context identifies where a host payload came from.
type Context struct {
	// Source names the host channel, e.g. "options" or "records".
	Source  string
	TableID string
}

func (c Context) label() string {
	if c.Source == "" {
		return "host"
	}
	return c.Source
}

// PreHook lets callers mutate or normalise the raw payload before decoding.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook lets callers adjust or validate the hydrated value after decoding.
type PostHook[T any] func(Context, *T) error

// DecoderOption configures a Decoder instance.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts loosely typed host payloads into typed values.
type Decoder[T any] struct {
	preHooks  []PreHook
	postHooks []PostHook[T]
}

// WithPreHook applies hook prior to decoding.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

// WithPostHook applies hook after decoding completes.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// NewDecoder builds a Decoder with opts applied in order.
func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode converts payload into T applying configured hooks. The payload is
// deep-copied first so hooks never mutate the host's map.
func (d *Decoder[T]) Decode(ctx Context, payload map[string]any) (T, error) {
	var zero T

	if payload == nil {
		return zero, fmt.Errorf("hydrate: %s payload is nil", ctx.label())
	}

	current, err := clonePayload(payload)
	if err != nil {
		return zero, fmt.Errorf("hydrate: clone %s payload: %w", ctx.label(), err)
	}

	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: %s pre-hook failed: %w", ctx.label(), err)
		}
		if next != nil {
			current = next
		}
	}

	buffer, err := json.Marshal(current)
	if err != nil {
		return zero, fmt.Errorf("hydrate: marshal %s payload: %w", ctx.label(), err)
	}
	var result T
	if err := json.Unmarshal(buffer, &result); err != nil {
		return zero, fmt.Errorf("hydrate: decode %s payload: %w", ctx.label(), err)
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: %s post-hook failed: %w", ctx.label(), err)
		}
	}

	return result, nil
}

// Encode converts value back into a loosely typed payload suitable for a host
// call that expects a plain object.
func Encode[T any](value T) (map[string]any, error) {
	buffer, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("hydrate: encode: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buffer, &out); err != nil {
		return nil, fmt.Errorf("hydrate: encode: %w", err)
	}
	return out, nil
}

func clonePayload(payload map[string]any) (map[string]any, error) {
	buffer, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(buffer, &out); err != nil {
		return nil, err
	}
	return out, nil
}
