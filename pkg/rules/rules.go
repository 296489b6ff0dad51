// Package rules evaluates the small expressions attached to computed fields in
// the widget options. Three engines are available: expr (default), cel, and js
// (goja, only with the js_eval build tag).
package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Engine names accepted by New.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

var (
	// ErrUnknownEngine is returned by New for unsupported engine names.
	ErrUnknownEngine = errors.New("rules: unknown engine")
	// ErrEngineUnavailable is returned when an engine was compiled out.
	ErrEngineUnavailable = errors.New("rules: engine unavailable in this build")
)

// Context carries the inputs visible to an expression.
type Context struct {
	// Payload holds the raw logical labels typed by the user.
	Payload map[string]string
	// Fields holds the resolved field set built so far.
	Fields  map[string]any
	TableID string
	// ColumnID names the computed column being filled; failures carry it.
	ColumnID string
	Now      *time.Time
	Args     map[string]any
}

func (ctx Context) withDefaults() Context {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Payload == nil {
		ctx.Payload = map[string]string{}
	}
	if ctx.Fields == nil {
		ctx.Fields = map[string]any{}
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	return ctx
}

func (ctx Context) timestamp() time.Time {
	ctx = ctx.withDefaults()
	return *ctx.Now
}

// bindings returns the variables shared by every engine.
func (ctx Context) bindings() map[string]any {
	ctx = ctx.withDefaults()
	payload := make(map[string]any, len(ctx.Payload))
	for key, value := range ctx.Payload {
		payload[key] = value
	}
	fields := make(map[string]any, len(ctx.Fields))
	for key, value := range ctx.Fields {
		fields[key] = value
	}
	return map[string]any{
		"payload": payload,
		"fields":  fields,
		"table":   ctx.TableID,
		"now":     ctx.timestamp(),
		"args":    ctx.Args,
	}
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx Context, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx Context) (any, error)
}

// Option configures evaluators built through New.
type Option func(*config)

type config struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// WithProgramCache wires a ProgramCache into the evaluator.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *config) {
		cfg.cache = cache
	}
}

// WithFunctionRegistry wires a FunctionRegistry into the evaluator.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *config) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

func applyOptions(opts []Option) config {
	cfg := config{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// New returns an evaluator for engine. An empty engine selects expr.
func New(engine string, opts ...Option) (Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineExpr:
		return NewExprEvaluator(opts...), nil
	case EngineCEL:
		return NewCELEvaluator(opts...), nil
	case EngineJS:
		evaluator := NewJSEvaluator(opts...)
		if evaluator == nil {
			return nil, fmt.Errorf("%w: %s", ErrEngineUnavailable, EngineJS)
		}
		return evaluator, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}
