package rules

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"
	functions "github.com/google/cel-go/common/functions"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

type celEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewCELEvaluator constructs an Evaluator backed by cel-go.
func NewCELEvaluator(opts ...Option) Evaluator {
	cfg := applyOptions(opts)
	return &celEvaluator{
		cache:    cfg.cache,
		registry: cfg.registry,
	}
}

func (e *celEvaluator) Evaluate(ctx Context, expression string) (result any, err error) {
	defer func() { err = forColumn(err, ctx.ColumnID) }()
	if expression == "" {
		return nil, engineError(EngineCEL, fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return e.run(program, ctx, expression)
}

func (e *celEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, engineError(EngineCEL, fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &celCompiledRule{
		evaluator:  e,
		program:    program,
		expression: expression,
	}, nil
}

func (e *celEvaluator) run(program celgo.Program, ctx Context, expression string) (any, error) {
	out, _, err := program.Eval(e.activation(ctx))
	if err != nil {
		return nil, exprError(EngineCEL, expression, err)
	}
	return out.Value(), nil
}

func (e *celEvaluator) loadOrCompile(expression string) (celgo.Program, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(EngineCEL + ":" + expression); ok {
			if program, ok := cached.(celgo.Program); ok {
				return program, nil
			}
		}
	}

	env, err := e.buildEnv()
	if err != nil {
		return nil, engineError(EngineCEL, err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, exprError(EngineCEL, expression, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, exprError(EngineCEL, expression, err)
	}
	if e.cache != nil {
		e.cache.Set(EngineCEL+":"+expression, program)
	}
	return program, nil
}

func (e *celEvaluator) buildEnv() (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("payload", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable("fields", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable("table", celgo.StringType),
		celgo.Variable("now", celgo.TimestampType),
		celgo.Variable("args", celgo.DynType),
	}
	if e.registry != nil {
		opts = append(opts, celgo.Function("call", celgo.Overload(
			"call_dyn",
			[]*celgo.Type{celgo.StringType, celgo.DynType},
			celgo.DynType,
			celgo.FunctionBinding(e.callBinding()),
		)))
	}
	return celgo.NewEnv(opts...)
}

func (e *celEvaluator) activation(ctx Context) map[string]any {
	return ctx.bindings()
}

type celCompiledRule struct {
	evaluator  *celEvaluator
	program    celgo.Program
	expression string
}

func (r *celCompiledRule) Evaluate(ctx Context) (result any, err error) {
	defer func() { err = forColumn(err, ctx.ColumnID) }()
	if r.evaluator == nil {
		return nil, engineError(EngineCEL, fmt.Errorf("compiled rule missing evaluator"))
	}
	return r.evaluator.run(r.program, ctx, r.expression)
}

func (e *celEvaluator) callBinding() functions.FunctionOp {
	return func(values ...ref.Val) ref.Val {
		if e.registry == nil {
			return types.NewErr("rules: function registry not configured")
		}
		if len(values) == 0 {
			return types.NewErr("rules: call requires function name")
		}
		name, ok := values[0].Value().(string)
		if !ok {
			return types.NewErr("rules: call name must be string")
		}
		args := make([]any, 0, len(values)-1)
		for _, val := range values[1:] {
			args = append(args, val.Value())
		}
		result, err := e.registry.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}
