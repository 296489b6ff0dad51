package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testContext() Context {
	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	return Context{
		Payload: map[string]string{"Colonne 1": "Hello World", "Colonne 2": ""},
		Fields:  map[string]any{"Titre": "Hello World"},
		TableID: "Tasks",
		Now:     &now,
	}
}

func TestNewSelectsEngine(t *testing.T) {
	for _, engine := range []string{"", "expr", "EXPR", " cel "} {
		evaluator, err := New(engine)
		require.NoError(t, err, engine)
		require.NotNil(t, evaluator, engine)
	}

	_, err := New("lua")
	require.ErrorIs(t, err, ErrUnknownEngine)
}

func TestNewJSWithoutBuildTag(t *testing.T) {
	evaluator, err := New(EngineJS)
	if err != nil {
		require.ErrorIs(t, err, ErrEngineUnavailable)
		return
	}
	require.NotNil(t, evaluator)
}

func TestExprEvaluatesAgainstBindings(t *testing.T) {
	for _, cache := range []ProgramCache{nil, NewMemoryCache()} {
		evaluator := NewExprEvaluator(WithProgramCache(cache), WithFunctionRegistry(DefaultFunctions()))

		got, err := evaluator.Evaluate(testContext(), `slugify(payload["Colonne 1"])`)
		require.NoError(t, err)
		require.Equal(t, "hello-world", got)

		got, err = evaluator.Evaluate(testContext(), `table + "/" + fields["Titre"]`)
		require.NoError(t, err)
		require.Equal(t, "Tasks/Hello World", got)

		got, err = evaluator.Evaluate(testContext(), `coalesce(payload["Colonne 2"], "fallback")`)
		require.NoError(t, err)
		require.Equal(t, "fallback", got)
	}
}

func TestExprCompiledRuleReusesProgram(t *testing.T) {
	cache := NewMemoryCache()
	evaluator := NewExprEvaluator(WithProgramCache(cache))

	rule, err := evaluator.Compile(`table == "Tasks"`)
	require.NoError(t, err)

	_, ok := cache.Get(EngineExpr + `:table == "Tasks"`)
	require.True(t, ok)

	got, err := rule.Evaluate(testContext())
	require.NoError(t, err)
	require.Equal(t, true, got)
}

func TestExprRejectsEmptyAndInvalid(t *testing.T) {
	evaluator := NewExprEvaluator()
	_, err := evaluator.Evaluate(testContext(), "")
	require.Error(t, err)

	_, err = evaluator.Compile("1 +")
	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	require.Equal(t, EngineExpr, evalErr.Engine)
	require.Equal(t, "1 +", evalErr.Expr)
}

func TestCELEvaluatesAgainstBindings(t *testing.T) {
	evaluator := NewCELEvaluator(WithProgramCache(NewMemoryCache()), WithFunctionRegistry(DefaultFunctions()))

	got, err := evaluator.Evaluate(testContext(), `table + ":" + string(payload["Colonne 1"])`)
	require.NoError(t, err)
	require.Equal(t, "Tasks:Hello World", got)

	got, err = evaluator.Evaluate(testContext(), `call("slugify", payload["Colonne 1"])`)
	require.NoError(t, err)
	require.Equal(t, "hello-world", got)

	rule, err := evaluator.Compile(`now.getFullYear() == 2025`)
	require.NoError(t, err)
	got, err = rule.Evaluate(testContext())
	require.NoError(t, err)
	require.Equal(t, true, got)
}

func TestCELCompileErrorIsWrapped(t *testing.T) {
	evaluator := NewCELEvaluator()
	_, err := evaluator.Compile(`missing_var + 1`)
	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	require.Equal(t, EngineCEL, evalErr.Engine)
}

func TestFunctionRegistry(t *testing.T) {
	registry := NewFunctionRegistry()
	require.NoError(t, registry.Register("Double", func(args ...any) (any, error) {
		return args[0].(int) * 2, nil
	}))
	require.Error(t, registry.Register("double", func(args ...any) (any, error) { return nil, nil }))
	require.Error(t, registry.Register("", func(args ...any) (any, error) { return nil, nil }))
	require.Error(t, registry.Register("nilfn", nil))

	got, err := registry.Call("DOUBLE", 21)
	require.NoError(t, err)
	require.Equal(t, 42, got)

	_, err = registry.Call("missing")
	require.Error(t, err)

	clone := registry.Clone()
	require.NoError(t, clone.Register("extra", func(args ...any) (any, error) { return nil, nil }))
	require.Equal(t, []string{"double"}, registry.Names())
	require.Equal(t, []string{"double", "extra"}, clone.Names())
}
