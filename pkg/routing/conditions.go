package routing

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/cel-go/cel"
)

// conditionEvaluator compiles and caches the CEL programs behind a policy's
// approval conditions. Conditions are boolean expressions over the
// classifier's judgment:
//
//	sensitivity > 0.6
//	confidence < 0.5 && sensitivity > 0.3
//	topics.exists(t, t == "conflict")
//	content.contains("salary")
//
// Compilation is cached by expression text, so the per-policy set can change
// without restarting the engine.
type conditionEvaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func newConditionEvaluator() (*conditionEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("sensitivity", cel.DoubleType),
		cel.Variable("topics", cel.ListType(cel.StringType)),
		cel.Variable("content", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}
	return &conditionEvaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Fires evaluates one condition. An expression that cannot be compiled or
// evaluated counts as firing: a broken condition must err toward review, not
// toward silent sharing. The error is returned for logging.
func (ce *conditionEvaluator) Fires(expression string, confidence, sensitivity float64, topics []string, content string) (bool, error) {
	program, err := ce.program(expression)
	if err != nil {
		return true, err
	}

	if topics == nil {
		topics = []string{}
	}
	out, _, err := program.Eval(map[string]any{
		"confidence":  confidence,
		"sensitivity": sensitivity,
		"topics":      topics,
		"content":     content,
	})
	if err != nil {
		return true, fmt.Errorf("evaluating condition %q: %w", expression, err)
	}

	nv, err := out.ConvertToNative(reflect.TypeOf(false))
	if err != nil {
		return true, fmt.Errorf("condition %q is not boolean: %w", expression, err)
	}
	fired, ok := nv.(bool)
	if !ok {
		return true, fmt.Errorf("condition %q is not boolean", expression)
	}
	return fired, nil
}

func (ce *conditionEvaluator) program(expression string) (cel.Program, error) {
	ce.mu.RLock()
	program, ok := ce.programs[expression]
	ce.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := ce.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compiling condition %q: %w", expression, issues.Err())
	}
	program, err := ce.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building condition program %q: %w", expression, err)
	}

	ce.mu.Lock()
	ce.programs[expression] = program
	ce.mu.Unlock()
	return program, nil
}
