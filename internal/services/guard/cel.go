// Package guard evaluates attribute write guards written in CEL.
package guard

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Engine compiles and evaluates write guard expressions.
// Compiled programs are cached by expression text.
type Engine struct {
	env      *cel.Env
	programs sync.Map // expression -> cel.Program
}

// Context contains the data a guard can reference
type Context struct {
	Value     interface{}            // Normalized value being written
	Attribute string                 // Attribute ID
	Product   map[string]interface{} // {id, system, custom} of the locked product
}

// NewEngine creates a new CEL engine with the guard variables declared
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("attribute", cel.StringType),
		cel.Variable("product", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env}, nil
}

func (e *Engine) program(expression string) (cel.Program, error) {
	if p, ok := e.programs.Load(expression); ok {
		return p.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	e.programs.Store(expression, program)
	return program, nil
}

// Evaluate evaluates a guard expression with the given context
func (e *Engine) Evaluate(expression string, ctx *Context) (bool, error) {
	program, err := e.program(expression)
	if err != nil {
		return false, err
	}

	product := ctx.Product
	if product == nil {
		product = map[string]interface{}{}
	}

	result, _, err := program.Eval(map[string]interface{}{
		"value":     ctx.Value,
		"attribute": ctx.Attribute,
		"product":   product,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	allowed, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not evaluate to boolean, got: %T", result.Value())
	}

	return allowed, nil
}

// Validate checks that an expression compiles to a boolean
func (e *Engine) Validate(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid CEL expression: %w", issues.Err())
	}

	// value and product members are dyn, so a dyn result is accepted here
	// and checked again at evaluation time
	if out := ast.OutputType(); out != cel.BoolType && out != cel.DynType {
		return fmt.Errorf("CEL expression must return boolean, got: %s", out)
	}

	return nil
}
