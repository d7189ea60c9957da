package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Vars are the variables an eligibility expression can reference.
type Vars struct {
	Status           string
	SenderType       string
	MessageType      string
	Content          string
	Private          bool
	CustomAttributes map[string]interface{}
}

func (v Vars) activation() map[string]interface{} {
	attrs := v.CustomAttributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	return map[string]interface{}{
		"status":            v.Status,
		"sender_type":       v.SenderType,
		"message_type":      v.MessageType,
		"content":           v.Content,
		"private":           v.Private,
		"custom_attributes": attrs,
	}
}

func newEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("status", cel.StringType),
		cel.Variable("sender_type", cel.StringType),
		cel.Variable("message_type", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("private", cel.BoolType),
		cel.Variable("custom_attributes", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// Predicate is a boolean expression compiled once and evaluated per message.
type Predicate struct {
	expression string
	program    cel.Program
}

func NewPredicate(expression string) (*Predicate, error) {
	env, err := newEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("predicate expression must return bool, got %v", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Predicate{expression: expression, program: program}, nil
}

func (p *Predicate) Expression() string {
	return p.expression
}

func (p *Predicate) Eval(ctx context.Context, vars Vars) (bool, error) {
	result, _, err := p.program.ContextEval(ctx, vars.activation())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

// Validate reports whether expression compiles to a boolean predicate.
func Validate(expression string) error {
	_, err := NewPredicate(expression)
	return err
}
