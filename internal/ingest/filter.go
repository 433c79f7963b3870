package ingest

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/okian/pitwall/internal/domain/race"
)

// DefaultEventFilter keeps conventional race weekends only.
const DefaultEventFilter = `event.format == "conventional"`

// EventFilter selects schedule entries with a CEL expression over `event`,
// a map with keys year, round, name, country and format.
type EventFilter struct {
	expr string
	prg  cel.Program
}

// NewEventFilter compiles expr. An empty expression keeps every event.
func NewEventFilter(expr string) (*EventFilter, error) {
	if expr == "" {
		return &EventFilter{}, nil
	}
	env, err := cel.NewEnv(cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidFilter, expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) && !ast.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: %q returns %s, want bool", ErrInvalidFilter, expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	return &EventFilter{expr: expr, prg: prg}, nil
}

// Expr returns the source expression.
func (f *EventFilter) Expr() string { return f.expr }

// Keep reports whether ev passes the filter.
func (f *EventFilter) Keep(ev race.Event) (bool, error) {
	if f == nil || f.prg == nil {
		return true, nil
	}
	out, _, err := f.prg.Eval(map[string]any{
		"event": map[string]any{
			"year":    int64(ev.Year),
			"round":   int64(ev.Round),
			"name":    ev.Name,
			"country": ev.Country,
			"format":  ev.Format,
		},
	})
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", f.expr, err)
	}
	keep, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q returned %T", ErrInvalidFilter, f.expr, out.Value())
	}
	return keep, nil
}
