package admin

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/sharedlog/internal/physlog"
)

// streamFilter wraps a compiled CEL program over stream directory rows.
// When disabled, Match always returns true.
type streamFilter struct {
	prog    cel.Program
	enabled bool
}

func newStreamFilter(expr string) (streamFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return streamFilter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("alias", cel.StringType),
		cel.Variable("head", cel.IntType),
		cel.Variable("tail", cel.IntType),
		// tail - head
		cel.Variable("length", cel.IntType),
		// number of extents held
		cel.Variable("extents", cel.IntType),
		cel.Variable("open", cel.BoolType),
	)
	if err != nil {
		return streamFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return streamFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return streamFilter{}, iss2.Err()
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return streamFilter{}, usagef("filter must evaluate to bool, got %s", checked.OutputType())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return streamFilter{}, err
	}
	return streamFilter{prog: prog, enabled: true}, nil
}

// Match evaluates the filter against one stream. Evaluation errors count as
// no match.
func (f streamFilter) Match(si physlog.StreamInfo) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":      si.ID.String(),
		"alias":   si.Alias,
		"head":    int64(si.Head),
		"tail":    int64(si.Tail),
		"length":  int64(si.Tail - si.Head),
		"extents": int64(len(si.Extents)),
		"open":    si.Open,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
