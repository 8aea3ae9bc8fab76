package filter

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/event"
)

// celPredicate wraps a compiled CEL program evaluated per event. An
// expression that fails to evaluate, or does not yield a bool, matches
// nothing.
type celPredicate struct {
	prog cel.Program
}

// CEL compiles an expression into a predicate. The expression sees the
// variables type, visibility, session_id, seq, message, success, data
// (the structured payload) and now_ms. An empty expression matches
// everything.
func CEL(expr string) (Predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return And(), nil
	}
	env, err := cel.NewEnv(
		cel.Variable("type", cel.StringType),
		cel.Variable("visibility", cel.StringType),
		cel.Variable("session_id", cel.StringType),
		cel.Variable("seq", cel.IntType),
		cel.Variable("message", cel.StringType),
		cel.Variable("success", cel.BoolType),
		cel.Variable("data", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return nil, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	return celPredicate{prog: prog}, nil
}

func (p celPredicate) Match(ev *event.Event) bool {
	data := ev.Data
	if data == nil {
		data = map[string]any{}
	}
	out, _, err := p.prog.Eval(map[string]any{
		"type":       string(ev.Type),
		"visibility": string(ev.Visibility),
		"session_id": ev.SessionID,
		"seq":        int64(ev.Seq),
		"message":    ev.Message,
		"success":    ev.Success,
		"data":       data,
		"now_ms":     time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
