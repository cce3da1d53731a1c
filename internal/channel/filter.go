package channel

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// Filter wraps a compiled CEL program used to narrow a subscription
// server-side (for example json.projectId == "p1" or type == "competitor.alert").
// A disabled filter matches everything; an evaluation error matches nothing.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles expr. An empty expression yields a disabled filter.
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("channel", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("producer", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
		// parsed JSON payload for field-level narrowing
		cel.Variable("json", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Enabled reports whether the filter narrows anything.
func (f Filter) Enabled() bool { return f.enabled }

// Match evaluates the expression against an event.
func (f Filter) Match(ev Event) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(ev.Payload, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"channel":  ev.Channel,
		"type":     ev.Type,
		"producer": ev.ProducerID,
		"ts_ms":    ev.ProducedAtMs,
		"json":     jsonObj,
		"now_ms":   time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
