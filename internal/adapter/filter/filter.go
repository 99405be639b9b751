// Package filter selects log items with a CEL expression.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/V4T54L/fieldlog/internal/domain"
)

// Filter is a compiled CEL expression over log items. The zero value and a
// filter built from an empty expression match everything.
type Filter struct {
	prog    cel.Program
	enabled bool
	now     func() time.Time
}

// New compiles expr. The expression sees these variables:
//
//	kind      "text", "data", "exception" or "scope"
//	priority  numeric priority; priority_name its name
//	text      text item message, data item name, exception message or scope name
//	details   text details, data value or exception data ("" when null)
//	item_type exception type or scope type ("" otherwise)
//	level     scope nesting level
//	repeated  true for repeated scope records
//	session, thread, counter, ts_ms, now_ms
func New(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("priority", cel.IntType),
		cel.Variable("priority_name", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("details", cel.StringType),
		cel.Variable("item_type", cel.StringType),
		cel.Variable("level", cel.IntType),
		cel.Variable("repeated", cel.BoolType),
		cel.Variable("session", cel.StringType),
		cel.Variable("thread", cel.IntType),
		cel.Variable("counter", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("failed to compile filter: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return Filter{}, fmt.Errorf("filter must evaluate to bool, not %s", ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true, now: time.Now}, nil
}

// Match reports whether item satisfies the expression. Evaluation errors
// count as no match.
func (f Filter) Match(item domain.Item) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(Vars(item, f.now()))
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Vars flattens item into the variables a filter expression sees.
func Vars(item domain.Item, now time.Time) map[string]any {
	m := item.ItemMeta()
	vars := map[string]any{
		"kind":          item.Kind().String(),
		"priority":      int64(m.Priority),
		"priority_name": m.Priority.String(),
		"text":          "",
		"details":       "",
		"item_type":     "",
		"level":         int64(0),
		"repeated":      false,
		"session":       m.SessionID.String(),
		"thread":        int64(m.ThreadID),
		"counter":       int64(m.EventCounter),
		"ts_ms":         m.Time.UnixMilli(),
		"now_ms":        now.UnixMilli(),
	}
	switch it := item.(type) {
	case *domain.TextItem:
		vars["text"] = it.Text
		vars["details"] = deref(it.Details)
	case *domain.DataItem:
		vars["text"] = it.Name
		vars["details"] = deref(it.Value)
	case *domain.ExceptionItem:
		vars["text"] = it.Exception.Message
		vars["details"] = deref(it.Exception.Data)
		vars["item_type"] = it.Exception.Type
	case *domain.ScopeItem:
		vars["text"] = it.Name
		vars["item_type"] = it.Type.String()
		vars["level"] = int64(it.Level)
		vars["repeated"] = it.IsRepeated
	}
	return vars
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
