package hcl

import (
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions is the function table available to every expression in a
// pipeline file.
var functions = map[string]function.Function{
	"coalesce": stdlib.CoalesceFunc,
	"concat":   stdlib.ConcatFunc,
	"flatten":  stdlib.FlattenFunc,
	"format":   stdlib.FormatFunc,
	"join":     stdlib.JoinFunc,
	"length":   stdlib.LengthFunc,
	"lower":    stdlib.LowerFunc,
	"merge":    stdlib.MergeFunc,
	"replace":  stdlib.ReplaceFunc,
	"upper":    stdlib.UpperFunc,
}

// environ returns the process environment as a cty map for the `env`
// variable.
func environ() cty.Value {
	vars := make(map[string]cty.Value)
	for _, e := range os.Environ() {
		name, value, ok := strings.Cut(e, "=")
		if ok && name != "" {
			vars[name] = cty.StringVal(value)
		}
	}
	if len(vars) == 0 {
		return cty.MapValEmpty(cty.String)
	}
	return cty.MapVal(vars)
}

// newBaseContext builds the root evaluation context. Locals are attached to
// a child context once resolved.
func newBaseContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": environ(),
		},
		Functions: functions,
	}
}

// withLocals returns a child of base exposing the given locals as `local`.
func withLocals(base *hcl.EvalContext, locals map[string]cty.Value) *hcl.EvalContext {
	child := base.NewChild()
	child.Variables = map[string]cty.Value{
		"local": cty.ObjectVal(locals),
	}
	return child
}
