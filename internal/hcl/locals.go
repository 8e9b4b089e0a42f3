package hcl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

var localsSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{{Type: "locals"}},
}

// collectLocals gathers the attributes of every locals block in the given
// files. A name may only be declared once across all files.
func collectLocals(files []*hcl.File) (map[string]*hcl.Attribute, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	attrs := make(map[string]*hcl.Attribute)
	for _, f := range files {
		content, _, d := f.Body.PartialContent(localsSchema)
		diags = append(diags, d...)
		if content == nil {
			continue
		}
		for _, block := range content.Blocks {
			blockAttrs, d := block.Body.JustAttributes()
			diags = append(diags, d...)
			for name, attr := range blockAttrs {
				if prev, ok := attrs[name]; ok {
					diags = append(diags, &hcl.Diagnostic{
						Severity: hcl.DiagError,
						Summary:  "Duplicate local value",
						Detail:   fmt.Sprintf("Local %q was already declared at %s.", name, prev.Range),
						Subject:  attr.Range.Ptr(),
					})
					continue
				}
				attrs[name] = attr
			}
		}
	}
	return attrs, diags
}

// resolveLocals evaluates locals in dependency order. A local is evaluated
// once every `local.<name>` it references has a value; when a pass makes no
// progress the remaining locals are unknown or circular references.
func resolveLocals(attrs map[string]*hcl.Attribute, base *hcl.EvalContext) (map[string]cty.Value, hcl.Diagnostics) {
	resolved := make(map[string]cty.Value, len(attrs))
	pending := make([]string, 0, len(attrs))
	for name := range attrs {
		pending = append(pending, name)
	}
	sort.Strings(pending)

	for len(pending) > 0 {
		var next []string
		for _, name := range pending {
			attr := attrs[name]
			if !localsReady(attr.Expr, resolved) {
				next = append(next, name)
				continue
			}
			val, diags := attr.Expr.Value(withLocals(base, resolved))
			if diags.HasErrors() {
				return nil, diags
			}
			resolved[name] = val
		}
		if len(next) == len(pending) {
			first := attrs[next[0]]
			return nil, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Unresolvable local values",
				Detail:   fmt.Sprintf("Cannot resolve locals %s: they reference unknown locals or each other in a cycle.", strings.Join(next, ", ")),
				Subject:  first.Range.Ptr(),
			}}
		}
		pending = next
	}
	return resolved, nil
}

// localsReady reports whether every local referenced by expr is resolved.
func localsReady(expr hcl.Expression, resolved map[string]cty.Value) bool {
	for _, traversal := range expr.Variables() {
		if traversal.RootName() != "local" {
			continue
		}
		if len(traversal) < 2 {
			return false
		}
		attr, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			return false
		}
		if _, ok := resolved[attr.Name]; !ok {
			return false
		}
	}
	return true
}
