package hcl

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// fileSchema is the top-level structure of a pipeline file.
type fileSchema struct {
	Default string         `hcl:"default,optional"`
	Locals  []*localsBlock `hcl:"locals,block"`
	Tasks   []*taskBlock   `hcl:"task,block"`
	Watches []*watchBlock  `hcl:"watch,block"`
	Servers []*serverBlock `hcl:"server,block"`
}

// localsBlock is decoded in a separate pass, before anything that may
// reference a local.
type localsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type taskBlock struct {
	Name        string       `hcl:"name,label"`
	Description string       `hcl:"description,optional"`
	DependsOn   []string     `hcl:"depends_on,optional"`
	After       []string     `hcl:"after,optional"`
	Pipes       []*pipeBlock `hcl:"pipe,block"`
	Body        hcl.Body     `hcl:",body"`
}

type pipeBlock struct {
	Src         []string     `hcl:"src,optional"`
	Base        string       `hcl:"base,optional"`
	Dest        string       `hcl:"dest,optional"`
	Sourcemaps  bool         `hcl:"sourcemaps,optional"`
	Reload      bool         `hcl:"reload,optional"`
	OnError     string       `hcl:"on_error,optional"`
	Incremental bool         `hcl:"incremental,optional"`
	Steps       []*stepBlock `hcl:"step,block"`
	Body        hcl.Body     `hcl:",body"`
}

// stepBlock keeps its body undecoded; arguments are bound to the step
// handler's input struct at run time.
type stepBlock struct {
	Type string   `hcl:"type,label"`
	Body hcl.Body `hcl:",remain"`
}

type watchBlock struct {
	Name  string   `hcl:"name,label"`
	Paths []string `hcl:"paths"`
	Tasks []string `hcl:"tasks"`
	Body  hcl.Body `hcl:",body"`
}

type serverBlock struct {
	Port     int      `hcl:"port,optional"`
	Proxy    string   `hcl:"proxy,optional"`
	Root     string   `hcl:"root,optional"`
	Before   []string `hcl:"before,optional"`
	Watches  []string `hcl:"watches,optional"`
	ReloadOn []string `hcl:"reload_on,optional"`
	Debounce string   `hcl:"debounce,optional"`
	Body     hcl.Body `hcl:",body"`
}

// bodyRange returns the source range of a body for error reporting.
func bodyRange(body hcl.Body) hcl.Range {
	if b, ok := body.(*hclsyntax.Body); ok {
		return b.SrcRange
	}
	if body == nil {
		return hcl.Range{}
	}
	return body.MissingItemRange()
}
