package css

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/dustin/go-humanize"
	"github.com/tdewolff/minify/v2"
	mincss "github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/registry"
	"golang.org/x/net/html"
)

// UncssInput defines the arguments of the 'uncss' step.
type UncssInput struct {
	// HTML lists the documents to test selectors against: http(s) URLs or
	// globs relative to the project root.
	HTML []string `hcl:"html"`
	// Ignore lists selectors that are always kept.
	Ignore []string `hcl:"ignore,optional"`
}

// httpClient is shared by all uncss runs to reuse connections.
var httpClient = &http.Client{}

// OnRunUncss drops the rules of every CSS file that match no element of
// the configured documents.
func OnRunUncss(ctx context.Context, env *registry.Env, in *UncssInput, files []*asset.File) ([]*asset.File, error) {
	logger := ctxlog.FromContext(ctx)
	docs, err := loadDocuments(ctx, env, in.HTML)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("uncss: no HTML documents found for %v", in.HTML)
	}

	used := &usage{docs: docs, ignore: make(map[string]bool, len(in.Ignore))}
	for _, sel := range in.Ignore {
		used.ignore[strings.TrimSpace(sel)] = true
	}

	out := make([]*asset.File, 0, len(files))
	for _, f := range files {
		if f.Ext() != ".css" {
			out = append(out, f)
			continue
		}
		contents, err := Uncss(f.Contents, used.matches)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		logger.Info("🧹 Removed unused CSS.", "file", f.Path,
			"before", humanize.Bytes(uint64(len(f.Contents))),
			"after", humanize.Bytes(uint64(len(contents))))
		next := f.Clone()
		next.Contents = contents
		next.Map = nil
		out = append(out, next)
	}
	return out, nil
}

func loadDocuments(ctx context.Context, env *registry.Env, sources []string) ([]*html.Node, error) {
	var docs []*html.Node
	for _, src := range sources {
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			body, err := fetch(ctx, src)
			if err != nil {
				return nil, err
			}
			doc, err := html.Parse(bytes.NewReader(body))
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", src, err)
			}
			docs = append(docs, doc)
			continue
		}
		files, err := asset.Src(ctx, env.FS, []string{src}, ".")
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			doc, err := html.Parse(bytes.NewReader(f.Contents))
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", f.Path, err)
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

type usage struct {
	docs   []*html.Node
	ignore map[string]bool
}

// matches reports whether a single selector should be kept.
func (u *usage) matches(selector string) bool {
	if u.ignore[selector] {
		return true
	}
	stripped := stripPseudos(selector)
	sel, err := cascadia.Compile(stripped)
	if err != nil {
		// Anything the matcher cannot understand is kept.
		return true
	}
	for _, doc := range u.docs {
		if sel.MatchFirst(doc) != nil {
			return true
		}
	}
	return false
}

var pseudoRe = regexp.MustCompile(`::?(-[a-zA-Z]+-)?[a-zA-Z-]+(\([^)]*\))?`)

// statePseudos depend on user interaction or document state and never
// match a static document.
var statePseudos = map[string]bool{
	"hover": true, "focus": true, "active": true, "visited": true, "link": true,
	"focus-within": true, "focus-visible": true, "target": true, "checked": true,
	"disabled": true, "enabled": true, "indeterminate": true, "invalid": true,
	"valid": true, "placeholder-shown": true, "before": true, "after": true,
	"first-line": true, "first-letter": true, "selection": true, "placeholder": true,
}

func stripPseudos(selector string) string {
	s := pseudoRe.ReplaceAllStringFunc(selector, func(p string) string {
		name := strings.TrimLeft(p, ":")
		if i := strings.IndexByte(name, '('); i >= 0 {
			name = name[:i]
		}
		if strings.HasPrefix(p, "::") || strings.HasPrefix(name, "-") || statePseudos[strings.ToLower(name)] {
			return ""
		}
		return p
	})
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, ">") || strings.HasSuffix(s, "+") || strings.HasSuffix(s, "~") {
		s += "*"
	}
	return s
}

// frame is an open block while re-serializing a stylesheet.
type frame struct {
	header string
	buf    bytes.Buffer
	// filtered blocks are dropped when none of their rules survive.
	filtered bool
	content  bool
	// keep is false for a ruleset none of whose selectors matched.
	keep bool
	rule bool
}

// conditionalAtRules contain ordinary rulesets that can be filtered.
var conditionalAtRules = map[string]bool{
	"@media": true, "@supports": true, "@document": true, "@layer": true,
}

// Uncss removes from src every ruleset for which keep returns false for
// all of its selectors. Conditional groups left empty are removed too. The
// result is minified.
func Uncss(src []byte, keep func(selector string) bool) ([]byte, error) {
	p := css.NewParser(parse.NewInputBytes(src), false)
	stack := []*frame{{filtered: true}}
	var selectors []string

	top := func() *frame { return stack[len(stack)-1] }
	// inFilteredScope reports whether rulesets at the current depth are
	// subject to filtering.
	inFilteredScope := func() bool {
		for _, f := range stack {
			if !f.filtered {
				return false
			}
		}
		return true
	}

	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if p.Err() != io.EOF {
				return nil, p.Err()
			}
			return minifyCSS(stack[0].buf.Bytes())
		case css.CommentGrammar, css.TokenGrammar:
		case css.AtRuleGrammar:
			f := top()
			f.buf.Write(data)
			writePrelude(&f.buf, p.Values())
			f.buf.WriteByte(';')
			f.content = true
		case css.BeginAtRuleGrammar:
			var header bytes.Buffer
			header.Write(data)
			writePrelude(&header, p.Values())
			stack = append(stack, &frame{
				header:   header.String(),
				filtered: conditionalAtRules[strings.ToLower(string(data))],
			})
		case css.QualifiedRuleGrammar:
			selectors = append(selectors, rawString(p.Values()))
		case css.BeginRulesetGrammar:
			selectors = append(selectors, rawString(p.Values()))
			keepRule := !inFilteredScope()
			for _, sel := range selectors {
				if keepRule {
					break
				}
				keepRule = keep(strings.TrimSpace(sel))
			}
			stack = append(stack, &frame{
				header: strings.Join(selectors, ","),
				keep:   keepRule,
				rule:   true,
			})
			selectors = selectors[:0]
		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			f := top()
			f.buf.Write(data)
			f.buf.WriteByte(':')
			f.buf.WriteString(tokensString(p.Values()))
			f.buf.WriteByte(';')
			f.content = true
		case css.EndRulesetGrammar, css.EndAtRuleGrammar:
			if len(stack) == 1 {
				continue
			}
			f := top()
			stack = stack[:len(stack)-1]
			if f.rule && !f.keep {
				continue
			}
			if !f.rule && f.filtered && !f.content {
				continue
			}
			parent := top()
			parent.buf.WriteString(f.header)
			parent.buf.WriteByte('{')
			parent.buf.Write(f.buf.Bytes())
			parent.buf.WriteByte('}')
			parent.content = true
		}
	}
}

func writePrelude(buf *bytes.Buffer, values []css.Token) {
	s := rawString(values)
	if s == "" {
		return
	}
	if s[0] != ' ' {
		buf.WriteByte(' ')
	}
	buf.WriteString(s)
}

func rawString(values []css.Token) string {
	var sb strings.Builder
	for _, v := range values {
		sb.Write(v.Data)
	}
	return sb.String()
}

// tokensString joins the tokens of a declaration value, keeping words that
// the parser split on whitespace apart.
func tokensString(values []css.Token) string {
	var sb strings.Builder
	prevWord := false
	for _, v := range values {
		word := isWord(v.TokenType)
		if prevWord && word {
			sb.WriteByte(' ')
		}
		sb.Write(v.Data)
		prevWord = word
	}
	return sb.String()
}

func isWord(tt css.TokenType) bool {
	switch tt {
	case css.IdentToken, css.NumberToken, css.DimensionToken, css.PercentageToken,
		css.HashToken, css.StringToken, css.URLToken:
		return true
	}
	return false
}

var minifier = func() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", mincss.Minify)
	return m
}()

func minifyCSS(b []byte) ([]byte, error) {
	out, err := minifier.Bytes("text/css", b)
	if err != nil {
		return nil, fmt.Errorf("failed to minify CSS: %w", err)
	}
	return out, nil
}
