package css

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/registry"
)

// URLAdjustInput defines the arguments of the 'url_adjust' step.
type URLAdjustInput struct {
	// Replace holds exactly two strings: the substring to find and its
	// replacement.
	Replace []string `hcl:"replace,optional"`
	Prepend string   `hcl:"prepend,optional"`
	Append  string   `hcl:"append,optional"`
}

// OnRunURLAdjust rewrites the url() references of every CSS file.
func OnRunURLAdjust(ctx context.Context, env *registry.Env, in *URLAdjustInput, files []*asset.File) ([]*asset.File, error) {
	if len(in.Replace) != 0 && len(in.Replace) != 2 {
		return nil, fmt.Errorf("url_adjust: replace must be a [from, to] pair, got %d values", len(in.Replace))
	}
	logger := ctxlog.FromContext(ctx)

	out := make([]*asset.File, 0, len(files))
	for _, f := range files {
		if f.Ext() != ".css" {
			out = append(out, f)
			continue
		}
		contents, n, err := AdjustURLs(f.Contents, in.adjust)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		next := f.Clone()
		next.Contents = contents
		// Token rewrites shift columns, so the old map no longer applies.
		next.Map = nil
		logger.Debug("Adjusted CSS urls.", "file", f.Path, "count", n)
		out = append(out, next)
	}
	return out, nil
}

func (in *URLAdjustInput) adjust(u string) string {
	if strings.HasPrefix(u, "data:") {
		return u
	}
	if len(in.Replace) == 2 {
		u = strings.Replace(u, in.Replace[0], in.Replace[1], 1)
	}
	if in.Prepend != "" && !isAbsoluteURL(u) {
		u = in.Prepend + u
	}
	return u + in.Append
}

func isAbsoluteURL(u string) bool {
	return strings.HasPrefix(u, "/") || strings.Contains(u, "://")
}

// AdjustURLs passes every url() reference in src through fn and returns
// the rewritten stylesheet and the number of references seen.
func AdjustURLs(src []byte, fn func(string) string) ([]byte, int, error) {
	var buf bytes.Buffer
	buf.Grow(len(src))
	l := css.NewLexer(parse.NewInputBytes(src))
	count := 0
	inURLFunc := false
	for {
		tt, data := l.Next()
		switch tt {
		case css.ErrorToken:
			if l.Err() != io.EOF {
				return nil, count, l.Err()
			}
			return buf.Bytes(), count, nil
		case css.URLToken:
			count++
			buf.WriteString(rewriteURLToken(data, fn))
			continue
		case css.FunctionToken:
			inURLFunc = bytes.EqualFold(data, []byte("url("))
		case css.StringToken:
			if inURLFunc {
				count++
				buf.WriteString(rewriteString(data, fn))
				inURLFunc = false
				continue
			}
		case css.WhitespaceToken:
		default:
			inURLFunc = false
		}
		buf.Write(data)
	}
}

// rewriteURLToken handles url(x), url('x') and url("x").
func rewriteURLToken(tok []byte, fn func(string) string) string {
	s := string(tok)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return s
	}
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') {
		return s[:open+1] + rewriteString([]byte(inner), fn) + ")"
	}
	return s[:open+1] + fn(inner) + ")"
}

func rewriteString(tok []byte, fn func(string) string) string {
	q := tok[0]
	return string(q) + fn(string(tok[1:len(tok)-1])) + string(q)
}
