package devserver

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"
)

// ScriptPath is where the live-reload client is served.
const ScriptPath = "/assetgrid/livereload.js"

var scriptTag = []byte(`<script async src="` + ScriptPath + `"></script>`)

// InjectScript inserts the live-reload script tag before the last closing
// body tag, or appends it when the document has none.
func InjectScript(doc []byte) []byte {
	out := make([]byte, 0, len(doc)+len(scriptTag))
	i := bytes.LastIndex(bytes.ToLower(doc), []byte("</body>"))
	if i < 0 {
		out = append(out, doc...)
		return append(out, scriptTag...)
	}
	out = append(out, doc[:i]...)
	out = append(out, scriptTag...)
	return append(out, doc[i:]...)
}

func isHTML(h http.Header) bool {
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mt == "text/html"
}

// bufferedResponse collects a handler's response so HTML can be rewritten
// before it is sent.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) { b.status = status }

func (b *bufferedResponse) Write(p []byte) (int, error) { return b.body.Write(p) }

// flush writes the buffered response to w, injecting the script into HTML.
func (b *bufferedResponse) flush(w http.ResponseWriter) {
	body := b.body.Bytes()
	if isHTML(b.header) {
		body = InjectScript(body)
		b.header.Set("Content-Length", strconv.Itoa(len(body)))
		b.header.Del("Etag")
		b.header.Del("Last-Modified")
	}
	for k, v := range b.header {
		w.Header()[k] = v
	}
	w.WriteHeader(b.status)
	_, _ = w.Write(body)
}

// injecting wraps a handler so its HTML responses carry the script.
func injecting(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Conditional requests would let the browser reuse a copy without
		// the script.
		r.Header.Del("If-Modified-Since")
		r.Header.Del("If-None-Match")
		buf := newBufferedResponse()
		next.ServeHTTP(buf, r)
		buf.flush(w)
	})
}
