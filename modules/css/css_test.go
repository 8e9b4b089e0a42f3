package css

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/registry"
)

func TestURLAdjust(t *testing.T) {
	ctx := context.Background()
	src := `@font-face{src:url(../fonts/fontawesome-webfont.eot?v=4.7.0);src:url('../fonts/fontawesome-webfont.woff2') format('woff2')}` +
		`.x{background:url("data:image/png;base64,AAAA")}`

	t.Run("replace", func(t *testing.T) {
		in := &URLAdjustInput{Replace: []string{"../fonts/fontawesome-webfont", "../fonts/font-awesome/fontawesome-webfont"}}
		out, err := OnRunURLAdjust(ctx, &registry.Env{}, in, []*asset.File{{Path: "font-awesome.min.css", Contents: []byte(src)}})
		require.NoError(t, err)
		got := string(out[0].Contents)
		assert.Contains(t, got, `url(../fonts/font-awesome/fontawesome-webfont.eot?v=4.7.0)`)
		assert.Contains(t, got, `url('../fonts/font-awesome/fontawesome-webfont.woff2')`)
		assert.Contains(t, got, `url("data:image/png;base64,AAAA")`)
	})

	t.Run("prepend and append", func(t *testing.T) {
		in := &URLAdjustInput{Prepend: "../img/fancyBox/", Append: "?v=2"}
		css := `.a{background:url(fancybox_sprite.png)}.b{background:url(/abs.png)}`
		out, err := OnRunURLAdjust(ctx, &registry.Env{}, in, []*asset.File{{Path: "fancybox.css", Contents: []byte(css)}})
		require.NoError(t, err)
		assert.Equal(t, `.a{background:url(../img/fancyBox/fancybox_sprite.png?v=2)}.b{background:url(/abs.png?v=2)}`, string(out[0].Contents))
	})

	t.Run("invalid replace", func(t *testing.T) {
		_, err := OnRunURLAdjust(ctx, &registry.Env{}, &URLAdjustInput{Replace: []string{"only-one"}}, nil)
		assert.ErrorContains(t, err, "replace must be a [from, to] pair")
	})

	t.Run("non css passes through", func(t *testing.T) {
		f := &asset.File{Path: "main.js", Contents: []byte("url(x)")}
		out, err := OnRunURLAdjust(ctx, &registry.Env{}, &URLAdjustInput{Prepend: "p/"}, []*asset.File{f})
		require.NoError(t, err)
		assert.Same(t, f, out[0])
	})
}

func TestStripPseudos(t *testing.T) {
	for in, want := range map[string]string{
		"a:hover":                 "a",
		".btn::before":            ".btn",
		"li:first-child":          "li:first-child",
		"input::-moz-placeholder": "input",
		":focus":                  "*",
		"ul > :hover":             "ul >*",
		"p:not(.x):focus":         "p:not(.x)",
	} {
		assert.Equal(t, want, stripPseudos(in), in)
	}
}

func TestUncss(t *testing.T) {
	fsys := memfs.New()
	page := `<html><body><div class="used"><a href="#">x</a></div><ul><li>one</li></ul></body></html>`
	require.NoError(t, util.WriteFile(fsys, "markup/index.html", []byte(page), 0o644))

	src := `.used a:hover { color: red; }
.unused, .alsounused { color: blue; }
ul li { margin: 0 auto; }
@media (max-width: 600px) { .unused { display: none; } }
@media print { .used { display: none; } }
@keyframes spin { from { opacity: 0; } to { opacity: 1; } }
.keepme { color: green; }
`
	in := &UncssInput{HTML: []string{"markup/**/*.html"}, Ignore: []string{".keepme"}}
	out, err := OnRunUncss(context.Background(), &registry.Env{FS: fsys}, in, []*asset.File{{Path: "dist/css/style.min.css", Contents: []byte(src)}})
	require.NoError(t, err)
	got := string(out[0].Contents)

	assert.Contains(t, got, ".used a:hover{color:red}")
	assert.Contains(t, got, "ul li{margin:0 auto}")
	assert.Contains(t, got, "@media print{.used{display:none}}")
	assert.Contains(t, got, "@keyframes spin")
	assert.Contains(t, got, ".keepme{color:green}")
	assert.NotContains(t, got, ".unused")
	assert.NotContains(t, got, "max-width")
}

func TestUncssFetchesURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p class="lead">hi</p></body></html>`))
	}))
	defer srv.Close()

	in := &UncssInput{HTML: []string{srv.URL + "/lesson_1/"}}
	out, err := OnRunUncss(context.Background(), &registry.Env{FS: memfs.New()}, in,
		[]*asset.File{{Path: "style.css", Contents: []byte(".lead{color:red}.gone{color:blue}")}})
	require.NoError(t, err)
	assert.Equal(t, ".lead{color:red}", string(out[0].Contents))
}

func TestUncssNoDocuments(t *testing.T) {
	_, err := OnRunUncss(context.Background(), &registry.Env{FS: memfs.New()}, &UncssInput{HTML: []string{"none/*.html"}}, nil)
	assert.ErrorContains(t, err, "no HTML documents found")
}
