package esbuild

import (
	"context"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/registry"
	"github.com/vk/assetgrid/internal/sourcemap"
)

func TestParseBrowsers(t *testing.T) {
	t.Run("original project query", func(t *testing.T) {
		engines, err := ParseBrowsers([]string{"defaults", "ie >= 9", "last 15 versions"})
		require.NoError(t, err)
		assert.Equal(t, []api.Engine{
			{Name: api.EngineChrome, Version: "127"},
			{Name: api.EngineEdge, Version: "127"},
			{Name: api.EngineFirefox, Version: "129"},
			{Name: api.EngineIE, Version: "6"},
			{Name: api.EngineIOS, Version: "4"},
			{Name: api.EngineOpera, Version: "108"},
			{Name: api.EngineSafari, Version: "4"},
		}, engines)
	})

	t.Run("defaults exclude dead browsers", func(t *testing.T) {
		engines, err := ParseBrowsers(nil)
		require.NoError(t, err)
		for _, e := range engines {
			assert.NotEqual(t, api.EngineIE, e.Name)
		}
		assert.Len(t, engines, 6)
	})

	t.Run("minor versions and aliases", func(t *testing.T) {
		engines, err := ParseBrowsers([]string{"ios_saf >= 9.3", "last 1 ff versions"})
		require.NoError(t, err)
		assert.Equal(t, []api.Engine{
			{Name: api.EngineFirefox, Version: "143"},
			{Name: api.EngineIOS, Version: "9.3"},
		}, engines)
	})

	t.Run("errors", func(t *testing.T) {
		for _, q := range []string{"> 1%", "netscape >= 4", "last x versions", "ie >= nine"} {
			_, err := ParseBrowsers([]string{q})
			assert.Error(t, err, q)
		}
	})
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("")
	require.NoError(t, err)
	assert.Equal(t, api.ES5, target)

	target, err = ParseTarget("ES2020")
	require.NoError(t, err)
	assert.Equal(t, api.ES2020, target)

	_, err = ParseTarget("es1999")
	assert.ErrorContains(t, err, "unknown JavaScript target")
}

func TestSteps(t *testing.T) {
	ctx := context.Background()
	env := &registry.Env{}

	t.Run("minify_css", func(t *testing.T) {
		files := []*asset.File{
			{Path: "src/css/style.css", Contents: []byte("a {\n  color: #ff0000;\n}\n")},
			{Path: "src/img/logo.png", Contents: []byte{0x89, 'P', 'N', 'G'}},
		}
		out, err := OnRunMinifyCSS(ctx, env, &MinifyInput{}, files)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "a{color:red}\n", string(out[0].Contents))
		assert.Same(t, files[1], out[1], "non-CSS files pass through")
		assert.Equal(t, "a {\n  color: #ff0000;\n}\n", string(files[0].Contents), "input is not mutated")
	})

	t.Run("minify_js", func(t *testing.T) {
		src := "function add(first, second) {\n  var total = first + second;\n  return total;\n}\n"
		out, err := OnRunMinifyJS(ctx, env, &MinifyInput{}, []*asset.File{{Path: "main.js", Contents: []byte(src)}})
		require.NoError(t, err)
		assert.Less(t, len(out[0].Contents), len(src))
		assert.Contains(t, string(out[0].Contents), "function add(")
		assert.NotContains(t, string(out[0].Contents), "second")
	})

	t.Run("transpile_js", func(t *testing.T) {
		out, err := OnRunTranspile(ctx, env, &TranspileInput{}, []*asset.File{{Path: "main.js", Contents: []byte("var v = a ?? b;\n")}})
		require.NoError(t, err)
		assert.Contains(t, string(out[0].Contents), "!= null")
	})

	t.Run("transpile_js lowers es2015 to es5 by default", func(t *testing.T) {
		src := "var f = (a, b) => `v${a}-${b}`;\n"
		out, err := OnRunTranspile(ctx, env, &TranspileInput{}, []*asset.File{{Path: "main.js", Contents: []byte(src)}})
		require.NoError(t, err)
		got := string(out[0].Contents)
		assert.NotContains(t, got, "=>")
		assert.NotContains(t, got, "`")
		assert.Contains(t, got, "function")
	})

	t.Run("transpile_js explains unsupported es5 lowering", func(t *testing.T) {
		_, err := OnRunTranspile(ctx, env, &TranspileInput{}, []*asset.File{{Path: "main.js", Contents: []byte("const a = 1;\nclass A {}\n")}})
		require.Error(t, err)
		assert.ErrorContains(t, err, "main.js")
		assert.ErrorContains(t, err, `set target = "es2015"`)
	})

	t.Run("autoprefix", func(t *testing.T) {
		out, err := OnRunAutoprefix(ctx, env, &AutoprefixInput{Browsers: []string{"safari >= 9"}},
			[]*asset.File{{Path: "style.css", Contents: []byte("a { user-select: none }\n")}})
		require.NoError(t, err)
		assert.Contains(t, string(out[0].Contents), "-webkit-user-select: none")
	})

	t.Run("syntax errors name the file", func(t *testing.T) {
		_, err := OnRunMinifyJS(ctx, env, &MinifyInput{}, []*asset.File{{Path: "src/js/main.js", Contents: []byte("function (")}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "src/js/main.js:1:")
	})

	t.Run("source maps", func(t *testing.T) {
		f := &asset.File{Path: "src/css/style.css", Contents: []byte("a {\n  color: red;\n}\n")}
		out, err := OnRunMinifyCSS(ctx, &registry.Env{Sourcemaps: true}, &MinifyInput{}, []*asset.File{f})
		require.NoError(t, err)
		require.NotNil(t, out[0].Map)
		m, err := sourcemap.Parse(out[0].Map)
		require.NoError(t, err)
		assert.Contains(t, m.Sources, "src/css/style.css")
	})
}

func TestRegister(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)
	assert.Equal(t, []string{"autoprefix", "minify_css", "minify_js", "transpile_js"}, r.Names())
}
