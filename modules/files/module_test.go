package files

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/registry"
	"github.com/vk/assetgrid/internal/sourcemap"
)

func ptr(s string) *string { return &s }

func TestConcat(t *testing.T) {
	ctx := context.Background()
	files := []*asset.File{
		{Path: "src/js/jquery.min.js", Base: "src/js", Contents: []byte("var a=1;")},
		{Path: "src/js/bootstrap.min.js", Base: "src/js", Contents: []byte("var b=2;\nvar c=3;")},
	}

	t.Run("joins with newline", func(t *testing.T) {
		out, err := OnRunConcat(ctx, &registry.Env{}, &ConcatInput{Path: "lib.min.js"}, files)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "src/js/lib.min.js", out[0].Path)
		assert.Equal(t, "lib.min.js", out[0].Relative())
		assert.Equal(t, "var a=1;\nvar b=2;\nvar c=3;", string(out[0].Contents))
		assert.Nil(t, out[0].Map)
	})

	t.Run("merges source maps", func(t *testing.T) {
		out, err := OnRunConcat(ctx, &registry.Env{Sourcemaps: true}, &ConcatInput{Path: "lib.min.js"}, files)
		require.NoError(t, err)
		m, err := sourcemap.Parse(out[0].Map)
		require.NoError(t, err)
		assert.Equal(t, "lib.min.js", m.File)
		assert.Equal(t, []string{"src/js/jquery.min.js", "src/js/bootstrap.min.js"}, m.Sources)
		assert.Equal(t, "AAAA;ACAA;AACA", m.Mappings)
	})

	t.Run("empty stream", func(t *testing.T) {
		out, err := OnRunConcat(ctx, &registry.Env{}, &ConcatInput{Path: "x.js"}, nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestRename(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   RenameInput
		want string
	}{
		{name: "basename", in: RenameInput{Basename: ptr("bootstrap")}, want: "mixins/bootstrap.scss"},
		{name: "extname", in: RenameInput{Extname: ptr(".css")}, want: "mixins/_bootstrap.css"},
		{name: "prefix and suffix", in: RenameInput{Prefix: "vendor-", Suffix: ".min"}, want: "mixins/vendor-_bootstrap.min.scss"},
		{name: "full path", in: RenameInput{Path: "bootstrap.scss", Prefix: "ignored"}, want: "bootstrap.scss"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := &asset.File{Path: "assets/mixins/_bootstrap.scss", Base: "assets"}
			out, err := OnRunRename(context.Background(), &registry.Env{}, &tc.in, []*asset.File{f})
			require.NoError(t, err)
			assert.Equal(t, tc.want, out[0].Relative())
			assert.Equal(t, "assets/mixins/_bootstrap.scss", f.Path, "input is not mutated")
		})
	}
}

func TestMkdirs(t *testing.T) {
	fsys := memfs.New()
	files := []*asset.File{{Path: "keep.txt"}}
	out, err := OnRunMkdirs(context.Background(), &registry.Env{FS: fsys}, &MkdirsInput{Dirs: []string{"dist/css", "src/img/sprite"}}, files)
	require.NoError(t, err)
	assert.Equal(t, files, out)

	for _, dir := range []string{"dist/css", "src/img/sprite"} {
		fi, err := fsys.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, fi.IsDir())
	}
}
