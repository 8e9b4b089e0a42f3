package imagemin

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/registry"
)

// uncompressedPNG encodes a flat image without compression so that any
// re-encode is smaller.
func uncompressedPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	require.NoError(t, enc.Encode(&buf, img))
	return buf.Bytes()
}

func TestImagemin(t *testing.T) {
	ctx := context.Background()
	raw := uncompressedPNG(t)
	svgSrc := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10">  <!-- icon -->  <rect x="0" y="0" width="10" height="10" fill="#ff0000"/>  </svg>`)
	files := []*asset.File{
		{Path: "src/img/flat.png", Contents: raw},
		{Path: "src/img/icon.svg", Contents: svgSrc},
		{Path: "src/img/readme.txt", Contents: []byte("text")},
	}

	out, err := OnRunImagemin(ctx, &registry.Env{}, &Input{}, files)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Less(t, len(out[0].Contents), len(raw))
	decoded, err := png.Decode(bytes.NewReader(out[0].Contents))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), decoded.Bounds())

	assert.Less(t, len(out[1].Contents), len(svgSrc))
	assert.NotContains(t, string(out[1].Contents), "icon")

	assert.Same(t, files[2], out[2])
}

func TestImageminKeepsSmallerOriginal(t *testing.T) {
	// Already optimal: re-encoding cannot win.
	f := &asset.File{Path: "x.svg", Contents: []byte(`<svg/>`)}
	out, err := OnRunImagemin(context.Background(), &registry.Env{}, &Input{}, []*asset.File{f})
	require.NoError(t, err)
	assert.Same(t, f, out[0])
}

func TestImageminErrors(t *testing.T) {
	_, err := OnRunImagemin(context.Background(), &registry.Env{}, &Input{Quality: 101}, nil)
	assert.ErrorContains(t, err, "quality must be between 1 and 100")

	_, err = OnRunImagemin(context.Background(), &registry.Env{}, &Input{},
		[]*asset.File{{Path: "broken.png", Contents: []byte("not a png")}})
	assert.ErrorContains(t, err, "broken.png: failed to decode image")
}
