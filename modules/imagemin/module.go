// Package imagemin registers the 'imagemin' step, which recompresses
// raster images and minifies SVG.
package imagemin

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the 'imagemin' step.
type Input struct {
	// Quality is the JPEG quality from 1 to 100. Defaults to 85.
	Quality int `hcl:"quality,optional"`
}

const defaultQuality = 85

var svgMinifier = func() *minify.M {
	m := minify.New()
	m.AddFunc("image/svg+xml", svg.Minify)
	return m
}()

// OnRunImagemin recompresses every supported image. A result that is not
// smaller than the original is discarded.
func OnRunImagemin(ctx context.Context, env *registry.Env, in *Input, files []*asset.File) ([]*asset.File, error) {
	logger := ctxlog.FromContext(ctx)
	quality := in.Quality
	if quality == 0 {
		quality = defaultQuality
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("imagemin: quality must be between 1 and 100, got %d", quality)
	}

	var before, after uint64
	out := make([]*asset.File, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		optimized, err := Optimize(f.Ext(), f.Contents, quality)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		before += uint64(len(f.Contents))
		if optimized == nil || len(optimized) >= len(f.Contents) {
			after += uint64(len(f.Contents))
			out = append(out, f)
			continue
		}
		after += uint64(len(optimized))
		logger.Debug("Optimized image.", "file", f.Path,
			"saved", humanize.Bytes(uint64(len(f.Contents)-len(optimized))))
		next := f.Clone()
		next.Contents = optimized
		out = append(out, next)
	}

	logger.Info("🖼️ Images minified.", "count", len(files),
		"saved", humanize.Bytes(before-after),
		"percent", fmt.Sprintf("%.1f%%", percent(before, after)))
	return out, nil
}

// Optimize re-encodes an image by extension. It returns nil for formats it
// does not handle.
func Optimize(ext string, contents []byte, quality int) ([]byte, error) {
	if ext == ".svg" {
		return svgMinifier.Bytes("image/svg+xml", contents)
	}
	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, nil
	}
	switch format {
	case imaging.JPEG, imaging.PNG, imaging.GIF:
	default:
		return nil, nil
	}

	img, err := imaging.Decode(bytes.NewReader(contents), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	var buf bytes.Buffer
	err = imaging.Encode(&buf, img, format,
		imaging.JPEGQuality(quality),
		imaging.PNGCompressionLevel(png.BestCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func percent(before, after uint64) float64 {
	if before == 0 {
		return 0
	}
	return float64(before-after) * 100 / float64(before)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStep("imagemin", registry.Step("Recompresses PNG, JPEG and GIF images and minifies SVG.", OnRunImagemin))
}
