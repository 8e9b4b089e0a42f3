// Package sprite registers the 'sprite' step, which packs images into a
// single sheet and emits a stylesheet with one class per image.
package sprite

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the 'sprite' step.
type Input struct {
	// ImgName is the sheet file name; its extension selects the format.
	ImgName string `hcl:"img_name"`
	CSSName string `hcl:"css_name"`
	// ImgPath is the sheet URL used in the stylesheet. Defaults to ImgName.
	ImgPath     string `hcl:"img_path,optional"`
	Padding     int    `hcl:"padding,optional"`
	ClassPrefix string `hcl:"class_prefix,optional"`
}

// OnRunSprite replaces the image stream with the packed sheet and its
// stylesheet.
func OnRunSprite(ctx context.Context, env *registry.Env, in *Input, files []*asset.File) ([]*asset.File, error) {
	logger := ctxlog.FromContext(ctx)
	if in.Padding < 0 {
		return nil, fmt.Errorf("sprite: padding must not be negative")
	}
	format, err := imaging.FormatFromFilename(in.ImgName)
	if err != nil {
		return nil, fmt.Errorf("sprite: unsupported sheet format for %q: %w", in.ImgName, err)
	}
	if len(files) == 0 {
		logger.Warn("No images to pack into a sprite sheet.", "img_name", in.ImgName)
		return nil, nil
	}

	images := make(map[string]image.Image, len(files))
	blocks := make([]*Block, 0, len(files))
	var modTime time.Time
	for _, f := range files {
		img, err := imaging.Decode(bytes.NewReader(f.Contents))
		if err != nil {
			return nil, fmt.Errorf("%s: failed to decode image: %w", f.Path, err)
		}
		name := className(f)
		if _, dup := images[name]; dup {
			return nil, fmt.Errorf("%s: another image is already named %q", f.Path, name)
		}
		images[name] = img
		b := img.Bounds()
		blocks = append(blocks, &Block{Name: name, W: b.Dx(), H: b.Dy()})
		if f.ModTime.After(modTime) {
			modTime = f.ModTime
		}
	}

	width, height := Pack(blocks, in.Padding)
	sheet := imaging.New(width, height, color.Transparent)
	for _, b := range blocks {
		img := images[b.Name]
		draw.Draw(sheet, image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H), img, img.Bounds().Min, draw.Src)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, sheet, format); err != nil {
		return nil, fmt.Errorf("sprite: failed to encode sheet: %w", err)
	}

	imgPath := in.ImgPath
	if imgPath == "" {
		imgPath = in.ImgName
	}
	prefix := in.ClassPrefix
	if prefix == "" {
		prefix = "icon-"
	}

	base := files[0].Base
	img := &asset.File{Base: base, Contents: buf.Bytes(), ModTime: modTime}
	img.SetRelative(in.ImgName)
	css := &asset.File{Base: base, Contents: Stylesheet(blocks, imgPath, prefix), ModTime: modTime}
	css.SetRelative(in.CSSName)

	logger.Info("🧩 Sprite sheet packed.", "images", len(blocks), "width", width, "height", height, "sheet", img.Path)
	return []*asset.File{img, css}, nil
}

var invalidClassChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func className(f *asset.File) string {
	name := strings.TrimSuffix(f.Name(), path.Ext(f.Name()))
	return invalidClassChars.ReplaceAllString(name, "-")
}

// Stylesheet renders one class per block, in name order.
func Stylesheet(blocks []*Block, imgPath, prefix string) []byte {
	sorted := append([]*Block(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var sb strings.Builder
	for i, b := range sorted {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, ".%s%s {\n", prefix, b.Name)
		fmt.Fprintf(&sb, "  background-image: url(%s);\n", imgPath)
		fmt.Fprintf(&sb, "  background-position: %s %s;\n", offset(b.X), offset(b.Y))
		fmt.Fprintf(&sb, "  width: %dpx;\n", b.W)
		fmt.Fprintf(&sb, "  height: %dpx;\n", b.H)
		sb.WriteString("}\n")
	}
	return []byte(sb.String())
}

func offset(v int) string {
	if v == 0 {
		return "0px"
	}
	return fmt.Sprintf("-%dpx", v)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStep("sprite", registry.Step("Packs images into a sprite sheet with a matching stylesheet.", OnRunSprite))
}
