package print

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/registry"
)

func TestOnRunPrint(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	files := []*asset.File{
		{Path: "dist/css/style.min.css", Base: "dist/css", Contents: bytes.Repeat([]byte("a"), 2048)},
		{Path: "dist/js/main.min.js", Base: "dist/js", Contents: []byte("x")},
	}
	out, err := OnRunPrint(ctx, &registry.Env{}, &Input{Title: "Built"}, files)
	require.NoError(t, err)
	assert.Equal(t, files, out)

	logs := buf.String()
	assert.Contains(t, logs, "msg=Built files=2 total=\"2.0 kB\"")
	assert.Contains(t, logs, "style.min.css")
	assert.Contains(t, logs, "size=\"2.0 kB\"")
	assert.Contains(t, logs, "main.min.js")
}

func TestOnRunPrintEmpty(t *testing.T) {
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
	out, err := OnRunPrint(ctx, &registry.Env{}, &Input{}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, buf.String(), "(empty)")
}
