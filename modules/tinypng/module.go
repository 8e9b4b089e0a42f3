// Package tinypng registers the 'tinypng' step, which compresses PNG and
// JPEG images through the TinyPNG web API.
package tinypng

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/registry"
	"golang.org/x/sync/errgroup"
)

// DefaultEndpoint is the TinyPNG shrink API.
const DefaultEndpoint = "https://api.tinify.com/shrink"

// APIKeyEnv is the environment variable consulted when no key is configured.
const APIKeyEnv = "TINYPNG_API_KEY"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the 'tinypng' step.
type Input struct {
	APIKey   string `hcl:"api_key,optional"`
	Endpoint string `hcl:"endpoint,optional"`
	// Concurrency bounds parallel uploads. Defaults to 4.
	Concurrency int `hcl:"concurrency,optional"`
}

// httpClient is shared by all tinypng runs to reuse TCP connections.
var httpClient = &http.Client{Timeout: 2 * time.Minute}

// OnRunTinyPNG compresses every PNG and JPEG file in the stream.
func OnRunTinyPNG(ctx context.Context, env *registry.Env, in *Input, files []*asset.File) ([]*asset.File, error) {
	key := in.APIKey
	if key == "" {
		key = os.Getenv(APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("tinypng: no API key, set api_key or %s", APIKeyEnv)
	}
	c := &client{endpoint: in.Endpoint, key: key}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	limit := in.Concurrency
	if limit <= 0 {
		limit = 4
	}

	logger := ctxlog.FromContext(ctx)
	out := make([]*asset.File, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, f := range files {
		if !supported(f) {
			out[i] = f
			continue
		}
		g.Go(func() error {
			compressed, err := c.shrink(gctx, f.Contents)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Path, err)
			}
			logger.Info("🐼 Compressed image.", "file", f.Path,
				"before", humanize.Bytes(uint64(len(f.Contents))),
				"after", humanize.Bytes(uint64(len(compressed))))
			next := f.Clone()
			next.Contents = compressed
			out[i] = next
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func supported(f *asset.File) bool {
	switch f.Ext() {
	case ".png", ".jpg", ".jpeg", ".webp":
		return true
	}
	return false
}

type client struct {
	endpoint string
	key      string
}

// apiError is the JSON error body returned by the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// shrink uploads an image and downloads the compressed result from the
// location the API answers with.
func (c *client) shrink(ctx context.Context, img []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("failed to create shrink request: %w", err)
	}
	req.SetBasicAuth("api", c.key)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute shrink request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, responseError(resp)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("shrink response has no Location header")
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.SetBasicAuth("api", c.key)
	out, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download compressed image: %w", err)
	}
	defer out.Body.Close()
	if out.StatusCode != http.StatusOK {
		return nil, responseError(out)
	}
	return io.ReadAll(out.Body)
}

func responseError(resp *http.Response) error {
	var e apiError
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e); err == nil && e.Message != "" {
		return fmt.Errorf("tinypng: %s: %s (%s)", resp.Status, e.Message, e.Error)
	}
	return fmt.Errorf("tinypng: unexpected status %s", resp.Status)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStep("tinypng", registry.Step("Compresses PNG and JPEG images with the TinyPNG API.", OnRunTinyPNG))
}
