// Package s3 registers the 's3_upload' step, which publishes the files of a
// stream to an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/registry"
	"golang.org/x/sync/errgroup"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the 's3_upload' step.
type Input struct {
	Bucket string `hcl:"bucket"`
	// Prefix is prepended to each file's relative path to form its key.
	Prefix       string `hcl:"prefix,optional"`
	Region       string `hcl:"region,optional"`
	Endpoint     string `hcl:"endpoint,optional"`
	PathStyle    bool   `hcl:"path_style,optional"`
	CacheControl string `hcl:"cache_control,optional"`
	Concurrency  int    `hcl:"concurrency,optional"`
}

// putObjectAPI is the part of the S3 client the step needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// newClient loads AWS configuration from the default credential chain.
func newClient(ctx context.Context, in *Input) (putObjectAPI, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	if in.Region != "" {
		cfg.Region = in.Region
	} else if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if in.Endpoint != "" {
			o.BaseEndpoint = aws.String(in.Endpoint)
		}
		o.UsePathStyle = in.PathStyle
	}), nil
}

// OnRunUpload uploads every file, and its source map when maps are enabled.
// Files pass through unchanged.
func OnRunUpload(ctx context.Context, env *registry.Env, in *Input, files []*asset.File) ([]*asset.File, error) {
	logger := ctxlog.FromContext(ctx).With("bucket", in.Bucket)
	if in.Bucket == "" {
		return nil, fmt.Errorf("s3_upload: bucket must not be empty")
	}
	client, err := newClient(ctx, in)
	if err != nil {
		return nil, err
	}
	limit := in.Concurrency
	if limit <= 0 {
		limit = 5
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, f := range files {
		key := objectKey(in.Prefix, f.Relative())
		g.Go(func() error {
			return put(gctx, client, in, key, f.Contents)
		})
		if env.Sourcemaps && f.Map != nil {
			g.Go(func() error {
				return put(gctx, client, in, key+".map", f.Map)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Info("☁️ Uploaded files to S3.", "count", len(files), "total", humanize.Bytes(asset.TotalSize(files)))
	return files, nil
}

func put(ctx context.Context, client putObjectAPI, in *Input, key string, body []byte) error {
	contentType := DetectContentType(key, body)
	params := &awss3.PutObjectInput{
		Bucket:        aws.String(in.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	}
	if in.CacheControl != "" {
		params.CacheControl = aws.String(in.CacheControl)
	}
	if _, err := client.PutObject(ctx, params); err != nil {
		return fmt.Errorf("failed to upload '%s' to bucket '%s': %w", key, in.Bucket, err)
	}
	ctxlog.FromContext(ctx).Debug("Uploaded object.", "key", key, "contentType", contentType, "size", len(body))
	return nil
}

func objectKey(prefix, rel string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

// DetectContentType picks a MIME type by extension, then by sniffing the
// contents.
func DetectContentType(name string, body []byte) string {
	if ext := strings.ToLower(path.Ext(name)); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return mimetype.Detect(body).String()
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStep("s3_upload", registry.Step("Uploads files to an S3 bucket.", OnRunUpload))
}
