// Package publish uploads rendered artifacts to S3-compatible storage.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// ObjectPutter is the part of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Target is a parsed s3://bucket/prefix destination.
type Target struct {
	Bucket string
	Prefix string
}

// ParseTarget parses an s3://bucket/prefix URL.
func ParseTarget(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("invalid upload target: %w", err)
	}
	if u.Scheme != "s3" {
		return Target{}, fmt.Errorf("upload target must use s3:// scheme, got %q", raw)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("upload target %q has no bucket", raw)
	}
	return Target{Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
}

// Key joins the target prefix with parts.
func (t Target) Key(parts ...string) string {
	return path.Join(append([]string{t.Prefix}, parts...)...)
}

// ClientOptions configures the S3 client.
type ClientOptions struct {
	Region string

	// Endpoint overrides the AWS endpoint for S3-compatible stores
	Endpoint string

	// AccessKey and SecretKey select static credentials; otherwise the
	// default AWS credential chain is used
	AccessKey string
	SecretKey string
}

// NewClient builds an S3 client.
func NewClient(ctx context.Context, opts ClientOptions) (*s3.Client, error) {
	var loaders []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Artifact is one file to upload.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// Uploader writes artifacts under <prefix>/<runID>/.
type Uploader struct {
	client ObjectPutter
	target Target
	gzip   bool
	logger *zap.Logger
}

// NewUploader returns an uploader. With compress set, every artifact is
// gzipped and stored with a .gz suffix.
func NewUploader(client ObjectPutter, target Target, compress bool, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{client: client, target: target, gzip: compress, logger: logger}
}

// Upload stores every artifact and returns the written keys in order.
func (u *Uploader) Upload(ctx context.Context, runID string, artifacts []Artifact) ([]string, error) {
	keys := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		key := u.target.Key(runID, a.Name)
		body := a.Data
		input := &s3.PutObjectInput{
			Bucket:      aws.String(u.target.Bucket),
			ContentType: aws.String(a.ContentType),
		}

		if u.gzip {
			compressed, err := gzipBytes(body)
			if err != nil {
				return keys, fmt.Errorf("compress %s: %w", a.Name, err)
			}
			body = compressed
			key += ".gz"
			input.ContentEncoding = aws.String("gzip")
		}

		input.Key = aws.String(key)
		input.Body = bytes.NewReader(body)
		input.ContentLength = aws.Int64(int64(len(body)))

		if _, err := u.client.PutObject(ctx, input); err != nil {
			return keys, fmt.Errorf("put s3://%s/%s: %w", u.target.Bucket, key, err)
		}
		u.logger.Info("artifact uploaded",
			zap.String("bucket", u.target.Bucket),
			zap.String("key", key),
			zap.Int("bytes", len(body)))
		keys = append(keys, key)
	}
	return keys, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
