package publish

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofecto/gofecto/internal/artifact"
	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
)

// S3API is the slice of the S3 client the publisher needs. *s3.Client
// satisfies it.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Publisher puts files under bucket/prefix, keyed by their store-relative
// paths, with SHA-256 checksums the service verifies on receipt.
type s3Publisher struct {
	target *config.PublishTarget
	opts   Options
	api    S3API
}

func newS3Publisher(ctx context.Context, target *config.PublishTarget, opts Options) (*s3Publisher, error) {
	api := opts.S3
	if api == nil {
		client, err := newS3Client(ctx, target)
		if err != nil {
			return nil, err
		}
		api = client
	}
	return &s3Publisher{target: target, opts: opts, api: api}, nil
}

// newS3Client builds a real client. Credentials come from the ambient AWS
// config chain unless the target names its own env var pair.
func newS3Client(ctx context.Context, target *config.PublishTarget) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(target.Region),
	}
	if target.AccessKeyEnv != "" && target.SecretKeyEnv != "" {
		access := os.Getenv(target.AccessKeyEnv)
		secret := os.Getenv(target.SecretKeyEnv)
		if access == "" || secret == "" {
			return nil, fmt.Errorf("publish target %q: %s and %s must both be set",
				target.Name, target.AccessKeyEnv, target.SecretKeyEnv)
		}
		loadOpts = append(loadOpts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(access, secret, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for target %q: %w", target.Name, err)
	}
	return s3.NewFromConfig(cfg), nil
}

func (p *s3Publisher) Name() string {
	return p.target.Name
}

func (p *s3Publisher) Publish(ctx context.Context, root string, files []artifact.File) error {
	logger := ctxlog.FromContext(ctx).With("target", p.target.Name, "backend", "s3")

	logger.Info("Publishing artifacts.", "count", len(files), "bucket", p.target.Bucket, "prefix", p.target.Prefix)
	return fanOut(ctx, p.opts, files, func(ctx context.Context, f artifact.File) error {
		if err := p.uploadOne(ctx, root, f); err != nil {
			return err
		}
		logger.Info("Uploaded artifact.", "path", f.Path, "bytes", f.Size)
		return nil
	})
}

func (p *s3Publisher) uploadOne(ctx context.Context, root string, f artifact.File) error {
	full := filepath.Join(root, filepath.FromSlash(f.Path))
	file, err := os.Open(full)
	if err != nil {
		return fmt.Errorf("opening artifact %s: %w", f.Path, err)
	}
	defer file.Close()

	checksum, err := base64Checksum(f.SHA256)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", f.Path, err)
	}

	_, err = p.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:         aws.String(p.target.Bucket),
		Key:            aws.String(path.Join(p.target.Prefix, f.Path)),
		Body:           file,
		ContentLength:  aws.Int64(f.Size),
		ChecksumSHA256: aws.String(checksum),
	})
	if err != nil {
		return fmt.Errorf("uploading %s to s3://%s: %w", f.Path, p.target.Bucket, err)
	}
	return nil
}

// base64Checksum converts the store's hex digest into the base64 form the S3
// checksum header expects.
func base64Checksum(hexDigest string) (string, error) {
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return "", fmt.Errorf("bad sha256 digest %q: %w", hexDigest, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
