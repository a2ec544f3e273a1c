// Package objectstore answers whether a source location holds anything to load.
package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/maxkimambo/sparkflow/internal/credentials"
)

// Lister checks for objects under a location using the caller's credentials.
type Lister interface {
	HasObjects(ctx context.Context, location string, creds credentials.Credentials) (bool, error)
}

// S3Config describes the S3-compatible endpoint to list against
type S3Config struct {
	Endpoint string
	Region   string
	UseSSL   bool
}

// S3Lister lists objects through minio-go. A client is built per call from
// the credentials handed in, so no keys are retained between calls.
type S3Lister struct {
	cfg S3Config
}

func NewS3Lister(cfg S3Config) *S3Lister {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = "s3.amazonaws.com"
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-west-2"
	}
	return &S3Lister{cfg: cfg}
}

func (l *S3Lister) HasObjects(ctx context.Context, location string, creds credentials.Credentials) (bool, error) {
	bucket, prefix, err := ParseLocation(location)
	if err != nil {
		return false, err
	}

	client, err := minio.New(l.cfg.Endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(creds.AccessKey, creds.SecretKey, creds.SessionToken),
		Secure: l.cfg.UseSSL,
		Region: l.cfg.Region,
	})
	if err != nil {
		return false, fmt.Errorf("init s3 client: %w", err)
	}

	// Stop the listing goroutine once the first key arrives
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
		MaxKeys:   1,
	}) {
		if obj.Err != nil {
			return false, fmt.Errorf("list %s: %w", location, obj.Err)
		}
		return true, nil
	}
	return false, ctx.Err()
}

// ParseLocation splits s3://bucket/some/prefix into bucket and prefix
func ParseLocation(location string) (bucket, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", "", fmt.Errorf("parse location %q: %w", location, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("location %q: scheme must be s3", location)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("location %q: bucket is required", location)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
