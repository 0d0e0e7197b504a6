package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// S3Provider implements Provider against an S3-compatible object store.
// Signed URLs are minted by the remote service via SigV4 presigning.
type S3Provider struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3Provider creates an S3-backed object store
func NewS3Provider(cfg S3Config) (*S3Provider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}

	if cfg.Endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
					SigningRegion:     region,
				}, nil
			})
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	logrus.WithFields(logrus.Fields{
		"bucket":   cfg.Bucket,
		"region":   region,
		"endpoint": cfg.Endpoint,
	}).Info("S3 storage provider initialized")

	return &S3Provider{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// Put uploads an object
func (p *S3Provider) Put(ctx context.Context, path string, data io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(path),
		Body:          data,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := p.client.PutObject(ctx, input); err != nil {
		return NewErrorWithCause("PutObject", "failed to upload object", err)
	}

	return nil
}

// Open returns a reader over a stored object
func (p *S3Provider) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, NewErrorWithCause("GetObject", "failed to get object", err)
	}

	return out.Body, nil
}

// Delete removes a stored object
func (p *S3Provider) Delete(ctx context.Context, path string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return NewErrorWithCause("DeleteObject", "failed to delete object", err)
	}

	return nil
}

// Exists checks whether an object is stored at path
func (p *S3Provider) Exists(ctx context.Context, path string) (bool, error) {
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, NewErrorWithCause("HeadObject", "failed to stat object", err)
	}

	return true, nil
}

// MintSignedURL presigns a GET for the object with the given TTL.
func (p *S3Provider) MintSignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	exists, err := p.Exists(ctx, path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", NewError("SignObject", "object does not exist")
	}

	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", NewErrorWithCause("SignObject", "failed to presign URL", err)
	}

	return req.URL, nil
}

// PublicURL returns the unsigned canonical URL for a stored object
func (p *S3Provider) PublicURL(path string) string {
	return fmt.Sprintf("s3://%s/%s", p.bucket, path)
}

// Close is a no-op for the S3 provider
func (p *S3Provider) Close() error {
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "404")
}
