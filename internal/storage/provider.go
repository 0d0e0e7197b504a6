package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Provider defines the interface for object storage backends.
type Provider interface {
	// Basic operations
	Put(ctx context.Context, path string, data io.Reader, size int64, contentType string) error
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)

	// MintSignedURL issues a time-limited retrieval URL for a stored object.
	// It fails if the path does not exist. Issuance is stateless: URLs are
	// not recorded anywhere and remain valid until their own expiry.
	MintSignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// PublicURL returns the unsigned canonical URL for a stored object.
	PublicURL(path string) string

	Close() error
}

// Error represents a failure of the external storage provider. The provider
// message is preserved for diagnostics.
type Error struct {
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage %s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("storage %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a storage error without an underlying cause
func NewError(op, message string) *Error {
	return &Error{Op: op, Message: message}
}

// NewErrorWithCause creates a storage error wrapping an underlying cause
func NewErrorWithCause(op, message string, cause error) *Error {
	return &Error{Op: op, Message: message, Cause: cause}
}

// Config defines storage backend configuration
type Config struct {
	Backend string `mapstructure:"backend"` // filesystem, s3

	// Filesystem backend
	Root string `mapstructure:"root"`

	// S3 backend
	S3 S3Config `mapstructure:"s3"`
}

// S3Config defines the S3-compatible backend configuration
type S3Config struct {
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	Bucket       string `mapstructure:"bucket"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// NewProvider creates a storage provider based on configuration.
// publicURL and signingKey are only used by the filesystem backend, which
// mints and serves its own signed URLs.
func NewProvider(config Config, publicURL, signingKey string) (Provider, error) {
	switch config.Backend {
	case "filesystem", "":
		// Empty string defaults to filesystem
		return NewFilesystemProvider(config.Root, publicURL, signingKey)
	case "s3":
		return NewS3Provider(config.S3)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", config.Backend)
	}
}
