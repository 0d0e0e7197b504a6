package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/drivekit/drivekit/internal/presigned"
	"github.com/sirupsen/logrus"
)

// FilesystemProvider implements Provider on the local filesystem. Signed
// URLs point at the server's own download endpoint and are validated there
// with the shared signing key.
type FilesystemProvider struct {
	root       string
	publicURL  string
	signingKey string
}

// NewFilesystemProvider creates a filesystem-backed object store rooted at root.
func NewFilesystemProvider(root, publicURL, signingKey string) (*FilesystemProvider, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, NewErrorWithCause("CreateRootDir", "failed to create storage root", err)
	}

	return &FilesystemProvider{
		root:       root,
		publicURL:  strings.TrimSuffix(publicURL, "/"),
		signingKey: signingKey,
	}, nil
}

// Put stores an object, writing through a temp file so partial writes are
// never visible under the final path.
func (fs *FilesystemProvider) Put(ctx context.Context, path string, data io.Reader, size int64, contentType string) error {
	if err := fs.validatePath(path); err != nil {
		return err
	}

	fullPath := fs.fullPath(path)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return NewErrorWithCause("CreateDirectory", "failed to create directory", err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp_")
	if err != nil {
		return NewErrorWithCause("CreateTempFile", "failed to create temporary file", err)
	}
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	if _, err := io.Copy(tempFile, data); err != nil {
		return NewErrorWithCause("WriteObject", "failed to write object data", err)
	}
	if err := tempFile.Close(); err != nil {
		return NewErrorWithCause("WriteObject", "failed to flush object data", err)
	}

	if err := os.Rename(tempFile.Name(), fullPath); err != nil {
		return NewErrorWithCause("RenameObject", "failed to finalize object", err)
	}

	logrus.WithFields(logrus.Fields{
		"path": path,
		"size": size,
	}).Debug("Stored object")

	return nil
}

// Open returns a reader over a stored object
func (fs *FilesystemProvider) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := fs.validatePath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(fs.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewError("OpenObject", "object does not exist")
		}
		return nil, NewErrorWithCause("OpenObject", "failed to open object", err)
	}

	return f, nil
}

// Delete removes a stored object
func (fs *FilesystemProvider) Delete(ctx context.Context, path string) error {
	if err := fs.validatePath(path); err != nil {
		return err
	}

	if err := os.Remove(fs.fullPath(path)); err != nil {
		if os.IsNotExist(err) {
			return NewError("DeleteObject", "object does not exist")
		}
		return NewErrorWithCause("DeleteObject", "failed to delete object", err)
	}

	return nil
}

// Exists checks whether an object is stored at path
func (fs *FilesystemProvider) Exists(ctx context.Context, path string) (bool, error) {
	if err := fs.validatePath(path); err != nil {
		return false, err
	}

	info, err := os.Stat(fs.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, NewErrorWithCause("StatObject", "failed to stat object", err)
	}

	return !info.IsDir(), nil
}

// MintSignedURL issues a signed URL served by the /d/ download endpoint.
func (fs *FilesystemProvider) MintSignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	exists, err := fs.Exists(ctx, path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", NewError("SignObject", "object does not exist")
	}

	url, err := presigned.SignURL(presigned.SignParams{
		Endpoint:   fs.publicURL,
		Path:       "/d/" + path,
		SigningKey: fs.signingKey,
		ExpiresIn:  int64(ttl.Seconds()),
	})
	if err != nil {
		return "", NewErrorWithCause("SignObject", "failed to sign URL", err)
	}

	return url, nil
}

// ValidateSignedRequest verifies the signature on an incoming download
// request against this provider's signing key.
func (fs *FilesystemProvider) ValidateSignedRequest(r *http.Request) (bool, error) {
	return presigned.ValidateRequest(r, fs.signingKey)
}

// PublicURL returns the unsigned canonical URL for a stored object
func (fs *FilesystemProvider) PublicURL(path string) string {
	return fmt.Sprintf("%s/d/%s", fs.publicURL, path)
}

// Close is a no-op for the filesystem provider
func (fs *FilesystemProvider) Close() error {
	return nil
}

func (fs *FilesystemProvider) fullPath(path string) string {
	return filepath.Join(fs.root, filepath.FromSlash(path))
}

// validatePath rejects empty and traversal paths
func (fs *FilesystemProvider) validatePath(path string) error {
	if path == "" {
		return NewError("ValidatePath", "path is empty")
	}
	if strings.HasPrefix(path, "/") {
		return NewError("ValidatePath", "path must be relative")
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return NewError("ValidatePath", "path traversal is not allowed")
		}
	}
	return nil
}
