package storage

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFilesystem(t *testing.T) *FilesystemProvider {
	t.Helper()

	fs, err := NewFilesystemProvider(t.TempDir(), "http://localhost:8080", "test-signing-key")
	require.NoError(t, err)
	return fs
}

func TestFilesystemPutOpenDelete(t *testing.T) {
	fs := setupFilesystem(t)
	ctx := context.Background()

	err := fs.Put(ctx, "user-1/a.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)

	exists, err := fs.Exists(ctx, "user-1/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	reader, err := fs.Open(ctx, "user-1/a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	assert.Equal(t, "hello", string(data))

	require.NoError(t, fs.Delete(ctx, "user-1/a.txt"))

	exists, err = fs.Exists(ctx, "user-1/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFilesystemPathValidation(t *testing.T) {
	fs := setupFilesystem(t)
	ctx := context.Background()

	for _, path := range []string{"", "/absolute", "a/../../etc/passwd"} {
		err := fs.Put(ctx, path, strings.NewReader("x"), 1, "text/plain")
		assert.Error(t, err, "path %q should be rejected", path)
	}
}

func TestFilesystemMintSignedURL(t *testing.T) {
	fs := setupFilesystem(t)
	ctx := context.Background()

	require.NoError(t, fs.Put(ctx, "user-1/a.txt", strings.NewReader("hello"), 5, "text/plain"))

	url, err := fs.MintSignedURL(ctx, "user-1/a.txt", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "http://localhost:8080/d/user-1/a.txt?")
	assert.Contains(t, url, "X-Dk-Expires=60")

	// The minted URL validates against the same key.
	r := httptest.NewRequest("GET", url, nil)
	valid, err := fs.ValidateSignedRequest(r)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestFilesystemMintSignedURL_MissingObject(t *testing.T) {
	fs := setupFilesystem(t)

	_, err := fs.MintSignedURL(context.Background(), "user-1/missing.txt", time.Minute)
	assert.Error(t, err)
}

func TestFilesystemPublicURL(t *testing.T) {
	fs := setupFilesystem(t)
	assert.Equal(t, "http://localhost:8080/d/user-1/a.txt", fs.PublicURL("user-1/a.txt"))
}
