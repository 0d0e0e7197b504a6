package share

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/drivekit/drivekit/internal/db/migrations"
	"github.com/drivekit/drivekit/internal/files"
	"github.com/drivekit/drivekit/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type testEnv struct {
	db       *sql.DB
	store    *SQLiteStore
	files    *files.SQLiteStore
	objects  storage.Provider
	registry *registry
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "drivekit.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	require.NoError(t, migrations.NewMigrationManager(db, logger).Migrate())

	objects, err := storage.NewFilesystemProvider(filepath.Join(tmpDir, "objects"), "http://localhost:8080", "test-signing-key")
	require.NoError(t, err)

	fileStore := files.NewSQLiteStore(db)
	shareStore := NewSQLiteStore(db)

	reg := NewRegistry(shareStore, fileStore, objects, SigningLimits{
		DefaultTTL: 60 * time.Second,
		MaxTTL:     7 * 24 * time.Hour,
	}).(*registry)

	return &testEnv{
		db:       db,
		store:    shareStore,
		files:    fileStore,
		objects:  objects,
		registry: reg,
	}
}

func (e *testEnv) seedUser(t *testing.T, email string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := e.db.Exec(
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, email, email, "x", time.Now().Unix(),
	)
	require.NoError(t, err)
	return id
}

func (e *testEnv) seedFile(t *testing.T, ownerID, name string) *files.FileRecord {
	t.Helper()

	storagePath := fmt.Sprintf("%s/%s", ownerID, name)
	err := e.objects.Put(context.Background(), storagePath, strings.NewReader("test content"), 12, "text/plain")
	require.NoError(t, err)

	now := time.Now().UTC()
	record := &files.FileRecord{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Size:        12,
		ContentType: "text/plain",
		StoragePath: storagePath,
		PublicURL:   e.objects.PublicURL(storagePath),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, e.files.InsertFile(context.Background(), record))
	return record
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func rolePtr(r Role) *Role { return &r }

func boolPtr(b bool) *bool { return &b }

func TestCreateShare_Public(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	grant, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{IsPublic: true})
	require.NoError(t, err)
	assert.NotEmpty(t, grant.ID)
	assert.True(t, grant.IsPublic)
	require.NotNil(t, grant.ShareToken)
	assert.Len(t, *grant.ShareToken, 64)
	assert.Equal(t, RoleView, grant.Role)
	assert.Nil(t, grant.ExpiresAt)
}

func TestCreateShare_Targeted(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	grant, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{
		SharedWith: strPtr("friend@example.com"),
		Role:       RoleEdit,
		ExpiresIn:  int64Ptr(3600),
	})
	require.NoError(t, err)
	assert.False(t, grant.IsPublic)
	assert.Nil(t, grant.ShareToken)
	assert.Equal(t, RoleEdit, grant.Role)
	require.NotNil(t, grant.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *grant.ExpiresAt, 5*time.Second)
}

func TestCreateShare_NotOwner(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	other := env.seedUser(t, "other@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	// A non-owner gets the same error as for a missing file, so existence
	// cannot be probed.
	_, err := env.registry.CreateShare(ctx, other, file.ID, CreateOptions{IsPublic: true})
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = env.registry.CreateShare(ctx, other, "no-such-file", CreateOptions{IsPublic: true})
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestCreateShare_MissingTarget(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	_, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{})
	assert.ErrorIs(t, err, ErrMissingTarget)
}

func TestCreateShare_InvalidRole(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	_, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{
		IsPublic: true,
		Role:     Role("admin"),
	})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestCreateShare_InvalidExpiry(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	_, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{
		IsPublic:  true,
		ExpiresIn: int64Ptr(-60),
	})
	assert.ErrorIs(t, err, ErrInvalidExpiry)
}

func TestCreateShare_MultipleTokensPerFile(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	first, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{IsPublic: true})
	require.NoError(t, err)
	second, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{IsPublic: true})
	require.NoError(t, err)
	assert.NotEqual(t, *first.ShareToken, *second.ShareToken)

	// Revoking one token leaves the other resolvable.
	require.NoError(t, env.registry.DeleteShare(ctx, owner, first.ID))

	_, err = env.registry.ResolvePublicShare(ctx, *first.ShareToken)
	assert.ErrorIs(t, err, ErrShareNotFound)

	resolved, err := env.registry.ResolvePublicShare(ctx, *second.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, second.ID, resolved.Grant.ID)
}

func TestResolvePublicShare(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	grant, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{IsPublic: true})
	require.NoError(t, err)

	resolved, err := env.registry.ResolvePublicShare(ctx, *grant.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, grant.ID, resolved.Grant.ID)
	assert.Equal(t, file.ID, resolved.File.ID)
	assert.Contains(t, resolved.SignedURL, "X-Dk-Signature=")
}

func TestResolvePublicShare_UnknownToken(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.registry.ResolvePublicShare(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrShareNotFound)
}

func TestResolvePublicShare_Expired(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	grant, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{
		IsPublic:  true,
		ExpiresIn: int64Ptr(60),
	})
	require.NoError(t, err)

	// Still live one second before the deadline.
	env.registry.now = func() time.Time { return time.Now().Add(59 * time.Second) }
	_, err = env.registry.ResolvePublicShare(ctx, *grant.ShareToken)
	require.NoError(t, err)

	// Lapsed one second after it.
	env.registry.now = func() time.Time { return time.Now().Add(61 * time.Second) }
	_, err = env.registry.ResolvePublicShare(ctx, *grant.ShareToken)
	assert.ErrorIs(t, err, ErrShareExpired)

	// The expired grant is still stored; expiry is evaluated lazily, never
	// swept.
	stored, err := env.store.GetGrant(ctx, grant.ID)
	require.NoError(t, err)
	assert.Equal(t, grant.ID, stored.ID)
}

func TestResolvePublicShare_FileDeleted(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	grant, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{IsPublic: true})
	require.NoError(t, err)

	require.NoError(t, env.files.SoftDeleteFile(ctx, file.ID))

	_, err = env.registry.ResolvePublicShare(ctx, *grant.ShareToken)
	assert.ErrorIs(t, err, ErrFileNotFound)

	// The grant itself is untouched by the file deletion.
	stored, err := env.store.GetGrant(ctx, grant.ID)
	require.NoError(t, err)
	assert.Equal(t, grant.ID, stored.ID)
}

func TestCheckAccess_Owner(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	// The owner passes at every role without any grant existing.
	assert.NoError(t, env.registry.CheckAccess(ctx, owner, file.ID, RoleView))
	assert.NoError(t, env.registry.CheckAccess(ctx, owner, file.ID, RoleEdit))
}

func TestCheckAccess_Grantee(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	grantee := env.seedUser(t, "grantee@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	_, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{
		SharedWith: strPtr(grantee),
		Role:       RoleView,
	})
	require.NoError(t, err)

	assert.NoError(t, env.registry.CheckAccess(ctx, grantee, file.ID, RoleView))
	assert.ErrorIs(t, env.registry.CheckAccess(ctx, grantee, file.ID, RoleEdit), ErrForbidden)
}

func TestCheckAccess_EditImpliesView(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	grantee := env.seedUser(t, "grantee@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	_, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{
		SharedWith: strPtr(grantee),
		Role:       RoleEdit,
	})
	require.NoError(t, err)

	assert.NoError(t, env.registry.CheckAccess(ctx, grantee, file.ID, RoleView))
	assert.NoError(t, env.registry.CheckAccess(ctx, grantee, file.ID, RoleEdit))
}

func TestCheckAccess_NoGrant(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	stranger := env.seedUser(t, "stranger@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	assert.ErrorIs(t, env.registry.CheckAccess(ctx, stranger, file.ID, RoleView), ErrForbidden)
}

func TestCheckAccess_ExpiredGrant(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	grantee := env.seedUser(t, "grantee@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	_, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{
		SharedWith: strPtr(grantee),
		ExpiresIn:  int64Ptr(60),
	})
	require.NoError(t, err)

	env.registry.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.ErrorIs(t, env.registry.CheckAccess(ctx, grantee, file.ID, RoleView), ErrForbidden)

	// The owner is unaffected by grant expiry.
	assert.NoError(t, env.registry.CheckAccess(ctx, owner, file.ID, RoleEdit))
}

func TestCheckAccess_MissingFile(t *testing.T) {
	env := setupTestEnv(t)

	owner := env.seedUser(t, "owner@example.com")
	err := env.registry.CheckAccess(context.Background(), owner, "no-such-file", RoleView)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestIssueSignedURL(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	signed, err := env.registry.IssueSignedURL(ctx, owner, file.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(60), signed.ExpiresIn)
	assert.Contains(t, signed.URL, "X-Dk-Signature=")

	signed, err = env.registry.IssueSignedURL(ctx, owner, file.ID, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(300), signed.ExpiresIn)
}

func TestIssueSignedURL_OverMax(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	_, err := env.registry.IssueSignedURL(ctx, owner, file.ID, 8*24*3600)
	assert.ErrorIs(t, err, ErrInvalidExpiry)
}

func TestIssueSignedURL_Forbidden(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	stranger := env.seedUser(t, "stranger@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	_, err := env.registry.IssueSignedURL(ctx, stranger, file.ID, 0)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestIssueSignedURL_Grantee(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	grantee := env.seedUser(t, "grantee@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	_, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{
		SharedWith: strPtr(grantee),
	})
	require.NoError(t, err)

	signed, err := env.registry.IssueSignedURL(ctx, grantee, file.ID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, signed.URL)
}

func TestUpdateShare_RoleEscalation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	grantee := env.seedUser(t, "grantee@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	grant, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{
		SharedWith: strPtr(grantee),
		Role:       RoleView,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, env.registry.CheckAccess(ctx, grantee, file.ID, RoleEdit), ErrForbidden)

	updated, err := env.registry.UpdateShare(ctx, owner, grant.ID, Patch{Role: rolePtr(RoleEdit)})
	require.NoError(t, err)
	assert.Equal(t, RoleEdit, updated.Role)

	// The escalation is visible on the next access check, no restart or
	// re-share needed.
	assert.NoError(t, env.registry.CheckAccess(ctx, grantee, file.ID, RoleEdit))
}

func TestUpdateShare_FlipPublic(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	grantee := env.seedUser(t, "grantee@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	grant, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{
		SharedWith: strPtr(grantee),
	})
	require.NoError(t, err)
	assert.Nil(t, grant.ShareToken)

	updated, err := env.registry.UpdateShare(ctx, owner, grant.ID, Patch{IsPublic: boolPtr(true)})
	require.NoError(t, err)
	require.NotNil(t, updated.ShareToken)
	token := *updated.ShareToken

	_, err = env.registry.ResolvePublicShare(ctx, token)
	require.NoError(t, err)

	// Flipping back to private discards the token.
	updated, err = env.registry.UpdateShare(ctx, owner, grant.ID, Patch{IsPublic: boolPtr(false)})
	require.NoError(t, err)
	assert.Nil(t, updated.ShareToken)

	_, err = env.registry.ResolvePublicShare(ctx, token)
	assert.ErrorIs(t, err, ErrShareNotFound)
}

func TestUpdateShare_ExpirySemantics(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	grant, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{
		IsPublic:  true,
		ExpiresIn: int64Ptr(3600),
	})
	require.NoError(t, err)
	require.NotNil(t, grant.ExpiresAt)

	// Omitted field leaves the stored expiry untouched.
	updated, err := env.registry.UpdateShare(ctx, owner, grant.ID, Patch{Role: rolePtr(RoleEdit)})
	require.NoError(t, err)
	require.NotNil(t, updated.ExpiresAt)
	assert.Equal(t, grant.ExpiresAt.Unix(), updated.ExpiresAt.Unix())

	// A positive value recomputes the deadline from now.
	updated, err = env.registry.UpdateShare(ctx, owner, grant.ID, Patch{
		ExpiresIn: OptionalSeconds{Set: true, Valid: true, Seconds: 7200},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), *updated.ExpiresAt, 5*time.Second)

	// Explicit null clears it entirely.
	updated, err = env.registry.UpdateShare(ctx, owner, grant.ID, Patch{
		ExpiresIn: OptionalSeconds{Set: true, Valid: false},
	})
	require.NoError(t, err)
	assert.Nil(t, updated.ExpiresAt)
}

func TestUpdateShare_ExpiryFromJSON(t *testing.T) {
	// The wire-level distinction: absent field vs explicit null.
	var patch Patch
	dec := json.NewDecoder(bytes.NewReader([]byte(`{"role":"edit"}`)))
	require.NoError(t, dec.Decode(&patch))
	assert.False(t, patch.ExpiresIn.Set)

	patch = Patch{}
	dec = json.NewDecoder(bytes.NewReader([]byte(`{"expires_in_seconds":null}`)))
	require.NoError(t, dec.Decode(&patch))
	assert.True(t, patch.ExpiresIn.Set)
	assert.False(t, patch.ExpiresIn.Valid)

	patch = Patch{}
	dec = json.NewDecoder(bytes.NewReader([]byte(`{"expires_in_seconds":900}`)))
	require.NoError(t, dec.Decode(&patch))
	assert.True(t, patch.ExpiresIn.Set)
	assert.True(t, patch.ExpiresIn.Valid)
	assert.Equal(t, int64(900), patch.ExpiresIn.Seconds)
}

func TestUpdateShare_NotOwner(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	other := env.seedUser(t, "other@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	grant, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{IsPublic: true})
	require.NoError(t, err)

	_, err = env.registry.UpdateShare(ctx, other, grant.ID, Patch{Role: rolePtr(RoleEdit)})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateShare_PrivateWithoutTarget(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	grant, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{IsPublic: true})
	require.NoError(t, err)

	// A grant cannot become private without a recipient to be private for.
	_, err = env.registry.UpdateShare(ctx, owner, grant.ID, Patch{IsPublic: boolPtr(false)})
	assert.ErrorIs(t, err, ErrMissingTarget)
}

func TestDeleteShare(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	grant, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{IsPublic: true})
	require.NoError(t, err)

	require.NoError(t, env.registry.DeleteShare(ctx, owner, grant.ID))

	_, err = env.store.GetGrant(ctx, grant.ID)
	assert.ErrorIs(t, err, ErrShareNotFound)

	assert.ErrorIs(t, env.registry.DeleteShare(ctx, owner, grant.ID), ErrShareNotFound)
}

func TestDeleteShare_NotOwner(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	other := env.seedUser(t, "other@example.com")
	file := env.seedFile(t, owner, "report.pdf")

	grant, err := env.registry.CreateShare(ctx, owner, file.ID, CreateOptions{IsPublic: true})
	require.NoError(t, err)

	assert.ErrorIs(t, env.registry.DeleteShare(ctx, other, grant.ID), ErrForbidden)

	// The grant survives the rejected delete.
	_, err = env.store.GetGrant(ctx, grant.ID)
	require.NoError(t, err)
}

func TestListShares(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.seedUser(t, "owner@example.com")
	other := env.seedUser(t, "other@example.com")
	fileA := env.seedFile(t, owner, "a.pdf")
	fileB := env.seedFile(t, owner, "b.pdf")
	fileC := env.seedFile(t, other, "c.pdf")

	_, err := env.registry.CreateShare(ctx, owner, fileA.ID, CreateOptions{IsPublic: true})
	require.NoError(t, err)
	_, err = env.registry.CreateShare(ctx, owner, fileB.ID, CreateOptions{SharedWith: strPtr("x@example.com")})
	require.NoError(t, err)
	_, err = env.registry.CreateShare(ctx, other, fileC.ID, CreateOptions{IsPublic: true})
	require.NoError(t, err)

	grants, err := env.registry.ListShares(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, grants, 2)
}
