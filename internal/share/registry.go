package share

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/drivekit/drivekit/internal/files"
	"github.com/drivekit/drivekit/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Registry owns the lifecycle of share grants and answers every
// "can principal P perform action A on file F" question. It is stateless
// between calls: authorization and expiry are recomputed from durable state
// on every operation, never cached.
type Registry interface {
	CreateShare(ctx context.Context, requesterID, fileID string, opts CreateOptions) (*Grant, error)
	ResolvePublicShare(ctx context.Context, token string) (*PublicShare, error)
	CheckAccess(ctx context.Context, principalID, fileID string, required Role) error
	IssueSignedURL(ctx context.Context, principalID, fileID string, expiresIn int64) (*SignedURL, error)
	UpdateShare(ctx context.Context, requesterID, shareID string, patch Patch) (*Grant, error)
	DeleteShare(ctx context.Context, requesterID, shareID string) error
	ListShares(ctx context.Context, ownerID string) ([]*Grant, error)
}

// SigningLimits bounds the TTL of issued signed URLs.
type SigningLimits struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

// registry implements Registry
type registry struct {
	store   Store
	files   files.Store
	objects storage.Provider
	limits  SigningLimits
	now     func() time.Time
}

// NewRegistry creates a new share registry
func NewRegistry(store Store, fileStore files.Store, objects storage.Provider, limits SigningLimits) Registry {
	if limits.DefaultTTL <= 0 {
		limits.DefaultTTL = 60 * time.Second
	}
	if limits.MaxTTL <= 0 {
		limits.MaxTTL = 7 * 24 * time.Hour
	}

	return &registry{
		store:   store,
		files:   fileStore,
		objects: objects,
		limits:  limits,
		now:     time.Now,
	}
}

// CreateShare creates a grant over a file owned by the requester. A missing
// file and a file owned by someone else are indistinguishable to the caller.
func (r *registry) CreateShare(ctx context.Context, requesterID, fileID string, opts CreateOptions) (*Grant, error) {
	file, err := r.ownedFile(ctx, requesterID, fileID)
	if err != nil {
		return nil, err
	}

	role := opts.Role
	if role == "" {
		role = RoleView
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	if !opts.IsPublic && (opts.SharedWith == nil || *opts.SharedWith == "") {
		return nil, ErrMissingTarget
	}

	now := r.now().UTC()

	grant := &Grant{
		ID:         uuid.NewString(),
		FileID:     file.ID,
		OwnerID:    requesterID,
		SharedWith: opts.SharedWith,
		Role:       role,
		IsPublic:   opts.IsPublic,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if opts.IsPublic {
		token, err := generateShareToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate share token: %w", err)
		}
		grant.ShareToken = &token
	}

	if opts.ExpiresIn != nil {
		if *opts.ExpiresIn <= 0 {
			return nil, ErrInvalidExpiry
		}
		expiry := now.Add(time.Duration(*opts.ExpiresIn) * time.Second)
		grant.ExpiresAt = &expiry
	}

	if err := r.store.InsertGrant(ctx, grant); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"share_id": grant.ID,
		"file_id":  grant.FileID,
		"public":   grant.IsPublic,
		"role":     grant.Role,
	}).Info("Share created")

	return grant, nil
}

// ResolvePublicShare resolves a public token into its grant, file and a
// freshly minted signed URL. An expired grant is reported distinctly from a
// missing one so callers can tell "never existed" from "lapsed".
func (r *registry) ResolvePublicShare(ctx context.Context, token string) (*PublicShare, error) {
	grant, err := r.store.FindGrantByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if grant.ExpiredAt(r.now().UTC()) {
		return nil, ErrShareExpired
	}

	file, err := r.files.GetFile(ctx, grant.FileID)
	if err != nil {
		// The grant outlived its file. Report the file as gone rather than
		// the share, since the token itself did resolve.
		if err == files.ErrFileNotFound {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	signed, err := r.objects.MintSignedURL(ctx, objectPath(file), r.limits.DefaultTTL)
	if err != nil {
		return nil, err
	}

	return &PublicShare{Grant: grant, File: file, SignedURL: signed}, nil
}

// CheckAccess is the single authorization choke point for non-owner file
// access. The owner always passes at the highest role; anyone else needs a
// live targeted grant whose role covers the required level.
func (r *registry) CheckAccess(ctx context.Context, principalID, fileID string, required Role) error {
	file, err := r.files.GetFile(ctx, fileID)
	if err != nil {
		if err == files.ErrFileNotFound {
			return ErrFileNotFound
		}
		return err
	}

	if file.OwnerID == principalID {
		return nil
	}

	grant, err := r.store.FindGrantByFileAndTarget(ctx, fileID, principalID)
	if err != nil {
		if err == ErrShareNotFound {
			return ErrForbidden
		}
		return err
	}

	if grant.ExpiredAt(r.now().UTC()) {
		return ErrForbidden
	}
	if !grant.Role.Satisfies(required) {
		return ErrForbidden
	}

	return nil
}

// IssueSignedURL mints a time-limited retrieval URL for a file the principal
// may view. Nothing is persisted; issuance is delegated to the object store.
func (r *registry) IssueSignedURL(ctx context.Context, principalID, fileID string, expiresIn int64) (*SignedURL, error) {
	if err := r.CheckAccess(ctx, principalID, fileID, RoleView); err != nil {
		return nil, err
	}

	ttl := time.Duration(expiresIn) * time.Second
	if expiresIn <= 0 {
		ttl = r.limits.DefaultTTL
	}
	if ttl > r.limits.MaxTTL {
		return nil, ErrInvalidExpiry
	}

	// CheckAccess already resolved the file; fetch again rather than thread
	// it through, so the path reflects the current record.
	file, err := r.files.GetFile(ctx, fileID)
	if err != nil {
		if err == files.ErrFileNotFound {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	signed, err := r.objects.MintSignedURL(ctx, objectPath(file), ttl)
	if err != nil {
		return nil, err
	}

	return &SignedURL{URL: signed, ExpiresIn: int64(ttl.Seconds())}, nil
}

// UpdateShare applies a partial update to a grant. Only the grant's owner
// may mutate it. The public/token invariant is maintained: flipping a grant
// public mints a token, flipping it private discards it.
func (r *registry) UpdateShare(ctx context.Context, requesterID, shareID string, patch Patch) (*Grant, error) {
	grant, err := r.store.GetGrant(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if grant.OwnerID != requesterID {
		return nil, ErrForbidden
	}

	if patch.Role != nil {
		if !patch.Role.Valid() {
			return nil, ErrInvalidRole
		}
		grant.Role = *patch.Role
	}

	if patch.SharedWith.Set {
		if patch.SharedWith.Valid {
			target := patch.SharedWith.Value
			grant.SharedWith = &target
		} else {
			grant.SharedWith = nil
		}
	}

	if patch.IsPublic != nil && *patch.IsPublic != grant.IsPublic {
		grant.IsPublic = *patch.IsPublic
		if grant.IsPublic {
			token, err := generateShareToken()
			if err != nil {
				return nil, fmt.Errorf("failed to generate share token: %w", err)
			}
			grant.ShareToken = &token
		} else {
			grant.ShareToken = nil
		}
	}

	if !grant.IsPublic && grant.SharedWith == nil {
		return nil, ErrMissingTarget
	}

	now := r.now().UTC()

	// Three-way expiry semantics: omitted leaves the stored value, explicit
	// null clears it, a positive value recomputes from now.
	if patch.ExpiresIn.Set {
		if !patch.ExpiresIn.Valid {
			grant.ExpiresAt = nil
		} else {
			if patch.ExpiresIn.Seconds <= 0 {
				return nil, ErrInvalidExpiry
			}
			expiry := now.Add(time.Duration(patch.ExpiresIn.Seconds) * time.Second)
			grant.ExpiresAt = &expiry
		}
	}

	grant.UpdatedAt = now

	if err := r.store.UpdateGrant(ctx, grant); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"share_id": grant.ID,
		"public":   grant.IsPublic,
		"role":     grant.Role,
	}).Info("Share updated")

	return grant, nil
}

// DeleteShare hard-deletes a grant. Any outstanding token and any targeted
// grant stop resolving immediately.
func (r *registry) DeleteShare(ctx context.Context, requesterID, shareID string) error {
	grant, err := r.store.GetGrant(ctx, shareID)
	if err != nil {
		return err
	}
	if grant.OwnerID != requesterID {
		return ErrForbidden
	}

	if err := r.store.DeleteGrant(ctx, shareID); err != nil {
		return err
	}

	logrus.WithField("share_id", shareID).Info("Share revoked")
	return nil
}

// ListShares lists all grants created by an owner
func (r *registry) ListShares(ctx context.Context, ownerID string) ([]*Grant, error) {
	return r.store.ListOwnerGrants(ctx, ownerID)
}

// ownedFile fetches a file and verifies current ownership, conflating
// "missing" and "not yours" into one error.
func (r *registry) ownedFile(ctx context.Context, requesterID, fileID string) (*files.FileRecord, error) {
	file, err := r.files.GetFile(ctx, fileID)
	if err != nil {
		if err == files.ErrFileNotFound {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	if file.OwnerID != requesterID {
		return nil, ErrFileNotFound
	}
	return file, nil
}

// objectPath derives the storage path for a file, preferring the explicit
// stored path and falling back to parsing a previously issued public URL.
// Some historical records only carried a URL, never a canonical path.
func objectPath(file *files.FileRecord) string {
	if file.StoragePath != "" {
		return file.StoragePath
	}
	return pathFromURL(file.PublicURL)
}

func pathFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return path.Base(raw)
	}
	if p := strings.TrimPrefix(u.Path, "/d/"); p != u.Path {
		return p
	}
	return path.Base(u.Path)
}

// generateShareToken returns an unguessable 256-bit token
func generateShareToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
