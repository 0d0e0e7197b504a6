package share

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/drivekit/drivekit/internal/files"
)

// Role is the access level a grant confers on a file.
type Role string

const (
	RoleView Role = "view"
	RoleEdit Role = "edit"
)

// Valid reports whether the role is a recognized access level.
func (r Role) Valid() bool {
	return r == RoleView || r == RoleEdit
}

// Satisfies reports whether the role covers the required level.
// Edit implies view.
func (r Role) Satisfies(required Role) bool {
	if r == RoleEdit {
		return true
	}
	return r == required
}

// Grant represents a persisted authorization for one principal (or the
// public) to access one file at one role.
type Grant struct {
	ID         string     `json:"id"`
	FileID     string     `json:"file_id"`
	OwnerID    string     `json:"owner_id"`
	SharedWith *string    `json:"shared_with,omitempty"`
	Role       Role       `json:"role"`
	IsPublic   bool       `json:"is_public"`
	ShareToken *string    `json:"share_token,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"` // nil = never expires
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ExpiredAt reports whether the grant has lapsed as of the given instant.
func (g *Grant) ExpiredAt(now time.Time) bool {
	if g.ExpiresAt == nil {
		return false
	}
	return now.After(*g.ExpiresAt)
}

// CreateOptions are the recognized fields of a share-creation request.
type CreateOptions struct {
	IsPublic   bool    `json:"is_public"`
	SharedWith *string `json:"shared_with"`
	Role       Role    `json:"role"`
	ExpiresIn  *int64  `json:"expires_in_seconds"` // seconds, nil = never expires
}

// Patch carries a partial update to a grant. Role, IsPublic and SharedWith
// replace the stored value when provided. ExpiresIn is three-way: omitted
// leaves the expiry untouched, explicit null clears it, a positive value
// recomputes it from now.
type Patch struct {
	Role       *Role           `json:"role"`
	IsPublic   *bool           `json:"is_public"`
	SharedWith OptionalString  `json:"shared_with"`
	ExpiresIn  OptionalSeconds `json:"expires_in_seconds"`
}

// OptionalSeconds distinguishes an absent JSON field from an explicit null.
type OptionalSeconds struct {
	Set     bool
	Valid   bool
	Seconds int64
}

// UnmarshalJSON is only invoked when the field is present in the document,
// which is what makes the absent/null distinction observable.
func (o *OptionalSeconds) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Valid = false
		return nil
	}
	if err := json.Unmarshal(data, &o.Seconds); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

// OptionalString distinguishes an absent JSON field from an explicit null.
type OptionalString struct {
	Set   bool
	Valid bool
	Value string
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Valid = false
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

// PublicShare is the result of resolving a public token: the grant, the
// file it covers and a freshly minted signed retrieval URL.
type PublicShare struct {
	Grant     *Grant            `json:"share"`
	File      *files.FileRecord `json:"file"`
	SignedURL string            `json:"signedUrl"`
}

// SignedURL is a time-limited direct-access URL to a stored object.
type SignedURL struct {
	URL       string `json:"signedUrl"`
	ExpiresIn int64  `json:"expires_in"`
}

// Common errors
var (
	// ErrFileNotFound deliberately covers both "file missing" and "file not
	// owned by the requester" so non-owners cannot probe for existence.
	ErrFileNotFound = errors.New("file not found or access denied")

	ErrShareNotFound = errors.New("share not found")
	ErrShareExpired  = errors.New("share link expired")
	ErrForbidden     = errors.New("access denied")
	ErrInvalidRole   = errors.New("invalid share role")
	ErrMissingTarget = errors.New("targeted share requires a recipient")
	ErrInvalidExpiry = errors.New("invalid expiry window")
)
