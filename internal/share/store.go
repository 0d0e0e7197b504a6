package share

import (
	"context"
)

// Store defines the interface for grant persistence. Liveness is never
// evaluated here: expired grants are returned as stored and judged by the
// registry at access time.
type Store interface {
	InsertGrant(ctx context.Context, grant *Grant) error
	GetGrant(ctx context.Context, grantID string) (*Grant, error)
	// FindGrantByToken looks up the unique public grant carrying the token.
	FindGrantByToken(ctx context.Context, token string) (*Grant, error)
	// FindGrantByFileAndTarget looks up a targeted grant naming the principal.
	FindGrantByFileAndTarget(ctx context.Context, fileID, principalID string) (*Grant, error)
	ListOwnerGrants(ctx context.Context, ownerID string) ([]*Grant, error)
	ListFileGrants(ctx context.Context, fileID string) ([]*Grant, error)
	UpdateGrant(ctx context.Context, grant *Grant) error
	DeleteGrant(ctx context.Context, grantID string) error
}
