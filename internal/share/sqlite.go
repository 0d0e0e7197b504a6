package share

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite grant store. The schema is managed by
// the migrations package; the database handle is shared across stores.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const grantColumns = `id, file_id, owner_id, shared_with, role, is_public, share_token, expires_at, created_at, updated_at`

// InsertGrant creates a new grant
func (s *SQLiteStore) InsertGrant(ctx context.Context, grant *Grant) error {
	query := `
		INSERT INTO shares (` + grantColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		grant.ID,
		grant.FileID,
		grant.OwnerID,
		nullString(grant.SharedWith),
		string(grant.Role),
		grant.IsPublic,
		nullString(grant.ShareToken),
		nullUnix(grant.ExpiresAt),
		grant.CreatedAt.Unix(),
		grant.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert grant: %w", err)
	}

	return nil
}

// GetGrant retrieves a grant by ID
func (s *SQLiteStore) GetGrant(ctx context.Context, grantID string) (*Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM shares WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, grantID)
	return scanGrant(row)
}

// FindGrantByToken retrieves the public grant carrying the token. Expired
// grants are still returned; the caller decides liveness.
func (s *SQLiteStore) FindGrantByToken(ctx context.Context, token string) (*Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM shares WHERE share_token = ? AND is_public = 1`

	row := s.db.QueryRowContext(ctx, query, token)
	return scanGrant(row)
}

// FindGrantByFileAndTarget retrieves a targeted grant for a file and principal
func (s *SQLiteStore) FindGrantByFileAndTarget(ctx context.Context, fileID, principalID string) (*Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM shares WHERE file_id = ? AND shared_with = ?`

	row := s.db.QueryRowContext(ctx, query, fileID, principalID)
	return scanGrant(row)
}

// ListOwnerGrants lists all grants created by an owner
func (s *SQLiteStore) ListOwnerGrants(ctx context.Context, ownerID string) ([]*Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM shares WHERE owner_id = ? ORDER BY created_at DESC`
	return s.queryGrants(ctx, query, ownerID)
}

// ListFileGrants lists all grants over a file
func (s *SQLiteStore) ListFileGrants(ctx context.Context, fileID string) ([]*Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM shares WHERE file_id = ? ORDER BY created_at DESC`
	return s.queryGrants(ctx, query, fileID)
}

// UpdateGrant replaces the mutable fields of a stored grant
func (s *SQLiteStore) UpdateGrant(ctx context.Context, grant *Grant) error {
	query := `
		UPDATE shares
		SET shared_with = ?, role = ?, is_public = ?, share_token = ?, expires_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		nullString(grant.SharedWith),
		string(grant.Role),
		grant.IsPublic,
		nullString(grant.ShareToken),
		nullUnix(grant.ExpiresAt),
		grant.UpdatedAt.Unix(),
		grant.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update grant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrShareNotFound
	}

	return nil
}

// DeleteGrant hard-deletes a grant
func (s *SQLiteStore) DeleteGrant(ctx context.Context, grantID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM shares WHERE id = ?`, grantID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrShareNotFound
	}

	return nil
}

func (s *SQLiteStore) queryGrants(ctx context.Context, query string, args ...interface{}) ([]*Grant, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []*Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}

	return grants, rows.Err()
}

// scanGrant scans a grant from a database row
func scanGrant(scanner interface {
	Scan(dest ...interface{}) error
}) (*Grant, error) {
	var grant Grant
	var sharedWith, shareToken sql.NullString
	var role string
	var expiresAt sql.NullInt64
	var createdAt, updatedAt int64

	err := scanner.Scan(
		&grant.ID,
		&grant.FileID,
		&grant.OwnerID,
		&sharedWith,
		&role,
		&grant.IsPublic,
		&shareToken,
		&expiresAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to scan grant: %w", err)
	}

	grant.Role = Role(role)
	if sharedWith.Valid {
		grant.SharedWith = &sharedWith.String
	}
	if shareToken.Valid {
		grant.ShareToken = &shareToken.String
	}
	if expiresAt.Valid {
		expiry := time.Unix(expiresAt.Int64, 0).UTC()
		grant.ExpiresAt = &expiry
	}
	grant.CreatedAt = time.Unix(createdAt, 0).UTC()
	grant.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &grant, nil
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
