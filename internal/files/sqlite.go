package files

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite file store. The schema is managed by
// the migrations package; the database handle is shared across stores.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const fileColumns = `id, owner_id, folder_id, name, size, content_type, storage_path, public_url, deleted_at, created_at, updated_at`

// InsertFile creates a new file record
func (s *SQLiteStore) InsertFile(ctx context.Context, file *FileRecord) error {
	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		file.ID,
		file.OwnerID,
		nullString(file.FolderID),
		file.Name,
		file.Size,
		file.ContentType,
		file.StoragePath,
		file.PublicURL,
		nullTime(file.DeletedAt),
		file.CreatedAt.Unix(),
		file.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	return nil
}

// GetFile retrieves a file by ID, skipping soft-deleted records
func (s *SQLiteStore) GetFile(ctx context.Context, fileID string) (*FileRecord, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE id = ? AND deleted_at IS NULL
	`

	row := s.db.QueryRowContext(ctx, query, fileID)
	return scanFile(row)
}

// ListFiles lists files for an owner, optionally restricted to a folder
func (s *SQLiteStore) ListFiles(ctx context.Context, ownerID string, folderID *string) ([]*FileRecord, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE owner_id = ? AND deleted_at IS NULL
	`
	args := []interface{}{ownerID}

	if folderID != nil {
		query += ` AND folder_id = ?`
		args = append(args, *folderID)
	}
	query += ` ORDER BY created_at DESC`

	return s.queryFiles(ctx, query, args...)
}

// SearchFiles matches file names case-insensitively against the query
func (s *SQLiteStore) SearchFiles(ctx context.Context, ownerID, pattern string) ([]*FileRecord, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE owner_id = ? AND deleted_at IS NULL AND name LIKE ?
		ORDER BY created_at DESC
	`

	return s.queryFiles(ctx, query, ownerID, "%"+pattern+"%")
}

// SoftDeleteFile marks a file as deleted without removing the row.
// Grants referencing the file are intentionally left in place.
func (s *SQLiteStore) SoftDeleteFile(ctx context.Context, fileID string) error {
	query := `UPDATE files SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`

	now := time.Now().UTC().Unix()
	result, err := s.db.ExecContext(ctx, query, now, now, fileID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrFileNotFound
	}

	return nil
}

// CreateFolder creates a folder
func (s *SQLiteStore) CreateFolder(ctx context.Context, folder *Folder) error {
	query := `
		INSERT INTO folders (id, owner_id, parent_id, name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		folder.ID,
		folder.OwnerID,
		nullString(folder.ParentID),
		folder.Name,
		folder.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}

	return nil
}

// GetFolder retrieves a folder by ID
func (s *SQLiteStore) GetFolder(ctx context.Context, folderID string) (*Folder, error) {
	query := `SELECT id, owner_id, parent_id, name, created_at FROM folders WHERE id = ?`

	var folder Folder
	var parentID sql.NullString
	var createdAt int64

	err := s.db.QueryRowContext(ctx, query, folderID).Scan(
		&folder.ID,
		&folder.OwnerID,
		&parentID,
		&folder.Name,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFolderNotFound
		}
		return nil, fmt.Errorf("failed to scan folder: %w", err)
	}

	if parentID.Valid {
		folder.ParentID = &parentID.String
	}
	folder.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &folder, nil
}

// ListFolders lists folders for an owner, optionally under a parent
func (s *SQLiteStore) ListFolders(ctx context.Context, ownerID string, parentID *string) ([]*Folder, error) {
	query := `SELECT id, owner_id, parent_id, name, created_at FROM folders WHERE owner_id = ?`
	args := []interface{}{ownerID}

	if parentID != nil {
		query += ` AND parent_id = ?`
		args = append(args, *parentID)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []*Folder
	for rows.Next() {
		var folder Folder
		var parent sql.NullString
		var createdAt int64

		if err := rows.Scan(&folder.ID, &folder.OwnerID, &parent, &folder.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		if parent.Valid {
			folder.ParentID = &parent.String
		}
		folder.CreatedAt = time.Unix(createdAt, 0).UTC()
		folders = append(folders, &folder)
	}

	return folders, rows.Err()
}

func (s *SQLiteStore) queryFiles(ctx context.Context, query string, args ...interface{}) ([]*FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*FileRecord
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, file)
	}

	return records, rows.Err()
}

// scanFile scans a file record from a database row
func scanFile(scanner interface {
	Scan(dest ...interface{}) error
}) (*FileRecord, error) {
	var file FileRecord
	var folderID sql.NullString
	var contentType, publicURL sql.NullString
	var deletedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := scanner.Scan(
		&file.ID,
		&file.OwnerID,
		&folderID,
		&file.Name,
		&file.Size,
		&contentType,
		&file.StoragePath,
		&publicURL,
		&deletedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}

	if folderID.Valid {
		file.FolderID = &folderID.String
	}
	file.ContentType = contentType.String
	file.PublicURL = publicURL.String
	if deletedAt.Valid {
		t := time.Unix(deletedAt.Int64, 0).UTC()
		file.DeletedAt = &t
	}
	file.CreatedAt = time.Unix(createdAt, 0).UTC()
	file.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &file, nil
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
