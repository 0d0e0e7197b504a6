package files

import (
	"errors"
	"time"
)

// FileRecord represents file metadata. Identity is immutable: the owner of
// a file never changes after creation.
type FileRecord struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	FolderID    *string    `json:"folder_id,omitempty"`
	Name        string     `json:"name"`
	Size        int64      `json:"size"`
	ContentType string     `json:"content_type,omitempty"`
	StoragePath string     `json:"storage_path"`
	PublicURL   string     `json:"public_url,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Folder groups files under an owner. Folders nest via ParentID.
type Folder struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Common errors
var (
	ErrFileNotFound   = errors.New("file not found")
	ErrFolderNotFound = errors.New("folder not found")
)
