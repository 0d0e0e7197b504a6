package files

import (
	"context"
)

// Store defines the interface for file metadata persistence.
type Store interface {
	InsertFile(ctx context.Context, file *FileRecord) error
	// GetFile returns a file by ID. Soft-deleted files are treated as absent.
	GetFile(ctx context.Context, fileID string) (*FileRecord, error)
	ListFiles(ctx context.Context, ownerID string, folderID *string) ([]*FileRecord, error)
	SearchFiles(ctx context.Context, ownerID, query string) ([]*FileRecord, error)
	SoftDeleteFile(ctx context.Context, fileID string) error

	CreateFolder(ctx context.Context, folder *Folder) error
	GetFolder(ctx context.Context, folderID string) (*Folder, error)
	ListFolders(ctx context.Context, ownerID string, parentID *string) ([]*Folder, error)
}
