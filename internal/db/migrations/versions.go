package migrations

import (
	"database/sql"
)

// getAllMigrations returns all available migrations
func getAllMigrations() []Migration {
	return []Migration{
		migration1_Users(),
		migration2_FilesAndFolders(),
		migration3_Shares(),
	}
}

// migration1_Users creates the principals table
func migration1_Users() Migration {
	return Migration{
		Version:     1,
		Description: "Create users table",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email TEXT UNIQUE NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					password_hash TEXT NOT NULL,
					created_at INTEGER NOT NULL
				)
			`); err != nil {
				return err
			}

			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`)
			return err
		},
	}
}

// migration2_FilesAndFolders creates the file metadata tables
func migration2_FilesAndFolders() Migration {
	return Migration{
		Version:     2,
		Description: "Create files and folders tables",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS folders (
					id TEXT PRIMARY KEY,
					owner_id TEXT NOT NULL,
					parent_id TEXT,
					name TEXT NOT NULL,
					created_at INTEGER NOT NULL,
					FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
				)
			`); err != nil {
				return err
			}

			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_folders_owner ON folders(owner_id)`); err != nil {
				return err
			}

			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS files (
					id TEXT PRIMARY KEY,
					owner_id TEXT NOT NULL,
					folder_id TEXT,
					name TEXT NOT NULL,
					size INTEGER NOT NULL DEFAULT 0,
					content_type TEXT,
					storage_path TEXT NOT NULL,
					public_url TEXT,
					deleted_at INTEGER,
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL,
					FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE,
					FOREIGN KEY (folder_id) REFERENCES folders(id) ON DELETE SET NULL
				)
			`); err != nil {
				return err
			}

			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_files_owner ON files(owner_id)`); err != nil {
				return err
			}
			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_files_folder ON files(folder_id)`); err != nil {
				return err
			}
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_files_name ON files(name)`)
			return err
		},
	}
}

// migration3_Shares creates the share grants table. share_token is unique
// across all grants; file_id deliberately is not, so multiple live tokens
// may coexist for one file. Grants are never cascade-deleted with files.
func migration3_Shares() Migration {
	return Migration{
		Version:     3,
		Description: "Create shares table",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS shares (
					id TEXT PRIMARY KEY,
					file_id TEXT NOT NULL,
					owner_id TEXT NOT NULL,
					shared_with TEXT,
					role TEXT NOT NULL DEFAULT 'view',
					is_public INTEGER NOT NULL DEFAULT 0,
					share_token TEXT UNIQUE,
					expires_at INTEGER,
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				)
			`); err != nil {
				return err
			}

			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_shares_file ON shares(file_id)`); err != nil {
				return err
			}
			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_shares_owner ON shares(owner_id)`); err != nil {
				return err
			}
			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_shares_target ON shares(file_id, shared_with)`); err != nil {
				return err
			}
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_shares_expires ON shares(expires_at)`)
			return err
		},
	}
}
