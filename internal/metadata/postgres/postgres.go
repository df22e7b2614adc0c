// Package postgres provides the PostgreSQL-backed metadata store: user
// profiles, the file/folder registry, the append-only audit log, and
// read-only billing plan lookups.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/cloudvault/cloudvault/internal/logging"
)

// Store is a PostgreSQL metadata store.
type Store struct {
	db *sql.DB
}

// Profile maps to the profiles table.
type Profile struct {
	ID           string
	Email        string
	Password     string // bcrypt hash
	Role         string
	CompanyID    string
	DepartmentID string
	PositionID   string
	Status       string
}

// FileRecord mirrors a stored object in the files table. Best effort only:
// the object store is mutated first, so orphans are possible in both
// directions when the second write fails.
type FileRecord struct {
	ID         string
	Name       string
	FilePath   string // full object store key
	FileSize   int64
	FileType   string
	FolderID   string // nullable
	UploadedBy string
	CompanyID  string
	CreatedAt  time.Time
}

// FolderRecord maps to the folders table. FolderPath is the full key prefix
// with trailing "/"; parent_id links rows into the folder tree.
type FolderRecord struct {
	ID         string
	Name       string
	FolderPath string
	ParentID   string // nullable, "" for root
	CreatedBy  string
	CompanyID  string
	CreatedAt  time.Time
}

// LogEntry is one append-only audit row.
type LogEntry struct {
	UserID     string
	Action     string
	TargetType string
	TargetName string
	CompanyID  string
	Details    string
}

// Plan is a tenant's billing plan row, read for display only.
type Plan struct {
	CompanyID        string
	Name             string
	MaxStorageBytes  int64
	MaxDownloadBytes int64
	MaxUsers         int
}

// New creates a new PostgreSQL metadata store.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate runs SQL migration files.
func (s *Store) Migrate(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}

	for _, f := range files {
		logging.Info("running migration", zap.String("file", filepath.Base(f)))
		content, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}

	return nil
}

// GetProfile returns a profile by user ID.
func (s *Store) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	return s.scanProfile(s.db.QueryRowContext(ctx,
		`SELECT id, email, password, role, company_id, department_id, position_id, status
		 FROM profiles WHERE id = $1`, userID))
}

// GetProfileByEmail returns a profile by email.
func (s *Store) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	return s.scanProfile(s.db.QueryRowContext(ctx,
		`SELECT id, email, password, role, company_id, department_id, position_id, status
		 FROM profiles WHERE email = $1`, email))
}

func (s *Store) scanProfile(row *sql.Row) (*Profile, error) {
	var p Profile
	var companyID, departmentID, positionID sql.NullString
	err := row.Scan(&p.ID, &p.Email, &p.Password, &p.Role,
		&companyID, &departmentID, &positionID, &p.Status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	p.CompanyID = companyID.String
	p.DepartmentID = departmentID.String
	p.PositionID = positionID.String
	return &p, nil
}

// InsertFileRecord records a stored object in the file registry.
func (s *Store) InsertFileRecord(ctx context.Context, f *FileRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (id, name, file_path, file_size, file_type, folder_id,
		                    uploaded_by, company_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), NOW(), NOW())
		 ON CONFLICT (file_path) DO UPDATE SET
			name = EXCLUDED.name,
			file_size = EXCLUDED.file_size,
			file_type = EXCLUDED.file_type,
			uploaded_by = EXCLUDED.uploaded_by,
			updated_at = NOW()`,
		f.ID, f.Name, f.FilePath, f.FileSize, f.FileType, f.FolderID,
		f.UploadedBy, f.CompanyID)
	if err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

// GetFileRecordByPath returns the registry row for an object key, if any.
func (s *Store) GetFileRecordByPath(ctx context.Context, filePath string) (*FileRecord, error) {
	var f FileRecord
	var folderID, companyID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, file_path, file_size, file_type, folder_id,
		        uploaded_by, company_id, created_at
		 FROM files WHERE file_path = $1`, filePath).
		Scan(&f.ID, &f.Name, &f.FilePath, &f.FileSize, &f.FileType,
			&folderID, &f.UploadedBy, &companyID, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("file record not found: %s", filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("query file record: %w", err)
	}
	f.FolderID = folderID.String
	f.CompanyID = companyID.String
	return &f, nil
}

// DeleteFileRecordByPath removes a registry row by object key.
func (s *Store) DeleteFileRecordByPath(ctx context.Context, filePath string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE file_path = $1`, filePath)
	if err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return nil
}

// InsertFolderRecord records a created folder. Re-creating an existing
// folder path is a no-op.
func (s *Store) InsertFolderRecord(ctx context.Context, f *FolderRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (id, name, folder_path, parent_id, created_by, company_id, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NOW())
		 ON CONFLICT (folder_path) DO NOTHING`,
		f.ID, f.Name, f.FolderPath, f.ParentID, f.CreatedBy, f.CompanyID)
	if err != nil {
		return fmt.Errorf("insert folder record: %w", err)
	}
	return nil
}

// GetFolderIDByPath returns the folder row id for a path, or "" when no row
// exists.
func (s *Store) GetFolderIDByPath(ctx context.Context, folderPath string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM folders WHERE folder_path = $1`, folderPath).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query folder: %w", err)
	}
	return id, nil
}

// DeleteFolderRecord removes a folder row and every descendant row under its
// path.
func (s *Store) DeleteFolderRecord(ctx context.Context, folderPath string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM folders WHERE folder_path LIKE $1 || '%'`, folderPath)
	if err != nil {
		return fmt.Errorf("delete folder record: %w", err)
	}
	return nil
}

// AppendLog writes one audit log row. Audit writes are best effort; callers
// log failures but never fail the request over them.
func (s *Store) AppendLog(ctx context.Context, e *LogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (user_id, action, target_type, target_name, company_id, details, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NOW())`,
		e.UserID, e.Action, e.TargetType, e.TargetName, e.CompanyID, e.Details)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// GetPlan returns a tenant's plan row.
func (s *Store) GetPlan(ctx context.Context, companyID string) (*Plan, error) {
	var p Plan
	err := s.db.QueryRowContext(ctx,
		`SELECT company_id, name, max_storage_bytes, max_download_bytes, max_users
		 FROM plans WHERE company_id = $1`, companyID).
		Scan(&p.CompanyID, &p.Name, &p.MaxStorageBytes, &p.MaxDownloadBytes, &p.MaxUsers)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plan not found for company %s", companyID)
	}
	if err != nil {
		return nil, fmt.Errorf("query plan: %w", err)
	}
	return &p, nil
}
