// Package protocol defines the storage proxy request/response types.
package protocol

import "time"

// Actions accepted by the storage proxy envelope.
const (
	ActionList         = "list"
	ActionUpload       = "upload"
	ActionDelete       = "delete"
	ActionDownload     = "download"
	ActionCreateFolder = "createFolder"
	ActionDeleteFolder = "deleteFolder"
)

// StorageRequest is the JSON envelope for POST /api/v1/storage.
// Only the fields relevant to the given action are read.
type StorageRequest struct {
	Action string `json:"action"`

	// list, upload
	Path string `json:"path,omitempty"`

	// upload
	FileName    string `json:"fileName,omitempty"`
	FileContent string `json:"fileContent,omitempty"` // base64
	ContentType string `json:"contentType,omitempty"`

	// delete, download
	Key string `json:"key,omitempty"`

	// createFolder, deleteFolder
	FolderPath string `json:"folderPath,omitempty"`
}

// StoredObject describes one object-store entry as seen by clients.
// Path is Key with the global root prefix stripped.
type StoredObject struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	IsFolder     bool      `json:"isFolder"`
	Path         string    `json:"path"`
}

// ListResponse is returned for the "list" action.
type ListResponse struct {
	Files []StoredObject `json:"files"`
	Count int            `json:"count"`
}

// UploadResponse is returned for the "upload" action.
type UploadResponse struct {
	FilePath string `json:"filePath"`
}

// DeleteResponse is returned for the "delete" action.
type DeleteResponse struct {
	DeletedKey string `json:"deletedKey"`
}

// CreateFolderResponse is returned for the "createFolder" action.
type CreateFolderResponse struct {
	FolderPath string `json:"folderPath"`
	Verified   bool   `json:"verified"`
}

// DeleteFolderResponse is returned for the "deleteFolder" action.
type DeleteFolderResponse struct {
	Success bool `json:"success"`
	Deleted int  `json:"deleted"`
}

// PlanResponse is returned by GET /api/v1/plan (display only, not enforced).
type PlanResponse struct {
	CompanyID        string `json:"company_id"`
	Name             string `json:"name"`
	MaxStorageBytes  int64  `json:"max_storage_bytes"`
	MaxDownloadBytes int64  `json:"max_download_bytes"`
	MaxUsers         int    `json:"max_users"`
}

// TokenResponse is returned by POST /api/v1/auth/token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// QuickPath is one role-driven navigation shortcut.
type QuickPath struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description"`
}
