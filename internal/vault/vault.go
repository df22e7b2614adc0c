// Package vault is the client-side facade over the storage proxy. Every
// operation validates the target path against the caller's access scope
// before any network call; a denied path returns scope.ErrAccessDenied
// without touching the wire. The proxy re-checks tenancy on its side, so
// this gate is a convenience, not the security boundary.
package vault

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cloudvault/cloudvault/internal/protocol"
	"github.com/cloudvault/cloudvault/internal/scope"
)

// DefaultMaxUploadSize caps client-side uploads before base64 encoding.
const DefaultMaxUploadSize = 100 << 20

// Client calls the storage proxy on behalf of one authenticated profile.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	authToken     string
	scope         scope.AccessScope
	currentPath   string
	maxUploadSize int64
}

// Config holds facade configuration.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	AuthToken     string
	Profile       scope.Profile
	MaxUploadSize int64
}

// New creates a facade for a profile. The access scope is computed once
// here and never mutated.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}

	sc := scope.Compute(cfg.Profile)
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		authToken:     cfg.AuthToken,
		scope:         sc,
		currentPath:   sc.DefaultPath(),
		maxUploadSize: cfg.MaxUploadSize,
	}
}

// Scope returns the computed access scope.
func (c *Client) Scope() scope.AccessScope { return c.scope }

// CurrentPath returns the folder the facade is currently pointed at.
func (c *Client) CurrentPath() string { return c.currentPath }

// SetAuthToken replaces the bearer token used for requests.
func (c *Client) SetAuthToken(token string) { c.authToken = token }

// ListFiles lists the immediate children of a folder. An empty path lists
// the role's default folder.
func (c *Client) ListFiles(ctx context.Context, path string) ([]protocol.StoredObject, error) {
	if path == "" {
		path = c.scope.DefaultPath()
	}
	if err := c.scope.ValidatePath(path); err != nil {
		return nil, err
	}

	var resp protocol.ListResponse
	err := c.doStorage(ctx, &protocol.StorageRequest{
		Action: protocol.ActionList,
		Path:   path,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// UploadFile stores file bytes under a folder. The content is base64
// encoded into the request envelope.
func (c *Client) UploadFile(ctx context.Context, path, fileName, contentType string, content []byte) (string, error) {
	if path == "" {
		path = c.scope.DefaultPath()
	}
	if err := c.scope.ValidatePath(path); err != nil {
		return "", err
	}
	if !scope.ValidFileName(fileName) {
		return "", fmt.Errorf("invalid file name %q", fileName)
	}
	if int64(len(content)) > c.maxUploadSize {
		return "", fmt.Errorf("file exceeds the %d byte upload limit", c.maxUploadSize)
	}

	var resp protocol.UploadResponse
	err := c.doStorage(ctx, &protocol.StorageRequest{
		Action:      protocol.ActionUpload,
		Path:        path,
		FileName:    fileName,
		FileContent: base64.StdEncoding.EncodeToString(content),
		ContentType: contentType,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.FilePath, nil
}

// DeleteFile deletes one object by key. The key's containing folder is
// validated against the scope.
func (c *Client) DeleteFile(ctx context.Context, key string) error {
	if err := c.scope.ValidatePath(scope.ParentPath(key)); err != nil {
		return err
	}

	var resp protocol.DeleteResponse
	return c.doStorage(ctx, &protocol.StorageRequest{
		Action: protocol.ActionDelete,
		Key:    key,
	}, &resp)
}

// DownloadFile fetches an object's content.
func (c *Client) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	if err := c.scope.ValidatePath(scope.ParentPath(key)); err != nil {
		return nil, err
	}

	body, err := json.Marshal(&protocol.StorageRequest{
		Action: protocol.ActionDownload,
		Key:    key,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read download: %w", err)
	}
	return data, nil
}

// CreateFolder creates an empty folder. Creating an existing folder
// succeeds.
func (c *Client) CreateFolder(ctx context.Context, folderPath string) error {
	if err := c.scope.ValidatePath(folderPath); err != nil {
		return err
	}

	var resp protocol.CreateFolderResponse
	return c.doStorage(ctx, &protocol.StorageRequest{
		Action:     protocol.ActionCreateFolder,
		FolderPath: folderPath,
	}, &resp)
}

// DeleteFolder deletes a folder and everything under it. Returns the number
// of objects removed.
func (c *Client) DeleteFolder(ctx context.Context, folderPath string) (int, error) {
	if err := c.scope.ValidatePath(folderPath); err != nil {
		return 0, err
	}

	var resp protocol.DeleteFolderResponse
	err := c.doStorage(ctx, &protocol.StorageRequest{
		Action:     protocol.ActionDeleteFolder,
		FolderPath: folderPath,
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// NavigateToFolder moves the current path into a folder. Out-of-scope
// targets leave the current path unchanged and return ErrAccessDenied.
func (c *Client) NavigateToFolder(folderPath string) error {
	if err := c.scope.ValidatePath(folderPath); err != nil {
		return err
	}
	c.currentPath = folderPath
	return nil
}

// NavigateBack moves the current path up one level, never above the role's
// default folder.
func (c *Client) NavigateBack() string {
	parent := scope.ParentPath(c.currentPath)
	if parent == "" || c.scope.ValidatePath(parent) != nil {
		c.currentPath = c.scope.DefaultPath()
		return c.currentPath
	}
	c.currentPath = parent
	return c.currentPath
}

// AvailablePaths returns the navigation shortcuts for the caller's role.
func (c *Client) AvailablePaths() []protocol.QuickPath {
	switch c.scope.Role() {
	case scope.RoleSuperAdmin:
		return []protocol.QuickPath{
			{Name: "All companies", Path: "", Description: "Root of the entire store"},
		}
	case scope.RoleCompanyAdmin:
		return []protocol.QuickPath{
			{Name: "Company", Path: scope.CompanyBasePath(c.scope.CompanyID()), Description: "Company root"},
			{Name: "Shared", Path: scope.CompanySharedPath(c.scope.CompanyID()), Description: "Shared with everyone in the company"},
			{Name: "Admin", Path: scope.CompanyAdminPath(c.scope.CompanyID()), Description: "Visible to admins only"},
		}
	default:
		return []protocol.QuickPath{
			{Name: "My files", Path: c.scope.DefaultPath(), Description: "Your personal folder"},
			{Name: "Shared", Path: scope.CompanySharedPath(c.scope.CompanyID()), Description: "Shared with everyone in the company"},
		}
	}
}

// Ping checks if the proxy is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping: status %d", resp.StatusCode)
	}
	return nil
}

// Plan fetches the tenant's billing plan for display.
func (c *Client) Plan(ctx context.Context) (*protocol.PlanResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/plan", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var plan protocol.PlanResponse
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &plan, nil
}

// doStorage posts one action envelope and decodes the JSON response.
// Requests are never retried; callers decide whether to try again.
func (c *Client) doStorage(ctx context.Context, req *protocol.StorageRequest, out interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/storage", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage request: %w", err)
	}
	return resp, nil
}

// decodeError maps an error status to a Go error, surfacing the server's
// message verbatim.
func decodeError(resp *http.Response) error {
	var apiErr protocol.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if apiErr.Details != "" {
		return fmt.Errorf("%s: %s (status %d)", apiErr.Error, apiErr.Details, resp.StatusCode)
	}
	return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
}
