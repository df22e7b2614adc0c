// Package proxy implements the storage proxy endpoint: the only network
// party holding object store credentials. Browser-side callers send an
// {action, ...} JSON envelope and the proxy brokers the object store call,
// side-writing the file registry and audit log on mutations.
package proxy

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloudvault/cloudvault/internal/identity"
	"github.com/cloudvault/cloudvault/internal/logging"
	"github.com/cloudvault/cloudvault/internal/metadata/postgres"
	"github.com/cloudvault/cloudvault/internal/metrics"
	"github.com/cloudvault/cloudvault/internal/objectstore"
	"github.com/cloudvault/cloudvault/internal/protocol"
	"github.com/cloudvault/cloudvault/internal/scope"
)

// Server is the storage proxy HTTP server.
type Server struct {
	store         *objectstore.Store
	meta          *postgres.Store
	auth          *identity.Auth
	maxUploadSize int64
}

// NewServer creates a new proxy server.
func NewServer(store *objectstore.Store, meta *postgres.Store, auth *identity.Auth, maxUploadSize int64) *Server {
	return &Server{
		store:         store,
		meta:          meta,
		auth:          auth,
		maxUploadSize: maxUploadSize,
	}
}

// Handler returns the HTTP handler with auth, CORS, logging and metrics
// middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/token", s.auth.HandleLogin)

	// Protected endpoints
	protected := http.NewServeMux()
	protected.HandleFunc("POST /api/v1/storage", s.handleStorage)
	protected.HandleFunc("GET /api/v1/plan", s.handlePlan)

	mux.Handle("/api/v1/", s.auth.Middleware(protected))

	return corsMiddleware(metrics.Middleware(logging.Middleware(mux)))
}

// corsMiddleware permits any origin; the browser client runs on a different
// host than the proxy.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	profile, ok := identity.ProfileFrom(r.Context())
	if !ok {
		s.sendError(w, http.StatusUnauthorized, "missing authentication", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize*4/3+4096)
	var req protocol.StorageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	switch req.Action {
	case protocol.ActionList:
		s.handleList(w, r, profile, &req)
	case protocol.ActionUpload:
		s.handleUpload(w, r, profile, &req)
	case protocol.ActionDelete:
		s.handleDelete(w, r, profile, &req)
	case protocol.ActionDownload:
		s.handleDownload(w, r, profile, &req)
	case protocol.ActionCreateFolder:
		s.handleCreateFolder(w, r, profile, &req)
	case protocol.ActionDeleteFolder:
		s.handleDeleteFolder(w, r, profile, &req)
	default:
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusBadRequest, "invalid action: "+req.Action, "")
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, profile scope.Profile, req *protocol.StorageRequest) {
	path := normalizeFolderPath(req.Path)
	if !s.tenantAllowed(profile, path) {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusForbidden, "path outside your company scope", "")
		return
	}

	objects, err := s.store.List(r.Context(), path)
	if err != nil {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusInternalServerError, "object store operation failed", err.Error())
		return
	}

	metrics.RecordProxyAction(req.Action, true)
	s.sendJSON(w, http.StatusOK, protocol.ListResponse{Files: objects, Count: len(objects)})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, profile scope.Profile, req *protocol.StorageRequest) {
	if req.FileName == "" || req.FileContent == "" {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusBadRequest, "fileName and fileContent are required", "")
		return
	}
	if !scope.ValidFileName(req.FileName) {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusBadRequest, "invalid file name: "+req.FileName, "")
		return
	}

	path := normalizeFolderPath(req.Path)
	if !s.tenantAllowed(profile, path) {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusForbidden, "path outside your company scope", "")
		return
	}

	body, err := base64.StdEncoding.DecodeString(req.FileContent)
	if err != nil {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusBadRequest, "fileContent is not valid base64", err.Error())
		return
	}
	if int64(len(body)) > s.maxUploadSize {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds the %d byte upload limit", s.maxUploadSize), "")
		return
	}

	key := path + req.FileName
	if err := s.store.Put(r.Context(), key, body, req.ContentType); err != nil {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusInternalServerError, "object store operation failed", err.Error())
		return
	}

	// Best-effort metadata side-writes. The object is already stored; a
	// failed row write leaves an orphan rather than failing the upload.
	fullPath := s.store.RootPrefix() + key
	s.recordFile(r, profile, req, fullPath, int64(len(body)))
	s.audit(r, profile, "upload", "file", req.FileName, fmt.Sprintf("path=%s size=%d", path, len(body)))

	metrics.RecordUpload(int64(len(body)))
	metrics.RecordProxyAction(req.Action, true)
	s.sendJSON(w, http.StatusOK, protocol.UploadResponse{FilePath: fullPath})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, profile scope.Profile, req *protocol.StorageRequest) {
	if req.Key == "" {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusBadRequest, "key is required", "")
		return
	}

	key := s.normalizeKey(req.Key)
	if !s.tenantAllowed(profile, key) {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusNotFound, "file not found", "")
		return
	}

	if err := s.store.Delete(r.Context(), key); err != nil {
		metrics.RecordProxyAction(req.Action, false)
		if errors.Is(err, objectstore.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "file not found", "")
			return
		}
		s.sendError(w, http.StatusInternalServerError, "object store operation failed", err.Error())
		return
	}

	if err := s.meta.DeleteFileRecordByPath(r.Context(), s.store.RootPrefix()+key); err != nil {
		logging.Warn("file registry delete failed", zap.String("key", key), zap.Error(err))
	}
	s.audit(r, profile, "delete", "file", leafName(key), "key="+key)

	metrics.RecordProxyAction(req.Action, true)
	s.sendJSON(w, http.StatusOK, protocol.DeleteResponse{DeletedKey: key})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, profile scope.Profile, req *protocol.StorageRequest) {
	if req.Key == "" {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusBadRequest, "key is required", "")
		return
	}

	key := s.normalizeKey(req.Key)
	if !s.tenantAllowed(profile, key) {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusNotFound, "file not found", "")
		return
	}

	body, contentType, err := s.store.Get(r.Context(), key)
	if err != nil {
		metrics.RecordProxyAction(req.Action, false)
		if errors.Is(err, objectstore.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "file not found", "")
			return
		}
		s.sendError(w, http.StatusInternalServerError, "object store operation failed", err.Error())
		return
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", leafName(key)))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)

	metrics.RecordDownload(int64(len(body)))
	metrics.RecordProxyAction(req.Action, true)
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request, profile scope.Profile, req *protocol.StorageRequest) {
	if req.FolderPath == "" {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusBadRequest, "folderPath is required", "")
		return
	}

	folderPath := normalizeFolderPath(req.FolderPath)
	if !s.tenantAllowed(profile, folderPath) {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusForbidden, "path outside your company scope", "")
		return
	}

	// Re-creating an existing marker is a no-op success.
	marker := folderPath + objectstore.MarkerName
	if err := s.store.Put(r.Context(), marker, nil, ""); err != nil {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusInternalServerError, "object store operation failed", err.Error())
		return
	}
	verified, err := s.store.Exists(r.Context(), marker)
	if err != nil {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusInternalServerError, "object store operation failed", err.Error())
		return
	}

	parentID := ""
	if parent := scope.ParentPath(folderPath); parent != "" {
		id, err := s.meta.GetFolderIDByPath(r.Context(), parent)
		if err != nil {
			logging.Warn("parent folder lookup failed", zap.String("path", parent), zap.Error(err))
		}
		parentID = id
	}
	if err := s.meta.InsertFolderRecord(r.Context(), &postgres.FolderRecord{
		ID:         uuid.NewString(),
		Name:       leafName(folderPath),
		FolderPath: folderPath,
		ParentID:   parentID,
		CreatedBy:  profile.UserID,
		CompanyID:  scope.TenantOf(folderPath),
	}); err != nil {
		logging.Warn("folder record insert failed", zap.String("path", folderPath), zap.Error(err))
	}
	s.audit(r, profile, "create_folder", "folder", leafName(folderPath), "path="+folderPath)

	metrics.RecordProxyAction(req.Action, true)
	s.sendJSON(w, http.StatusOK, protocol.CreateFolderResponse{FolderPath: folderPath, Verified: verified})
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request, profile scope.Profile, req *protocol.StorageRequest) {
	if req.FolderPath == "" {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusBadRequest, "folderPath is required", "")
		return
	}

	folderPath := normalizeFolderPath(req.FolderPath)
	if !s.tenantAllowed(profile, folderPath) {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusForbidden, "path outside your company scope", "")
		return
	}

	keys, err := s.store.ListAll(r.Context(), folderPath)
	if err != nil {
		metrics.RecordProxyAction(req.Action, false)
		s.sendError(w, http.StatusInternalServerError, "object store operation failed", err.Error())
		return
	}

	deleted := 0
	for _, key := range keys {
		if err := s.store.Delete(r.Context(), key); err != nil {
			metrics.RecordProxyAction(req.Action, false)
			s.sendError(w, http.StatusInternalServerError, "object store operation failed", err.Error())
			return
		}
		if err := s.meta.DeleteFileRecordByPath(r.Context(), s.store.RootPrefix()+key); err != nil {
			logging.Warn("file registry delete failed", zap.String("key", key), zap.Error(err))
		}
		deleted++
	}

	if err := s.meta.DeleteFolderRecord(r.Context(), folderPath); err != nil {
		logging.Warn("folder record delete failed", zap.String("path", folderPath), zap.Error(err))
	}
	s.audit(r, profile, "delete_folder", "folder", leafName(folderPath),
		fmt.Sprintf("path=%s deleted=%d", folderPath, deleted))

	metrics.RecordProxyAction(req.Action, true)
	s.sendJSON(w, http.StatusOK, protocol.DeleteFolderResponse{Success: true, Deleted: deleted})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	profile, ok := identity.ProfileFrom(r.Context())
	if !ok {
		s.sendError(w, http.StatusUnauthorized, "missing authentication", "")
		return
	}
	if profile.CompanyID == "" {
		s.sendError(w, http.StatusNotFound, "no plan for this account", "")
		return
	}

	plan, err := s.meta.GetPlan(r.Context(), profile.CompanyID)
	if err != nil {
		s.sendError(w, http.StatusNotFound, "plan not found", "")
		return
	}

	s.sendJSON(w, http.StatusOK, protocol.PlanResponse{
		CompanyID:        plan.CompanyID,
		Name:             plan.Name,
		MaxStorageBytes:  plan.MaxStorageBytes,
		MaxDownloadBytes: plan.MaxDownloadBytes,
		MaxUsers:         plan.MaxUsers,
	})
}

// tenantAllowed checks the company segment of a path or key against the
// caller's tenant. This is the proxy's own authorization; the client-side
// scope check is advisory only.
func (s *Server) tenantAllowed(profile scope.Profile, path string) bool {
	allowed := profile.Role == scope.RoleSuperAdmin ||
		scope.TenantOf(path) == profile.CompanyID
	metrics.RecordScopeCheck(allowed)
	return allowed
}

// normalizeKey strips the root prefix when clients send fully qualified keys.
func (s *Server) normalizeKey(key string) string {
	return strings.TrimPrefix(key, s.store.RootPrefix())
}

func (s *Server) recordFile(r *http.Request, profile scope.Profile, req *protocol.StorageRequest, fullPath string, size int64) {
	err := s.meta.InsertFileRecord(r.Context(), &postgres.FileRecord{
		ID:         uuid.NewString(),
		Name:       req.FileName,
		FilePath:   fullPath,
		FileSize:   size,
		FileType:   req.ContentType,
		UploadedBy: profile.UserID,
		CompanyID:  scope.TenantOf(req.Path),
	})
	if err != nil {
		logging.Warn("file registry insert failed", zap.String("path", fullPath), zap.Error(err))
	}
}

func (s *Server) audit(r *http.Request, profile scope.Profile, action, targetType, targetName, details string) {
	err := s.meta.AppendLog(r.Context(), &postgres.LogEntry{
		UserID:     profile.UserID,
		Action:     action,
		TargetType: targetType,
		TargetName: targetName,
		CompanyID:  profile.CompanyID,
		Details:    details,
	})
	if err != nil {
		logging.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func normalizeFolderPath(path string) string {
	path = strings.TrimPrefix(path, "/")
	if path != "" && !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path
}

func leafName(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
