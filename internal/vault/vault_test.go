package vault

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cloudvault/cloudvault/internal/protocol"
	"github.com/cloudvault/cloudvault/internal/scope"
)

func userProfile() scope.Profile {
	return scope.Profile{
		UserID:    "u1",
		Role:      scope.RoleUser,
		CompanyID: "c1",
		Status:    scope.StatusActive,
	}
}

// fakeProxy serves canned storage responses and counts how many requests
// actually reach it.
func fakeProxy(t *testing.T, hits *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)

		var req protocol.StorageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch req.Action {
		case protocol.ActionList:
			json.NewEncoder(w).Encode(protocol.ListResponse{
				Files: []protocol.StoredObject{{Name: "a.txt", Path: req.Path + "a.txt"}},
				Count: 1,
			})
		case protocol.ActionUpload:
			json.NewEncoder(w).Encode(protocol.UploadResponse{
				FilePath: "cloud-vault/" + req.Path + req.FileName,
			})
		case protocol.ActionDelete:
			json.NewEncoder(w).Encode(protocol.DeleteResponse{DeletedKey: req.Key})
		case protocol.ActionDownload:
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte("payload"))
		case protocol.ActionCreateFolder:
			json.NewEncoder(w).Encode(protocol.CreateFolderResponse{FolderPath: req.FolderPath, Verified: true})
		case protocol.ActionDeleteFolder:
			json.NewEncoder(w).Encode(protocol.DeleteFolderResponse{Success: true, Deleted: 3})
		default:
			http.Error(w, "bad action", http.StatusBadRequest)
		}
	}))
}

func TestListFilesDefaultsToScopePath(t *testing.T) {
	var hits int64
	srv := fakeProxy(t, &hits)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Profile: userProfile()})
	files, err := c.ListFiles(context.Background(), "")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1", len(files))
	}
	if hits != 1 {
		t.Errorf("proxy hit %d times, want 1", hits)
	}
}

func TestCrossTenantDeniedWithoutNetworkCall(t *testing.T) {
	var hits int64
	srv := fakeProxy(t, &hits)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Profile: userProfile()})

	calls := []struct {
		name string
		fn   func() error
	}{
		{"list", func() error { _, err := c.ListFiles(context.Background(), "company-2/shared/"); return err }},
		{"upload", func() error {
			_, err := c.UploadFile(context.Background(), "company-2/shared/", "x.txt", "text/plain", []byte("x"))
			return err
		}},
		{"delete", func() error { return c.DeleteFile(context.Background(), "company-2/shared/x.txt") }},
		{"download", func() error { _, err := c.DownloadFile(context.Background(), "company-2/shared/x.txt"); return err }},
		{"createFolder", func() error { return c.CreateFolder(context.Background(), "company-2/shared/docs/") }},
		{"deleteFolder", func() error { _, err := c.DeleteFolder(context.Background(), "company-2/shared/docs/"); return err }},
	}
	for _, call := range calls {
		if err := call.fn(); !errorsIsAccessDenied(err) {
			t.Errorf("%s: err = %v, want access denied", call.name, err)
		}
	}
	if hits != 0 {
		t.Errorf("proxy hit %d times, want 0", hits)
	}
}

func TestAdminSubtreeDeniedForUser(t *testing.T) {
	var hits int64
	srv := fakeProxy(t, &hits)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Profile: userProfile()})
	if _, err := c.ListFiles(context.Background(), "company-c1/admin/"); !errorsIsAccessDenied(err) {
		t.Errorf("err = %v, want access denied", err)
	}
	if hits != 0 {
		t.Errorf("proxy hit %d times, want 0", hits)
	}
}

func TestUploadSizeLimitBlocksBeforeNetwork(t *testing.T) {
	var hits int64
	srv := fakeProxy(t, &hits)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Profile: userProfile(), MaxUploadSize: 4})
	_, err := c.UploadFile(context.Background(), "company-c1/shared/", "big.bin", "", []byte("12345"))
	if err == nil {
		t.Fatal("expected size limit error")
	}
	if hits != 0 {
		t.Errorf("proxy hit %d times, want 0", hits)
	}
}

func TestUploadRejectsBadFileNamesBeforeNetwork(t *testing.T) {
	var hits int64
	srv := fakeProxy(t, &hits)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Profile: userProfile()})
	for _, name := range []string{"", ".", "..", "docs/inner.txt", "../escape.txt"} {
		if _, err := c.UploadFile(context.Background(), "company-c1/shared/", name, "", []byte("x")); err == nil {
			t.Errorf("UploadFile(%q): expected invalid name error", name)
		}
	}
	if hits != 0 {
		t.Errorf("proxy hit %d times, want 0", hits)
	}
}

func TestNavigateToFolderDeniedKeepsCurrentPath(t *testing.T) {
	c := New(Config{BaseURL: "http://unused", Profile: userProfile()})
	before := c.CurrentPath()

	if err := c.NavigateToFolder("company-2/shared/"); !errorsIsAccessDenied(err) {
		t.Fatalf("err = %v, want access denied", err)
	}
	if c.CurrentPath() != before {
		t.Errorf("current path changed to %q on denied navigation", c.CurrentPath())
	}
}

func TestNavigateBackStopsAtDefault(t *testing.T) {
	c := New(Config{BaseURL: "http://unused", Profile: userProfile()})

	if err := c.NavigateToFolder("company-c1/users/u1/docs/"); err != nil {
		t.Fatalf("NavigateToFolder: %v", err)
	}
	if got := c.NavigateBack(); got != "company-c1/users/u1/" {
		t.Errorf("NavigateBack = %q, want %q", got, "company-c1/users/u1/")
	}
	// Above the personal folder is out of scope, so back falls to default.
	if got := c.NavigateBack(); got != c.Scope().DefaultPath() {
		t.Errorf("NavigateBack = %q, want default %q", got, c.Scope().DefaultPath())
	}
}

func TestAvailablePathsByRole(t *testing.T) {
	tests := []struct {
		role  string
		count int
	}{
		{scope.RoleSuperAdmin, 1},
		{scope.RoleCompanyAdmin, 3},
		{scope.RoleUser, 2},
		{scope.RoleHR, 2},
	}
	for _, tt := range tests {
		c := New(Config{BaseURL: "http://unused", Profile: scope.Profile{
			UserID: "u1", Role: tt.role, CompanyID: "c1", Status: scope.StatusActive,
		}})
		paths := c.AvailablePaths()
		if len(paths) != tt.count {
			t.Errorf("%s: got %d quick paths, want %d", tt.role, len(paths), tt.count)
			continue
		}
		for _, qp := range paths {
			if err := c.Scope().ValidatePath(qp.Path); err != nil {
				t.Errorf("%s: quick path %q outside own scope: %v", tt.role, qp.Path, err)
			}
		}
	}
}

func TestDownloadFile(t *testing.T) {
	var hits int64
	srv := fakeProxy(t, &hits)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Profile: userProfile()})
	data, err := c.DownloadFile(context.Background(), "company-c1/shared/a.txt")
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("body = %q, want %q", data, "payload")
	}
}

func TestDeleteFolderReturnsCount(t *testing.T) {
	var hits int64
	srv := fakeProxy(t, &hits)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Profile: userProfile()})
	n, err := c.DeleteFolder(context.Background(), "company-c1/shared/docs/")
	if err != nil {
		t.Fatalf("DeleteFolder: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}
}

func errorsIsAccessDenied(err error) bool {
	return errors.Is(err, scope.ErrAccessDenied)
}
