package objectstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFileEntry(t *testing.T) {
	root := "cloud-vault/"
	prefix := "cloud-vault/company-c1/shared/"
	now := time.Now()

	tests := []struct {
		name     string
		key      string
		wantOK   bool
		wantName string
		wantPath string
	}{
		{"direct child", prefix + "report.pdf", true, "report.pdf", "company-c1/shared/report.pdf"},
		{"zero byte file kept", prefix + "a.txt", true, "a.txt", "company-c1/shared/a.txt"},
		{"marker hidden", prefix + MarkerName, false, "", ""},
		{"prefix itself hidden", prefix, false, "", ""},
		{"nested child hidden", prefix + "docs/inner.txt", false, "", ""},
		{"nested marker hidden", prefix + "docs/" + MarkerName, false, "", ""},
	}

	for _, tt := range tests {
		entry, ok := fileEntry(tt.key, prefix, root, 0, now)
		if ok != tt.wantOK {
			t.Errorf("%s: fileEntry(%q) ok = %v, want %v", tt.name, tt.key, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if entry.Name != tt.wantName {
			t.Errorf("%s: Name = %q, want %q", tt.name, entry.Name, tt.wantName)
		}
		if entry.Path != tt.wantPath {
			t.Errorf("%s: Path = %q, want %q", tt.name, entry.Path, tt.wantPath)
		}
		if entry.IsFolder {
			t.Errorf("%s: leaf object marked as folder", tt.name)
		}
	}
}

func TestFileEntryZeroByteIsNotFolder(t *testing.T) {
	// A 0-byte real file is distinguished from a marker by name, not size.
	entry, ok := fileEntry("cloud-vault/company-c1/shared/a.txt",
		"cloud-vault/company-c1/shared/", "cloud-vault/", 0, time.Time{})
	if !ok {
		t.Fatal("zero-byte file filtered out")
	}
	if entry.Size != 0 || entry.IsFolder {
		t.Errorf("got size=%d isFolder=%v, want 0/false", entry.Size, entry.IsFolder)
	}
}

func unreachableStore(t *testing.T, ctx context.Context) *Store {
	t.Helper()
	store, err := New(ctx, Config{
		Endpoint:        "http://127.0.0.1:1",
		Bucket:          "unreachable",
		AccessKey:       "k",
		SecretKey:       "s",
		Region:          "us-east-1",
		RootPrefix:      "cloud-vault/",
		DeleteMissingOK: false,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestExistsTransportFailureReturnsError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := unreachableStore(t, ctx)
	_, err := store.Exists(ctx, "company-c1/shared/a.txt")
	if err == nil {
		t.Fatal("expected error from unreachable endpoint")
	}
}

func TestDeleteTransportFailureIsNotNotFound(t *testing.T) {
	// With the strict delete policy, an outage during the existence check
	// must not be reported as a missing object.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := unreachableStore(t, ctx)
	err := store.Delete(ctx, "company-c1/shared/a.txt")
	if err == nil {
		t.Fatal("expected error from unreachable endpoint")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("transport failure mapped to ErrNotFound: %v", err)
	}
}

func TestFolderEntry(t *testing.T) {
	entry := folderEntry("cloud-vault/company-c1/shared/docs/", "cloud-vault/")
	if entry.Name != "docs" {
		t.Errorf("Name = %q, want %q", entry.Name, "docs")
	}
	if entry.Path != "company-c1/shared/docs/" {
		t.Errorf("Path = %q, want %q", entry.Path, "company-c1/shared/docs/")
	}
	if !entry.IsFolder {
		t.Error("expected IsFolder = true")
	}
	if entry.Size != 0 {
		t.Errorf("Size = %d, want 0", entry.Size)
	}
}
