package mediastore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSave_WritesFileAndBuildsURL(t *testing.T) {
	s := New(t.TempDir(), "https://cdn.example.com")

	obj, err := s.Save("trial-videos", "trial", "promo.mp4", "video/mp4", []byte("abc"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(obj.Path, "trial-videos/trial-") || !strings.HasSuffix(obj.Path, ".mp4") {
		t.Fatalf("unexpected object path %q", obj.Path)
	}
	if obj.PublicURL != "https://cdn.example.com/media/"+obj.Path {
		t.Fatalf("unexpected public url %q", obj.PublicURL)
	}

	b, err := os.ReadFile(filepath.Join(s.BaseDir, filepath.FromSlash(obj.Path)))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(b) != "abc" {
		t.Fatalf("stored content mismatch: %q", b)
	}
}

func TestSave_TokensNeverCollide(t *testing.T) {
	s := New(t.TempDir(), "")

	a, err := s.Save("brand-logos", "logo", "logo.png", "image/png", []byte("1"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := s.Save("brand-logos", "logo", "logo.png", "image/png", []byte("2"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if a.Path == b.Path {
		t.Fatalf("expected distinct object paths, both %q", a.Path)
	}
}

func TestSave_ExtensionFallsBackToContentType(t *testing.T) {
	s := New(t.TempDir(), "")

	obj, err := s.Save("uploads", "file", "noext", "application/json", []byte("{}"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(obj.Path, ".json") {
		t.Fatalf("expected .json extension, got %q", obj.Path)
	}
}

func TestSave_RejectsTraversalDir(t *testing.T) {
	s := New(t.TempDir(), "")
	if _, err := s.Save("../escape", "f", "a.txt", "text/plain", []byte("x")); err == nil {
		t.Fatalf("expected error for traversal directory")
	}
}

func TestRemove_DeletesObject(t *testing.T) {
	s := New(t.TempDir(), "")

	obj, err := s.Save("trial-videos", "trial", "a.mp4", "video/mp4", []byte("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Remove(obj.Path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.BaseDir, filepath.FromSlash(obj.Path))); !os.IsNotExist(err) {
		t.Fatalf("expected object gone, stat err=%v", err)
	}
}

func TestRemove_RejectsTraversal(t *testing.T) {
	s := New(t.TempDir(), "")
	if err := s.Remove("../../etc/passwd"); err == nil {
		t.Fatalf("expected error for traversal path")
	}
}
