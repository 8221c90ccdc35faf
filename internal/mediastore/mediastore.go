package mediastore

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var reSafeFilename = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Object describes one stored file.
type Object struct {
	Path      string // path relative to the store root, e.g. trial-videos/trial-<token>.mp4
	PublicURL string
}

// Store writes uploaded files under BaseDir and hands back public URLs, the
// local stand-in for the hosted storage bucket. Object names carry a random
// token so client-chosen filenames can never collide or collide on purpose.
type Store struct {
	BaseDir    string
	PublicBase string // optional origin prefix, e.g. https://cdn.example.com
}

func New(baseDir, publicBase string) *Store {
	if strings.TrimSpace(baseDir) == "" {
		baseDir = "media"
	}
	return &Store{BaseDir: baseDir, PublicBase: strings.TrimRight(publicBase, "/")}
}

// Save stores data as <dir>/<prefix>-<token><ext>, with ext taken from the
// original filename (falling back to the content type).
func (s *Store) Save(dir, prefix, origName, contentType string, data []byte) (Object, error) {
	dir = strings.Trim(strings.TrimSpace(dir), "/")
	if dir == "" || strings.Contains(dir, "..") {
		return Object{}, fmt.Errorf("invalid store directory %q", dir)
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = "file"
	}

	fn := fmt.Sprintf("%s-%s%s", reSafeFilename.ReplaceAllString(prefix, "_"), uuid.NewString(), extFor(origName, contentType))
	full := filepath.Join(s.BaseDir, dir, fn)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Object{}, err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return Object{}, err
	}

	rel := dir + "/" + fn
	return Object{Path: rel, PublicURL: s.PublicBase + "/media/" + rel}, nil
}

// Remove deletes a stored object. Used as compensating cleanup when a write
// that follows an upload fails.
func (s *Store) Remove(relPath string) error {
	relPath = strings.Trim(strings.TrimSpace(relPath), "/")
	if relPath == "" || strings.Contains(relPath, "..") {
		return fmt.Errorf("invalid object path %q", relPath)
	}
	return os.Remove(filepath.Join(s.BaseDir, filepath.FromSlash(relPath)))
}

func extFor(origName, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(reSafeFilename.ReplaceAllString(origName, "_"))); ext != "" && ext != "." {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
