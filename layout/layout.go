// Package layout owns the mapping from entity identity to file paths and
// performs all writes to the vault directory tree.
//
// Tasks live under date-bucketed directories to bound directory sizes:
//
//	active/<year>/<month>/<id>-<slug>.task   bucketed by creation time
//	archive/<year>/<month>/<id>-<slug>.task  bucketed by completion time
//	boards/<id>-<slug>.board
//
// Every write is atomic from a concurrent reader's perspective: content
// goes to a temp file in the same directory and is renamed into place.
// The vault is shared with external editors and sync tools, so a reader
// must never observe a partially written document.
package layout

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/taskvault/taskvault/types"
)

// File extensions for the two document kinds.
const (
	TaskExt  = ".task"
	BoardExt = ".board"
)

// Top-level set directories.
const (
	activeDir  = "active"
	archiveDir = "archive"
	boardsDir  = "boards"
)

const (
	dirPerm  = 0755
	filePerm = 0644

	maxSlugLen = 40
)

// Entry identifies one recognized document path within the vault.
type Entry struct {
	RelPath   string
	ID        string
	Kind      types.EntityKind
	Lifecycle types.Lifecycle
}

// Manager computes canonical paths and performs atomic file operations
// relative to the vault root. It owns path computation and nothing else;
// entity lifetime belongs to the store.
type Manager struct {
	root string
	fs   FileSystem
}

// NewManager creates a layout manager rooted at dir. A nil fs defaults
// to the real file system.
func NewManager(dir string, fsys FileSystem) *Manager {
	if fsys == nil {
		fsys = OSFileSystem{}
	}
	return &Manager{root: dir, fs: fsys}
}

// Root returns the vault root directory.
func (m *Manager) Root() string { return m.root }

// Abs converts a vault-relative path to an absolute one.
func (m *Manager) Abs(rel string) string { return filepath.Join(m.root, rel) }

// Rel converts an absolute path inside the vault back to a relative one.
func (m *Manager) Rel(abs string) (string, error) {
	return filepath.Rel(m.root, abs)
}

// TaskPath computes the canonical path for a task, bucketed by creation
// time in the active set and by completion time in the archive set.
func (m *Manager) TaskPath(t types.Task) string {
	bucket := t.CreatedAt
	set := activeDir
	if t.Lifecycle == types.LifecycleArchived {
		bucket = t.UpdatedAt
		set = archiveDir
	}
	bucket = bucket.UTC()
	name := t.ID + "-" + Slug(t.Title) + TaskExt
	return filepath.Join(set, fmt.Sprintf("%04d", bucket.Year()), fmt.Sprintf("%02d", int(bucket.Month())), name)
}

// BoardPath computes the canonical path for a board. Boards are never
// archived and live outside the date buckets.
func (m *Manager) BoardPath(b types.Board) string {
	return filepath.Join(boardsDir, b.ID+"-"+Slug(b.Name)+BoardExt)
}

// ConflictPath returns the sibling path used to preserve the losing
// version of a conflicted document. The stamp goes before the extension
// so editors still treat the backup as a document; the extra dot keeps
// it outside the recognized naming scheme, so the watcher ignores it.
func (m *Manager) ConflictPath(rel string, now time.Time) string {
	ext := filepath.Ext(rel)
	base := strings.TrimSuffix(rel, ext)
	return base + ".conflict-" + now.UTC().Format("20060102T150405") + ext
}

// WriteAtomic writes content to the vault-relative path via a temp file
// and rename, creating parent directories as needed.
func (m *Manager) WriteAtomic(rel string, content []byte) error {
	abs := m.Abs(rel)
	if err := m.fs.MkdirAll(filepath.Dir(abs), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := abs + ".tmp"
	if err := m.fs.WriteFile(tmp, content, filePerm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := m.fs.Rename(tmp, abs); err != nil {
		_ = m.fs.Remove(tmp)
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	return nil
}

// Read returns the contents of a vault-relative path.
func (m *Manager) Read(rel string) ([]byte, error) {
	return m.fs.ReadFile(m.Abs(rel))
}

// Remove deletes a vault-relative path.
func (m *Manager) Remove(rel string) error {
	return m.fs.Remove(m.Abs(rel))
}

// Exists reports whether a vault-relative path exists.
func (m *Manager) Exists(rel string) bool {
	_, err := m.fs.Stat(m.Abs(rel))
	return err == nil
}

// Rename moves a document between two vault-relative paths, creating the
// target directory. It is a rename, not a copy+delete, so there is no
// window where the entity exists in neither or both locations.
func (m *Manager) Rename(oldRel, newRel string) error {
	newAbs := m.Abs(newRel)
	if err := m.fs.MkdirAll(filepath.Dir(newAbs), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := m.fs.Rename(m.Abs(oldRel), newAbs); err != nil {
		return fmt.Errorf("failed to move document: %w", err)
	}
	return nil
}

// MoveToArchive renames a task's document from the active set into the
// archive set and returns the new relative path. The task passed in must
// still carry its active-set lifecycle and paths.
func (m *Manager) MoveToArchive(t types.Task) (string, error) {
	oldRel := m.TaskPath(t)
	archived := t
	archived.Lifecycle = types.LifecycleArchived
	newRel := m.TaskPath(archived)
	if err := m.Rename(oldRel, newRel); err != nil {
		return "", err
	}
	return newRel, nil
}

// Recognize parses a vault-relative path back into entity identity.
// Paths outside the naming scheme (temp files, conflict backups, foreign
// files) return ok=false and are ignored by the watcher.
func (m *Manager) Recognize(rel string) (Entry, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) == 2 && parts[0] == boardsDir:
		id, ok := parseDocName(parts[1], BoardExt)
		if !ok {
			return Entry{}, false
		}
		return Entry{RelPath: rel, ID: id, Kind: types.KindBoard, Lifecycle: types.LifecycleActive}, true
	case len(parts) == 4 && (parts[0] == activeDir || parts[0] == archiveDir):
		if !bucketRe.MatchString(parts[1]) || !monthRe.MatchString(parts[2]) {
			return Entry{}, false
		}
		id, ok := parseDocName(parts[3], TaskExt)
		if !ok {
			return Entry{}, false
		}
		lifecycle := types.LifecycleActive
		if parts[0] == archiveDir {
			lifecycle = types.LifecycleArchived
		}
		return Entry{RelPath: rel, ID: id, Kind: types.KindTask, Lifecycle: lifecycle}, true
	}
	return Entry{}, false
}

var (
	bucketRe = regexp.MustCompile(`^\d{4}$`)
	monthRe  = regexp.MustCompile(`^\d{2}$`)
	dashRe   = regexp.MustCompile(`-+`)
)

// parseDocName extracts the UUID from an "<id>-<slug><ext>" file name.
func parseDocName(name, ext string) (string, bool) {
	if !strings.HasSuffix(name, ext) {
		return "", false
	}
	base := strings.TrimSuffix(name, ext)
	// Slugs carry no dots; a dotted base is a conflict backup or some
	// other derived file.
	if strings.Contains(base, ".") {
		return "", false
	}
	const uuidLen = 36
	if len(base) < uuidLen {
		return "", false
	}
	id := base[:uuidLen]
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	if len(base) > uuidLen && base[uuidLen] != '-' {
		return "", false
	}
	return id, true
}

// Scan walks the active, archive, and boards trees and returns every
// recognized document path. Unrecognized files are skipped silently;
// the vault may contain conflict backups and foreign files.
func (m *Manager) Scan() ([]Entry, error) {
	var entries []Entry
	for _, set := range []string{activeDir, archiveDir, boardsDir} {
		root := m.Abs(set)
		if _, err := m.fs.Stat(root); err != nil {
			continue // set not created yet
		}
		err := m.fs.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d == nil || d.IsDir() {
				return nil
			}
			rel, relErr := m.Rel(path)
			if relErr != nil {
				return nil
			}
			if entry, ok := m.Recognize(rel); ok {
				entries = append(entries, entry)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", set, err)
		}
	}
	return entries, nil
}

// Slug sanitizes a title for use in a file name: lowercase, spaces to
// dashes, only alphanumerics/dash/underscore, bounded length.
func Slug(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = strings.ReplaceAll(s, " ", "-")

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	s = dashRe.ReplaceAllString(b.String(), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.Trim(s[:maxSlugLen], "-")
	}
	if s == "" {
		s = "untitled"
	}
	return s
}
