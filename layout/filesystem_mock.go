package layout

import (
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockFileSystem is an in-memory FileSystem for unit tests. It supports
// injecting failures on write and rename, which is how the atomicity
// tests simulate a crash between the temp-file write and the rename.
type MockFileSystem struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool

	// WriteErr, when set, is returned by every WriteFile call.
	WriteErr error
	// RenameErr, when set, is returned by every Rename call. The temp
	// file is left behind, like a real crashed writer would.
	RenameErr error

	writes  int
	renames int
}

// NewMockFileSystem returns an empty in-memory file system.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		files: make(map[string][]byte),
		dirs:  map[string]bool{".": true},
	}
}

type mockFileInfo struct {
	name  string
	size  int64
	isDir bool
}

func (fi mockFileInfo) Name() string       { return fi.name }
func (fi mockFileInfo) Size() int64        { return fi.size }
func (fi mockFileInfo) Mode() fs.FileMode  { return 0644 }
func (fi mockFileInfo) ModTime() time.Time { return time.Time{} }
func (fi mockFileInfo) IsDir() bool        { return fi.isDir }
func (fi mockFileInfo) Sys() interface{}   { return nil }

func (m *MockFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = path.Clean(name)
	if data, ok := m.files[name]; ok {
		return mockFileInfo{name: path.Base(name), size: int64(len(data))}, nil
	}
	if m.dirs[name] {
		return mockFileInfo{name: path.Base(name), isDir: true}, nil
	}
	return nil, fs.ErrNotExist
}

func (m *MockFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path.Clean(name)]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

func (m *MockFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.writes++
	m.files[path.Clean(name)] = append([]byte(nil), data...)
	return nil
}

func (m *MockFileSystem) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RenameErr != nil {
		return m.RenameErr
	}
	oldpath, newpath = path.Clean(oldpath), path.Clean(newpath)
	data, ok := m.files[oldpath]
	if !ok {
		return fs.ErrNotExist
	}
	m.renames++
	delete(m.files, oldpath)
	m.files[newpath] = data
	return nil
}

func (m *MockFileSystem) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = path.Clean(name)
	if _, ok := m.files[name]; !ok {
		return fs.ErrNotExist
	}
	delete(m.files, name)
	return nil
}

func (m *MockFileSystem) MkdirAll(p string, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	for p != "." && p != "/" {
		m.dirs[p] = true
		p = path.Dir(p)
	}
	return nil
}

// WalkDir visits every file under root in lexical order. Directory
// entries are synthesized from file paths; the mock does not model
// empty directories beyond those created by MkdirAll.
func (m *MockFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	m.mu.Lock()
	root = path.Clean(root)
	var names []string
	for name := range m.files {
		if name == root || strings.HasPrefix(name, root+"/") {
			names = append(names, name)
		}
	}
	rootExists := m.dirs[root]
	m.mu.Unlock()

	if !rootExists && len(names) == 0 {
		return fn(root, nil, fs.ErrNotExist)
	}
	sort.Strings(names)
	for _, name := range names {
		info, err := m.Stat(name)
		if err != nil {
			continue // removed mid-walk
		}
		if err := fn(name, fs.FileInfoToDirEntry(info), nil); err != nil {
			return err
		}
	}
	return nil
}

// FileExists reports whether the mock holds a file at name.
func (m *MockFileSystem) FileExists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path.Clean(name)]
	return ok
}

// GetFileContent returns the raw bytes stored at name.
func (m *MockFileSystem) GetFileContent(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path.Clean(name)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// WriteCount returns how many successful WriteFile calls have happened.
func (m *MockFileSystem) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
