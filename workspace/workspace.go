// Package workspace reads a migration workspace: a root directory holding
// version folders (v0.00, v1.00, v1.01, ...) and the reserved folders
// _init, _pre, _post, _draft and _erase.
//
// The package only reads the file tree, except for Init and the
// Increment functions which create directories.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Reserved is the name of a special purpose folder.
type Reserved string

const (
	// Init scripts run once at the start of every run.
	Init Reserved = "_init"
	// Pre scripts run before the scripts of every pending version.
	Pre Reserved = "_pre"
	// Post scripts run after the scripts of every pending version.
	Post Reserved = "_post"
	// Draft scripts run once at the end of every run.
	Draft Reserved = "_draft"
	// Erase scripts run only on an explicit erase.
	Erase Reserved = "_erase"
)

// ReservedFolders lists every reserved folder in creation order.
var ReservedFolders = []Reserved{Init, Pre, Draft, Post, Erase}

func isReserved(name string) bool {
	for _, r := range ReservedFolders {
		if string(r) == name {
			return true
		}
	}
	return false
}

// ErrDuplicateVersion is returned when two folder names resolve to the
// same version, e.g. v1.00 and v01.00.
type ErrDuplicateVersion struct {
	Version Version
	First   string
	Second  string
}

func (e ErrDuplicateVersion) Error() string {
	return fmt.Sprintf("duplicate version folder %v: %s and %s", e.Version, e.First, e.Second)
}

// Folder is a version folder.
type Folder struct {
	Version Version
	Path    string
}

// Workspace is the ordered view of a workspace root.
type Workspace struct {
	Root string

	// Versions is sorted ascending.
	Versions []Folder

	reserved map[Reserved]string
}

// Reader reads workspaces. It exists so the orchestrator can be handed a
// fake in tests.
type Reader interface {
	Read(root string) (*Workspace, error)
}

// Local reads workspaces from the local file system.
type Local struct{}

// Read implements Reader.
func (Local) Read(root string) (*Workspace, error) {
	return Read(root)
}

// Read scans root.
func Read(root string) (*Workspace, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read workspace %s: %w", root, err)
	}

	w := &Workspace{
		Root:     root,
		reserved: make(map[Reserved]string),
	}
	seen := make(map[Version]string)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if isReserved(name) {
			w.reserved[Reserved(name)] = filepath.Join(root, name)
			continue
		}
		v, err := ParseVersion(name)
		if err != nil {
			continue
		}
		if first, dup := seen[v]; dup {
			return nil, ErrDuplicateVersion{Version: v, First: first, Second: name}
		}
		seen[v] = name
		w.Versions = append(w.Versions, Folder{Version: v, Path: filepath.Join(root, name)})
	}

	sort.Slice(w.Versions, func(i, j int) bool {
		return w.Versions[i].Version.Less(w.Versions[j].Version)
	})
	return w, nil
}

// Reserved returns the path of a reserved folder and whether it exists.
func (w *Workspace) Reserved(r Reserved) (string, bool) {
	p, ok := w.reserved[r]
	return p, ok
}

// Latest returns the highest version folder.
func (w *Workspace) Latest() (Folder, bool) {
	if len(w.Versions) == 0 {
		return Folder{}, false
	}
	return w.Versions[len(w.Versions)-1], true
}

// Folder returns the folder of version v.
func (w *Workspace) Folder(v Version) (Folder, bool) {
	for _, f := range w.Versions {
		if f.Version == v {
			return f, true
		}
	}
	return Folder{}, false
}

// ReservedScripts lists the scripts of a reserved folder. A missing folder
// has no scripts.
func (w *Workspace) ReservedScripts(r Reserved, environment string) ([]Script, error) {
	p, ok := w.Reserved(r)
	if !ok {
		return nil, nil
	}
	return Scripts(p, environment)
}

// DraftIsClear reports whether the _draft folder is missing or holds no
// scripts at all, whatever their environment.
func (w *Workspace) DraftIsClear() (bool, error) {
	p, ok := w.Reserved(Draft)
	if !ok {
		return true, nil
	}
	scripts, err := walk(p, filepath.Dir(p), "", false)
	if err != nil {
		return false, err
	}
	return len(scripts) == 0, nil
}

// Create lays out a new workspace in root: the reserved folders plus the
// baseline version folder v0.00. Existing folders are left alone.
func Create(root string) error {
	dirs := make([]string, 0, len(ReservedFolders)+1)
	for _, r := range ReservedFolders {
		dirs = append(dirs, filepath.Join(root, string(r)))
	}
	dirs = append(dirs, filepath.Join(root, Baseline.String()))

	for _, d := range dirs {
		if err := os.MkdirAll(d, os.ModePerm); err != nil {
			return err
		}
	}
	return nil
}

// IncrementMajor creates the folder of the next major version and returns
// it. An empty workspace gets v1.00.
func IncrementMajor(root string) (Version, error) {
	return increment(root, Version.NextMajor)
}

// IncrementMinor creates the folder of the next minor version and returns
// it. An empty workspace gets v0.01.
func IncrementMinor(root string) (Version, error) {
	return increment(root, Version.NextMinor)
}

func increment(root string, next func(Version) Version) (Version, error) {
	w, err := Read(root)
	if err != nil {
		return Version{}, err
	}

	latest := Baseline
	if f, ok := w.Latest(); ok {
		latest = f.Version
	}
	v := next(latest)

	dir := filepath.Join(root, v.String())
	if err := os.Mkdir(dir, os.ModePerm); err != nil {
		if errors.Is(err, os.ErrExist) {
			return Version{}, fmt.Errorf("version folder %s already exists", v)
		}
		return Version{}, err
	}
	return v, nil
}
