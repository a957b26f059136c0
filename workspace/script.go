package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// Kind tells plain scripts from bulk data files.
type Kind int

const (
	// SQL is a script handed to the target platform verbatim.
	SQL Kind = iota
	// Bulk is a delimited data file loaded into the table named after it.
	Bulk
)

func (k Kind) String() string {
	if k == Bulk {
		return "bulk"
	}
	return "sql"
}

const (
	sqlExt  = ".sql"
	bulkExt = ".csv"
)

// Script is a single file of a folder.
type Script struct {
	// Path is the file path.
	Path string
	// Rel is Path relative to the workspace root, e.g. v1.00/tables/a.sql.
	Rel string
	// Name is the file name without extension and environment marker.
	Name string
	Kind Kind
}

func (s Script) String() string {
	return s.Rel
}

// Read returns the file content.
func (s Script) Read() ([]byte, error) {
	return os.ReadFile(s.Path)
}

// Scripts lists the scripts below dir, depth first. Within a directory
// the .sql files come first, then the .csv files, then the
// subdirectories, each group in lexicographic order.
//
// Subdirectories named _<env> and files named <name>._<env>.<ext> are
// only included when environment equals <env>.
func Scripts(dir, environment string) ([]Script, error) {
	return walk(dir, filepath.Dir(dir), environment, true)
}

func walk(dir, base, environment string, filter bool) ([]Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var sqls, bulks []Script
	var subdirs []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		p := filepath.Join(dir, name)

		if e.IsDir() {
			if filter && !matchesEnvironment(dirMarker(name), environment) {
				continue
			}
			subdirs = append(subdirs, p)
			continue
		}

		ext := strings.ToLower(filepath.Ext(name))
		if ext != sqlExt && ext != bulkExt {
			continue
		}
		stem, marker := fileMarker(strings.TrimSuffix(name, filepath.Ext(name)))
		if filter && !matchesEnvironment(marker, environment) {
			continue
		}

		rel, err := filepath.Rel(base, p)
		if err != nil {
			return nil, err
		}
		s := Script{Path: p, Rel: filepath.ToSlash(rel), Name: stem}
		if ext == bulkExt {
			s.Kind = Bulk
			bulks = append(bulks, s)
		} else {
			sqls = append(sqls, s)
		}
	}

	scripts := append(sqls, bulks...)
	for _, d := range subdirs {
		sub, err := walk(d, base, environment, filter)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, sub...)
	}
	return scripts, nil
}

// dirMarker returns the environment of an _<env> directory.
func dirMarker(name string) string {
	if len(name) > 1 && name[0] == '_' {
		return name[1:]
	}
	return ""
}

// fileMarker splits seed._dev into seed and dev.
func fileMarker(stem string) (string, string) {
	i := strings.LastIndex(stem, "._")
	if i < 1 || i+2 >= len(stem) {
		return stem, ""
	}
	return stem[:i], stem[i+2:]
}

func matchesEnvironment(marker, environment string) bool {
	return marker == "" || strings.EqualFold(marker, environment)
}

// Checksum returns the hex encoded SHA-256 over the relative path and
// content of every script, in order.
func Checksum(scripts []Script) (string, error) {
	h := sha256.New()
	for _, s := range scripts {
		b, err := s.Read()
		if err != nil {
			return "", err
		}
		h.Write([]byte(s.Rel))
		h.Write([]byte{0})
		h.Write(b)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
