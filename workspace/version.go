package workspace

import (
	"fmt"
	"regexp"
	"strconv"
)

// ErrParse is returned when a name is not a version folder name.
var ErrParse = fmt.Errorf("no match")

// Regex matches version folder names like v0.00, v1.02 or v12.10.
var Regex = regexp.MustCompile(`^v([0-9]+)\.([0-9]{2,})$`)

// Baseline is the version created by Init.
var Baseline = Version{}

// Version is a major.minor version identifier.
// Versions compare numerically, so v1.10 sorts after v1.02.
type Version struct {
	Major int
	Minor int
}

// ParseVersion parses a version folder name.
func ParseVersion(raw string) (Version, error) {
	m := Regex.FindStringSubmatch(raw)
	if len(m) != 3 {
		return Version{}, fmt.Errorf("%w: %q is not a version (expected vMM.mm)", ErrParse, raw)
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, err
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return Version{}, err
	}
	return Version{Major: major, Minor: minor}, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%02d", v.Major, v.Minor)
}

// Compare returns -1, 0 or +1 depending on whether v is lower, equal or
// higher than o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major < o.Major:
		return -1
	case v.Major > o.Major:
		return 1
	case v.Minor < o.Minor:
		return -1
	case v.Minor > o.Minor:
		return 1
	}
	return 0
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// NextMajor returns v(M+1).00.
func (v Version) NextMajor() Version {
	return Version{Major: v.Major + 1}
}

// NextMinor returns vM.(m+1).
func (v Version) NextMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}
