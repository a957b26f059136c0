package workspace

import (
	"errors"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tt := []struct {
		raw       string
		expectErr bool
		expect    Version
	}{
		{raw: "v0.00", expect: Version{}},
		{raw: "v1.02", expect: Version{Major: 1, Minor: 2}},
		{raw: "v12.10", expect: Version{Major: 12, Minor: 10}},
		{raw: "v1.100", expect: Version{Major: 1, Minor: 100}},
		{raw: "v1.2", expectErr: true},
		{raw: "1.02", expectErr: true},
		{raw: "v1.02-level1", expectErr: true},
		{raw: "_init", expectErr: true},
		{raw: "", expectErr: true},
	}

	for i, v := range tt {
		got, err := ParseVersion(v.raw)
		if v.expectErr {
			if !errors.Is(err, ErrParse) {
				t.Errorf("expected ErrParse for %q, got %v, in %v", v.raw, err, i)
			}
			continue
		}
		if err != nil {
			t.Errorf("expected err to be nil for %q, got %v, in %v", v.raw, err, i)
			continue
		}
		if got != v.expect {
			t.Errorf("expected %v, got %v, in %v", v.expect, got, i)
		}
		if got.String() != v.raw {
			t.Errorf("expected %v to render as %q, got %q, in %v", got, v.raw, got.String(), i)
		}
	}
}

func TestVersionCompare(t *testing.T) {
	ordered := []string{"v0.00", "v0.01", "v1.00", "v1.02", "v1.09", "v1.10", "v2.00", "v10.00"}
	for i := range ordered {
		for j := range ordered {
			a, b := MustParseVersion(ordered[i]), MustParseVersion(ordered[j])
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got := a.Compare(b); got != want {
				t.Errorf("%v.Compare(%v): expected %d, got %d", a, b, want, got)
			}
		}
	}
}

func TestVersionNext(t *testing.T) {
	v := MustParseVersion("v1.09")
	if got := v.NextMinor().String(); got != "v1.10" {
		t.Errorf("expected v1.10, got %v", got)
	}
	if got := v.NextMajor().String(); got != "v2.00" {
		t.Errorf("expected v2.00, got %v", got)
	}
	if got := Baseline.String(); got != "v0.00" {
		t.Errorf("expected v0.00, got %v", got)
	}
}
