package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), os.ModePerm))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func rels(scripts []Script) []string {
	out := make([]string, 0, len(scripts))
	for _, s := range scripts {
		out = append(out, s.Rel)
	}
	return out
}

func TestCreate(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")
	require.NoError(t, Create(root))
	// again, must not fail
	require.NoError(t, Create(root))

	w, err := Read(root)
	require.NoError(t, err)

	for _, r := range ReservedFolders {
		_, ok := w.Reserved(r)
		assert.True(t, ok, "expected reserved folder %s", r)
	}
	require.Len(t, w.Versions, 1)
	assert.Equal(t, "v0.00", w.Versions[0].Version.String())
}

func TestIncrement(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Create(root))

	steps := []struct {
		major bool
		want  string
	}{
		{major: true, want: "v1.00"},
		{major: false, want: "v1.01"},
		{major: false, want: "v1.02"},
		{major: true, want: "v2.00"},
		{major: false, want: "v2.01"},
	}
	prev := Baseline
	for _, s := range steps {
		var v Version
		var err error
		if s.major {
			v, err = IncrementMajor(root)
		} else {
			v, err = IncrementMinor(root)
		}
		require.NoError(t, err)
		assert.Equal(t, s.want, v.String())
		assert.True(t, prev.Less(v), "%v must be greater than %v", v, prev)
		prev = v

		_, err = os.Stat(filepath.Join(root, s.want))
		assert.NoError(t, err)
	}
}

func TestIncrementPastNine(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "v1.09"), os.ModePerm))

	v, err := IncrementMinor(root)
	require.NoError(t, err)
	assert.Equal(t, "v1.10", v.String())

	// v1.10 is numerically the latest, even though "v1.09" > "v1.1" as strings
	v, err = IncrementMinor(root)
	require.NoError(t, err)
	assert.Equal(t, "v1.11", v.String())
}

func TestIncrementEmpty(t *testing.T) {
	v, err := IncrementMajor(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "v1.00", v.String())

	v, err = IncrementMinor(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "v0.01", v.String())
}

func TestReadOrdersNumerically(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"v1.10", "v1.02", "v10.00", "v2.00", "v0.00", "notaversion", "_init", "v1.2"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, d), os.ModePerm))
	}
	writeFile(t, filepath.Join(root, "README.md"), "readme")

	w, err := Read(root)
	require.NoError(t, err)

	var got []string
	for _, f := range w.Versions {
		got = append(got, f.Version.String())
	}
	assert.Equal(t, []string{"v0.00", "v1.02", "v1.10", "v2.00", "v10.00"}, got)

	latest, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, "v10.00", latest.Version.String())

	_, ok = w.Reserved(Init)
	assert.True(t, ok)
	_, ok = w.Reserved(Erase)
	assert.False(t, ok)
}

func TestReadDuplicateVersion(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "v1.00"), os.ModePerm))
	require.NoError(t, os.Mkdir(filepath.Join(root, "v01.00"), os.ModePerm))

	_, err := Read(root)
	var dup ErrDuplicateVersion
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "v1.00", dup.Version.String())
}

func TestReadMissingRoot(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestScriptsDepthFirst(t *testing.T) {
	root := t.TempDir()
	v1 := filepath.Join(root, "v1.00")
	writeFile(t, filepath.Join(v1, "b.sql"), "b")
	writeFile(t, filepath.Join(v1, "a.sql"), "a")
	writeFile(t, filepath.Join(v1, "Customers.csv"), "id\n1")
	writeFile(t, filepath.Join(v1, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(v1, "v1.00-level1", "c.sql"), "c")
	writeFile(t, filepath.Join(v1, "v1.00-level1", "v1.00-level1-sublevel1", "d.sql"), "d")
	writeFile(t, filepath.Join(v1, "v1.00-level1", "z.sql"), "z")
	writeFile(t, filepath.Join(v1, "a-level1", "e.sql"), "e")

	scripts, err := Scripts(v1, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"v1.00/a.sql",
		"v1.00/b.sql",
		"v1.00/Customers.csv",
		"v1.00/a-level1/e.sql",
		"v1.00/v1.00-level1/c.sql",
		"v1.00/v1.00-level1/z.sql",
		"v1.00/v1.00-level1/v1.00-level1-sublevel1/d.sql",
	}, rels(scripts))

	assert.Equal(t, Bulk, scripts[2].Kind)
	assert.Equal(t, "Customers", scripts[2].Name)
	assert.Equal(t, SQL, scripts[0].Kind)
	assert.Equal(t, "a", scripts[0].Name)
}

func TestScriptsEnvironment(t *testing.T) {
	root := t.TempDir()
	v1 := filepath.Join(root, "v1.00")
	writeFile(t, filepath.Join(v1, "common.sql"), "")
	writeFile(t, filepath.Join(v1, "seed._dev.sql"), "")
	writeFile(t, filepath.Join(v1, "seed._prod.sql"), "")
	writeFile(t, filepath.Join(v1, "Lookup._dev.csv"), "id\n1")
	writeFile(t, filepath.Join(v1, "_dev", "dev_only.sql"), "")
	writeFile(t, filepath.Join(v1, "_prod", "prod_only.sql"), "")

	tt := []struct {
		environment string
		want        []string
	}{
		{environment: "", want: []string{"v1.00/common.sql"}},
		{environment: "dev", want: []string{
			"v1.00/common.sql", "v1.00/seed._dev.sql", "v1.00/Lookup._dev.csv", "v1.00/_dev/dev_only.sql",
		}},
		{environment: "PROD", want: []string{
			"v1.00/common.sql", "v1.00/seed._prod.sql", "v1.00/_prod/prod_only.sql",
		}},
	}
	for _, tc := range tt {
		t.Run("env="+tc.environment, func(t *testing.T) {
			scripts, err := Scripts(v1, tc.environment)
			require.NoError(t, err)
			assert.Equal(t, tc.want, rels(scripts))
		})
	}

	scripts, err := Scripts(v1, "dev")
	require.NoError(t, err)
	assert.Equal(t, "seed", scripts[1].Name)
	assert.Equal(t, "Lookup", scripts[2].Name)
}

func TestDraftIsClear(t *testing.T) {
	root := t.TempDir()

	w, err := Read(root)
	require.NoError(t, err)
	isClear, err := w.DraftIsClear()
	require.NoError(t, err)
	assert.True(t, isClear, "missing _draft is clear")

	require.NoError(t, Create(root))
	w, err = Read(root)
	require.NoError(t, err)
	isClear, err = w.DraftIsClear()
	require.NoError(t, err)
	assert.True(t, isClear, "empty _draft is clear")

	writeFile(t, filepath.Join(root, "_draft", "_dev", "wip.sql"), "select 1")
	isClear, err = w.DraftIsClear()
	require.NoError(t, err)
	assert.False(t, isClear, "environment specific drafts still count")
}

func TestChecksum(t *testing.T) {
	root := t.TempDir()
	v1 := filepath.Join(root, "v1.00")
	writeFile(t, filepath.Join(v1, "a.sql"), "create table a (id int);")

	scripts, err := Scripts(v1, "")
	require.NoError(t, err)
	first, err := Checksum(scripts)
	require.NoError(t, err)
	assert.Len(t, first, 64)

	again, err := Checksum(scripts)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	writeFile(t, filepath.Join(v1, "a.sql"), "create table a (id bigint);")
	changed, err := Checksum(scripts)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}
