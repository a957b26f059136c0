package multistmt_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versadb/migrate/database/multistmt"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		multiStmt string
		expected  []string
	}{
		{name: "no separator", multiStmt: "SELECT 1;\nSELECT 2;",
			expected: []string{"SELECT 1;\nSELECT 2;\n"}},
		{name: "two batches", multiStmt: "CREATE TABLE a (id INT);\nGO\nCREATE VIEW v AS SELECT id FROM a;\nGO\n",
			expected: []string{"CREATE TABLE a (id INT);\n", "CREATE VIEW v AS SELECT id FROM a;\n"}},
		{name: "case and whitespace", multiStmt: "SELECT 1\n  go  \nSELECT 2\nGo -- done\n",
			expected: []string{"SELECT 1\n", "SELECT 2\n"}},
		{name: "blank batches skipped", multiStmt: "GO\n\nGO\nSELECT 1\nGO\n   \n",
			expected: []string{"SELECT 1\n"}},
		{name: "go inside identifiers", multiStmt: "SELECT 1 AS go\nGOTO label\nEXEC dbo.go_fast\n",
			expected: []string{"SELECT 1 AS go\nGOTO label\nEXEC dbo.go_fast\n"}},
		{name: "repeat count", multiStmt: "INSERT INTO t DEFAULT VALUES\nGO 3\n",
			expected: []string{"INSERT INTO t DEFAULT VALUES\n", "INSERT INTO t DEFAULT VALUES\n", "INSERT INTO t DEFAULT VALUES\n"}},
		{name: "block comment", multiStmt: "/* header\nGO\n*/\nSELECT 1\nGO\nSELECT 2",
			expected: []string{"/* header\nGO\n*/\nSELECT 1\n", "SELECT 2\n"}},
		{name: "line comment opening a block", multiStmt: "SELECT 1 -- /* not a block\nGO\nSELECT 2",
			expected: []string{"SELECT 1 -- /* not a block\n", "SELECT 2\n"}},
		{name: "windows line endings", multiStmt: "SELECT 1\r\nGO\r\nSELECT 2\r\n",
			expected: []string{"SELECT 1\n", "SELECT 2\n"}},
		{name: "empty", multiStmt: "", expected: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stmts, err := multistmt.Split(tc.multiStmt)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, stmts)
		})
	}
}

func TestParseHandlerError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := multistmt.Parse(strings.NewReader("SELECT 1\nGO\nSELECT 2\nGO\nSELECT 3"), func(b []byte) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "batch 2")
	assert.Equal(t, 2, calls)
}
