// Package bulk loads delimited data files into database tables.
//
// A data file named <table>.csv (or <schema>.<table>.csv) is loaded into the
// table of the same name. The first record holds the column names. Rows are
// handed to a Loader in batches so the whole file is never held in memory.
package bulk

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	DefaultSeparator = ","
	DefaultBatchSize = 1000
)

var (
	ErrNoHeader         = errors.New("no header record")
	ErrInvalidSeparator = errors.New("separator must be a single character")
)

// Loader receives the rows of a data file. database.Tx implements it.
type Loader interface {
	BulkLoad(ctx context.Context, table string, columns []string, rows [][]any) error
}

// Options configures parsing.
type Options struct {
	// Separator defaults to DefaultSeparator.
	Separator string
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
}

func (o Options) comma() (rune, error) {
	if o.Separator == "" {
		return ',', nil
	}
	r, size := utf8.DecodeRuneInString(o.Separator)
	if r == utf8.RuneError || size != len(o.Separator) || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSeparator, o.Separator)
	}
	return r, nil
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// Validate checks the options without reading anything.
func (o Options) Validate() error {
	_, err := o.comma()
	return err
}

// TableName returns the destination table of a data file: its base name
// without the extension, e.g. dbo.Customers for /x/v1.00/dbo.Customers.csv.
func TableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Stats describes a finished load.
type Stats struct {
	Rows    int
	Batches int
}

// LoadFile opens path and loads it into table.
func LoadFile(ctx context.Context, l Loader, table, path string, opts Options) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()

	stats, err := Load(ctx, l, table, f, opts)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return stats, nil
}

// Load streams r into table. A file with a header and no records loads
// nothing. Empty fields are passed as nil so they load as NULL.
func Load(ctx context.Context, l Loader, table string, r io.Reader, opts Options) (Stats, error) {
	var stats Stats

	comma, err := opts.comma()
	if err != nil {
		return stats, err
	}
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return stats, ErrNoHeader
	}
	if err != nil {
		return stats, err
	}
	columns := make([]string, len(header))
	for i, c := range header {
		c = strings.TrimSpace(c)
		if i == 0 {
			c = strings.TrimPrefix(c, "\ufeff")
		}
		if c == "" {
			return stats, fmt.Errorf("%w: column %d has no name", ErrNoHeader, i+1)
		}
		columns[i] = c
	}

	size := opts.batchSize()
	batch := make([][]any, 0, size)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.BulkLoad(ctx, table, columns, batch); err != nil {
			return err
		}
		stats.Rows += len(batch)
		stats.Batches++
		batch = make([][]any, 0, size)
		return nil
	}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}
		row := make([]any, len(record))
		for i, field := range record {
			if field == "" {
				row[i] = nil
			} else {
				row[i] = field
			}
		}
		batch = append(batch, row)
		if len(batch) == size {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}
