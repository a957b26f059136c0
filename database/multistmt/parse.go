// Package multistmt splits scripts into the batches understood by the
// server. SQL Server tooling separates batches with a GO line, which is a
// client side convention and never sent to the server.
package multistmt

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseBufSize is the maximum length of a single line of a script.
var ParseBufSize = 1024 * 1024

// Handler handles a single batch parsed from a script.
type Handler func(batch []byte) error

// separator matches GO, optionally followed by a repeat count and a
// trailing comment.
var separator = regexp.MustCompile(`(?i)^\s*go(?:\s+(\d+))?\s*(?:--.*)?$`)

// Parse splits the script read from reader on GO lines and calls h for every
// non blank batch. GO n repeats the batch before it n times. GO lines inside
// block comments are kept.
func Parse(reader io.Reader, h Handler) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), ParseBufSize)

	var batch strings.Builder
	depth := 0
	n := 0
	emit := func(repeat int) error {
		stmt := batch.String()
		batch.Reset()
		if strings.TrimSpace(stmt) == "" {
			return nil
		}
		n++
		for i := 0; i < repeat; i++ {
			if err := h([]byte(stmt)); err != nil {
				return errors.Wrapf(err, "batch %d", n)
			}
		}
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if depth == 0 {
			if m := separator.FindStringSubmatch(line); m != nil {
				repeat := 1
				if m[1] != "" {
					c, err := strconv.Atoi(m[1])
					if err != nil {
						return errors.Wrapf(err, "invalid GO count %q", m[1])
					}
					repeat = c
				}
				if err := emit(repeat); err != nil {
					return err
				}
				continue
			}
		}
		depth = commentDepth(line, depth)
		batch.WriteString(line)
		batch.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "reading script")
	}
	return emit(1)
}

// Split returns the batches of script.
func Split(script string) ([]string, error) {
	var batches []string
	err := Parse(strings.NewReader(script), func(b []byte) error {
		batches = append(batches, string(b))
		return nil
	})
	return batches, err
}

// commentDepth tracks nested /* */ comments across lines. Line comments
// end the scan of the line.
func commentDepth(line string, depth int) int {
	for i := 0; i < len(line)-1; i++ {
		switch {
		case depth == 0 && line[i] == '-' && line[i+1] == '-':
			return depth
		case line[i] == '/' && line[i+1] == '*':
			depth++
			i++
		case depth > 0 && line[i] == '*' && line[i+1] == '/':
			depth--
			i++
		}
	}
	return depth
}
