package database

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Error should be used for errors involving queries ran against the database
type Error struct {
	// Optional: the line number
	Line uint

	// Query is a query excerpt
	Query []byte

	// Err is a useful/helping error message for humans
	Err string

	// OrigErr is the underlying error
	OrigErr error
}

func (e Error) Error() string {
	if len(e.Err) == 0 {
		return fmt.Sprintf("%v in line %v: %s", e.OrigErr, e.Line, e.Query)
	}
	return fmt.Sprintf("%v in line %v: %s (details: %v)", e.Err, e.Line, e.Query, e.OrigErr)
}

func (e Error) Unwrap() error {
	return e.OrigErr
}

// maxQueryExcerpt bounds Error.Query.
const maxQueryExcerpt = 500

// Excerpt shortens a script for Error.Query. It never cuts a UTF-8
// encoded rune in two.
func Excerpt(script string) []byte {
	if len(script) <= maxQueryExcerpt {
		return []byte(script)
	}
	end := maxQueryExcerpt
	for end > 0 && !utf8.RuneStart(script[end]) {
		end--
	}
	return []byte(script[:end] + "...")
}

// NotSupportedError is returned for a platform no driver is registered for.
type NotSupportedError struct {
	Platform string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("the target database platform %s is not yet supported", e.Platform)
}

// DestinationNotFoundError is returned by Tx.BulkLoad when the destination
// table does not exist.
type DestinationNotFoundError struct {
	Table string
}

func (e *DestinationNotFoundError) Error() string {
	return fmt.Sprintf("cannot access destination table '%s'", e.Table)
}

var (
	quotedKVRegex  = regexp.MustCompile(`(?i)(password|pwd)='[^']*'`)
	plainKVRegex   = regexp.MustCompile(`(?i)(password|pwd)=[^ ;&]*`)
	brokenURLRegex = regexp.MustCompile(`:[^:@/]+?@`)
)

// RedactPassword masks passwords in the message of err. Connection errors
// often echo the connection string.
func RedactPassword(err error) error {
	if err == nil {
		return nil
	}
	input := err.Error()

	// Check if this error message contains password information
	hasPassword := quotedKVRegex.MatchString(input) || plainKVRegex.MatchString(input) || brokenURLRegex.MatchString(input)

	if !hasPassword {
		return err
	}
	input = quotedKVRegex.ReplaceAllString(input, "${1}=xxxxx")
	input = plainKVRegex.ReplaceAllString(input, "${1}=xxxxx")
	input = brokenURLRegex.ReplaceAllLiteralString(input, ":xxxxxx@")

	return &redactedError{msg: input, err: err}
}

// redactedError keeps the original error reachable for errors.As while
// printing the redacted message.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

// IsDestinationNotFound reports whether err is a DestinationNotFoundError.
func IsDestinationNotFound(err error) bool {
	var d *DestinationNotFoundError
	return errors.As(err, &d)
}
