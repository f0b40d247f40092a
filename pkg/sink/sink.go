// Package sink writes rendered statements to the audit artifact
package sink

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethpandaops/devsync/pkg/rendering"
)

// Static errors
var (
	ErrPathRequired       = errors.New("output file path is required")
	ErrMultiLineStatement = errors.New("statement contains a line break")
)

// Error reports a failure reading or writing the artifact
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WriteStatements truncates path and writes one statement per line.
// Missing parent directories are created.
func WriteStatements(path string, statements []rendering.Statement) (err error) {
	if path == "" {
		return &Error{Op: "write", Path: path, Err: ErrPathRequired}
	}

	// Checked before the file is opened so an existing artifact is left intact.
	for i, stmt := range statements {
		if strings.ContainsAny(string(stmt), "\r\n") {
			return &Error{Op: "write", Path: path, Err: fmt.Errorf("%w: statement %d", ErrMultiLineStatement, i)}
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return &Error{Op: "write", Path: path, Err: mkErr}
		}
	}

	f, err := os.Create(path) //nolint:gosec // operator-configured output path
	if err != nil {
		return &Error{Op: "write", Path: path, Err: err}
	}

	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = &Error{Op: "close", Path: path, Err: closeErr}
		}
	}()

	w := bufio.NewWriter(f)
	for _, stmt := range statements {
		if _, err := w.WriteString(string(stmt) + "\n"); err != nil {
			return &Error{Op: "write", Path: path, Err: err}
		}
	}

	if err := w.Flush(); err != nil {
		return &Error{Op: "write", Path: path, Err: err}
	}

	if err := f.Sync(); err != nil {
		return &Error{Op: "sync", Path: path, Err: err}
	}

	return nil
}

// ReadStatements reads an artifact written by WriteStatements.
// Blank lines are skipped.
func ReadStatements(path string) ([]rendering.Statement, error) {
	f, err := os.Open(path) //nolint:gosec // operator-configured input path
	if err != nil {
		return nil, &Error{Op: "read", Path: path, Err: err}
	}
	defer f.Close()

	var statements []rendering.Statement

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		statements = append(statements, rendering.Statement(line))
	}

	if err := scanner.Err(); err != nil {
		return nil, &Error{Op: "read", Path: path, Err: err}
	}

	return statements, nil
}
