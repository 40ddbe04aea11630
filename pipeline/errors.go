package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
)

var (
	// ErrUnsupportedFormat means the file extension is not .fit, .tcx or .csv.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrCorruptFile means a recognized file could not be read or parsed.
	ErrCorruptFile = errors.New("corrupt file")
	// ErrInvalidCSVSchema means a CSV file has no usable timestamp column.
	ErrInvalidCSVSchema = errors.New("invalid csv schema")
)

// UnsupportedFormatError names the rejected extension.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	ext := e.Ext
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Sprintf("unsupported file format %s: expected .fit, .tcx or .csv", ext)
}

func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// CorruptFileError reports a file that could not be parsed.
type CorruptFileError struct {
	Path   string
	Format Format
	Err    error
}

func (e *CorruptFileError) Error() string {
	return fmt.Sprintf("could not parse %s; the file may be corrupt, try re-exporting it from your device: %v", filepath.Base(e.Path), e.Err)
}

func (e *CorruptFileError) Unwrap() []error { return []error{ErrCorruptFile, e.Err} }

// SchemaError reports a CSV file without the columns needed to build samples.
type SchemaError struct {
	Path    string
	Missing string
	Found   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s has no usable %s column; include a timestamp column (e.g. timestamp, time, datetime)", filepath.Base(e.Path), e.Missing)
}

func (e *SchemaError) Unwrap() error { return ErrInvalidCSVSchema }
