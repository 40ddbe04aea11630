package pipeline

import (
	"bytes"
	"errors"
)

// Analyze detects the format of path, parses it and returns a sanitized
// summary with the normalized samples.
//
// Errors match ErrUnsupportedFormat, ErrCorruptFile or ErrInvalidCSVSchema
// under errors.Is.
func Analyze(path string) (Summary, []Sample, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return Summary{}, nil, err
	}

	var (
		summary Summary
		samples []Sample
	)
	switch format {
	case FormatFIT:
		summary, samples, err = ParseFIT(path)
	case FormatTCX:
		summary, samples, err = ParseTCX(path)
	case FormatCSV:
		summary, samples, err = ParseCSV(path)
	}
	return finish(path, format, summary, samples, err)
}

// AnalyzeBytes is Analyze over an in-memory upload. name supplies the
// extension and appears in error messages.
func AnalyzeBytes(name string, data []byte) (Summary, []Sample, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return Summary{}, nil, err
	}

	var (
		summary Summary
		samples []Sample
	)
	switch format {
	case FormatFIT:
		summary, samples, err = parseFIT(data)
	case FormatTCX:
		summary, samples, err = parseTCX(bytes.NewReader(data))
	case FormatCSV:
		summary, samples, err = parseCSV(bytes.NewReader(data))
		var schemaErr *SchemaError
		if errors.As(err, &schemaErr) {
			schemaErr.Path = name
		}
	}
	return finish(name, format, summary, samples, err)
}

func finish(path string, format Format, summary Summary, samples []Sample, err error) (Summary, []Sample, error) {
	if err != nil {
		if errors.Is(err, ErrInvalidCSVSchema) {
			return Summary{}, nil, err
		}
		return Summary{}, nil, &CorruptFileError{Path: path, Format: format, Err: err}
	}

	if samples == nil {
		samples = []Sample{}
	}
	return Sanitize(&summary), samples, nil
}
