//go:build js && wasm

package main

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"syscall/js"
	"time"

	"github.com/lucasjlepore/trackernorm/pipeline"
)

func main() {
	js.Global().Set("analyzeSession", js.FuncOf(analyzeSession))
	select {}
}

func analyzeSession(_ js.Value, args []js.Value) any {
	if len(args) < 2 {
		return failure("expected arguments: fileBytes(Uint8Array), options(object)", "")
	}
	fileArg := args[0]
	optsArg := args[1]
	if fileArg.IsUndefined() || fileArg.IsNull() || fileArg.Get("length").Int() == 0 {
		return failure("session file bytes are required", "")
	}

	fileBytes := make([]byte, fileArg.Get("length").Int())
	if n := js.CopyBytesToGo(fileBytes, fileArg); n == 0 {
		return failure("failed to read file bytes from JS input", "")
	}

	result, err := pipeline.RunBytes(pipeline.BytesOptions{
		SourceFileName: getString(optsArg, "source_file_name", "input.fit"),
		Data:           fileBytes,
		Format:         getString(optsArg, "format", "json"),
	})
	if err != nil {
		return failure(err.Error(), errorKind(err))
	}

	zipBytes, err := zipArtifacts(result.Files)
	if err != nil {
		return failure(fmt.Sprintf("create zip: %v", err), "")
	}
	payload := js.Global().Get("Uint8Array").New(len(zipBytes))
	js.CopyBytesToJS(payload, zipBytes)

	fileNames := make([]string, 0, len(result.Files))
	for name := range result.Files {
		fileNames = append(fileNames, name)
	}
	sort.Strings(fileNames)

	return map[string]any{
		"ok":           true,
		"zip":          payload,
		"source_type":  string(result.SourceType),
		"sample_count": result.SampleCount,
		"files":        stringsToAny(fileNames),
	}
}

func failure(msg, kind string) map[string]any {
	out := map[string]any{"ok": false, "error": msg}
	if kind != "" {
		out["kind"] = kind
	}
	return out
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, pipeline.ErrInvalidCSVSchema):
		return "invalid_csv_schema"
	case errors.Is(err, pipeline.ErrCorruptFile):
		return "corrupt_file"
	}
	return ""
}

func zipArtifacts(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fixedTime := time.Unix(0, 0).UTC()

	for _, name := range names {
		h := &zip.FileHeader{
			Name:   name,
			Method: zip.Deflate,
		}
		h.SetModTime(fixedTime)
		w, err := zw.CreateHeader(h)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func getString(v js.Value, key, fallback string) string {
	if v.IsUndefined() || v.IsNull() {
		return fallback
	}
	out := v.Get(key)
	if out.IsUndefined() || out.IsNull() {
		return fallback
	}
	s := out.String()
	if s == "" || s == "undefined" || s == "null" {
		return fallback
	}
	return s
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
