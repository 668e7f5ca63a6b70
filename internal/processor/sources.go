package processor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"rentalscope/internal/extract"
)

// ScanSources returns every file under root with the given extension,
// sorted so that runs are reproducible.
func ScanSources(root, ext string) ([]string, error) {
	ext = strings.ToLower(ext)
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) == ext {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// ReadDocuments splits a source file into raw documents. A file holds a JSON
// array; a single object is read as a one-element file. Elements are left
// raw so that one malformed record does not sink the file.
func ReadDocuments(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '{' {
		return []json.RawMessage{json.RawMessage(data)}, nil
	}

	var docs []json.RawMessage
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, &extract.ExtractionError{Reason: "source file " + path + " is not a JSON array", Err: err}
	}
	return docs, nil
}
