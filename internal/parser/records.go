package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/neural-chilli/codesworth/internal/callgraph"
)

// recordsFile is the object form of a records document
type recordsFile struct {
	Files []callgraph.SourceFile `json:"files"`
}

// LoadRecords reads front-end records produced by another tool. The document
// is either a JSON array of files or an object with a "files" array.
// Records without source text get their relative paths resolved against
// the directory of the records file so the source can be read later.
func LoadRecords(path string) ([]callgraph.SourceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	files, err := DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range files {
		if files[i].Source == "" && !filepath.IsAbs(files[i].Path) {
			files[i].Path = filepath.Join(base, files[i].Path)
		}
	}
	return files, nil
}

// DecodeRecords parses a records document
func DecodeRecords(data []byte) ([]callgraph.SourceFile, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty records document")
	}

	var files []callgraph.SourceFile
	if data[0] == '[' {
		if err := json.Unmarshal(data, &files); err != nil {
			return nil, err
		}
	} else {
		var doc recordsFile
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		files = doc.Files
	}

	for i, f := range files {
		if f.Path == "" {
			return nil, fmt.Errorf("record %d has no path", i)
		}
		if f.Language == "" {
			files[i].Language = string(DetectLanguage(f.Path))
		}
	}
	return files, nil
}

// RecordsFrontend serves a fixed records file as a front-end
type RecordsFrontend struct {
	Path string
}

// Parse ignores root and returns the records in Path
func (r RecordsFrontend) Parse(ctx context.Context, root string) ([]callgraph.SourceFile, error) {
	return LoadRecords(r.Path)
}
