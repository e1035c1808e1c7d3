package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/neural-chilli/codesworth/internal/engine"
)

const (
	GraphFile  = "call_graph.json"
	ResultFile = "result.json"
	zstdExt    = ".zst"
)

// JSONSink writes the graph projection and the full result as JSON files,
// optionally zstd compressed
type JSONSink struct {
	Dir      string
	Compress bool
}

func (s *JSONSink) Name() string { return "json" }

// Write implements Sink
func (s *JSONSink) Write(ctx context.Context, res *engine.Result) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := s.writeFile(GraphFile, res.Projection()); err != nil {
		return err
	}
	return s.writeFile(ResultFile, res)
}

// Path returns where name is written, including the compression suffix
func (s *JSONSink) Path(name string) string {
	path := filepath.Join(s.Dir, name)
	if s.Compress {
		path += zstdExt
	}
	return path
}

func (s *JSONSink) writeFile(name string, v any) error {
	f, err := os.Create(s.Path(name))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer f.Close()

	var w io.Writer = f
	var enc *zstd.Encoder
	if s.Compress {
		enc, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		w = enc
	}

	jsonEnc := json.NewEncoder(w)
	jsonEnc.SetIndent("", "  ")
	if err := jsonEnc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to flush %s: %w", name, err)
		}
	}
	return f.Close()
}

// ReadJSON decodes a file written by JSONSink into v. Files ending in .zst
// are decompressed.
func ReadJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, zstdExt) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
