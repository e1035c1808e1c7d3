package repo

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-enry/go-enry/v2"
	"github.com/rs/zerolog/log"
)

// DefaultMaxFileSize is the largest file Discover returns
const DefaultMaxFileSize = 1 << 20

var ignoredDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"venv":         true,
	"target":       true,
	"build":        true,
	"dist":         true,
}

// File is a source file found under a root
type File struct {
	// Path is relative to the root, slash separated
	Path     string
	AbsPath  string
	Language string
	Size     int64
}

// DiscoverOptions controls which files Discover returns
type DiscoverOptions struct {
	// Languages limits results to these enry language names. Empty means any
	// programming language.
	Languages   []string
	MaxFileSize int64
	IgnoreDirs  []string
}

// Discover walks root and returns its source files in path order. Hidden,
// vendored and ignored directories are skipped, as are files larger than
// MaxFileSize and anything enry does not recognise as code.
func Discover(ctx context.Context, root string, opts DiscoverOptions) ([]File, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	wanted := make(map[string]bool, len(opts.Languages))
	for _, l := range opts.Languages {
		wanted[strings.ToLower(l)] = true
	}
	extraIgnored := make(map[string]bool, len(opts.IgnoreDirs))
	for _, d := range opts.IgnoreDirs {
		extraIgnored[d] = true
	}

	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || ignoredDirs[name] || extraIgnored[name] || enry.IsVendor(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") || enry.IsVendor(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > opts.MaxFileSize {
			log.Debug().Str("file", rel).Int64("size", info.Size()).Msg("skipping large file")
			return nil
		}

		lang := DetectLanguage(path)
		if lang == "" || enry.GetLanguageType(lang) != enry.Programming {
			return nil
		}
		if len(wanted) > 0 && !wanted[strings.ToLower(lang)] {
			return nil
		}

		files = append(files, File{
			Path:     rel,
			AbsPath:  path,
			Language: lang,
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// DetectLanguage returns the enry language name for path, or "" when it
// cannot be determined. The extension decides when it is unambiguous;
// otherwise the content is inspected.
func DetectLanguage(path string) string {
	lang, safe := enry.GetLanguageByExtension(path)
	if safe && lang != "" {
		return lang
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if enry.IsBinary(content) {
		return ""
	}
	return enry.GetLanguage(filepath.Base(path), content)
}
