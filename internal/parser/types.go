package parser

import (
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// Language represents a programming language
type Language string

const (
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageJava       Language = "java"
	LanguageRust       Language = "rust"
	LanguageCSharp     Language = "csharp"
	LanguageUnknown    Language = "unknown"
)

// enryNames maps enry language names to the tags used by the call graph
var enryNames = map[string]Language{
	"Go":         LanguageGo,
	"Python":     LanguagePython,
	"JavaScript": LanguageJavaScript,
	"JSX":        LanguageJavaScript,
	"TypeScript": LanguageTypeScript,
	"TSX":        LanguageTypeScript,
	"Java":       LanguageJava,
	"Rust":       LanguageRust,
	"C#":         LanguageCSharp,
}

// FromEnry converts an enry language name
func FromEnry(name string) Language {
	if lang, ok := enryNames[name]; ok {
		return lang
	}
	return LanguageUnknown
}

// DetectLanguage detects language from the file extension. Common
// extensions are matched directly since some, like .ts and .cs, are
// ambiguous to enry; anything else goes through enry's extension table.
func DetectLanguage(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".go":
		return LanguageGo
	case ".py":
		return LanguagePython
	case ".js", ".jsx", ".mjs", ".cjs":
		return LanguageJavaScript
	case ".ts", ".tsx", ".mts":
		return LanguageTypeScript
	case ".java":
		return LanguageJava
	case ".rs":
		return LanguageRust
	case ".cs":
		return LanguageCSharp
	case "":
		return LanguageUnknown
	}

	lang, _ := enry.GetLanguageByExtension("file" + ext)
	return FromEnry(lang)
}

// Supported reports whether the parser can extract units for lang
func (l Language) Supported() bool {
	switch l {
	case LanguageGo, LanguagePython, LanguageJavaScript, LanguageTypeScript, LanguageJava:
		return true
	}
	return false
}
