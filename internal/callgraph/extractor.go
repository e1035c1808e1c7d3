package callgraph

import (
	"regexp"
	"strings"
)

// CallExtractor finds call sites in a single source line. There is one
// implementation per language; all of them are lexical and best-effort.
type CallExtractor interface {
	Language() string
	// Calls returns the called names on line, deduplicated, in order
	Calls(line string) []string
	// Kind classifies the syntactic context of calls on line
	Kind(line string) CallKind
	// IsComment reports whether the whole line is a comment
	IsComment(line string) bool
}

// ExtractorRegistry maps language tags to call extractors
type ExtractorRegistry struct {
	extractors map[string]CallExtractor
}

// NewExtractorRegistry creates an empty registry
func NewExtractorRegistry() *ExtractorRegistry {
	return &ExtractorRegistry{extractors: make(map[string]CallExtractor)}
}

// DefaultExtractors returns a registry with every built-in language
func DefaultExtractors() *ExtractorRegistry {
	r := NewExtractorRegistry()
	r.Register(newJavaExtractor())
	r.Register(newRustExtractor())
	r.Register(newPythonExtractor())
	r.Register(newGoExtractor())
	r.Register(newJSExtractor("javascript"))
	r.Register(newJSExtractor("typescript"))
	r.Register(newCSharpExtractor())
	return r
}

// Register adds or replaces the extractor for its language
func (r *ExtractorRegistry) Register(e CallExtractor) {
	r.extractors[strings.ToLower(e.Language())] = e
}

// Get returns the extractor for language
func (r *ExtractorRegistry) Get(language string) (CallExtractor, bool) {
	e, ok := r.extractors[strings.ToLower(language)]
	return e, ok
}

// kindCue maps a textual marker to a call kind
type kindCue struct {
	prefix bool // match only at the start of the trimmed line
	text   string
	word   *regexp.Regexp
	kind   CallKind
}

// wordCue matches keyword as a whole word anywhere on the line
func wordCue(keyword string, kind CallKind) kindCue {
	return kindCue{word: regexp.MustCompile(`\b` + keyword + `\b`), kind: kind}
}

// defaultCues are checked in order; the first hit wins
var defaultCues = []kindCue{
	wordCue("await", CallAsync),
	wordCue("if", CallConditional),
	wordCue("switch", CallConditional),
	wordCue("for", CallLoop),
	wordCue("while", CallLoop),
	wordCue("try", CallTry),
	wordCue("catch", CallTry),
}

// regexExtractor is the shared machinery behind the per-language extractors
type regexExtractor struct {
	language        string
	patterns        []*regexp.Regexp
	keywords        map[string]bool
	builtins        map[string]bool
	commentPrefixes []string
	cues            []kindCue
}

func (e *regexExtractor) Language() string {
	return e.language
}

func (e *regexExtractor) Calls(line string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, re := range e.patterns {
		for _, m := range re.FindAllStringSubmatch(line, -1) {
			name := m[len(m)-1]
			if name == "" || seen[name] || e.keywords[name] || e.builtins[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func (e *regexExtractor) Kind(line string) CallKind {
	trimmed := strings.TrimSpace(line)
	for _, cue := range e.cues {
		if cue.prefix && strings.HasPrefix(trimmed, cue.text) {
			return cue.kind
		}
		if cue.word != nil && cue.word.MatchString(line) {
			return cue.kind
		}
	}
	return CallDirect
}

func (e *regexExtractor) IsComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, p := range e.commentPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var cStyleComments = []string{"//", "/*", "* ", "*/"}

func newJavaExtractor() *regexExtractor {
	return &regexExtractor{
		language: "java",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(\w+)\.(\w+)\s*\(`),
			regexp.MustCompile(`\b(\w+)\s*\(`),
		},
		keywords: wordSet("if", "else", "for", "while", "switch", "case", "break", "continue",
			"return", "try", "catch", "finally", "throw", "new", "this", "super", "class",
			"interface", "public", "private", "protected", "static", "final"),
		builtins: wordSet("println", "print", "equals", "hashCode", "toString",
			"length", "size", "get", "put", "add", "remove"),
		commentPrefixes: cStyleComments,
		cues:            defaultCues,
	}
}

func newRustExtractor() *regexExtractor {
	return &regexExtractor{
		language: "rust",
		patterns: []*regexp.Regexp{regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\s*[\(]`)},
		keywords: wordSet("if", "else", "for", "while", "loop", "match", "let", "mut", "fn",
			"struct", "enum", "impl", "trait", "mod", "use", "pub", "return", "break", "continue"),
		commentPrefixes: cStyleComments,
		cues:            defaultCues,
	}
}

func newPythonExtractor() *regexExtractor {
	return &regexExtractor{
		language: "python",
		patterns: []*regexp.Regexp{regexp.MustCompile(`\.?([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)},
		keywords: wordSet("if", "else", "for", "while", "def", "class", "import", "from",
			"return", "break", "continue", "try", "except", "finally", "raise", "with", "as"),
		commentPrefixes: []string{"#"},
		cues:            defaultCues,
	}
}

func newGoExtractor() *regexExtractor {
	cues := append([]kindCue{
		{prefix: true, text: "go ", kind: CallAsync},
		{prefix: true, text: "defer ", kind: CallCallback},
	}, defaultCues...)

	return &regexExtractor{
		language: "go",
		patterns: []*regexp.Regexp{regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)},
		keywords: wordSet("if", "else", "for", "switch", "case", "return", "go", "defer",
			"func", "range", "select", "struct", "interface", "map", "chan", "type", "var",
			"const", "package", "import"),
		builtins: wordSet("make", "new", "len", "cap", "append", "copy", "delete",
			"panic", "recover", "print", "println", "close"),
		commentPrefixes: cStyleComments,
		cues:            cues,
	}
}

func newJSExtractor(language string) *regexExtractor {
	return &regexExtractor{
		language: language,
		patterns: []*regexp.Regexp{regexp.MustCompile(`\b([a-zA-Z_$][a-zA-Z0-9_$]*)\s*\(`)},
		keywords: wordSet("if", "else", "for", "while", "switch", "case", "return", "function",
			"new", "typeof", "try", "catch", "finally", "throw", "class", "const", "let", "var",
			"await", "async", "import", "export", "super"),
		builtins:        wordSet("require", "log", "push", "then"),
		commentPrefixes: cStyleComments,
		cues:            defaultCues,
	}
}

func newCSharpExtractor() *regexExtractor {
	return &regexExtractor{
		language: "csharp",
		patterns: []*regexp.Regexp{regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)},
		keywords: wordSet("if", "else", "for", "foreach", "while", "switch", "case", "return",
			"new", "typeof", "try", "catch", "finally", "throw", "class", "using", "lock",
			"nameof", "sizeof", "base", "this", "public", "private", "protected", "static"),
		builtins:        wordSet("WriteLine", "ToString", "Equals", "GetHashCode"),
		commentPrefixes: cStyleComments,
		cues:            defaultCues,
	}
}
