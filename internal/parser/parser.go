package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/neural-chilli/codesworth/internal/callgraph"
	"github.com/neural-chilli/codesworth/internal/repo"
	"github.com/rs/zerolog/log"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// maxSignatureLen bounds the declaration header kept per unit
const maxSignatureLen = 300

// Parser parses source files using tree-sitter and normalizes them into
// call graph records. It is safe for concurrent use.
type Parser struct {
	mu       sync.Mutex
	parsers  map[string]*sitter.Parser
	discover repo.DiscoverOptions
}

// NewParser creates a new parser with all language support
func NewParser() *Parser {
	grammars := map[string]*sitter.Language{
		"go":         golang.GetLanguage(),
		"python":     python.GetLanguage(),
		"javascript": javascript.GetLanguage(),
		"typescript": typescript.GetLanguage(),
		"tsx":        tsx.GetLanguage(),
		"java":       java.GetLanguage(),
	}

	parsers := make(map[string]*sitter.Parser, len(grammars))
	for name, lang := range grammars {
		p := sitter.NewParser()
		p.SetLanguage(lang)
		parsers[name] = p
	}

	return &Parser{parsers: parsers}
}

// WithDiscoverOptions sets the options used when Parse walks a directory
func (p *Parser) WithDiscoverOptions(opts repo.DiscoverOptions) *Parser {
	p.discover = opts
	return p
}

// Parse discovers and parses every supported file under root. Paths in the
// returned records are relative to root. Files that fail to parse are
// logged and skipped.
func (p *Parser) Parse(ctx context.Context, root string) ([]callgraph.SourceFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		sf, err := p.ParseFile(ctx, root)
		if err != nil {
			return nil, err
		}
		return []callgraph.SourceFile{*sf}, nil
	}

	found, err := repo.Discover(ctx, root, p.discover)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	files := make([]callgraph.SourceFile, 0, len(found))
	skipped := 0
	for _, f := range found {
		lang := FromEnry(f.Language)
		if lang == LanguageUnknown {
			lang = DetectLanguage(f.Path)
		}
		if !lang.Supported() {
			skipped++
			continue
		}

		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			log.Warn().Err(err).Str("file", f.Path).Msg("failed to read file")
			continue
		}

		sf, err := p.ParseContent(ctx, f.Path, string(content), lang)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("file", f.Path).Msg("failed to parse file")
			continue
		}
		files = append(files, *sf)
	}

	log.Info().
		Str("root", root).
		Int("files", len(files)).
		Int("unsupported", skipped).
		Msg("parsed source tree")

	return files, nil
}

// ParseFile parses a single file
func (p *Parser) ParseFile(ctx context.Context, filePath string) (*callgraph.SourceFile, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	lang := DetectLanguage(filePath)
	if !lang.Supported() {
		return nil, fmt.Errorf("unsupported language for file: %s", filePath)
	}

	return p.ParseContent(ctx, filePath, string(content), lang)
}

// ParseContent parses source code content
func (p *Parser) ParseContent(ctx context.Context, filePath, content string, lang Language) (*callgraph.SourceFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	grammar := string(lang)
	if lang == LanguageTypeScript && strings.EqualFold(filepath.Ext(filePath), ".tsx") {
		grammar = "tsx"
	}
	if !lang.Supported() {
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}

	source := []byte(content)

	p.mu.Lock()
	tree, err := p.parsers[grammar].ParseCtx(ctx, nil, source)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	defer tree.Close()

	w := newWalker(lang, source)
	root := tree.RootNode()
	w.namespace = w.packageName(root)

	return &callgraph.SourceFile{
		Path:     filepath.ToSlash(filePath),
		Language: string(lang),
		Source:   content,
		Units:    w.units(root),
	}, nil
}

// walker turns one syntax tree into units
type walker struct {
	lang       Language
	source     []byte
	lineStarts []int
	namespace  string
}

func newWalker(lang Language, source []byte) *walker {
	starts := []int{0}
	for i, b := range source {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &walker{lang: lang, source: source, lineStarts: starts}
}

// units collects the units declared under n in document order. Nodes that
// are not declarations are searched recursively.
func (w *walker) units(n *sitter.Node) []callgraph.Unit {
	var out []callgraph.Unit
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}

		u, body, ok := w.unit(child)
		if !ok {
			out = append(out, w.units(child)...)
			continue
		}

		if body != nil {
			u.Children = w.units(body)
		}
		if u.Kind == callgraph.UnitType {
			for j := range u.Children {
				if u.Children[j].Kind == callgraph.UnitFunction {
					u.Children[j].Kind = callgraph.UnitMethod
				}
			}
		}
		out = append(out, u)
	}
	return out
}

// unit recognizes a declaration node and returns it with the node holding
// its nested declarations
func (w *walker) unit(n *sitter.Node) (callgraph.Unit, *sitter.Node, bool) {
	switch w.lang {
	case LanguageGo:
		return w.goUnit(n)
	case LanguagePython:
		return w.pythonUnit(n)
	case LanguageJavaScript, LanguageTypeScript:
		return w.jsUnit(n)
	case LanguageJava:
		return w.javaUnit(n)
	}
	return callgraph.Unit{}, nil, false
}

func (w *walker) goUnit(n *sitter.Node) (callgraph.Unit, *sitter.Node, bool) {
	switch n.Type() {
	case "function_declaration", "method_declaration":
	default:
		return callgraph.Unit{}, nil, false
	}

	name := w.field(n, "name")
	if name == "" {
		return callgraph.Unit{}, nil, false
	}
	body := n.ChildByFieldName("body")

	u := w.newUnit(n, name, callgraph.UnitFunction, body)
	if isUpper(name) {
		u.Visibility = "exported"
	}
	if n.Type() == "method_declaration" {
		u.Kind = callgraph.UnitMethod
		u.ClassName = w.goReceiver(n)
	}
	return u, body, true
}

func (w *walker) goReceiver(n *sitter.Node) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for i := 0; i < int(recv.NamedChildCount()); i++ {
		param := recv.NamedChild(i)
		if param == nil || param.Type() != "parameter_declaration" {
			continue
		}
		if typeNode := param.ChildByFieldName("type"); typeNode != nil {
			typ := strings.TrimPrefix(typeNode.Content(w.source), "*")
			if idx := strings.Index(typ, "["); idx >= 0 {
				typ = typ[:idx]
			}
			return typ
		}
	}
	return ""
}

func (w *walker) pythonUnit(n *sitter.Node) (callgraph.Unit, *sitter.Node, bool) {
	var kind callgraph.UnitKind
	switch n.Type() {
	case "function_definition":
		kind = callgraph.UnitFunction
	case "class_definition":
		kind = callgraph.UnitType
	default:
		return callgraph.Unit{}, nil, false
	}

	name := w.field(n, "name")
	if name == "" {
		return callgraph.Unit{}, nil, false
	}
	body := n.ChildByFieldName("body")

	u := w.newUnit(n, name, kind, body)
	u.Visibility = "public"
	if strings.HasPrefix(name, "_") {
		u.Visibility = "private"
	}
	u.Async = hasChild(n, "async")
	if doc := w.docstring(body); doc != "" {
		u.Doc = doc
	}
	return u, body, true
}

func (w *walker) jsUnit(n *sitter.Node) (callgraph.Unit, *sitter.Node, bool) {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
		name := w.field(n, "name")
		if name == "" {
			return callgraph.Unit{}, nil, false
		}
		body := n.ChildByFieldName("body")
		u := w.newUnit(n, name, callgraph.UnitFunction, body)
		u.Async = hasChild(n, "async")
		if parent := n.Parent(); parent != nil && parent.Type() == "export_statement" {
			u.Visibility = "exported"
		}
		return u, body, true

	case "class_declaration", "abstract_class_declaration":
		name := w.field(n, "name")
		if name == "" {
			return callgraph.Unit{}, nil, false
		}
		body := n.ChildByFieldName("body")
		u := w.newUnit(n, name, callgraph.UnitType, body)
		if parent := n.Parent(); parent != nil && parent.Type() == "export_statement" {
			u.Visibility = "exported"
		}
		return u, body, true

	case "method_definition":
		name := w.field(n, "name")
		if name == "" {
			return callgraph.Unit{}, nil, false
		}
		body := n.ChildByFieldName("body")
		u := w.newUnit(n, name, callgraph.UnitMethod, body)
		u.Async = hasChild(n, "async")
		u.Visibility = "public"
		if strings.HasPrefix(name, "#") {
			u.Visibility = "private"
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c != nil && c.Type() == "accessibility_modifier" {
				u.Visibility = c.Content(w.source)
			}
		}
		return u, body, true

	case "variable_declarator":
		value := n.ChildByFieldName("value")
		if value == nil {
			return callgraph.Unit{}, nil, false
		}
		switch value.Type() {
		case "arrow_function", "function", "function_expression":
		default:
			return callgraph.Unit{}, nil, false
		}
		name := w.field(n, "name")
		if name == "" {
			return callgraph.Unit{}, nil, false
		}
		body := value.ChildByFieldName("body")
		u := w.newUnit(n, name, callgraph.UnitFunction, body)
		u.Async = hasChild(value, "async")
		// variable_declarator > lexical_declaration > export_statement
		if decl := n.Parent(); decl != nil {
			if parent := decl.Parent(); parent != nil && parent.Type() == "export_statement" {
				u.Visibility = "exported"
			}
		}
		return u, body, true
	}
	return callgraph.Unit{}, nil, false
}

func (w *walker) javaUnit(n *sitter.Node) (callgraph.Unit, *sitter.Node, bool) {
	var kind callgraph.UnitKind
	switch n.Type() {
	case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
		kind = callgraph.UnitType
	case "method_declaration", "constructor_declaration":
		kind = callgraph.UnitMethod
	default:
		return callgraph.Unit{}, nil, false
	}

	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return callgraph.Unit{}, nil, false
	}
	body := n.ChildByFieldName("body")

	u := w.newUnit(n, nameNode.Content(w.source), kind, body)
	// annotations live in the modifiers; the unit starts at its name so
	// they stay on the lines above it
	u.StartLine = int(nameNode.StartPoint().Row) + 1
	u.Signature = w.header(u.StartLine, n, body)

	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() != "modifiers" {
			continue
		}
		for _, word := range strings.Fields(c.Content(w.source)) {
			switch word {
			case "public", "private", "protected":
				u.Visibility = word
			}
		}
	}
	return u, body, true
}

func (w *walker) newUnit(n *sitter.Node, name string, kind callgraph.UnitKind, body *sitter.Node) callgraph.Unit {
	start := int(n.StartPoint().Row) + 1
	return callgraph.Unit{
		Name:      name,
		Kind:      kind,
		Namespace: w.namespace,
		Signature: w.header(start, n, body),
		Doc:       w.comments(n),
		StartLine: start,
		EndLine:   int(n.EndPoint().Row) + 1,
	}
}

// header returns the declaration text from the start of line up to the
// body, collapsed onto one line
func (w *walker) header(line int, n, body *sitter.Node) string {
	from := int(n.StartByte())
	if line-1 < len(w.lineStarts) {
		from = w.lineStarts[line-1]
	}
	to := int(n.EndByte())
	if body != nil && int(body.StartByte()) > from {
		to = int(body.StartByte())
	}
	if to > len(w.source) {
		to = len(w.source)
	}
	if from >= to {
		return ""
	}

	header := strings.Join(strings.Fields(string(w.source[from:to])), " ")
	for _, suffix := range []string{"{", ":", "=>"} {
		header = strings.TrimSpace(strings.TrimSuffix(header, suffix))
	}
	if len(header) > maxSignatureLen {
		header = header[:maxSignatureLen]
	}
	return header
}

// comments returns the comment block directly above n
func (w *walker) comments(n *sitter.Node) string {
	anchor := n
	if parent := n.Parent(); parent != nil && parent.Type() == "export_statement" {
		anchor = parent
	}
	// const f = () => {} documents the whole declaration
	if n.Type() == "variable_declarator" {
		if decl := n.Parent(); decl != nil {
			anchor = decl
			if parent := decl.Parent(); parent != nil && parent.Type() == "export_statement" {
				anchor = parent
			}
		}
	}

	var blocks []string
	expectRow := anchor.StartPoint().Row
	for prev := anchor.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		if !strings.Contains(prev.Type(), "comment") || prev.EndPoint().Row+1 < expectRow {
			break
		}
		blocks = append([]string{cleanComment(prev.Content(w.source))}, blocks...)
		expectRow = prev.StartPoint().Row
	}
	return strings.TrimSpace(strings.Join(blocks, "\n"))
}

// docstring returns the string literal opening a python body
func (w *walker) docstring(body *sitter.Node) string {
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str == nil || str.Type() != "string" {
		return ""
	}
	text := str.Content(w.source)
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) && len(text) >= 2*len(q) {
			text = text[len(q) : len(text)-len(q)]
			break
		}
	}
	return strings.TrimSpace(text)
}

// packageName returns the Go package or Java package of the file
func (w *walker) packageName(root *sitter.Node) string {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		c := root.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "package_clause":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				if id := c.NamedChild(j); id != nil && id.Type() == "package_identifier" {
					return id.Content(w.source)
				}
			}
		case "package_declaration":
			text := strings.TrimSpace(c.Content(w.source))
			text = strings.TrimPrefix(text, "package")
			return strings.TrimSpace(strings.TrimSuffix(text, ";"))
		}
	}
	return ""
}

func (w *walker) field(n *sitter.Node, name string) string {
	if c := n.ChildByFieldName(name); c != nil {
		return c.Content(w.source)
	}
	return ""
}

func hasChild(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && c.Type() == typ {
			return true
		}
	}
	return false
}

func isUpper(name string) bool {
	return name != "" && strings.ToUpper(name[:1]) == name[:1] && strings.ToLower(name[:1]) != name[:1]
}

func cleanComment(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, marker := range []string{"///", "//", "/**", "/*", "*/", "#"} {
			line = strings.TrimPrefix(line, marker)
		}
		line = strings.TrimSuffix(line, "*/")
		line = strings.TrimPrefix(strings.TrimSpace(line), "* ")
		if line == "*" {
			line = ""
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
