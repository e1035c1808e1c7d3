package callgraph

import "strings"

func fn(name string, start, end int, signature string) Unit {
	return Unit{Name: name, Kind: UnitFunction, StartLine: start, EndLine: end, Signature: signature}
}

func source(lines ...string) string {
	return strings.Join(lines, "\n")
}

func findNode(g *CallGraph, name string) *CallNode {
	for _, n := range g.Nodes() {
		if n.Signature.MethodName == name {
			return n
		}
	}
	return nil
}

func calleeNames(g *CallGraph, name string) []string {
	var out []string
	for _, c := range g.Callees(findNode(g, name).Signature) {
		out = append(out, c.MethodName)
	}
	return out
}

// scenarioFiles is three files holding five functions: main calls load and
// run, run calls process, process calls nothing and helper is unused.
func scenarioFiles() []SourceFile {
	return []SourceFile{
		{
			Path:     "cmd/app/main.go",
			Language: "go",
			Source: source(
				"package main",
				"",
				"func main() {",
				"	cfg := load()",
				"	run(cfg)",
				"}",
			),
			Units: []Unit{fn("main", 3, 6, "func main()")},
		},
		{
			Path:     "internal/app/loader.go",
			Language: "go",
			Source: source(
				"package app",
				"",
				"func load() string {",
				"	return \"cfg\"",
				"}",
				"",
				"func helper() int {",
				"	return 1",
				"}",
			),
			Units: []Unit{
				fn("load", 3, 5, "func load() string"),
				fn("helper", 7, 9, "func helper() int"),
			},
		},
		{
			Path:     "internal/app/runner.go",
			Language: "go",
			Source: source(
				"package app",
				"",
				"func run(cfg string) {",
				"	process(cfg)",
				"}",
				"",
				"func process(cfg string) {",
				"}",
			),
			Units: []Unit{
				fn("run", 3, 5, "func run(cfg string)"),
				fn("process", 7, 8, "func process(cfg string)"),
			},
		},
	}
}

// cycleFile holds a -> b -> c -> a
func cycleFile() SourceFile {
	return SourceFile{
		Path:     "pkg/cycle.go",
		Language: "go",
		Source: source(
			"func a() {",
			"	b()",
			"}",
			"func b() {",
			"	c()",
			"}",
			"func c() {",
			"	a()",
			"}",
		),
		Units: []Unit{
			fn("a", 1, 3, "func a()"),
			fn("b", 4, 6, "func b()"),
			fn("c", 7, 9, "func c()"),
		},
	}
}

// routeFile holds handleRequest annotated with a route marker comment
func routeFile() SourceFile {
	return SourceFile{
		Path:     "web/views.py",
		Language: "python",
		Source: source(
			"from app import db",
			"",
			"# @app.route(\"/users\")",
			"def handleRequest(req):",
			"    user = fetch_user(req)",
			"    return render(user)",
			"",
			"def fetch_user(req):",
			"    return req",
			"",
			"def render(user):",
			"    return user",
		),
		Units: []Unit{
			fn("handleRequest", 4, 6, "def handleRequest(req):"),
			fn("fetch_user", 8, 9, "def fetch_user(req):"),
			fn("render", 11, 12, "def render(user):"),
		},
	}
}
