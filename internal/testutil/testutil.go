// Package testutil provides fixtures for tests across packages
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/neural-chilli/codesworth/internal/callgraph"
)

// GetTestDBURL returns the Postgres URL for integration tests, or ""
func GetTestDBURL() string {
	return os.Getenv("TEST_DATABASE_URL")
}

// RequireDBURL skips the test unless TEST_DATABASE_URL is set
func RequireDBURL(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := GetTestDBURL()
	if url == "" {
		t.Skip("skipping test: TEST_DATABASE_URL not set")
	}
	return url
}

// Neo4jTarget holds connection settings for graph integration tests
type Neo4jTarget struct {
	URI      string
	Username string
	Password string
}

// RequireNeo4j skips the test unless TEST_NEO4J_URI is set
func RequireNeo4j(t *testing.T) Neo4jTarget {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	uri := os.Getenv("TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("skipping test: TEST_NEO4J_URI not set")
	}

	target := Neo4jTarget{
		URI:      uri,
		Username: os.Getenv("TEST_NEO4J_USERNAME"),
		Password: os.Getenv("TEST_NEO4J_PASSWORD"),
	}
	if target.Username == "" {
		target.Username = "neo4j"
	}
	return target
}

// WriteTree writes files (relative path to content) under a fresh temp dir
// and returns its path
func WriteTree(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
	return root
}

// SampleRepo is a small Go and Python project with two entry points: main
// and an HTTP handler
var SampleRepo = map[string]string{
	"cmd/app/main.go": `package main

func main() {
	cfg := load()
	run(cfg)
}
`,
	"cmd/app/run.go": `package main

func load() string {
	return "cfg"
}

func run(cfg string) {
	process(cfg)
}

func process(cfg string) {
}
`,
	"web/views.py": `@app.route("/users")
def list_users(request):
    users = fetch_users(request)
    return render(users)

def fetch_users(request):
    return []

def render(users):
    return users
`,
	"README.md": "# sample\n",
}

// SampleFiles returns pre-parsed records equivalent to a small two-entry
// project, for tests that bypass the parser
func SampleFiles() []callgraph.SourceFile {
	fn := func(name string, start, end int, sig string) callgraph.Unit {
		return callgraph.Unit{Name: name, Kind: callgraph.UnitFunction, StartLine: start, EndLine: end, Signature: sig}
	}

	return []callgraph.SourceFile{
		{
			Path:     "cmd/app/main.go",
			Language: "go",
			Source:   "package main\n\nfunc main() {\n\tcfg := load()\n\trun(cfg)\n}",
			Units:    []callgraph.Unit{fn("main", 3, 6, "func main()")},
		},
		{
			Path:     "internal/app/runner.go",
			Language: "go",
			Source:   "package app\n\nfunc load() string {\n\treturn \"cfg\"\n}\n\nfunc run(cfg string) {\n\tprocess(cfg)\n}\n\nfunc process(cfg string) {\n}",
			Units: []callgraph.Unit{
				fn("load", 3, 5, "func load() string"),
				fn("run", 7, 9, "func run(cfg string)"),
				fn("process", 11, 12, "func process(cfg string)"),
			},
		},
		{
			Path:     "web/views.py",
			Language: "python",
			Source:   "# @app.route(\"/users\")\ndef handleRequest(req):\n    user = fetch_user(req)\n    return render(user)\n\ndef fetch_user(req):\n    return req\n\ndef render(user):\n    return user",
			Units: []callgraph.Unit{
				fn("handleRequest", 2, 4, "def handleRequest(req):"),
				fn("fetch_user", 6, 7, "def fetch_user(req):"),
				fn("render", 9, 10, "def render(user):"),
			},
		},
	}
}
