package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractor_Calls(t *testing.T) {
	tests := []struct {
		language string
		line     string
		want     []string
	}{
		{"java", "    repo.save(order);", []string{"save"}},
		{"java", "    list.add(item); System.out.println(x);", nil},
		{"java", "    if (valid(order)) {", []string{"valid"}},
		{"python", "    result = self.compute(x) + helper(y)", []string{"compute", "helper"}},
		{"python", "    with open(path) as f:", []string{"open"}},
		{"rust", "    let v = parse_config(&raw)?;", []string{"parse_config"}},
		{"go", "	out := make([]int, len(in))", nil},
		{"go", "	svc.Handle(ctx, transform(req))", []string{"Handle", "transform"}},
		{"javascript", "  const user = await fetchUser(id);", []string{"fetchUser"}},
		{"typescript", "  return render(view)", []string{"render"}},
		{"csharp", "    Console.WriteLine(Format(x));", []string{"Format"}},
	}

	registry := DefaultExtractors()
	for _, tt := range tests {
		t.Run(tt.language+"/"+tt.line, func(t *testing.T) {
			ext, ok := registry.Get(tt.language)
			require.True(t, ok)
			assert.Equal(t, tt.want, ext.Calls(tt.line))
		})
	}
}

func TestExtractor_Kind(t *testing.T) {
	tests := []struct {
		language string
		line     string
		want     CallKind
	}{
		{"javascript", "  const data = await load();", CallAsync},
		{"java", "  if (ok) { run(); }", CallConditional},
		{"java", "  switch (mode(x)) {", CallConditional},
		{"python", "  for item in items(): process(item)", CallLoop},
		{"python", "  while poll(): pass", CallLoop},
		{"java", "  try { connect(); }", CallTry},
		{"java", "  } catch (Exception e) { recover(e); }", CallTry},
		{"go", "	go worker(jobs)", CallAsync},
		{"go", "	defer cleanup()", CallCallback},
		{"go", "	run(cfg)", CallDirect},
		{"go", "	entry := registry()", CallDirect},
		{"java", "  Result r = tryParse(input);", CallDirect},
		{"python", "  before = fetch_forecast()", CallDirect},
		{"javascript", "  if(ready) start();", CallConditional},
	}

	registry := DefaultExtractors()
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			ext, ok := registry.Get(tt.language)
			require.True(t, ok)
			assert.Equal(t, tt.want, ext.Kind(tt.line))
		})
	}
}

func TestExtractor_IsComment(t *testing.T) {
	registry := DefaultExtractors()

	goExt, _ := registry.Get("go")
	assert.True(t, goExt.IsComment("	// run() is called later"))
	assert.True(t, goExt.IsComment(" * see load()"))
	assert.False(t, goExt.IsComment("	run() // trailing"))
	assert.False(t, goExt.IsComment("	*ptr = next()"))

	pyExt, _ := registry.Get("Python")
	assert.True(t, pyExt.IsComment("    # helper()"))
}

func TestExtractorRegistry_Unknown(t *testing.T) {
	_, ok := DefaultExtractors().Get("cobol")
	assert.False(t, ok)
}
