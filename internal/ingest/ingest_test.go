package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zykairotis/contextd/internal/chunker"
	"github.com/Zykairotis/contextd/internal/realtime"
)

func TestChunkIDStable(t *testing.T) {
	a := ChunkID("doc-1", 0, "func foo() {}")
	b := ChunkID("doc-1", 0, "func foo() {}")
	assert.Equal(t, a, b, "same inputs must reproduce the same id")

	assert.NotEqual(t, a, ChunkID("doc-1", 1, "func foo() {}"))
	assert.NotEqual(t, a, ChunkID("doc-2", 0, "func foo() {}"))
	assert.NotEqual(t, a, ChunkID("doc-1", 0, "func bar() {}"))
}

func TestDocumentIDStable(t *testing.T) {
	assert.Equal(t, DocumentID("ds", "a.go"), DocumentID("ds", "a.go"))
	assert.NotEqual(t, DocumentID("ds", "a.go"), DocumentID("ds", "b.go"))
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, ContentHash([]byte("x")), ContentHash([]byte("x")))
	assert.NotEqual(t, ContentHash([]byte("x")), ContentHash([]byte("y")))
}

func TestBuildPayloadWeb(t *testing.T) {
	item := Item{Ref: "https://docs.example.com/guide", Kind: SourceWeb}
	ch := chunker.Chunk{Text: "body", StartLine: 3, EndLine: 5, Language: "markdown", SectionPath: "Guide > Setup"}
	payload := buildPayload("p1", "d1", "doc1", "c1", item, ch)
	assert.Equal(t, "https://docs.example.com/guide", payload["url"])
	assert.Equal(t, "docs.example.com", payload["domain"])
	assert.Equal(t, "Guide > Setup", payload["section_path"])
	assert.Equal(t, "p1", payload["project_id"])
	assert.Equal(t, int64(3), payload["start_line"])
}

func TestBuildPayloadSymbol(t *testing.T) {
	item := Item{Ref: "b.py", Kind: SourceCode}
	ch := chunker.Chunk{
		Text: "def run", Language: "python",
		Symbol: &chunker.Symbol{Name: "run", Kind: "method", Parent: "Svc"},
	}
	payload := buildPayload("p", "d", "doc", "c", item, ch)
	assert.Equal(t, "run", payload["symbol_name"])
	assert.Equal(t, "method", payload["symbol_kind"])
	assert.Equal(t, "Svc", payload["symbol_parent"])
	_, hasURL := payload["url"]
	assert.False(t, hasURL)
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestDirSourceEnumerate(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.ts":               "export function foo() {}",
		"src/b.py":           "def x(): pass",
		"node_modules/c.js":  "ignored",
		".git/config":        "ignored",
		"README.md":          "# readme",
	})

	src := &DirSource{Root: root}
	items, err := src.Enumerate(context.Background())
	require.NoError(t, err)

	refs := make([]string, len(items))
	for i, it := range items {
		refs[i] = it.Ref
	}
	assert.ElementsMatch(t, []string{"a.ts", "src/b.py", "README.md"}, refs)
}

func TestDirSourceGlobs(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.ts":     "x",
		"a.test.ts": "x",
		"b.go":     "x",
	})

	src := &DirSource{Root: root, Include: []string{"*.ts", "*.go"}, Exclude: []string{"*.test.ts"}}
	items, err := src.Enumerate(context.Background())
	require.NoError(t, err)
	refs := make([]string, len(items))
	for i, it := range items {
		refs[i] = it.Ref
	}
	assert.ElementsMatch(t, []string{"a.ts", "b.go"}, refs)
}

func TestDirSourceSkipsBinary(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.ts"), []byte{0x00, 0x01, 0x02}, 0o644))
	src := &DirSource{Root: root}
	items, err := src.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	data, err := items[0].Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, data, "binary content loads as empty so it is skipped")
}

func TestProgressTrackerMonotoneAndDeduped(t *testing.T) {
	bus := realtime.NewBus()
	ch, cancel := bus.Subscribe(realtime.ProjectAll, nil)
	defer cancel()

	tr := newProgressTracker("job-1", "proj", nil, bus)
	ctx := context.Background()
	tr.emit(ctx, PhaseAcquire, 0.5, "")  // 5
	tr.emit(ctx, PhaseAcquire, 0.55, "") // still 5: suppressed
	tr.emit(ctx, PhaseAcquire, 1, "")    // 10
	tr.emit(ctx, PhaseEnumerate, 0, "")  // 10: suppressed
	tr.emit(ctx, PhaseChunk, 0.5, "")    // 30

	var got []int
	timeout := time.After(time.Second)
	for len(got) < 3 {
		select {
		case msg := <-ch:
			p := msg.Data.(realtime.JobProgress)
			got = append(got, p.Progress)
		case <-timeout:
			t.Fatalf("expected 3 progress events, got %v", got)
		}
	}
	assert.Equal(t, []int{5, 10, 30}, got)
	select {
	case msg := <-ch:
		t.Fatalf("unexpected extra event: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestExtractMarkdown(t *testing.T) {
	html := `<html><head><title>Guide</title></head><body>
		<nav>boilerplate nav</nav>
		<article><h1>Guide</h1><p>Real content here with enough words to keep readability interested in the article body.</p></article>
	</body></html>`
	md, err := ExtractMarkdown("https://docs.example.com/guide", []byte(html))
	require.NoError(t, err)
	assert.Contains(t, string(md), "Real content")
}
