package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSample = `package svc

// Greet returns a greeting for the given name.
func Greet(name string) string {
	return "hello " + name
}

type Server struct {
	addr string
}

// Start begins listening.
func (s *Server) Start() error {
	return nil
}
`

const pySample = `class Svc:
    """Service wrapper."""

    def run(self):
        return 1
`

const tsSample = `export function foo(x: number): number {
  return x + 1
}

function bar() {
  return "JWT_SECRET"
}
`

func newTestChunker() *Chunker {
	return New(Options{ChunkSize: 1200, ChunkOverlap: 100, SymbolsEnabled: true})
}

func TestChunkFileGoSymbols(t *testing.T) {
	c := newTestChunker()
	chunks := c.ChunkFile("svc.go", []byte(goSample))
	require.NotEmpty(t, chunks)

	byName := map[string]Chunk{}
	for _, ch := range chunks {
		if ch.Symbol != nil {
			byName[ch.Symbol.Name] = ch
		}
	}
	greet, ok := byName["Greet"]
	require.True(t, ok, "expected a chunk for Greet")
	assert.Equal(t, "function", greet.Symbol.Kind)
	assert.Contains(t, greet.Symbol.Signature, "name string")
	assert.Contains(t, greet.Symbol.Docstring, "returns a greeting")
	assert.LessOrEqual(t, greet.StartLine, greet.EndLine)

	start, ok := byName["Start"]
	require.True(t, ok)
	assert.Equal(t, "method", start.Symbol.Kind)

	server, ok := byName["Server"]
	require.True(t, ok)
	assert.Equal(t, "struct", server.Symbol.Kind)
}

func TestChunkFilePythonClassAndMethod(t *testing.T) {
	c := newTestChunker()
	chunks := c.ChunkFile("svc.py", []byte(pySample))
	require.NotEmpty(t, chunks)

	var class, method *Chunk
	for i := range chunks {
		if chunks[i].Symbol == nil {
			continue
		}
		switch chunks[i].Symbol.Name {
		case "Svc":
			class = &chunks[i]
		case "run":
			method = &chunks[i]
		}
	}
	require.NotNil(t, class)
	assert.Equal(t, "class", class.Symbol.Kind)
	require.NotNil(t, method)
	assert.Equal(t, "Svc", method.Symbol.Parent)
}

func TestChunkFileTypeScript(t *testing.T) {
	c := newTestChunker()
	chunks := c.ChunkFile("a.ts", []byte(tsSample))
	require.Len(t, chunks, 2)
	names := []string{chunks[0].Symbol.Name, chunks[1].Symbol.Name}
	assert.ElementsMatch(t, []string{"foo", "bar"}, names)
}

func TestChunkFileEmpty(t *testing.T) {
	c := newTestChunker()
	assert.Empty(t, c.ChunkFile("a.ts", nil))
	assert.Empty(t, c.ChunkFile("a.ts", []byte("   \n\t")))
}

func TestChunkFileFallbackForUnknownLanguage(t *testing.T) {
	c := New(Options{ChunkSize: 40, ChunkOverlap: 0, SymbolsEnabled: true})
	text := strings.Repeat("some plain prose line\n\n", 10)
	chunks := c.ChunkFile("notes.txt", []byte(text))
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(ch.Text))
		assert.LessOrEqual(t, ch.StartLine, ch.EndLine)
	}
}

func TestResizeOversizedChunks(t *testing.T) {
	var b strings.Builder
	b.WriteString("package big\n\nfunc Huge() {\n")
	for i := 0; i < 200; i++ {
		b.WriteString("\tdoSomethingLong(\"padding padding padding\")\n")
	}
	b.WriteString("}\n")

	c := New(Options{ChunkSize: 600, ChunkOverlap: 80, SymbolsEnabled: true})
	chunks := c.ChunkFile("big.go", []byte(b.String()))
	require.Greater(t, len(chunks), 1, "oversized function must be re-split")
	assert.NotNil(t, chunks[0].Symbol)
	assert.Equal(t, "Huge", chunks[0].Symbol.Name)
	for _, ch := range chunks[1:] {
		assert.Nil(t, ch.Symbol)
		assert.NotEmpty(t, ch.Title)
	}
}

func TestChunkWebPageSectionsAndFences(t *testing.T) {
	md := "# Guide\n\nIntro paragraph.\n\n## Setup\n\nInstall it.\n\n```go\npackage main\n\nfunc main() {}\n```\n\nMore prose.\n"
	c := newTestChunker()
	chunks := c.ChunkWebPage(md)
	require.NotEmpty(t, chunks)

	var sawCode, sawSetupProse bool
	for _, ch := range chunks {
		if ch.Language == "go" {
			sawCode = true
			assert.Contains(t, ch.SectionPath, "Setup")
		}
		if strings.Contains(ch.Text, "Install it.") {
			sawSetupProse = true
			assert.Equal(t, "Guide > Setup", ch.Title)
		}
	}
	assert.True(t, sawCode, "fenced code should be routed through the code splitter")
	assert.True(t, sawSetupProse)
}

func TestChunkWebPageEmpty(t *testing.T) {
	c := newTestChunker()
	assert.Empty(t, c.ChunkWebPage(""))
	assert.Empty(t, c.ChunkWebPage("\n\n"))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "go", DetectLanguage("a/b/c.go").Name)
	assert.Equal(t, "tsx", DetectLanguage("ui.tsx").Name)
	assert.Equal(t, "text", DetectLanguage("README").Name)
	assert.True(t, IsCodePath("x.py"))
	assert.False(t, IsCodePath("x.csv"))
}
