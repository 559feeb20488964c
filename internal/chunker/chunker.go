package chunker

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Symbol describes the code construct a chunk was extracted from.
type Symbol struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Signature string `json:"signature,omitempty"`
	Parent    string `json:"parent,omitempty"`
	Docstring string `json:"docstring,omitempty"`
}

// Chunk is the atomic unit of vector storage and retrieval.
type Chunk struct {
	Text      string  `json:"text"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Language  string  `json:"language"`
	Title     string  `json:"chunk_title"`
	Symbol    *Symbol `json:"symbol,omitempty"`
	// SectionPath is set for web chunks: the heading path of the section.
	SectionPath string `json:"section_path,omitempty"`
}

// Options bound chunk sizes in characters.
type Options struct {
	ChunkSize      int
	ChunkOverlap   int
	SymbolsEnabled bool
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1200
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = 0
	}
	if o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = o.ChunkSize / 4
	}
	return o
}

// Chunker splits code files, plain text, and web pages into chunks.
type Chunker struct {
	opts       Options
	parseWarns map[string]struct{}
}

func New(opts Options) *Chunker {
	return &Chunker{opts: opts.withDefaults(), parseWarns: make(map[string]struct{})}
}

// ChunkFile splits one source file. AST splitting is attempted for supported
// languages; parser failure or a file without splittable nodes falls back to
// the recursive text splitter.
func (c *Chunker) ChunkFile(path string, content []byte) []Chunk {
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil
	}
	lang := DetectLanguage(path)
	if lang.TreeSitter != nil {
		chunks, err := c.splitAST(lang, content)
		if err != nil {
			c.warnOnce(lang.Name, err)
		} else if len(chunks) > 0 {
			return c.resizeAll(chunks, lang.Name)
		}
	}
	return c.splitRecursive(string(content), lang)
}

// ChunkText splits prose with the generic separator ladder.
func (c *Chunker) ChunkText(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.splitRecursive(text, languageByName("text"))
}

// warnOnce logs one parser failure per language per chunker, so a repo full
// of unparseable files does not flood the log.
func (c *Chunker) warnOnce(lang string, err error) {
	if _, ok := c.parseWarns[lang]; ok {
		return
	}
	c.parseWarns[lang] = struct{}{}
	log.Warn().Str("language", lang).Err(err).Msg("ast parse failed, using text splitter")
}
