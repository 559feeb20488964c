package chunker

import (
	"regexp"
	"strings"
)

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)
	fenceRe   = regexp.MustCompile("^```\\s*([A-Za-z0-9+-]*)\\s*$")
)

// ChunkWebPage splits a markdown rendering of a web page into one chunk per
// leaf section or fenced code block. Fenced code is re-routed through the
// code splitter using the fence's language hint; prose inherits the heading
// path as its title.
func (c *Chunker) ChunkWebPage(markdown string) []Chunk {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n")

	var chunks []Chunk
	var headingPath []string
	var buf []string
	sectionStart := 0

	flushProse := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = nil
		if text == "" {
			return
		}
		title := strings.Join(headingPath, " > ")
		for _, piece := range c.splitRecursive(text, languageByName("markdown")) {
			piece.Title = title
			piece.SectionPath = title
			piece.StartLine += sectionStart
			piece.EndLine += sectionStart
			chunks = append(chunks, piece)
		}
	}

	i := 0
	for i < len(lines) {
		line := lines[i]

		if m := headingRe.FindStringSubmatch(line); m != nil {
			flushProse()
			level := len(m[1])
			if level <= len(headingPath) {
				headingPath = headingPath[:level-1]
			}
			headingPath = append(headingPath, m[2])
			sectionStart = i + 1
			i++
			continue
		}

		if m := fenceRe.FindStringSubmatch(line); m != nil {
			flushProse()
			hint := m[1]
			fenceStart := i + 1
			var code []string
			i++
			for i < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
				code = append(code, lines[i])
				i++
			}
			i++ // closing fence
			sectionStart = i
			body := strings.Join(code, "\n")
			if strings.TrimSpace(body) == "" {
				continue
			}
			title := strings.Join(headingPath, " > ")
			if lang, ok := LanguageForFence(hint); ok && lang.TreeSitter != nil {
				sub, err := c.splitAST(lang, []byte(body))
				if err == nil && len(sub) > 0 {
					for _, piece := range c.resizeAll(sub, lang.Name) {
						piece.SectionPath = title
						piece.StartLine += fenceStart
						piece.EndLine += fenceStart
						chunks = append(chunks, piece)
					}
					continue
				}
			}
			chunks = append(chunks, Chunk{
				Text:        body,
				StartLine:   fenceStart,
				EndLine:     fenceStart + len(code) - 1,
				Language:    strings.ToLower(hint),
				Title:       title,
				SectionPath: title,
			})
			continue
		}

		buf = append(buf, line)
		i++
	}
	flushProse()
	return chunks
}
