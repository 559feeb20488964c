package chunker

import "strings"

// resizeAll enforces ChunkSize on AST-extracted chunks. Oversized chunks are
// re-split line-wise; sub-chunks keep the language, get a title from their
// first non-import line, and carry overlap lines from the previous tail.
// The extracted symbol stays on the first sub-chunk, which contains the
// declaration it names.
func (c *Chunker) resizeAll(chunks []Chunk, langName string) []Chunk {
	var out []Chunk
	for _, ch := range chunks {
		if len(ch.Text) <= c.opts.ChunkSize {
			out = append(out, ch)
			continue
		}
		out = append(out, c.resize(ch, langName)...)
	}
	return out
}

func (c *Chunker) resize(ch Chunk, langName string) []Chunk {
	lines := strings.Split(ch.Text, "\n")
	var subs []Chunk
	var buf []string
	bufLen := 0
	lineNo := ch.StartLine
	startOfBuf := lineNo
	prevTail := ""
	prevTailLines := 0

	flush := func(endLine int) {
		if len(buf) == 0 {
			return
		}
		body := strings.Join(buf, "\n")
		chunkStart := startOfBuf
		if prevTail != "" {
			body = prevTail + "\n" + body
			chunkStart = startOfBuf - prevTailLines - 1
			if chunkStart < ch.StartLine {
				chunkStart = ch.StartLine
			}
		}
		sub := Chunk{
			Text:        body,
			StartLine:   chunkStart,
			EndLine:     endLine,
			Language:    langName,
			Title:       titleFromText(strings.Join(buf, "\n")),
			SectionPath: ch.SectionPath,
		}
		if len(subs) == 0 {
			sub.Symbol = ch.Symbol
			if sub.Symbol != nil {
				sub.Title = sub.Symbol.Name
			}
		}
		subs = append(subs, sub)
		prevTail, prevTailLines = tailForOverlap(strings.Join(buf, "\n"), c.opts.ChunkOverlap)
		buf = nil
		bufLen = 0
	}

	for _, line := range lines {
		if bufLen+len(line)+1 > c.opts.ChunkSize && len(buf) > 0 {
			flush(lineNo - 1)
			startOfBuf = lineNo
		}
		buf = append(buf, line)
		bufLen += len(line) + 1
		lineNo++
	}
	flush(lineNo - 1)
	return subs
}
