package chunker

import "strings"

// splitRecursive is the fallback splitter: a recursive character splitter
// over the language family's separator ladder. It never emits empty chunks
// and respects ChunkSize/ChunkOverlap.
func (c *Chunker) splitRecursive(text string, lang Language) []Chunk {
	seps := lang.Separators
	if len(seps) == 0 {
		seps = []string{"\n\n", "\n", " "}
	}
	pieces := recursiveSplit(text, seps, c.opts.ChunkSize)

	var chunks []Chunk
	cursor := 0
	prevTail := ""
	prevTailLines := 0
	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		pos := strings.Index(text[cursor:], piece)
		if pos < 0 {
			pos = 0
		}
		start := cursor + pos
		cursor = start + len(piece)

		startLine := strings.Count(text[:start], "\n")
		endLine := startLine + strings.Count(piece, "\n")

		body := piece
		chunkStart := startLine
		if prevTail != "" {
			body = prevTail + "\n" + piece
			chunkStart = startLine - prevTailLines - 1
			if chunkStart < 0 {
				chunkStart = 0
			}
		}
		chunks = append(chunks, Chunk{
			Text:      body,
			StartLine: chunkStart,
			EndLine:   endLine,
			Language:  lang.Name,
			Title:     titleFromText(piece),
		})

		prevTail, prevTailLines = tailForOverlap(piece, c.opts.ChunkOverlap)
	}
	return chunks
}

// recursiveSplit partitions text into pieces no longer than size using the
// separator ladder; a piece that cannot be reduced further is hard-cut.
func recursiveSplit(text string, seps []string, size int) []string {
	if len(text) <= size {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	if len(seps) == 0 {
		return hardCut(text, size)
	}
	sep := seps[0]
	rest := seps[1:]
	parts := strings.SplitAfter(text, sep)
	if len(parts) == 1 {
		return recursiveSplit(text, rest, size)
	}

	var out []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for _, part := range parts {
		if len(part) > size {
			flush()
			out = append(out, recursiveSplit(part, rest, size)...)
			continue
		}
		if buf.Len()+len(part) > size {
			flush()
		}
		buf.WriteString(part)
	}
	flush()
	return out
}

func hardCut(text string, size int) []string {
	var out []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// tailForOverlap returns the trailing lines of a piece that fit within the
// overlap budget, and the number of line breaks inside that tail (its line
// count minus one).
func tailForOverlap(piece string, overlap int) (string, int) {
	if overlap <= 0 {
		return "", 0
	}
	lines := strings.Split(piece, "\n")
	var tail []string
	total := 0
	for i := len(lines) - 1; i >= 0; i-- {
		if total+len(lines[i]) > overlap && len(tail) > 0 {
			break
		}
		tail = append([]string{lines[i]}, tail...)
		total += len(lines[i]) + 1
		if total >= overlap {
			break
		}
	}
	return strings.Join(tail, "\n"), len(tail) - 1
}
