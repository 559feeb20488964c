package chunker

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

const maxDocstringLines = 5
const maxDocstringChars = 200

// splitAST parses content with tree-sitter and emits one chunk per
// splittable node. Tree-sitter is error-tolerant; a tree that still contains
// splittable nodes is used even when it has syntax errors.
func (c *Chunker) splitAST(lang Language, content []byte) ([]Chunk, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang.TreeSitter)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	lines := strings.Split(string(content), "\n")
	var chunks []Chunk
	c.walk(tree.RootNode(), lang, content, lines, &chunks)
	return chunks, nil
}

func (c *Chunker) walk(node *sitter.Node, lang Language, content []byte, lines []string, out *[]Chunk) {
	if node == nil {
		return
	}
	nodeType := node.Type()
	if kind, ok := lang.NodeKinds[nodeType]; ok {
		chunk := Chunk{
			Text:      string(content[node.StartByte():node.EndByte()]),
			StartLine: int(node.StartPoint().Row),
			EndLine:   int(node.EndPoint().Row),
			Language:  lang.Name,
		}
		if c.opts.SymbolsEnabled {
			chunk.Symbol = extractSymbol(node, lang, kind, content, lines)
		}
		if chunk.Symbol != nil {
			chunk.Title = chunk.Symbol.Name
		} else {
			chunk.Title = titleFromText(chunk.Text)
		}
		*out = append(*out, chunk)

		// Containers (classes, traits, impls) are emitted whole and also
		// recursed into so their methods become chunks of their own.
		if _, isParent := lang.ParentKinds[nodeType]; !isParent {
			return
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		c.walk(node.Child(i), lang, content, lines, out)
	}
}

func extractSymbol(node *sitter.Node, lang Language, kind string, content []byte, lines []string) *Symbol {
	sym := &Symbol{Kind: kind}

	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		// Go wraps struct/interface/alias specs inside type_declaration.
		if spec := firstChildOfType(node, "type_spec"); spec != nil {
			nameNode = spec.ChildByFieldName("name")
			if typeNode := spec.ChildByFieldName("type"); typeNode != nil {
				switch typeNode.Type() {
				case "struct_type":
					sym.Kind = "struct"
				case "interface_type":
					sym.Kind = "interface"
				}
			}
		}
	}
	if nameNode == nil {
		return nil
	}
	sym.Name = string(content[nameNode.StartByte():nameNode.EndByte()])

	if params := node.ChildByFieldName("parameters"); params != nil {
		sym.Signature = string(content[params.StartByte():params.EndByte()])
	}
	sym.Parent = enclosingName(node, lang, content)
	sym.Docstring = precedingDocstring(lines, int(node.StartPoint().Row), lang.CommentPrefixes)
	return sym
}

// enclosingName walks upward to the nearest class/module-like ancestor and
// returns its name.
func enclosingName(node *sitter.Node, lang Language, content []byte) string {
	for p := node.Parent(); p != nil; p = p.Parent() {
		if _, ok := lang.ParentKinds[p.Type()]; !ok {
			continue
		}
		if nameNode := p.ChildByFieldName("name"); nameNode != nil {
			return string(content[nameNode.StartByte():nameNode.EndByte()])
		}
		// Rust impl blocks name the type they implement.
		if typeNode := p.ChildByFieldName("type"); typeNode != nil {
			return string(content[typeNode.StartByte():typeNode.EndByte()])
		}
	}
	return ""
}

// precedingDocstring collects up to five comment lines immediately above the
// node, trims comment markers, and caps the result at 200 characters.
func precedingDocstring(lines []string, startRow int, prefixes []string) string {
	if startRow <= 0 || startRow > len(lines) {
		return ""
	}
	var collected []string
	for row := startRow - 1; row >= 0 && len(collected) < maxDocstringLines; row-- {
		trimmed := strings.TrimSpace(lines[row])
		if trimmed == "" {
			break
		}
		matched := ""
		for _, p := range prefixes {
			if strings.HasPrefix(trimmed, p) {
				matched = p
				break
			}
		}
		if matched == "" {
			break
		}
		line := strings.TrimSpace(strings.TrimPrefix(trimmed, matched))
		line = strings.TrimSuffix(line, "*/")
		line = strings.TrimSuffix(line, `"""`)
		line = strings.TrimSuffix(line, "'''")
		collected = append([]string{strings.TrimSpace(line)}, collected...)
	}
	doc := strings.TrimSpace(strings.Join(collected, " "))
	if len(doc) > maxDocstringChars {
		doc = doc[:maxDocstringChars]
	}
	return doc
}

func firstChildOfType(node *sitter.Node, childType string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		if ch := node.Child(i); ch != nil && ch.Type() == childType {
			return ch
		}
	}
	return nil
}

// titleFromText picks the first line that is not an import/export/package
// statement as the chunk title.
func titleFromText(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "import") || strings.HasPrefix(lower, "export") ||
			strings.HasPrefix(lower, "package") || strings.HasPrefix(lower, "from ") ||
			strings.HasPrefix(lower, "use ") {
			continue
		}
		if len(trimmed) > 120 {
			trimmed = trimmed[:120]
		}
		return trimmed
	}
	return ""
}
