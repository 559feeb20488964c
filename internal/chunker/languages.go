package chunker

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language bundles everything the splitters need to know about one language:
// the grammar, which node types are splittable and what symbol kind they map
// to, which node types can act as a symbol's parent, comment markers for
// docstring extraction, and the separator ladder for the fallback splitter.
type Language struct {
	Name       string
	TreeSitter *sitter.Language
	// NodeKinds maps splittable AST node types to symbol kinds.
	NodeKinds map[string]string
	// ParentKinds are node types that provide Symbol.Parent when walking up.
	ParentKinds map[string]struct{}
	// CommentPrefixes are trimmed off docstring lines.
	CommentPrefixes []string
	Separators      []string
}

var cLikeComments = []string{"///", "//!", "//", "/*", "*/", "*"}

var languages = []Language{
	{
		Name:       "go",
		TreeSitter: golang.GetLanguage(),
		NodeKinds: map[string]string{
			"function_declaration": "function",
			"method_declaration":   "method",
			"type_declaration":     "type",
		},
		ParentKinds:     map[string]struct{}{"type_declaration": {}},
		CommentPrefixes: cLikeComments,
		Separators:      []string{"\nfunc ", "\ntype ", "\n\n", "\n", " "},
	},
	{
		Name:       "python",
		TreeSitter: python.GetLanguage(),
		NodeKinds: map[string]string{
			"function_definition": "function",
			"class_definition":    "class",
		},
		ParentKinds:     map[string]struct{}{"class_definition": {}},
		CommentPrefixes: []string{"#", `"""`, "'''"},
		Separators:      []string{"\nclass ", "\ndef ", "\n\n", "\n", " "},
	},
	{
		Name:       "javascript",
		TreeSitter: javascript.GetLanguage(),
		NodeKinds: map[string]string{
			"function_declaration": "function",
			"class_declaration":    "class",
			"method_definition":    "method",
		},
		ParentKinds:     map[string]struct{}{"class_declaration": {}},
		CommentPrefixes: cLikeComments,
		Separators:      []string{"\nfunction ", "\nclass ", "\nconst ", "\n\n", "\n", " "},
	},
	{
		Name:       "typescript",
		TreeSitter: typescript.GetLanguage(),
		NodeKinds: map[string]string{
			"function_declaration":   "function",
			"class_declaration":      "class",
			"method_definition":      "method",
			"interface_declaration":  "interface",
			"type_alias_declaration": "type",
			"enum_declaration":       "enum",
		},
		ParentKinds:     map[string]struct{}{"class_declaration": {}, "interface_declaration": {}},
		CommentPrefixes: cLikeComments,
		Separators:      []string{"\nfunction ", "\nclass ", "\nexport ", "\nconst ", "\n\n", "\n", " "},
	},
	{
		Name:       "tsx",
		TreeSitter: tsx.GetLanguage(),
		NodeKinds: map[string]string{
			"function_declaration":   "function",
			"class_declaration":      "class",
			"method_definition":      "method",
			"interface_declaration":  "interface",
			"type_alias_declaration": "type",
			"enum_declaration":       "enum",
		},
		ParentKinds:     map[string]struct{}{"class_declaration": {}, "interface_declaration": {}},
		CommentPrefixes: cLikeComments,
		Separators:      []string{"\nfunction ", "\nclass ", "\nexport ", "\nconst ", "\n\n", "\n", " "},
	},
	{
		Name:       "rust",
		TreeSitter: rust.GetLanguage(),
		NodeKinds: map[string]string{
			"function_item": "function",
			"struct_item":   "struct",
			"enum_item":     "enum",
			"trait_item":    "trait",
			"mod_item":      "module",
			"impl_item":     "module",
		},
		ParentKinds:     map[string]struct{}{"impl_item": {}, "mod_item": {}, "trait_item": {}},
		CommentPrefixes: cLikeComments,
		Separators:      []string{"\nfn ", "\nimpl ", "\nstruct ", "\n\n", "\n", " "},
	},
	{
		Name:       "java",
		TreeSitter: java.GetLanguage(),
		NodeKinds: map[string]string{
			"method_declaration":    "method",
			"class_declaration":     "class",
			"interface_declaration": "interface",
			"enum_declaration":      "enum",
		},
		ParentKinds:     map[string]struct{}{"class_declaration": {}, "interface_declaration": {}},
		CommentPrefixes: cLikeComments,
		Separators:      []string{"\nclass ", "\npublic ", "\nprivate ", "\n\n", "\n", " "},
	},
	{
		Name:       "markdown",
		Separators: []string{"\n## ", "\n### ", "\n\n", "\n", " "},
	},
	{
		Name:       "text",
		Separators: []string{"\n\n", "\n", ". ", " "},
	},
}

var extToLanguage = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".mts":  "typescript",
	".tsx":  "tsx",
	".rs":   "rust",
	".java": "java",
	".md":   "markdown",
	".mdx":  "markdown",
}

var fenceToLanguage = map[string]string{
	"go": "go", "golang": "go",
	"py": "python", "python": "python",
	"js": "javascript", "javascript": "javascript",
	"ts": "typescript", "typescript": "typescript",
	"tsx": "tsx", "jsx": "javascript",
	"rs": "rust", "rust": "rust",
	"java": "java",
}

// DetectLanguage maps a file path to its language descriptor; unknown
// extensions get the plain text descriptor.
func DetectLanguage(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	if name, ok := extToLanguage[ext]; ok {
		return languageByName(name)
	}
	return languageByName("text")
}

// LanguageForFence resolves a fenced-code-block hint ("```ts") to a language.
func LanguageForFence(hint string) (Language, bool) {
	name, ok := fenceToLanguage[strings.ToLower(strings.TrimSpace(hint))]
	if !ok {
		return Language{}, false
	}
	return languageByName(name), true
}

// IsCodePath reports whether the path maps to an AST-supported language.
// The ingest router uses it to pick the code embedding model.
func IsCodePath(path string) bool {
	return DetectLanguage(path).TreeSitter != nil
}

func languageByName(name string) Language {
	for _, l := range languages {
		if l.Name == name {
			return l
		}
	}
	return languages[len(languages)-1] // text
}
