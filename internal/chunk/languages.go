package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageConfig declares how one language is chunked: which node
// types count as extractable elements, and which extensions map to it.
type LanguageConfig struct {
	Name       string
	Extensions []string
	// ElementNodeTypes are the syntax node types extracted as
	// candidate chunks.
	ElementNodeTypes []string

	elementSet map[string]struct{}
}

// IsElementType reports whether nodeType is extractable for this
// language.
func (c *LanguageConfig) IsElementType(nodeType string) bool {
	_, ok := c.elementSet[nodeType]
	return ok
}

// LanguageRegistry manages supported languages and their grammars.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry builds a registry with the supported languages:
// python, javascript, typescript, java, cpp, go, rust, csharp.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.register(&LanguageConfig{
		Name:       "python",
		Extensions: []string{".py"},
		ElementNodeTypes: []string{
			"class_definition", "function_definition", "assignment",
			"decorated_definition", "import_statement", "import_from_statement",
		},
	}, python.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "javascript",
		Extensions: []string{".js", ".jsx", ".mjs"},
		ElementNodeTypes: []string{
			"class_declaration", "function_declaration", "method_definition",
			"arrow_function", "variable_declaration", "lexical_declaration",
			"import_statement", "export_statement",
		},
	}, javascript.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "typescript",
		Extensions: []string{".ts"},
		ElementNodeTypes: []string{
			"class_declaration", "function_declaration", "method_definition",
			"arrow_function", "variable_declaration", "lexical_declaration",
			"interface_declaration", "import_statement", "export_statement",
		},
	}, typescript.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "tsx",
		Extensions: []string{".tsx"},
		ElementNodeTypes: []string{
			"class_declaration", "function_declaration", "method_definition",
			"arrow_function", "variable_declaration", "lexical_declaration",
			"interface_declaration", "import_statement", "export_statement",
		},
	}, tsx.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "java",
		Extensions: []string{".java"},
		ElementNodeTypes: []string{
			"class_declaration", "interface_declaration", "method_declaration",
			"field_declaration", "import_declaration", "package_declaration",
		},
	}, java.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "cpp",
		Extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".h", ".c"},
		ElementNodeTypes: []string{
			"class_specifier", "struct_specifier", "function_definition",
			"declaration", "preproc_include",
		},
	}, cpp.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "go",
		Extensions: []string{".go"},
		ElementNodeTypes: []string{
			"type_declaration", "function_declaration", "method_declaration",
			"var_declaration", "const_declaration", "import_declaration", "package_clause",
		},
	}, golang.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "rust",
		Extensions: []string{".rs"},
		ElementNodeTypes: []string{
			"struct_item", "enum_item", "impl_item", "function_item",
			"let_declaration", "use_declaration",
		},
	}, rust.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "csharp",
		Extensions: []string{".cs"},
		ElementNodeTypes: []string{
			"class_declaration", "interface_declaration", "struct_declaration",
			"method_declaration", "property_declaration", "field_declaration",
			"using_directive",
		},
	}, csharp.GetLanguage())

	return r
}

func (r *LanguageRegistry) register(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	config.elementSet = make(map[string]struct{}, len(config.ElementNodeTypes))
	for _, t := range config.ElementNodeTypes {
		config.elementSet[t] = struct{}{}
	}

	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang
	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

// ByName returns the configuration for a language name.
func (r *LanguageRegistry) ByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.configs[strings.ToLower(name)]
	return c, ok
}

// ByExtension returns the configuration for a file extension.
func (r *LanguageRegistry) ByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	c, ok := r.configs[name]
	return c, ok
}

// TreeSitterLanguage returns the grammar for a language name.
func (r *LanguageRegistry) TreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[strings.ToLower(name)]
	return lang, ok
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the shared language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}

// elementKind maps a syntax node type to the coarse element type
// recorded in chunk metadata.
func elementKind(nodeType string) string {
	switch {
	case strings.Contains(nodeType, "class") || strings.Contains(nodeType, "struct") ||
		strings.Contains(nodeType, "interface") || strings.Contains(nodeType, "enum") ||
		strings.Contains(nodeType, "impl"):
		return ElementClass
	case strings.Contains(nodeType, "function") || strings.Contains(nodeType, "method"):
		return ElementFunction
	case strings.Contains(nodeType, "import") || strings.Contains(nodeType, "export") ||
		strings.Contains(nodeType, "package") || strings.Contains(nodeType, "using") ||
		strings.Contains(nodeType, "use_declaration") || strings.Contains(nodeType, "preproc_include"):
		return ElementImport
	case strings.Contains(nodeType, "assignment") || strings.Contains(nodeType, "declaration") ||
		strings.Contains(nodeType, "var_") || strings.Contains(nodeType, "let_") ||
		strings.Contains(nodeType, "field_") || strings.Contains(nodeType, "property_"):
		return ElementAssignment
	case strings.Contains(nodeType, "decorated"):
		return ElementDecorated
	default:
		return ElementStatement
	}
}

// bodyNodeTypes are the node types that hold a class-like element's
// members, used when decomposing oversize classes.
var bodyNodeTypes = map[string]struct{}{
	"block":                  {},
	"class_body":             {},
	"interface_body":         {},
	"field_declaration_list": {},
	"declaration_list":       {},
	"enum_body":              {},
}

// findBodyNode returns the member-holding child of a class-like node.
func findBodyNode(n *Node) *Node {
	for _, child := range n.Children {
		if _, ok := bodyNodeTypes[child.Type]; ok {
			return child
		}
	}
	return nil
}
