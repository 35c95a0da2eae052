package chunk

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Point is a row/column position in the source (0-based).
type Point struct {
	Row    uint32
	Column uint32
}

// Node is a language-independent view of a syntax-tree node.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Tree is a parsed source file.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Parser wraps tree-sitter for syntax-aware chunking.
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser creates a parser backed by the default language registry.
func NewParser() *Parser {
	return &Parser{
		parser:   sitter.NewParser(),
		registry: DefaultRegistry(),
	}
}

// Registry returns the parser's language registry.
func (p *Parser) Registry() *LanguageRegistry {
	return p.registry
}

// Parse parses source and returns the converted syntax tree.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.TreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}

	p.parser.SetLanguage(tsLang)
	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse source: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("parse source: nil tree")
	}

	return &Tree{
		Root:     convertNode(tsTree.RootNode()),
		Source:   source,
		Language: language,
	}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

func convertNode(tsNode *sitter.Node) *Node {
	if tsNode == nil {
		return nil
	}

	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartPoint: Point{
			Row:    tsNode.StartPoint().Row,
			Column: tsNode.StartPoint().Column,
		},
		EndPoint: Point{
			Row:    tsNode.EndPoint().Row,
			Column: tsNode.EndPoint().Column,
		},
		HasError: tsNode.HasError(),
		Children: make([]*Node, 0, int(tsNode.ChildCount())),
	}

	for i := uint32(0); i < tsNode.ChildCount(); i++ {
		if child := tsNode.Child(int(i)); child != nil {
			node.Children = append(node.Children, convertNode(child))
		}
	}
	return node
}

// Content returns the source text covered by the node.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child with the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// StartLine returns the 1-based first source line of the node.
func (n *Node) StartLine() int { return int(n.StartPoint.Row) + 1 }

// EndLine returns the 1-based last source line of the node.
func (n *Node) EndLine() int { return int(n.EndPoint.Row) + 1 }
