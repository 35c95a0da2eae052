package chunk

import "strings"

const unknownName = "Unknown"

// extractIdentifier pulls the declared name out of an element node.
// Strategies are language-specific because grammars disagree about
// where the name lives.
func extractIdentifier(n *Node, source []byte, language string) string {
	switch language {
	case "javascript", "typescript", "tsx":
		return extractJSIdentifier(n, source)
	case "python":
		return extractPythonIdentifier(n, source)
	case "java":
		return extractJavaIdentifier(n, source)
	default:
		return extractGenericIdentifier(n, source)
	}
}

func extractJSIdentifier(n *Node, source []byte) string {
	// Methods name themselves with property_identifier.
	if n.Type == "method_definition" {
		if child := n.FindChildByType("property_identifier"); child != nil {
			return child.Content(source)
		}
	}

	if n.Type == "function_declaration" || n.Type == "arrow_function" {
		if child := n.FindChildByType("identifier"); child != nil {
			return child.Content(source)
		}
	}

	if n.Type == "variable_declaration" || n.Type == "lexical_declaration" {
		for _, child := range n.Children {
			if child.Type == "variable_declarator" {
				if ident := child.FindChildByType("identifier"); ident != nil {
					return ident.Content(source)
				}
			}
		}
	}

	return extractGenericIdentifier(n, source)
}

func extractPythonIdentifier(n *Node, source []byte) string {
	if child := n.FindChildByType("identifier"); child != nil {
		return child.Content(source)
	}
	return extractIdentifierRecursive(n, source, 2)
}

func extractJavaIdentifier(n *Node, source []byte) string {
	if child := n.FindChildByType("identifier"); child != nil {
		return child.Content(source)
	}
	return extractGenericIdentifier(n, source)
}

func extractGenericIdentifier(n *Node, source []byte) string {
	if child := n.FindChildByType("identifier"); child != nil {
		return child.Content(source)
	}
	return extractIdentifierRecursive(n, source, 3)
}

// extractIdentifierRecursive searches descendants for an identifier,
// bounded by maxDepth so a deep expression cannot hijack the name.
func extractIdentifierRecursive(n *Node, source []byte, maxDepth int) string {
	if maxDepth <= 0 {
		return unknownName
	}
	for _, child := range n.Children {
		if child.Type == "identifier" || child.Type == "property_identifier" {
			return child.Content(source)
		}
		if result := extractIdentifierRecursive(child, source, maxDepth-1); result != unknownName {
			return result
		}
	}
	return unknownName
}

// extractVariableName names an assignment-like element.
func extractVariableName(n *Node, source []byte, language string) string {
	// Python assignments read naturally as "name = value".
	if language == "python" {
		content := n.Content(source)
		if i := strings.Index(content, "="); i > 0 {
			return strings.TrimSpace(content[:i])
		}
	}

	for _, child := range n.Children {
		switch child.Type {
		case "variable_declarator":
			if name := extractIdentifier(child, source, language); name != unknownName {
				return name
			}
		case "identifier":
			return child.Content(source)
		}
	}
	return unknownName
}

// elementName derives the metadata name for a unit of the given kind.
func elementName(n *Node, source []byte, language, kind string) string {
	switch kind {
	case ElementImport:
		return strings.TrimSpace(n.Content(source))
	case ElementAssignment:
		return extractVariableName(n, source, language)
	default:
		return extractIdentifier(n, source, language)
	}
}
