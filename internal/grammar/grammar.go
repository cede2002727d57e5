// Package grammar wraps the tree-sitter bindings behind a language
// registry and a reusable parser. It knows nothing about symbols or
// storage; extraction layers on top of the syntax trees produced here.
package grammar

// Tree is a fully materialized parse of one source buffer.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node mirrors a tree-sitter node with the fields extraction needs.
// Materializing the tree up front lets callers release the parser back
// to its pool before walking.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a zero-indexed row/column position.
type Point struct {
	Row    uint32
	Column uint32
}

// LanguageConfig describes one language's grammar surface: which file
// extensions map to it, and which node kinds carry definitions.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// Node kinds that declare functions.
	FunctionTypes []string

	// Node kinds that declare classes or structs.
	ClassTypes []string

	// Node kinds that declare interfaces or traits.
	InterfaceTypes []string

	// Node kinds that declare methods.
	MethodTypes []string

	// Node kinds that declare named types or aliases.
	TypeDefTypes []string

	// Node kinds that declare constants.
	ConstantTypes []string

	// Node kinds that declare variables.
	VariableTypes []string

	// Child node kind holding the declared name.
	NameField string
}

// GetContent returns the source text covered by the node. Out-of-range
// offsets (possible after an edit races a parse) yield "".
func (n *Node) GetContent(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child of the given kind.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// FindChildrenByType returns all direct children of the given kind.
func (n *Node) FindChildrenByType(nodeType string) []*Node {
	var result []*Node
	for _, child := range n.Children {
		if child.Type == nodeType {
			result = append(result, child)
		}
	}
	return result
}

// FindAllByType returns every node of the given kind in the subtree,
// including the receiver.
func (n *Node) FindAllByType(nodeType string) []*Node {
	var result []*Node
	if n.Type == nodeType {
		result = append(result, n)
	}
	for _, child := range n.Children {
		result = append(result, child.FindAllByType(nodeType)...)
	}
	return result
}

// Walk visits the subtree depth-first. Returning false from fn prunes
// the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}
