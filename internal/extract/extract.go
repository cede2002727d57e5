// Package extract turns parsed source into the symbols, identifiers,
// and relationships the structured store persists. A single base
// extractor provides the tree walk, boundary-safe truncation, and
// doc-comment detection; the per-language node-kind dispatch tables in
// internal/grammar decide which nodes count as definitions across the
// ~26 registered languages.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/juliehq/julie/internal/grammar"
	"github.com/juliehq/julie/internal/store"
)

// Extractor parses a source buffer and emits (symbols, identifiers,
// relationships, errors). It owns a parser pool (one *grammar.Parser
// per language) so repeated calls avoid the 10-50x reconstruction
// overhead tree-sitter parsers incur.
type Extractor struct {
	registry *grammar.LanguageRegistry
	pool     *parserPool
}

// New creates an Extractor backed by the default ~26-language registry.
func New() *Extractor {
	registry := grammar.DefaultRegistry()
	return &Extractor{
		registry: registry,
		pool:     newParserPool(registry),
	}
}

// NewWithRegistry creates an Extractor backed by a custom registry
// (mainly for tests that only register a subset of languages).
func NewWithRegistry(registry *grammar.LanguageRegistry) *Extractor {
	return &Extractor{
		registry: registry,
		pool:     newParserPool(registry),
	}
}

// Close releases pooled parser resources.
func (e *Extractor) Close() {
	e.pool.closeAll()
}

// Result is the extractor's output for one file: whatever it could
// recover, plus a tally of non-fatal errors that did
// not stop extraction of the rest of the file.
type Result struct {
	Symbols       []*store.Symbol
	Identifiers   []*store.Identifier
	Relationships []*store.Relationship
	Errors        []error
}

// Extract parses source with the language's tree-sitter grammar and
// walks the tree once, emitting every named definition, every
// reference occurrence that participates in a
// call/type/member-access/import relationship, and the relationships
// those occurrences imply. It never panics: partial/ERROR-node parses
// still yield whatever was recoverable, and internal failures are
// appended to Result.Errors rather than propagated.
func (e *Extractor) Extract(ctx context.Context, source []byte, filePath, language string) *Result {
	result := &Result{}

	config, ok := e.registry.GetByName(language)
	if !ok {
		result.Errors = append(result.Errors, fmt.Errorf("extract: unsupported language %q for %s", language, filePath))
		return result
	}

	parser := e.pool.get(language)
	defer e.pool.put(language, parser)

	tree, err := parser.Parse(ctx, source, language)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("extract: parse %s: %w", filePath, err))
		return result
	}
	if tree == nil || tree.Root == nil {
		return result
	}

	w := &walker{
		source:   source,
		filePath: filePath,
		language: language,
		config:   config,
		result:   result,
	}
	w.walk(tree.Root, nil)

	return result
}

// walker carries per-file extraction state across the recursive
// tree-walk: the enclosing-symbol stack needed for parent_symbol_id and
// containing_symbol_id, and the running counters used to derive stable
// symbol IDs.
type walker struct {
	source   []byte
	filePath string
	language string
	config   *grammar.LanguageConfig
	result   *Result
}

// walk recursively visits n, tracking the innermost enclosing symbol in
// parent (nil at the file's top level).
func (w *walker) walk(n *grammar.Node, parent *store.Symbol) {
	if n == nil {
		return
	}

	sym := w.symbolFor(n, parent)
	nextParent := parent
	if sym != nil {
		w.result.Symbols = append(w.result.Symbols, sym)
		nextParent = sym
	} else {
		w.emitIdentifiersAndRelationships(n, parent)
	}

	for _, child := range n.Children {
		w.walk(child, nextParent)
	}
}

// symbolFor returns a Symbol if n is a node-kind the language's
// dispatch table marks as a definition, else nil.
func (w *walker) symbolFor(n *grammar.Node, parent *store.Symbol) *store.Symbol {
	kind, ok := w.classify(n.Type)
	if !ok {
		return nil
	}

	name := w.nameOf(n)
	if name == "" {
		return nil
	}

	startByte := int(n.StartByte)
	id := symbolID(w.filePath, name, string(kind), startByte)

	parentID := ""
	if parent != nil {
		parentID = parent.ID
	}

	signature := w.signatureOf(n)
	doc := w.docCommentFor(n)
	vis := w.visibilityOf(n, name)
	ctxLine := w.codeContextFor(n)

	return &store.Symbol{
		ID:             id,
		Name:           name,
		Kind:           kind,
		Language:       w.language,
		FilePath:       w.filePath,
		StartLine:      int(n.StartPoint.Row) + 1,
		EndLine:        int(n.EndPoint.Row) + 1,
		StartByte:      startByte,
		EndByte:        int(n.EndByte),
		Signature:      signature,
		DocComment:     doc,
		Visibility:     vis,
		CodeContext:    ctxLine,
		ParentSymbolID: parentID,
	}
}

// classify maps a tree-sitter node type to a SymbolKind using the
// language's node-kind dispatch table. Function wins over method wins
// over class when a node type appears in more than one table.
func (w *walker) classify(nodeType string) (store.SymbolKind, bool) {
	c := w.config
	switch {
	case containsType(c.FunctionTypes, nodeType):
		return store.SymbolFunction, true
	case containsType(c.MethodTypes, nodeType):
		return store.SymbolMethod, true
	case containsType(c.ClassTypes, nodeType):
		return classifyClassLike(nodeType)
	case containsType(c.InterfaceTypes, nodeType):
		return store.SymbolInterface, true
	case containsType(c.TypeDefTypes, nodeType):
		return store.SymbolTypeAlias, true
	case containsType(c.ConstantTypes, nodeType):
		return store.SymbolConstant, true
	case containsType(c.VariableTypes, nodeType):
		return store.SymbolVariable, true
	}
	return "", false
}

// classifyClassLike refines the generic "class" dispatch-table hit into
// struct/enum/trait/class based on common
// tree-sitter node-type naming conventions across grammars.
func classifyClassLike(nodeType string) (store.SymbolKind, bool) {
	switch {
	case strings.Contains(nodeType, "struct"):
		return store.SymbolStruct, true
	case strings.Contains(nodeType, "enum"):
		return store.SymbolEnum, true
	case strings.Contains(nodeType, "trait"):
		return store.SymbolTrait, true
	default:
		return store.SymbolClass, true
	}
}

func containsType(types []string, nodeType string) bool {
	for _, t := range types {
		if t == nodeType {
			return true
		}
	}
	return false
}

// nameOf finds the node's name using the language's NameField, falling
// back to the first "identifier"-like child when the configured field
// isn't a direct child (common for declarator-wrapped definitions).
func (w *walker) nameOf(n *grammar.Node) string {
	if w.config.NameField != "" {
		if child := n.FindChildByType(w.config.NameField); child != nil {
			return child.GetContent(w.source)
		}
	}
	for _, child := range n.Children {
		if strings.Contains(child.Type, "identifier") && !strings.Contains(child.Type, "type_identifier") {
			return child.GetContent(w.source)
		}
	}
	// Some grammars nest the identifier one level down (e.g. inside a
	// declarator node); search one level deeper as a last resort.
	for _, child := range n.Children {
		for _, grandchild := range child.Children {
			if strings.Contains(grandchild.Type, "identifier") {
				return grandchild.GetContent(w.source)
			}
		}
	}
	return ""
}

// signatureOf renders a single-line textual form of the definition,
// truncated on a rune boundary for display and FTS boost.
func (w *walker) signatureOf(n *grammar.Node) string {
	raw := n.GetContent(w.source)
	if idx := strings.IndexByte(raw, '{'); idx >= 0 {
		raw = raw[:idx]
	}
	firstLine := raw
	if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
		firstLine = raw[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)
	return CharSafeTruncate(firstLine, 200)
}

// codeContextFor returns the single source line the definition starts
// on, used by search output.
func (w *walker) codeContextFor(n *grammar.Node) string {
	return lineAt(w.source, int(n.StartPoint.Row))
}

// lineAt returns the 0-indexed row's full line of text from source.
func lineAt(source []byte, row int) string {
	lines := splitLinesLazy(source, row, row)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// splitLinesLazy returns lines [from, to] (0-indexed, inclusive) without
// splitting the whole file when only a small range is needed.
func splitLinesLazy(source []byte, from, to int) []string {
	if from < 0 {
		from = 0
	}
	all := strings.Split(string(source), "\n")
	if from >= len(all) {
		return nil
	}
	if to >= len(all) {
		to = len(all) - 1
	}
	return all[from : to+1]
}

// commentPrefixes returns the line-comment marker(s) recognized for a
// language, used by docCommentFor's backward scan.
func commentPrefixes(language string) []string {
	switch language {
	case "python", "ruby", "bash", "yaml", "toml", "elixir", "dockerfile":
		return []string{"#"}
	case "sql", "lua", "elm", "haskell":
		return []string{"--"}
	default:
		// C-family, Go, Rust, Java, C/C++, C#, Swift, Kotlin, Scala,
		// TypeScript/JavaScript/TSX/JSX, PHP, HCL, Protobuf.
		return []string{"//"}
	}
}

// docCommentFor walks preceding source lines upward, collecting
// contiguous comment lines immediately above the definition, covering
// every registered language's line-comment syntax.
func (w *walker) docCommentFor(n *grammar.Node) string {
	source := w.source
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}

	prefixes := commentPrefixes(w.language)
	var commentLines []string
	pos := lineStart - 1

	for pos > 0 {
		prevLineEnd := pos
		pos--
		for pos > 0 && source[pos] != '\n' {
			pos--
		}
		prevLineStart := pos
		if pos > 0 {
			prevLineStart++
		}

		prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))

		matched := false
		for _, p := range prefixes {
			if strings.HasPrefix(prevLine, p) {
				commentLines = append([]string{strings.TrimSpace(strings.TrimPrefix(prevLine, p))}, commentLines...)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if prevLine != "" {
			break
		}
	}

	if len(commentLines) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(commentLines, "\n"))
}

// visibilityOf infers Visibility from language convention: an
// explicit modifier keyword when the grammar exposes one in the node's
// raw text, else a naming convention (Go/Rust-style capitalization,
// Python/JS leading-underscore convention), else unknown.
func (w *walker) visibilityOf(n *grammar.Node, name string) store.Visibility {
	raw := n.GetContent(w.source)

	switch {
	case strings.HasPrefix(raw, "pub(crate)"):
		return store.VisibilityCrate
	case strings.HasPrefix(raw, "pub "), strings.HasPrefix(raw, "pub("), raw == "pub":
		return store.VisibilityPublic
	case strings.Contains(firstWords(raw, 3), "private"):
		return store.VisibilityPrivate
	case strings.Contains(firstWords(raw, 3), "protected"):
		return store.VisibilityProtected
	case strings.Contains(firstWords(raw, 3), "internal"):
		return store.VisibilityInternal
	case strings.Contains(firstWords(raw, 3), "public"), strings.Contains(firstWords(raw, 3), "export"):
		return store.VisibilityPublic
	}

	switch w.language {
	case "go":
		r, _ := utf8.DecodeRuneInString(name)
		if r >= 'A' && r <= 'Z' {
			return store.VisibilityPublic
		}
		return store.VisibilityPrivate
	case "python", "ruby":
		if strings.HasPrefix(name, "_") {
			return store.VisibilityPrivate
		}
		return store.VisibilityPublic
	}
	return store.VisibilityUnknown
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// argumentNode reports whether a node type represents a call's argument
// list, used to exclude argument subtrees when hunting for a callee name.
func argumentNode(nodeType string) bool {
	return strings.Contains(nodeType, "argument")
}

// callNode / importNode / typeUsageNode / memberNode classify
// non-definition nodes that still matter for identifiers/relationships,
// via substring heuristics over common tree-sitter node-kind naming
// conventions across the ~26 registered grammars. Exhaustive
// per-language node tables exist only for definitions (registry.go);
// reference-occurrence classification is intentionally generalized.
func callNode(nodeType string) bool {
	return strings.Contains(nodeType, "call") && !strings.Contains(nodeType, "callback")
}

func importNode(nodeType string) bool {
	return strings.Contains(nodeType, "import") ||
		strings.Contains(nodeType, "use_declaration") ||
		strings.Contains(nodeType, "include") ||
		strings.Contains(nodeType, "require")
}

func typeUsageNode(nodeType string) bool {
	return strings.Contains(nodeType, "type_identifier") || strings.Contains(nodeType, "type_annotation")
}

func memberNode(nodeType string) bool {
	return strings.Contains(nodeType, "member_expression") ||
		strings.Contains(nodeType, "field_expression") ||
		strings.Contains(nodeType, "attribute") ||
		strings.Contains(nodeType, "selector_expression") ||
		strings.Contains(nodeType, "property_access") ||
		strings.Contains(nodeType, "scoped_identifier")
}

// emitIdentifiersAndRelationships classifies a non-definition node and,
// if it participates in a call/import/type-usage/member-access
// relationship, emits the corresponding Identifier and
// (when an enclosing symbol exists) Relationship.
func (w *walker) emitIdentifiersAndRelationships(n *grammar.Node, parent *store.Symbol) {
	switch {
	case callNode(n.Type):
		w.emitCall(n, parent)
	case importNode(n.Type):
		w.emitImport(n, parent)
	case typeUsageNode(n.Type):
		w.emitTypeUsage(n, parent)
	case memberNode(n.Type):
		w.emitMemberAccess(n, parent)
	}
}

func (w *walker) emitCall(n *grammar.Node, parent *store.Symbol) {
	name := calleeName(n, w.source)
	if name == "" {
		return
	}
	containing := ""
	if parent != nil {
		containing = parent.ID
	}
	w.result.Identifiers = append(w.result.Identifiers, &store.Identifier{
		ID:                 identifierID(w.filePath, name, int(n.StartByte)),
		Name:               name,
		Kind:               store.IdentifierCall,
		FilePath:           w.filePath,
		Line:               int(n.StartPoint.Row) + 1,
		Column:             int(n.StartPoint.Column) + 1,
		ByteOffset:         int(n.StartByte),
		ContainingSymbolID: containing,
	})
	if parent != nil {
		w.result.Relationships = append(w.result.Relationships, &store.Relationship{
			ID:           relationshipID(parent.ID, name, string(store.RelationshipCalls), int(n.StartByte)),
			FromSymbolID: parent.ID,
			ToSymbolName: name,
			Kind:         store.RelationshipCalls,
			FilePath:     w.filePath,
			LineNumber:   int(n.StartPoint.Row) + 1,
		})
	}
}

func (w *walker) emitImport(n *grammar.Node, parent *store.Symbol) {
	name := strings.TrimSpace(n.GetContent(w.source))
	name = CharSafeTruncate(name, 200)
	if name == "" {
		return
	}
	containing := ""
	if parent != nil {
		containing = parent.ID
	}
	w.result.Identifiers = append(w.result.Identifiers, &store.Identifier{
		ID:                 identifierID(w.filePath, name, int(n.StartByte)),
		Name:               name,
		Kind:               store.IdentifierImportSite,
		FilePath:           w.filePath,
		Line:               int(n.StartPoint.Row) + 1,
		Column:             int(n.StartPoint.Column) + 1,
		ByteOffset:         int(n.StartByte),
		ContainingSymbolID: containing,
	})
	w.result.Relationships = append(w.result.Relationships, &store.Relationship{
		ID:           relationshipID(w.filePath, name, string(store.RelationshipImports), int(n.StartByte)),
		FromSymbolID: fromIDOrFile(parent, w.filePath),
		ToSymbolName: name,
		Kind:         store.RelationshipImports,
		FilePath:     w.filePath,
		LineNumber:   int(n.StartPoint.Row) + 1,
	})
}

func (w *walker) emitTypeUsage(n *grammar.Node, parent *store.Symbol) {
	name := n.GetContent(w.source)
	if name == "" {
		return
	}
	containing := ""
	if parent != nil {
		containing = parent.ID
	}
	w.result.Identifiers = append(w.result.Identifiers, &store.Identifier{
		ID:                 identifierID(w.filePath, name, int(n.StartByte)),
		Name:               name,
		Kind:               store.IdentifierTypeUsage,
		FilePath:           w.filePath,
		Line:               int(n.StartPoint.Row) + 1,
		Column:             int(n.StartPoint.Column) + 1,
		ByteOffset:         int(n.StartByte),
		ContainingSymbolID: containing,
	})
	if parent != nil {
		w.result.Relationships = append(w.result.Relationships, &store.Relationship{
			ID:           relationshipID(parent.ID, name, string(store.RelationshipUsesType), int(n.StartByte)),
			FromSymbolID: parent.ID,
			ToSymbolName: name,
			Kind:         store.RelationshipUsesType,
			FilePath:     w.filePath,
			LineNumber:   int(n.StartPoint.Row) + 1,
		})
	}
}

func (w *walker) emitMemberAccess(n *grammar.Node, parent *store.Symbol) {
	name := calleeName(n, w.source)
	if name == "" {
		return
	}
	containing := ""
	if parent != nil {
		containing = parent.ID
	}
	w.result.Identifiers = append(w.result.Identifiers, &store.Identifier{
		ID:                 identifierID(w.filePath, name, int(n.StartByte)),
		Name:               name,
		Kind:               store.IdentifierMemberAccess,
		FilePath:           w.filePath,
		Line:               int(n.StartPoint.Row) + 1,
		Column:             int(n.StartPoint.Column) + 1,
		ByteOffset:         int(n.StartByte),
		ContainingSymbolID: containing,
	})
}

func fromIDOrFile(parent *store.Symbol, filePath string) string {
	if parent != nil {
		return parent.ID
	}
	// File-level imports have no enclosing symbol; the relationship's
	// FromSymbolID is only meaningful when a stored Symbol exists,
	// so file-level import relationships key on a synthetic per-file
	// pseudo-id instead of leaving the column empty.
	return "file:" + filePath
}

// calleeName finds the rightmost identifier-like token in n, excluding
// any argument-list subtree, which for `a.b.c(...)` yields "c" and for
// `foo(...)` yields "foo".
func calleeName(n *grammar.Node, source []byte) string {
	var names []string
	var walk func(*grammar.Node)
	walk = func(node *grammar.Node) {
		if argumentNode(node.Type) {
			return
		}
		if strings.Contains(node.Type, "identifier") {
			names = append(names, node.GetContent(source))
		}
		for _, c := range node.Children {
			walk(c)
		}
	}
	for _, c := range n.Children {
		if argumentNode(c.Type) {
			continue
		}
		walk(c)
	}
	if len(names) == 0 {
		return ""
	}
	return names[len(names)-1]
}

// symbolID derives a stable, deterministic ID that round-trips across
// re-indexes of an unchanged file.
func symbolID(filePath, name, kind string, startByte int) string {
	return stableHash(filePath, name, kind, strconv.Itoa(startByte))
}

func identifierID(filePath, name string, byteOffset int) string {
	return stableHash(filePath, name, "identifier", strconv.Itoa(byteOffset))
}

func relationshipID(from, toName, kind string, byteOffset int) string {
	return stableHash(from, toName, kind, strconv.Itoa(byteOffset))
}

func stableHash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{':'})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// CharSafeTruncate truncates s to at most maxRunes runes, appending an
// ellipsis when truncated. It indexes by rune, never by raw byte
// offset; display code must not slice source text any other way.
func CharSafeTruncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	if maxRunes <= 1 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-1]) + "…"
}
