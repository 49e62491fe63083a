package parse

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/arvidnilsson/depscan/internal/models"
)

var pySubprocessCallees = map[string]bool{
	"run":        true,
	"call":       true,
	"check_call": true,
	"check_output": true,
	"Popen":      true,
	"system":     true,
}

// ParsePython extracts call sites from Python source by walking its
// tree-sitter expression tree, per spec §4.3. No Python is executed; only
// the parse tree is inspected. Calls to subprocess-style functions (run,
// Popen, call, system, ...) are inspected: if the first positional
// argument is a string literal ending in a known script extension, or a
// list/tuple literal of string elements, every whitespace-separated token
// across those elements that ends in a known script extension is emitted
// as its own call site — so an interpreter-prefix element
// (`["bash", "./tools/worker.sh"]`) doesn't shadow the script path that
// follows it. Anything else in that argument position — an f-string, a
// name, a concatenation, or a list with a non-literal element — is
// treated as dynamic and left for the Reader/Mapper, since no literal
// target can be extracted statically.
func ParsePython(src string) []models.CallSite {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	content := []byte(src)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil
	}
	defer tree.Close()

	var sites []models.CallSite
	walkPythonNode(tree.RootNode(), content, &sites)
	return sites
}

func walkPythonNode(node *sitter.Node, content []byte, sites *[]models.CallSite) {
	if node == nil {
		return
	}
	if node.Type() == "call" {
		if found, ok := pythonCallSite(node, content); ok {
			*sites = append(*sites, found...)
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walkPythonNode(node.NamedChild(i), content, sites)
	}
}

func pythonCallSite(node *sitter.Node, content []byte) ([]models.CallSite, bool) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return nil, false
	}
	name := calleeName(fn, content)
	if !pySubprocessCallees[name] {
		return nil, false
	}

	args := node.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return nil, false
	}
	first := args.NamedChild(0)
	commandText := strings.TrimSpace(nodeText(node, content))

	targets, literal := pythonArgTargets(first, content)
	if !literal {
		// First argument isn't a literal we can read statically; still
		// record the call as a dynamic, unresolved site so the Reader
		// and Mapper have a chance to reason about it with more context.
		return []models.CallSite{{
			RawTarget:   "",
			CommandText: commandText,
			Kind:        models.KindCall,
			Dynamic:     true,
			Confidence:  0.3,
		}}, true
	}

	var sites []models.CallSite
	for _, target := range targets {
		if !Plausible(target) {
			continue
		}
		sites = append(sites, models.CallSite{
			RawTarget:   target,
			CommandText: commandText,
			Kind:        models.KindCall,
			Dynamic:     false,
			Confidence:  0.9,
		})
	}
	return sites, len(sites) > 0
}

// pythonArgTargets inspects the first positional argument to a
// subprocess-style call. A bare string literal without interpolation
// yields every whitespace-separated token of it that ends in a known
// script extension. A list/tuple literal whose elements are all string literals yields every
// whitespace-separated token, across all of those elements, that ends in
// a known script extension — joining every constant element and scanning
// every resulting token, the same shape as the grounding parser this is
// based on, so a leading interpreter name doesn't hide the script path
// that follows it. Any other argument shape (a name, an f-string, a list
// with a non-literal element) reports literal=false.
func pythonArgTargets(n *sitter.Node, content []byte) ([]string, bool) {
	if n == nil {
		return nil, false
	}
	switch n.Type() {
	case "string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "interpolation" {
				return nil, false
			}
		}
		var targets []string
		for _, tok := range strings.Fields(pythonStringValue(n, content)) {
			if scriptExtRe.MatchString(strings.ToLower(tok)) {
				targets = append(targets, tok)
			}
		}
		return targets, true
	case "list", "tuple":
		if n.NamedChildCount() == 0 {
			return nil, false
		}
		parts := make([]string, 0, n.NamedChildCount())
		for i := 0; i < int(n.NamedChildCount()); i++ {
			el := n.NamedChild(i)
			if el.Type() != "string" {
				return nil, false
			}
			parts = append(parts, pythonStringValue(el, content))
		}
		var targets []string
		for _, part := range parts {
			for _, tok := range strings.Fields(part) {
				if scriptExtRe.MatchString(strings.ToLower(tok)) {
					targets = append(targets, tok)
				}
			}
		}
		return targets, true
	default:
		return nil, false
	}
}

func pythonStringValue(n *sitter.Node, content []byte) string {
	text := nodeText(n, content)
	return trimQuotes(strings.TrimSpace(text))
}

func calleeName(n *sitter.Node, content []byte) string {
	switch n.Type() {
	case "identifier":
		return nodeText(n, content)
	case "attribute":
		attr := n.ChildByFieldName("attribute")
		if attr != nil {
			return nodeText(attr, content)
		}
	}
	return ""
}

func nodeText(n *sitter.Node, content []byte) string {
	return string(content[n.StartByte():n.EndByte()])
}
