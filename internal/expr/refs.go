package expr

// ExtractReferences parses expression source and returns the variable
// names it reads, deduplicated, in order of first appearance. This is
// the reference-extraction facility the dependency graph uses to build
// edges from a defining expression.
//
// Function names are not references: `len(items)` references only
// `items`. Literals reference nothing.
func ExtractReferences(src string) ([]string, error) {
	n, err := Parse(src)
	if err != nil {
		return nil, err
	}
	var refs []string
	seen := make(map[string]bool)
	walkRefs(n, func(name string) {
		if !seen[name] {
			seen[name] = true
			refs = append(refs, name)
		}
	})
	return refs, nil
}

// References collects variable names from an already-parsed node.
func References(n Node) []string {
	var refs []string
	seen := make(map[string]bool)
	walkRefs(n, func(name string) {
		if !seen[name] {
			seen[name] = true
			refs = append(refs, name)
		}
	})
	return refs
}

func walkRefs(n Node, visit func(name string)) {
	switch node := n.(type) {
	case *LiteralNode:
	case *RefNode:
		visit(node.Name)
	case *UnaryNode:
		walkRefs(node.Operand, visit)
	case *BinaryNode:
		walkRefs(node.Left, visit)
		walkRefs(node.Right, visit)
	case *IndexNode:
		walkRefs(node.Target, visit)
		walkRefs(node.Index, visit)
	case *CallNode:
		for _, arg := range node.Args {
			walkRefs(arg, visit)
		}
	case *ListNode:
		for _, elem := range node.Elems {
			walkRefs(elem, visit)
		}
	case *DictNode:
		for _, val := range node.Vals {
			walkRefs(val, visit)
		}
	}
}
