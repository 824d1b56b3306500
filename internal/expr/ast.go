package expr

import "github.com/crucible-dev/crucible/internal/value"

// Node is a parsed expression node. The set is closed; Eval dispatches
// with an exhaustive type switch.
type Node interface {
	node()
	pos() int
}

// LiteralNode holds a constant value (number, string, bool).
type LiteralNode struct {
	Value value.Value
	Off   int
}

// RefNode references a variable by name.
type RefNode struct {
	Name string
	Off  int
}

// UnaryNode applies "-" or "!" to an operand.
type UnaryNode struct {
	Op      string
	Operand Node
	Off     int
}

// BinaryNode applies an infix operator to two operands.
type BinaryNode struct {
	Op          string
	Left, Right Node
	Off         int
}

// IndexNode indexes a list by position or a dict by key.
type IndexNode struct {
	Target Node
	Index  Node
	Off    int
}

// CallNode invokes a builtin function.
type CallNode struct {
	Name string
	Args []Node
	Off  int
}

// ListNode constructs a list from element expressions.
type ListNode struct {
	Elems []Node
	Off   int
}

// DictNode constructs a dict from key expressions, keys in source order.
type DictNode struct {
	Keys  []string
	Vals  []Node
	Off   int
}

func (*LiteralNode) node() {}
func (*RefNode) node()     {}
func (*UnaryNode) node()   {}
func (*BinaryNode) node()  {}
func (*IndexNode) node()   {}
func (*CallNode) node()    {}
func (*ListNode) node()    {}
func (*DictNode) node()    {}

func (n *LiteralNode) pos() int { return n.Off }
func (n *RefNode) pos() int     { return n.Off }
func (n *UnaryNode) pos() int   { return n.Off }
func (n *BinaryNode) pos() int  { return n.Off }
func (n *IndexNode) pos() int   { return n.Off }
func (n *CallNode) pos() int    { return n.Off }
func (n *ListNode) pos() int    { return n.Off }
func (n *DictNode) pos() int    { return n.Off }
