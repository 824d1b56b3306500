package expr

import (
	"math"
	"strings"

	"github.com/crucible-dev/crucible/internal/value"
)

// Lookup resolves a variable reference against some store. It must be
// side-effect free: the evaluator only ever reads through it.
type Lookup func(name string) (value.Value, bool)

// Eval evaluates a parsed expression against a lookup.
func Eval(n Node, lookup Lookup) (value.Value, error) {
	switch node := n.(type) {
	case *LiteralNode:
		return node.Value, nil

	case *RefNode:
		v, ok := lookup(node.Name)
		if !ok {
			return nil, evalErrf(ErrCodeUndefinedReference, node.Off, "undefined variable %q", node.Name)
		}
		return v, nil

	case *UnaryNode:
		return evalUnary(node, lookup)

	case *BinaryNode:
		return evalBinary(node, lookup)

	case *IndexNode:
		return evalIndex(node, lookup)

	case *CallNode:
		return evalCall(node, lookup)

	case *ListNode:
		out := make(value.List, len(node.Elems))
		for i, elem := range node.Elems {
			v, err := Eval(elem, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *DictNode:
		out := value.NewDict()
		for i, key := range node.Keys {
			v, err := Eval(node.Vals[i], lookup)
			if err != nil {
				return nil, err
			}
			out.Set(key, v)
		}
		return out, nil

	default:
		return nil, evalErrf(ErrCodeType, n.pos(), "unknown node %T", n)
	}
}

// EvalString parses and evaluates expression source in one step.
func EvalString(src string, lookup Lookup) (value.Value, error) {
	n, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Eval(n, lookup)
}

func evalUnary(n *UnaryNode, lookup Lookup) (value.Value, error) {
	v, err := Eval(n.Operand, lookup)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "-":
		switch num := v.(type) {
		case value.Int:
			return value.Int(-num), nil
		case value.Float:
			return value.Float(-num), nil
		}
		return nil, evalErrf(ErrCodeType, n.Off, "cannot negate %s", value.TypeName(v))
	case "!":
		if b, ok := v.(value.Bool); ok {
			return value.Bool(!b), nil
		}
		return nil, evalErrf(ErrCodeType, n.Off, "cannot apply ! to %s", value.TypeName(v))
	}
	return nil, evalErrf(ErrCodeType, n.Off, "unknown unary operator %q", n.Op)
}

func evalBinary(n *BinaryNode, lookup Lookup) (value.Value, error) {
	// Short-circuit boolean operators evaluate the right side lazily.
	if n.Op == "&&" || n.Op == "||" {
		left, err := Eval(n.Left, lookup)
		if err != nil {
			return nil, err
		}
		lb, ok := left.(value.Bool)
		if !ok {
			return nil, evalErrf(ErrCodeType, n.Off, "%s requires bool, got %s", n.Op, value.TypeName(left))
		}
		if n.Op == "&&" && !bool(lb) {
			return value.Bool(false), nil
		}
		if n.Op == "||" && bool(lb) {
			return value.Bool(true), nil
		}
		right, err := Eval(n.Right, lookup)
		if err != nil {
			return nil, err
		}
		rb, ok := right.(value.Bool)
		if !ok {
			return nil, evalErrf(ErrCodeType, n.Off, "%s requires bool, got %s", n.Op, value.TypeName(right))
		}
		return rb, nil
	}

	left, err := Eval(n.Left, lookup)
	if err != nil {
		return nil, err
	}
	right, err := Eval(n.Right, lookup)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "==":
		return value.Bool(looseEqual(left, right)), nil
	case "!=":
		return value.Bool(!looseEqual(left, right)), nil
	case "<", "<=", ">", ">=":
		return compare(n.Op, left, right, n.Off)
	case "+":
		return add(left, right, n.Off)
	case "-", "*", "/", "%":
		return arithmetic(n.Op, left, right, n.Off)
	}
	return nil, evalErrf(ErrCodeType, n.Off, "unknown operator %q", n.Op)
}

// looseEqual compares across the Int/Float divide so 1 == 1.0 holds in
// expressions, unlike value.Equal which is strict for storage purposes.
func looseEqual(a, b value.Value) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return value.Equal(a, b)
}

func asFloat(v value.Value) (float64, bool) {
	switch num := v.(type) {
	case value.Int:
		return float64(num), true
	case value.Float:
		return float64(num), true
	}
	return 0, false
}

func compare(op string, a, b value.Value, off int) (value.Value, error) {
	if as, aok := a.(value.Str); aok {
		if bs, bok := b.(value.Str); bok {
			return orderResult(op, strings.Compare(string(as), string(bs))), nil
		}
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return nil, evalErrf(ErrCodeType, off, "cannot compare %s and %s", value.TypeName(a), value.TypeName(b))
	}
	switch {
	case af < bf:
		return orderResult(op, -1), nil
	case af > bf:
		return orderResult(op, 1), nil
	default:
		return orderResult(op, 0), nil
	}
}

func orderResult(op string, cmp int) value.Bool {
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	default:
		return cmp >= 0
	}
}

// add handles numeric addition plus string and list concatenation.
// Mixing a string with a non-string is a type error; implicit
// stringification hides bugs in reactive chains.
func add(a, b value.Value, off int) (value.Value, error) {
	if as, ok := a.(value.Str); ok {
		if bs, ok := b.(value.Str); ok {
			return as + bs, nil
		}
		return nil, evalErrf(ErrCodeType, off, "cannot add string and %s", value.TypeName(b))
	}
	if al, ok := a.(value.List); ok {
		if bl, ok := b.(value.List); ok {
			out := make(value.List, 0, len(al)+len(bl))
			out = append(out, al...)
			out = append(out, bl...)
			return out, nil
		}
		return nil, evalErrf(ErrCodeType, off, "cannot add list and %s", value.TypeName(b))
	}
	return arithmetic("+", a, b, off)
}

func arithmetic(op string, a, b value.Value, off int) (value.Value, error) {
	ai, aIsInt := a.(value.Int)
	bi, bIsInt := b.(value.Int)

	if aIsInt && bIsInt {
		switch op {
		case "+":
			return ai + bi, nil
		case "-":
			return ai - bi, nil
		case "*":
			return ai * bi, nil
		case "/":
			if bi == 0 {
				return nil, evalErrf(ErrCodeDivZero, off, "division by zero")
			}
			return ai / bi, nil
		case "%":
			if bi == 0 {
				return nil, evalErrf(ErrCodeDivZero, off, "modulo by zero")
			}
			return ai % bi, nil
		}
	}

	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return nil, evalErrf(ErrCodeType, off, "cannot apply %s to %s and %s", op, value.TypeName(a), value.TypeName(b))
	}
	switch op {
	case "+":
		return value.Float(af + bf), nil
	case "-":
		return value.Float(af - bf), nil
	case "*":
		return value.Float(af * bf), nil
	case "/":
		if bf == 0 {
			return nil, evalErrf(ErrCodeDivZero, off, "division by zero")
		}
		return value.Float(af / bf), nil
	case "%":
		return nil, evalErrf(ErrCodeType, off, "%% requires integers")
	}
	return nil, evalErrf(ErrCodeType, off, "unknown operator %q", op)
}

func evalIndex(n *IndexNode, lookup Lookup) (value.Value, error) {
	target, err := Eval(n.Target, lookup)
	if err != nil {
		return nil, err
	}
	idx, err := Eval(n.Index, lookup)
	if err != nil {
		return nil, err
	}
	switch t := target.(type) {
	case value.List:
		i, ok := idx.(value.Int)
		if !ok {
			return nil, evalErrf(ErrCodeType, n.Off, "list index must be int, got %s", value.TypeName(idx))
		}
		if i < 0 || int(i) >= len(t) {
			return nil, evalErrf(ErrCodeType, n.Off, "list index %d out of range (len %d)", i, len(t))
		}
		return t[i], nil
	case *value.Dict:
		k, ok := idx.(value.Str)
		if !ok {
			return nil, evalErrf(ErrCodeType, n.Off, "dict key must be string, got %s", value.TypeName(idx))
		}
		v, ok := t.Get(string(k))
		if !ok {
			return nil, evalErrf(ErrCodeType, n.Off, "dict has no key %q", string(k))
		}
		return v, nil
	case value.Str:
		i, ok := idx.(value.Int)
		if !ok {
			return nil, evalErrf(ErrCodeType, n.Off, "string index must be int, got %s", value.TypeName(idx))
		}
		runes := []rune(string(t))
		if i < 0 || int(i) >= len(runes) {
			return nil, evalErrf(ErrCodeType, n.Off, "string index %d out of range (len %d)", i, len(runes))
		}
		return value.Str(runes[i]), nil
	}
	return nil, evalErrf(ErrCodeType, n.Off, "cannot index %s", value.TypeName(target))
}

// builtins maps function names to implementations. The table keeps
// dispatch in one place, in the style of an interpreter's builtin
// registry.
var builtins = map[string]func(args []value.Value, off int) (value.Value, error){
	"len":    builtinLen,
	"min":    builtinMin,
	"max":    builtinMax,
	"abs":    builtinAbs,
	"round":  builtinRound,
	"upper":  builtinUpper,
	"lower":  builtinLower,
	"concat": builtinConcat,
}

func evalCall(n *CallNode, lookup Lookup) (value.Value, error) {
	fn, ok := builtins[n.Name]
	if !ok {
		return nil, evalErrf(ErrCodeUnknownFunction, n.Off, "unknown function %q", n.Name)
	}
	args := make([]value.Value, len(n.Args))
	for i, argNode := range n.Args {
		v, err := Eval(argNode, lookup)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return fn(args, n.Off)
}

func builtinLen(args []value.Value, off int) (value.Value, error) {
	if len(args) != 1 {
		return nil, evalErrf(ErrCodeArity, off, "len takes 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case value.Str:
		return value.Int(len([]rune(string(v)))), nil
	case value.List:
		return value.Int(len(v)), nil
	case *value.Dict:
		return value.Int(v.Len()), nil
	}
	return nil, evalErrf(ErrCodeType, off, "len of %s", value.TypeName(args[0]))
}

func builtinMin(args []value.Value, off int) (value.Value, error) {
	return pickExtreme("min", args, off, func(a, b float64) bool { return a < b })
}

func builtinMax(args []value.Value, off int) (value.Value, error) {
	return pickExtreme("max", args, off, func(a, b float64) bool { return a > b })
}

func pickExtreme(name string, args []value.Value, off int, better func(a, b float64) bool) (value.Value, error) {
	if len(args) < 2 {
		return nil, evalErrf(ErrCodeArity, off, "%s takes at least 2 arguments, got %d", name, len(args))
	}
	best := args[0]
	bestF, ok := asFloat(best)
	if !ok {
		return nil, evalErrf(ErrCodeType, off, "%s of %s", name, value.TypeName(best))
	}
	for _, arg := range args[1:] {
		f, ok := asFloat(arg)
		if !ok {
			return nil, evalErrf(ErrCodeType, off, "%s of %s", name, value.TypeName(arg))
		}
		if better(f, bestF) {
			best, bestF = arg, f
		}
	}
	return best, nil
}

func builtinAbs(args []value.Value, off int) (value.Value, error) {
	if len(args) != 1 {
		return nil, evalErrf(ErrCodeArity, off, "abs takes 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case value.Int:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case value.Float:
		return value.Float(math.Abs(float64(v))), nil
	}
	return nil, evalErrf(ErrCodeType, off, "abs of %s", value.TypeName(args[0]))
}

func builtinRound(args []value.Value, off int) (value.Value, error) {
	if len(args) != 1 {
		return nil, evalErrf(ErrCodeArity, off, "round takes 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case value.Int:
		return v, nil
	case value.Float:
		return value.Int(int64(math.Round(float64(v)))), nil
	}
	return nil, evalErrf(ErrCodeType, off, "round of %s", value.TypeName(args[0]))
}

func builtinUpper(args []value.Value, off int) (value.Value, error) {
	if len(args) != 1 {
		return nil, evalErrf(ErrCodeArity, off, "upper takes 1 argument, got %d", len(args))
	}
	s, ok := args[0].(value.Str)
	if !ok {
		return nil, evalErrf(ErrCodeType, off, "upper of %s", value.TypeName(args[0]))
	}
	return value.Str(strings.ToUpper(string(s))), nil
}

func builtinLower(args []value.Value, off int) (value.Value, error) {
	if len(args) != 1 {
		return nil, evalErrf(ErrCodeArity, off, "lower takes 1 argument, got %d", len(args))
	}
	s, ok := args[0].(value.Str)
	if !ok {
		return nil, evalErrf(ErrCodeType, off, "lower of %s", value.TypeName(args[0]))
	}
	return value.Str(strings.ToLower(string(s))), nil
}

// concat joins any values into a string using their raw text form.
func builtinConcat(args []value.Value, off int) (value.Value, error) {
	if len(args) == 0 {
		return nil, evalErrf(ErrCodeArity, off, "concat takes at least 1 argument")
	}
	var b strings.Builder
	for _, arg := range args {
		b.WriteString(value.Text(arg))
	}
	return value.Str(b.String()), nil
}
