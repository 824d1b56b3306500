package expr

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/crucible-dev/crucible/internal/value"
)

// Parse turns expression source text into an AST.
//
// Grammar (precedence low to high):
//
//	or       := and ( "||" and )*
//	and      := equality ( "&&" equality )*
//	equality := compare ( ("==" | "!=") compare )*
//	compare  := additive ( ("<" | "<=" | ">" | ">=") additive )*
//	additive := mult ( ("+" | "-") mult )*
//	mult     := unary ( ("*" | "/" | "%") unary )*
//	unary    := ("-" | "!") unary | postfix
//	postfix  := primary ( "[" expr "]" )*
//	primary  := literal | ident | ident "(" args ")" | "(" expr ")"
//	          | "[" elems "]" | "{" pairs "}"
func Parse(src string) (Node, error) {
	p := &parser{src: src}
	p.next()
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, evalErrf(ErrCodeParse, p.tok.off, "unexpected %q", p.tok.text)
	}
	return n, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokOp
)

type token struct {
	kind tokKind
	text string
	off  int
}

type parser struct {
	src string
	pos int
	tok token
}

var twoCharOps = []string{"==", "!=", "<=", ">=", "&&", "||"}

func (p *parser) next() {
	for p.pos < len(p.src) {
		r, w := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		p.pos += w
	}
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF, off: p.pos}
		return
	}

	start := p.pos
	r, w := utf8.DecodeRuneInString(p.src[p.pos:])

	switch {
	case unicode.IsLetter(r) || r == '_':
		for p.pos < len(p.src) {
			r, w = utf8.DecodeRuneInString(p.src[p.pos:])
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' {
				p.pos += w
				continue
			}
			break
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.pos], off: start}

	case unicode.IsDigit(r):
		isFloat := false
		for p.pos < len(p.src) {
			c := p.src[p.pos]
			if c >= '0' && c <= '9' {
				p.pos++
				continue
			}
			// A dot is part of the number only when followed by a digit,
			// so list indexing like 2.x never lexes here.
			if c == '.' && !isFloat && p.pos+1 < len(p.src) && p.src[p.pos+1] >= '0' && p.src[p.pos+1] <= '9' {
				isFloat = true
				p.pos++
				continue
			}
			break
		}
		kind := tokInt
		if isFloat {
			kind = tokFloat
		}
		p.tok = token{kind: kind, text: p.src[start:p.pos], off: start}

	case r == '"' || r == '\'':
		quote := byte(r)
		p.pos++
		var b strings.Builder
		for p.pos < len(p.src) && p.src[p.pos] != quote {
			if p.src[p.pos] == '\\' && p.pos+1 < len(p.src) {
				p.pos++
				switch p.src[p.pos] {
				case 'n':
					b.WriteByte('\n')
				case 't':
					b.WriteByte('\t')
				default:
					b.WriteByte(p.src[p.pos])
				}
				p.pos++
				continue
			}
			b.WriteByte(p.src[p.pos])
			p.pos++
		}
		if p.pos >= len(p.src) {
			p.tok = token{kind: tokOp, text: "<unterminated>", off: start}
			return
		}
		p.pos++ // closing quote
		p.tok = token{kind: tokString, text: b.String(), off: start}

	default:
		for _, op := range twoCharOps {
			if strings.HasPrefix(p.src[p.pos:], op) {
				p.pos += 2
				p.tok = token{kind: tokOp, text: op, off: start}
				return
			}
		}
		p.pos += w
		p.tok = token{kind: tokOp, text: string(r), off: start}
	}
}

func (p *parser) accept(text string) bool {
	if p.tok.kind == tokOp && p.tok.text == text {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.accept(text) {
		return evalErrf(ErrCodeParse, p.tok.off, "expected %q, found %q", text, p.tok.text)
	}
	return nil
}

func (p *parser) parseOr() (Node, error) {
	return p.parseBinary(0)
}

// Binary precedence tiers, low to high.
var precedence = [][]string{
	{"||"},
	{"&&"},
	{"==", "!="},
	{"<", "<=", ">", ">="},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *parser) parseBinary(level int) (Node, error) {
	if level >= len(precedence) {
		return p.parseUnary()
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		matched := false
		for _, op := range precedence[level] {
			if p.tok.kind == tokOp && p.tok.text == op {
				off := p.tok.off
				p.next()
				right, err := p.parseBinary(level + 1)
				if err != nil {
					return nil, err
				}
				left = &BinaryNode{Op: op, Left: left, Right: right, Off: off}
				matched = true
				break
			}
		}
		if !matched {
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if p.tok.kind == tokOp && (p.tok.text == "-" || p.tok.text == "!") {
		op := p.tok.text
		off := p.tok.off
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{Op: op, Operand: operand, Off: off}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && p.tok.text == "[" {
		off := p.tok.off
		p.next()
		idx, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		n = &IndexNode{Target: n, Index: idx, Off: off}
	}
	return n, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.tok
	switch tok.kind {
	case tokInt:
		p.next()
		i, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, evalErrf(ErrCodeParse, tok.off, "bad integer %q", tok.text)
		}
		return &LiteralNode{Value: value.Int(i), Off: tok.off}, nil

	case tokFloat:
		p.next()
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, evalErrf(ErrCodeParse, tok.off, "bad float %q", tok.text)
		}
		return &LiteralNode{Value: value.Float(f), Off: tok.off}, nil

	case tokString:
		p.next()
		return &LiteralNode{Value: value.Str(tok.text), Off: tok.off}, nil

	case tokIdent:
		p.next()
		switch tok.text {
		case "true":
			return &LiteralNode{Value: value.Bool(true), Off: tok.off}, nil
		case "false":
			return &LiteralNode{Value: value.Bool(false), Off: tok.off}, nil
		}
		if p.tok.kind == tokOp && p.tok.text == "(" {
			p.next()
			var args []Node
			if !(p.tok.kind == tokOp && p.tok.text == ")") {
				for {
					arg, err := p.parseOr()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if !p.accept(",") {
						break
					}
				}
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return &CallNode{Name: tok.text, Args: args, Off: tok.off}, nil
		}
		return &RefNode{Name: tok.text, Off: tok.off}, nil

	case tokOp:
		switch tok.text {
		case "(":
			p.next()
			n, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return n, nil

		case "[":
			p.next()
			var elems []Node
			if !(p.tok.kind == tokOp && p.tok.text == "]") {
				for {
					elem, err := p.parseOr()
					if err != nil {
						return nil, err
					}
					elems = append(elems, elem)
					if !p.accept(",") {
						break
					}
				}
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			return &ListNode{Elems: elems, Off: tok.off}, nil

		case "{":
			p.next()
			var keys []string
			var vals []Node
			if !(p.tok.kind == tokOp && p.tok.text == "}") {
				for {
					if p.tok.kind != tokString && p.tok.kind != tokIdent {
						return nil, evalErrf(ErrCodeParse, p.tok.off, "expected dict key, found %q", p.tok.text)
					}
					key := p.tok.text
					p.next()
					if err := p.expect(":"); err != nil {
						return nil, err
					}
					val, err := p.parseOr()
					if err != nil {
						return nil, err
					}
					keys = append(keys, key)
					vals = append(vals, val)
					if !p.accept(",") {
						break
					}
				}
			}
			if err := p.expect("}"); err != nil {
				return nil, err
			}
			return &DictNode{Keys: keys, Vals: vals, Off: tok.off}, nil
		}
	}
	return nil, evalErrf(ErrCodeParse, tok.off, "unexpected %q", tok.text)
}
