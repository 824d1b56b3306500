// Package script loads declarative desired-state documents written in
// CUE and applies them to an environment through one transaction.
//
// A document declares variables under a top-level "vars" struct:
//
//	vars: {
//		price: {value: 10, type: "int"}
//		qty:   {value: 3}
//		total: {expr: "price * qty"}
//		alert: {expr: "total > 25", policy: "~+2"}
//		pi:    {value: 3.14159, frozen: true}
//		mode:  {value: "fast", ensure: true}
//	}
package script

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/crucible-dev/crucible/internal/graph"
	"github.com/crucible-dev/crucible/internal/value"
)

// Load error codes.
const (
	ErrCodeNotFound    = "E_NOT_FOUND"
	ErrCodeLoadFailed  = "E_LOAD_FAILED"
	ErrCodeBuildFailed = "E_BUILD_FAILED"
	ErrCodeBadVar      = "E_BAD_VAR"
)

// LoadError represents an error that occurred during document loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// VarSpec is one declared variable from a document, in declaration
// order. Exactly one of Value or Expr is set.
type VarSpec struct {
	Name   string
	Value  value.Value
	Expr   string
	Type   value.TypeTag
	Policy graph.ReactionPolicy
	Frozen bool
	Ensure bool
}

// Document is a parsed desired-state document.
type Document struct {
	Vars []VarSpec
}

// LoadDir loads every CUE file in dir as one instance and extracts
// the vars declarations.
func LoadDir(dir string) (*Document, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return extract(v)
}

// Compile parses a document from CUE source text. Used by tests and
// for inline documents.
func Compile(src string) (*Document, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return extract(v)
}

func extract(root cue.Value) (*Document, error) {
	doc := &Document{}
	varsVal := root.LookupPath(cue.ParsePath("vars"))
	if !varsVal.Exists() {
		return nil, &LoadError{Code: ErrCodeBadVar, Message: "no vars declared"}
	}

	iter, err := varsVal.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBadVar, Message: fmt.Sprintf("iterating vars: %v", err)}
	}
	for iter.Next() {
		spec, err := compileVar(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		doc.Vars = append(doc.Vars, *spec)
	}
	if len(doc.Vars) == 0 {
		return nil, &LoadError{Code: ErrCodeBadVar, Message: "vars is empty"}
	}
	return doc, nil
}

func compileVar(name string, v cue.Value) (*VarSpec, error) {
	badVar := func(format string, args ...any) *LoadError {
		return &LoadError{
			Code:    ErrCodeBadVar,
			Message: fmt.Sprintf("vars.%s: %s", name, fmt.Sprintf(format, args...)),
			Pos:     v.Pos(),
		}
	}

	spec := &VarSpec{Name: name}

	exprVal := v.LookupPath(cue.ParsePath("expr"))
	valVal := v.LookupPath(cue.ParsePath("value"))
	switch {
	case exprVal.Exists() && valVal.Exists():
		return nil, badVar("value and expr are mutually exclusive")
	case exprVal.Exists():
		src, err := exprVal.String()
		if err != nil {
			return nil, badVar("expr must be a string: %v", err)
		}
		spec.Expr = src
	case valVal.Exists():
		val, err := decodeValue(valVal)
		if err != nil {
			return nil, badVar("%v", err)
		}
		spec.Value = val
	default:
		return nil, badVar("needs value or expr")
	}

	if tv := v.LookupPath(cue.ParsePath("type")); tv.Exists() {
		s, err := tv.String()
		if err != nil {
			return nil, badVar("type must be a string: %v", err)
		}
		tag, err := value.ParseTag(s)
		if err != nil {
			return nil, badVar("%v", err)
		}
		spec.Type = tag
	}

	if pv := v.LookupPath(cue.ParsePath("policy")); pv.Exists() {
		s, err := pv.String()
		if err != nil {
			return nil, badVar("policy must be a string: %v", err)
		}
		policy, err := graph.ParsePolicy(s)
		if err != nil {
			return nil, badVar("%v", err)
		}
		if spec.Expr == "" && policy.Kind != graph.ReactNone {
			return nil, badVar("policy requires expr")
		}
		spec.Policy = policy
	}

	if fv := v.LookupPath(cue.ParsePath("frozen")); fv.Exists() {
		b, err := fv.Bool()
		if err != nil {
			return nil, badVar("frozen must be a bool: %v", err)
		}
		spec.Frozen = b
	}

	if ev := v.LookupPath(cue.ParsePath("ensure")); ev.Exists() {
		b, err := ev.Bool()
		if err != nil {
			return nil, badVar("ensure must be a bool: %v", err)
		}
		spec.Ensure = b
	}

	return spec, nil
}

// decodeValue converts a concrete CUE value into a runtime value.
func decodeValue(v cue.Value) (value.Value, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, err
		}
		return value.Str(s), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, err
		}
		return value.Int(i), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return value.Float(f), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, err
		}
		return value.Bool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, err
		}
		var out value.List
		for iter.Next() {
			elem, err := decodeValue(iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, err
		}
		d := value.NewDict()
		for iter.Next() {
			elem, err := decodeValue(iter.Value())
			if err != nil {
				return nil, err
			}
			d.Set(iter.Label(), elem)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %v", v.Kind())
	}
}
