package value

import (
	"errors"
	"fmt"
)

// TypeTag is an optional declared type for a variable. Once declared,
// every subsequent assignment is checked against it.
type TypeTag string

const (
	TagString TypeTag = "string"
	TagInt    TypeTag = "int"
	TagFloat  TypeTag = "float"
	TagBool   TypeTag = "bool"
	TagList   TypeTag = "list"
	TagDict   TypeTag = "dict"
)

// ParseTag converts a user-supplied type hint ("int", ":int") into a
// TypeTag. The leading colon form comes from the shell's `as :int`
// spelling.
func ParseTag(s string) (TypeTag, error) {
	if len(s) > 0 && s[0] == ':' {
		s = s[1:]
	}
	switch TypeTag(s) {
	case TagString, TagInt, TagFloat, TagBool, TagList, TagDict:
		return TypeTag(s), nil
	default:
		return "", fmt.Errorf("unknown type %q (want string, int, float, bool, list, or dict)", s)
	}
}

// TagOf returns the TypeTag matching a value's variant.
func TagOf(v Value) TypeTag {
	return TypeTag(TypeName(v))
}

// TypeMismatchError reports a typed variable rejecting an incompatible
// value. The variable is left unchanged by the caller.
type TypeMismatchError struct {
	Declared TypeTag
	Actual   TypeTag
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: declared %s, got %s", e.Declared, e.Actual)
}

// IsTypeMismatch returns true if err is (or wraps) a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var tm *TypeMismatchError
	return errors.As(err, &tm)
}

// Check validates a candidate value against a declared type. An Int is
// accepted where a float is declared (widening is lossless); no other
// coercions are allowed.
func Check(declared TypeTag, candidate Value) error {
	actual := TagOf(candidate)
	if actual == declared {
		return nil
	}
	if declared == TagFloat && actual == TagInt {
		return nil
	}
	return &TypeMismatchError{Declared: declared, Actual: actual}
}
