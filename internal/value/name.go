package value

import (
	"fmt"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName canonicalizes a variable name.
//
// Names are NFC-normalized so that composed and decomposed spellings of
// the same identifier ("café" typed two ways) address the same variable,
// then validated: a letter or underscore followed by letters, digits,
// underscores, or dots.
func NormalizeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty variable name")
	}
	name = norm.NFC.String(name)
	for i, r := range name {
		if unicode.IsLetter(r) || r == '_' {
			continue
		}
		if i > 0 && (unicode.IsDigit(r) || r == '.') {
			continue
		}
		return "", fmt.Errorf("invalid variable name %q: bad character %q", name, r)
	}
	return name, nil
}
