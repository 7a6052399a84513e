// Package normalize turns raw recognizer output into canonical plate strings.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Rules configures the cleanup applied after non-alphanumeric stripping
type Rules struct {
	// Denylist holds junk tokens removed from the text
	Denylist []string
	// Substitutions maps confusable runes to their canonical form
	Substitutions map[rune]rune
}

// DefaultRules returns the rules used for plates: known OCR junk tokens are
// dropped and the letter O is read as the digit 0.
func DefaultRules() Rules {
	return Rules{
		Denylist:      []string{"???", "粤", "ç²¤"},
		Substitutions: map[rune]rune{'O': '0'},
	}
}

// Normalizer applies a validated rule set
type Normalizer struct {
	denylist []string
	replacer func(rune) rune
}

// New creates a Normalizer with the default rules
func New() *Normalizer {
	n, _ := NewWithRules(DefaultRules())
	return n
}

// NewWithRules creates a Normalizer with custom rules.
// Substitution targets must be letters or digits and must not themselves be
// substitution keys, which keeps Normalize idempotent.
func NewWithRules(rules Rules) (*Normalizer, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	subs := make(map[rune]rune, len(rules.Substitutions))
	for k, v := range rules.Substitutions {
		subs[k] = v
	}
	return &Normalizer{
		denylist: append([]string(nil), rules.Denylist...),
		replacer: func(r rune) rune {
			if v, ok := subs[r]; ok {
				return v
			}
			return r
		},
	}, nil
}

// Validate checks the rule set
func (r Rules) Validate() error {
	for i, tok := range r.Denylist {
		if tok == "" {
			return fmt.Errorf("denylist[%d] is empty", i)
		}
	}
	for k, v := range r.Substitutions {
		if !isAlnum(v) {
			return fmt.Errorf("substitution %q -> %q: target must be a letter or digit", k, v)
		}
		if _, ok := r.Substitutions[v]; ok {
			return errors.New("substitution targets must not be substitution keys")
		}
	}
	return nil
}

// Normalize returns the canonical plate string for text, possibly empty
func (n *Normalizer) Normalize(text string) string {
	s := strings.Map(func(r rune) rune {
		if isAlnum(r) {
			return r
		}
		return -1
	}, text)

	for {
		before := s
		s = n.stripJunk(s)
		s = strings.Map(n.replacer, s)
		if s == before {
			return s
		}
	}
}

// stripJunk removes denylisted tokens until none is left
func (n *Normalizer) stripJunk(s string) string {
	for changed := true; changed; {
		changed = false
		for _, tok := range n.denylist {
			if strings.Contains(s, tok) {
				s = strings.ReplaceAll(s, tok, "")
				changed = true
			}
		}
	}
	return s
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
