// Package slug derives URL-safe identifiers for notes.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Warning is appended after the colliding slug in the validation message.
const Warning = " - this slug already exists, pick a unique value"

const maxLen = 100

// DuplicateError reports a caller-supplied slug that is already taken.
// The message starts with the literal slug so form-level errors can show
// exactly which value collided.
type DuplicateError struct {
	Slug string
}

func (e *DuplicateError) Error() string {
	return e.Slug + Warning
}

// Generate resolves the slug for a note. A non-empty candidate is used
// verbatim and checked against exists; an empty candidate is derived from
// title via Make. Derived slugs are not checked here: the store's unique
// index is the backstop for title reuse.
func Generate(candidate, title string, exists func(string) bool) (string, error) {
	if candidate != "" {
		if exists != nil && exists(candidate) {
			return "", &DuplicateError{Slug: candidate}
		}
		return candidate, nil
	}
	return Make(title), nil
}

// Make derives a lowercase token of Latin letters, digits and hyphens from
// free text. The same input always yields the same token.
func Make(title string) string {
	folded := foldMarks(strings.ToLower(strings.TrimSpace(title)))

	out := make([]rune, 0, len(folded))
	lastDash := false
	for _, ch := range folded {
		if mapped, ok := translit[ch]; ok {
			out = append(out, []rune(mapped)...)
			lastDash = false
			continue
		}
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			out = append(out, ch)
			lastDash = false
			continue
		}
		if !lastDash {
			out = append(out, '-')
			lastDash = true
		}
	}

	token := strings.Trim(string(out), "-")
	if runed := []rune(token); len(runed) > maxLen {
		token = strings.TrimRight(string(runed[:maxLen]), "-")
	}
	if token == "" {
		return "note"
	}
	return token
}

// foldMarks strips combining marks so accented Latin letters survive as
// their base letter.
func foldMarks(value string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(chain, value)
	if err != nil {
		return value
	}
	return folded
}

// Cyrillic to Latin, keyed on lowercase input.
var translit = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d",
	'е': "e", 'ё': "yo", 'ж': "zh", 'з': "z", 'и': "i",
	'й': "j", 'к': "k", 'л': "l", 'м': "m", 'н': "n",
	'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t",
	'у': "u", 'ф': "f", 'х': "h", 'ц': "c", 'ч': "ch",
	'ш': "sh", 'щ': "sch", 'ъ': "", 'ы': "y", 'ь': "",
	'э': "e", 'ю': "yu", 'я': "ya",
}
