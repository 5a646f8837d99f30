// Package moderation screens submitted text against a forbidden-word list.
package moderation

import (
	"errors"
	"strings"
)

// Warning is the fixed rejection message shown to the author. It never
// names the word that matched.
const Warning = "Mind your language!"

var ErrRejected = errors.New("text rejected by moderation")

// Screen returns ErrRejected when text contains any forbidden entry as a
// case-sensitive substring. A nil or empty list accepts everything.
func Screen(text string, forbidden []string) error {
	for _, word := range forbidden {
		if word == "" {
			continue
		}
		if strings.Contains(text, word) {
			return ErrRejected
		}
	}
	return nil
}
