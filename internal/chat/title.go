package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/parley/internal/parser"
	"github.com/raphaelgruber/parley/internal/store"
)

const (
	titleMaxLen = 60
	titleMinLen = 3
)

// Title synthesizes a short thread title from the first user message:
// the first sentence of the flattened text, truncated to 60 runes with
// an ellipsis. Falls back to the placeholder when the input is empty or
// too short to mean anything.
func Title(text string) string {
	plain := strings.TrimSpace(parser.Flatten(text))
	if plain == "" {
		return store.DefaultTitle
	}

	sentence := plain
	if i := strings.IndexAny(plain, ".!?"); i >= 0 {
		sentence = plain[:i]
	}
	sentence = strings.TrimSpace(sentence)

	if utf8.RuneCountInString(sentence) < titleMinLen {
		return store.DefaultTitle
	}
	if utf8.RuneCountInString(sentence) > titleMaxLen {
		runes := []rune(sentence)
		sentence = string(runes[:titleMaxLen]) + "…"
	}
	return sentence
}
