// Package parser flattens rich Markdown markup to plain text. The
// stored form of every message is plain text; the editor's formatted
// input is only sent upstream for rendering fidelity.
package parser

import (
	"regexp"
	"strings"
)

var (
	fenceRe      = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n?(.*?)```")
	inlineCodeRe = regexp.MustCompile("`([^`]*)`")
	imageRe      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	emphasisRe   = regexp.MustCompile(`(\*\*|__|\*|_)([^*_]+)(\*\*|__|\*|_)`)
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	quoteRe      = regexp.MustCompile(`(?m)^>\s?`)
	bulletRe     = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberedRe   = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	htmlTagRe    = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// Flatten converts Markdown (or HTML-ish rich text) to plain text.
// Link and image targets are dropped, their labels kept; code keeps its
// literal content.
func Flatten(input string) string {
	out := input
	out = fenceRe.ReplaceAllString(out, "$1")
	out = inlineCodeRe.ReplaceAllString(out, "$1")
	out = imageRe.ReplaceAllString(out, "$1")
	out = linkRe.ReplaceAllString(out, "$1")
	// Emphasis can nest (e.g. ***bold italic***); two passes cover the
	// depths that occur in practice.
	out = emphasisRe.ReplaceAllString(out, "$2")
	out = emphasisRe.ReplaceAllString(out, "$2")
	out = headingRe.ReplaceAllString(out, "")
	out = quoteRe.ReplaceAllString(out, "")
	out = bulletRe.ReplaceAllString(out, "")
	out = numberedRe.ReplaceAllString(out, "")
	out = htmlTagRe.ReplaceAllString(out, "")
	out = blankRunRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
