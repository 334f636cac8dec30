package parser

import "testing"

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "just words", "just words"},
		{"heading stripped", "# Title\nbody", "Title\nbody"},
		{"bold stripped", "this is **important** stuff", "this is important stuff"},
		{"italic stripped", "this is _subtle_ stuff", "this is subtle stuff"},
		{"bold italic stripped", "***very*** much", "very much"},
		{"link keeps label", "see [the docs](https://example.com) here", "see the docs here"},
		{"image keeps alt", "![a cat](https://cdn/cat.png)", "a cat"},
		{"inline code kept", "run `go build` now", "run go build now"},
		{"fence kept", "```go\nfmt.Println(1)\n```", "fmt.Println(1)"},
		{"bullets stripped", "- one\n- two", "one\ntwo"},
		{"numbered stripped", "1. one\n2. two", "one\ntwo"},
		{"blockquote stripped", "> quoted line", "quoted line"},
		{"html tags stripped", "<p>hello <strong>world</strong></p>", "hello world"},
		{"whitespace trimmed", "  \nhello\n\n\n\nworld\n ", "hello\n\nworld"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Flatten(tt.in); got != tt.want {
				t.Errorf("Flatten(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
