// Package markup splits an HTML document into tags and text.
package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// Token is either a Tag or a Text.
type Token interface {
	token()
}

// Tag is a start, end or self-closing tag. Name is lowercase.
type Tag struct {
	Name string
	End  bool
}

// Text is a run of character data with entities decoded.
type Text struct {
	Data string
}

func (Tag) token()  {}
func (Text) token() {}

// Lex tokenizes body in a single pass. Comments and doctypes are dropped;
// malformed markup never fails, it is read as leniently as a browser would.
func Lex(body string) []Token {
	var out []Token
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF is the only error a strings.Reader can produce.
			return out
		case html.TextToken:
			out = appendText(out, string(z.Text()))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			out = append(out, Tag{Name: string(name)})
		case html.EndTagToken:
			name, _ := z.TagName()
			out = append(out, Tag{Name: string(name), End: true})
		}
	}
}

// appendText merges adjacent text runs, which the tokenizer may split.
func appendText(out []Token, data string) []Token {
	if data == "" {
		return out
	}
	if n := len(out); n > 0 {
		if prev, ok := out[n-1].(Text); ok {
			out[n-1] = Text{Data: prev.Data + data}
			return out
		}
	}
	return append(out, Text{Data: data})
}

// Strip returns the text content of tokens with all tags removed.
func Strip(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		if text, ok := t.(Text); ok {
			b.WriteString(text.Data)
		}
	}
	return b.String()
}
