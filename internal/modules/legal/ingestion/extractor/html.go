package extractor

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractHTML drops script and style content and flattens the remaining text
// with whitespace collapsed.
func ExtractHTML(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var out strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseWhitespace(out.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if isSkipped(string(name)) {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isSkipped(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				out.Write(z.Text())
				out.WriteString(" ")
			}
		}
	}
}

func isSkipped(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}
