package crawler

import (
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Link is an anchor found on a crawled page.
type Link struct {
	URL   string
	Text  string
	Title string
}

var genericLinkText = map[string]bool{
	"download": true, "pdf": true, "view": true, "open": true, "read more": true,
	"click here": true, "here": true, "download pdf": true, "view pdf": true, "docx": true,
}

// ParseLinks returns absolute http(s) links in document order, without
// fragments, each with a display title drawn from the surrounding DOM.
func ParseLinks(base *url.URL, body io.Reader) ([]Link, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return nil, err
	}
	var out []Link
	seen := map[string]bool{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if href := attr(n, "href"); href != "" {
				if abs, ok := resolve(base, href); ok && !seen[abs] {
					seen[abs] = true
					text := nodeText(n)
					out = append(out, Link{URL: abs, Text: text, Title: linkTitle(n, text, abs)})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

// linkTitle prefers meaningful anchor text, then the title attribute, then
// the nearest enclosing row, list item or heading, then the file name.
func linkTitle(a *html.Node, text, abs string) string {
	if usefulTitle(text) {
		return text
	}
	if t := collapse(attr(a, "title")); usefulTitle(t) {
		return t
	}
	for p := a.Parent; p != nil; p = p.Parent {
		switch p.DataAtom {
		case atom.Tr, atom.Li, atom.Article, atom.Td, atom.P, atom.Div:
			if t := contextTitle(p); usefulTitle(t) {
				return t
			}
		case atom.Body, atom.Html:
			return titleFromURL(abs)
		}
	}
	return titleFromURL(abs)
}

func contextTitle(n *html.Node) string {
	for _, a := range []atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.Strong} {
		if h := find(n, a); h != nil {
			if t := nodeText(h); t != "" {
				return t
			}
		}
	}
	t := nodeText(n)
	if len(t) > 200 {
		return ""
	}
	return t
}

func usefulTitle(t string) bool {
	t = strings.TrimSpace(t)
	return t != "" && !genericLinkText[strings.ToLower(t)]
}

func titleFromURL(abs string) string {
	u, err := url.Parse(abs)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if un, err := url.PathUnescape(base); err == nil {
		base = un
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	return collapse(strings.NewReplacer("_", " ", "-", " ", "+", " ").Replace(base))
}

func find(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
		if f := find(c, a); f != nil {
			return f
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
			return
		}
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapse(b.String())
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
