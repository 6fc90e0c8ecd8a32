package rss

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
)

var strictPolicy = bluemonday.StrictPolicy()

// CleanHTML converts an HTML fragment into plain text: every text node is
// joined by a space and whitespace runs are collapsed.
func CleanHTML(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return CleanTitle(raw)
	}
	doc.Find("script, style, noscript, iframe, template").Remove()

	var parts []string
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return collapse(strings.Join(parts, " "))
}

// CleanTitle strips any markup or entities from a feed title.
func CleanTitle(raw string) string {
	return collapse(html.UnescapeString(strictPolicy.Sanitize(raw)))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
