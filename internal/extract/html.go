package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Td: true, atom.Th: true, atom.Table: true, atom.Section: true,
	atom.Article: true, atom.Header: true, atom.Footer: true, atom.Blockquote: true,
	atom.Pre: true, atom.Title: true, atom.Ul: true, atom.Ol: true,
}

// htmlText returns the visible text of an HTML document in source order.
// Lines are trimmed, runs of two or more spaces split phrases, and the
// non-empty phrases are joined with a single space.
func htmlText(content []byte) (string, string, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return "", "", err
	}

	var (
		sb    strings.Builder
		title string
		walk  func(n *html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipped[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Title && title == "" && n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		isBlock := n.Type == html.ElementNode && blocks[n.DataAtom]
		if isBlock {
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if isBlock {
			sb.WriteByte('\n')
		}
	}
	walk(doc)

	return collapse(sb.String()), title, nil
}

func collapse(s string) string {
	var phrases []string
	for _, line := range strings.Split(s, "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if p := strings.TrimSpace(phrase); p != "" {
				phrases = append(phrases, p)
			}
		}
	}
	return strings.Join(phrases, " ")
}
