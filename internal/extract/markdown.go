package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// markdownTitle returns the text of the first heading, if any.
func markdownTitle(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			title = strings.TrimSpace(string(h.Text(src)))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}
