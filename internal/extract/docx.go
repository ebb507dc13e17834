package extract

import (
	"bytes"
	"strings"

	"code.sajari.com/docconv"
)

func docxText(content []byte, meta map[string]any) (string, error) {
	body, docMeta, err := docconv.ConvertDocx(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	// Core properties are keyed by local element name, e.g. dc:title.
	if title := strings.TrimSpace(docMeta["title"]); title != "" {
		meta["title"] = title
	}
	return body, nil
}
