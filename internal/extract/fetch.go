package extract

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
)

func (e *Extractor) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := e.client.Do(req) // #nosec G107 -- fetching caller-supplied URLs is the feature
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxFetchSize+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(body)) > e.maxFetchSize {
		return nil, "", fmt.Errorf("response exceeds %d bytes", e.maxFetchSize)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// TypeFromContentType infers a document type from a Content-Type header,
// falling back to the URL or file extension, then to text.
func TypeFromContentType(contentType, name string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "application/pdf":
			return TypePDF
		case "text/html", "application/xhtml+xml":
			return TypeHTML
		case "text/markdown", "text/x-markdown":
			return TypeMarkdown
		case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
			return TypeDocx
		}
	}
	if t := TypeFromFilename(name); t != "" {
		return t
	}
	return TypeText
}

// TypeFromFilename maps a file extension to a document type, "" when unknown.
func TypeFromFilename(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return TypePDF
	case ".html", ".htm":
		return TypeHTML
	case ".md", ".markdown":
		return TypeMarkdown
	case ".txt", ".text":
		return TypeText
	case ".docx":
		return TypeDocx
	}
	return ""
}
