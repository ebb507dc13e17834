// Package extract turns raw documents into normalized UTF-8 text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"ragingest/internal/ingesterr"
)

const (
	TypeText     = "text"
	TypeMarkdown = "markdown"
	TypeHTML     = "html"
	TypePDF      = "pdf"
	TypeDocx     = "docx"
	// TypeURL declares remote content whose type comes from the response.
	TypeURL = "url"
)

// SupportedTypes lists the declared document types Extract accepts.
var SupportedTypes = []string{TypeText, TypeMarkdown, TypeHTML, TypePDF, TypeDocx, TypeURL}

// Input is one raw document. Content holds inline text, file bytes or a URL.
type Input struct {
	Content []byte
	Type    string
	Source  string
	// NoFetch disables URL detection, for uploaded file bytes.
	NoFetch bool
}

type NormalizedText struct {
	Text   string
	Type   string
	Source string
	// OriginalLength is the rune count of Text.
	OriginalLength int
	Metadata       map[string]any
}

type Options struct {
	FetchTimeout time.Duration
	MaxFetchSize int64
	Client       *http.Client
}

type Extractor struct {
	client       *http.Client
	maxFetchSize int64
}

func New(opts Options) *Extractor {
	client := opts.Client
	if client == nil {
		timeout := opts.FetchTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	maxSize := opts.MaxFetchSize
	if maxSize <= 0 {
		maxSize = 50 << 20
	}
	return &Extractor{client: client, maxFetchSize: maxSize}
}

// IsSupported reports whether t is a declared type Extract handles.
func IsSupported(t string) bool {
	for _, s := range SupportedTypes {
		if s == t {
			return true
		}
	}
	return false
}

// Extract normalizes in according to its declared type. Content that is an
// http(s) URL is fetched first and the response body is extracted instead.
func (e *Extractor) Extract(ctx context.Context, in Input) (*NormalizedText, error) {
	docType := strings.ToLower(strings.TrimSpace(in.Type))
	source := in.Source

	content := in.Content
	meta := map[string]any{}
	u, isURL := asURL(content)
	if docType == TypeURL {
		if !isURL || in.NoFetch {
			return nil, &ingesterr.ExtractionError{Type: TypeURL, Source: source, Err: errNotURL}
		}
		docType = ""
	}
	if isURL && !in.NoFetch {
		if docType != "" && !IsSupported(docType) {
			return nil, &ingesterr.UnsupportedTypeError{Type: in.Type}
		}
		body, contentType, err := e.fetch(ctx, u)
		if err != nil {
			return nil, &ingesterr.ExtractionError{Type: typeOrURL(docType), Source: u, Err: err}
		}
		if docType == "" {
			docType = TypeFromContentType(contentType, u)
		}
		content = body
		source = u
		meta["content_type"] = contentType
		slog.DebugContext(ctx, "fetched remote document", "url", u, "bytes", len(body), "type", docType)
	}

	var (
		text string
		err  error
	)
	switch docType {
	case TypeText:
		text = string(content)
	case TypeMarkdown:
		text = string(content)
		if title := markdownTitle(content); title != "" {
			meta["title"] = title
		}
	case TypeHTML:
		var title string
		text, title, err = htmlText(content)
		if title != "" {
			meta["title"] = title
		}
	case TypePDF:
		var pages int
		text, pages, err = pdfText(content)
		meta["total_pages"] = pages
	case TypeDocx:
		text, err = docxText(content, meta)
	default:
		return nil, &ingesterr.UnsupportedTypeError{Type: in.Type}
	}
	if err != nil {
		return nil, &ingesterr.ExtractionError{Type: docType, Source: source, Err: err}
	}

	text = Normalize(text)
	if text == "" {
		return nil, &ingesterr.EmptyContentError{Type: docType}
	}

	if source != "" {
		meta["source"] = source
	}
	meta["type"] = docType

	return &NormalizedText{
		Text:           text,
		Type:           docType,
		Source:         source,
		OriginalLength: utf8.RuneCountInString(text),
		Metadata:       meta,
	}, nil
}

// Normalize unifies line endings, replaces invalid UTF-8 and trims the ends.
// Interior whitespace is kept so chunk offsets map back onto the input.
func Normalize(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

var errNotURL = errors.New("content must be an http(s) URL")

func asURL(content []byte) (string, bool) {
	trimmed := bytes.TrimSpace(content)
	if !bytes.HasPrefix(trimmed, []byte("http://")) && !bytes.HasPrefix(trimmed, []byte("https://")) {
		return "", false
	}
	if bytes.ContainsAny(trimmed, " \n\t") {
		return "", false
	}
	return string(trimmed), true
}

func typeOrURL(t string) string {
	if t == "" {
		return "url"
	}
	return t
}
