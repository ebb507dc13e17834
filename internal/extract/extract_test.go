package extract_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragingest/internal/extract"
	"ragingest/internal/ingesterr"
)

func newExtractor() *extract.Extractor {
	return extract.New(extract.Options{FetchTimeout: 2 * time.Second})
}

func TestExtract_Text(t *testing.T) {
	out, err := newExtractor().Extract(context.Background(), extract.Input{
		Content: []byte("Sample text about AI"),
		Type:    "text",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sample text about AI", out.Text)
	assert.Equal(t, extract.TypeText, out.Type)
	assert.Equal(t, 20, out.OriginalLength)
	assert.Equal(t, "text", out.Metadata["type"])
}

func TestExtract_RoundTripModuloWhitespace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unchanged", "line one\nline two", "line one\nline two"},
		{"crlf", "line one\r\nline two\r\n", "line one\nline two"},
		{"trim ends", "  \n\tpadded body \n\n", "padded body"},
		{"interior kept", "a  b\t\tc", "a  b\t\tc"},
		{"unicode length", "  héllo wörld  ", "héllo wörld"},
	}

	for _, docType := range []string{"text", "markdown"} {
		for _, tt := range tests {
			t.Run(docType+"/"+tt.name, func(t *testing.T) {
				out, err := newExtractor().Extract(context.Background(), extract.Input{Content: []byte(tt.in), Type: docType})
				require.NoError(t, err)
				assert.Equal(t, tt.want, out.Text)
				assert.Equal(t, len([]rune(tt.want)), out.OriginalLength)
			})
		}
	}
}

func TestExtract_MarkdownTitle(t *testing.T) {
	out, err := newExtractor().Extract(context.Background(), extract.Input{
		Content: []byte("Intro line\n\n# Guide\n\nSome *text*\n"),
		Type:    "markdown",
	})
	require.NoError(t, err)
	assert.Equal(t, "Guide", out.Metadata["title"])
	assert.Equal(t, "Intro line\n\n# Guide\n\nSome *text*", out.Text)
}

func TestExtract_HTML(t *testing.T) {
	page := `<html><head><title>My Page</title><style>.x{color:red}</style></head>` +
		`<body><h1>Hello</h1><p>World   of  <b>Go</b></p><script>alert(1)</script></body></html>`

	out, err := newExtractor().Extract(context.Background(), extract.Input{Content: []byte(page), Type: "html"})
	require.NoError(t, err)
	assert.Equal(t, "My Page Hello World of Go", out.Text)
	assert.Equal(t, "My Page", out.Metadata["title"])
	assert.NotContains(t, out.Text, "alert")
	assert.NotContains(t, out.Text, "color")
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  extract.Input
		assert func(t *testing.T, err error)
	}{
		{
			name:  "unsupported type",
			input: extract.Input{Content: []byte("x"), Type: "spreadsheet"},
			assert: func(t *testing.T, err error) {
				var e *ingesterr.UnsupportedTypeError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "spreadsheet", e.Type)
			},
		},
		{
			name:  "empty text",
			input: extract.Input{Content: []byte(" \n\t "), Type: "text"},
			assert: func(t *testing.T, err error) {
				var e *ingesterr.EmptyContentError
				assert.ErrorAs(t, err, &e)
			},
		},
		{
			name:  "html without visible text",
			input: extract.Input{Content: []byte("<script>only()</script>"), Type: "html"},
			assert: func(t *testing.T, err error) {
				var e *ingesterr.EmptyContentError
				assert.ErrorAs(t, err, &e)
			},
		},
		{
			name:  "unparsable pdf",
			input: extract.Input{Content: []byte("this is not a pdf"), Type: "pdf"},
			assert: func(t *testing.T, err error) {
				var e *ingesterr.ExtractionError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "pdf", e.Type)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := newExtractor().Extract(context.Background(), tt.input)
			assert.Nil(t, out)
			tt.assert(t, err)
		})
	}
}

func TestExtract_URL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html><body><p>Remote   content</p></body></html>"))
		case "/notes.md":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte("# Notes\nbody"))
		case "/big":
			w.Write([]byte(strings.Repeat("a", 100)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	t.Run("Infers html from content type", func(t *testing.T) {
		out, err := newExtractor().Extract(context.Background(), extract.Input{Content: []byte(ts.URL + "/page")})
		require.NoError(t, err)
		assert.Equal(t, extract.TypeHTML, out.Type)
		assert.Equal(t, "Remote content", out.Text)
		assert.Equal(t, ts.URL+"/page", out.Source)
		assert.Equal(t, ts.URL+"/page", out.Metadata["source"])
	})

	t.Run("Declared type wins", func(t *testing.T) {
		out, err := newExtractor().Extract(context.Background(), extract.Input{Content: []byte(ts.URL + "/page"), Type: "text"})
		require.NoError(t, err)
		assert.Equal(t, extract.TypeText, out.Type)
		assert.Contains(t, out.Text, "<p>")
	})

	t.Run("Infers from extension", func(t *testing.T) {
		out, err := newExtractor().Extract(context.Background(), extract.Input{Content: []byte(ts.URL + "/notes.md")})
		require.NoError(t, err)
		assert.Equal(t, extract.TypeMarkdown, out.Type)
		assert.Equal(t, "Notes", out.Metadata["title"])
	})

	t.Run("Non-2xx is an extraction error", func(t *testing.T) {
		_, err := newExtractor().Extract(context.Background(), extract.Input{Content: []byte(ts.URL + "/missing"), Type: "html"})
		var e *ingesterr.ExtractionError
		require.ErrorAs(t, err, &e)
		assert.Contains(t, e.Error(), "404")
	})

	t.Run("Oversized body", func(t *testing.T) {
		ex := extract.New(extract.Options{MaxFetchSize: 10})
		_, err := ex.Extract(context.Background(), extract.Input{Content: []byte(ts.URL + "/big"), Type: "text"})
		var e *ingesterr.ExtractionError
		assert.ErrorAs(t, err, &e)
	})

	t.Run("Unreachable host", func(t *testing.T) {
		_, err := newExtractor().Extract(context.Background(), extract.Input{Content: []byte("http://127.0.0.1:1/x"), Type: "text"})
		var e *ingesterr.ExtractionError
		assert.ErrorAs(t, err, &e)
	})
}

func TestTypeInference(t *testing.T) {
	assert.Equal(t, extract.TypePDF, extract.TypeFromContentType("application/pdf", "x"))
	assert.Equal(t, extract.TypeHTML, extract.TypeFromContentType("text/html; charset=utf-8", ""))
	assert.Equal(t, extract.TypePDF, extract.TypeFromContentType("", "http://h/report.PDF?dl=1"))
	assert.Equal(t, extract.TypeText, extract.TypeFromContentType("application/json", "http://h/data"))

	assert.Equal(t, extract.TypeDocx, extract.TypeFromFilename("memo.docx"))
	assert.Equal(t, "", extract.TypeFromFilename("archive.zip"))
	assert.True(t, extract.IsSupported("markdown"))
	assert.False(t, extract.IsSupported("xlsx"))
}
