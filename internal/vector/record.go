package vector

import (
	"strings"
	"unicode"
)

// Metadata is stored alongside every chunk.
type Metadata struct {
	DocumentID     string `json:"document_id"`
	ChunkIndex     int    `json:"chunk_index"`
	TotalChunks    int    `json:"total_chunks"`
	ChunkSize      int    `json:"chunk_size"`
	StartOffset    int    `json:"start_offset"`
	OriginalLength int    `json:"original_length"`
	SourceType     string `json:"source_type"`
	Source         string `json:"source,omitempty"`
	Page           int    `json:"page,omitempty"`
}

// Record is the persisted unit: chunk text, its vector and metadata.
type Record struct {
	ID       string    `json:"id"`
	Content  string    `json:"text"`
	Vector   []float32 `json:"-"`
	Metadata Metadata  `json:"metadata"`
}

// Match is a query hit. Lower Distance means closer.
type Match struct {
	Record
	Distance float32 `json:"distance"`
}

// ClassName turns a collection name into a valid Weaviate class name
// ("documents" -> "Documents", "my-docs" -> "MyDocs").
func ClassName(collection string) string {
	var sb strings.Builder
	upper := true
	for _, r := range collection {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		sb.WriteRune(r)
	}
	name := sb.String()
	if name == "" || !unicode.IsLetter([]rune(name)[0]) {
		name = "C" + name
	}
	return name
}
