// Package text splits normalized document text into overlapping chunks.
//
// Sizes and offsets are counted in runes so that multi-byte text is never cut
// inside a character.
package text

import (
	"regexp"
	"strconv"
	"unicode/utf8"

	"ragingest/internal/ingesterr"
)

type Config struct {
	Size    int `json:"chunk_size"`
	Overlap int `json:"chunk_overlap"`
}

// Validate requires Size > 0 and 0 <= Overlap < Size.
func (c Config) Validate() error {
	if c.Size <= 0 || c.Overlap < 0 || c.Overlap >= c.Size {
		return &ingesterr.InvalidChunkConfigError{Size: c.Size, Overlap: c.Overlap}
	}
	return nil
}

func (c Config) stride() int { return c.Size - c.Overlap }

type Chunk struct {
	Index   int    `json:"chunk_index"`
	Content string `json:"content"`
	// Offset is the rune offset of the chunk in the parent text.
	Offset int `json:"start_offset"`
	// Page is the 1-based page the chunk starts on, 0 for unpaginated text.
	Page int `json:"page,omitempty"`
}

// Split cuts s into windows of cfg.Size runes advancing by Size-Overlap.
// The last window is the first one that reaches the end of s, so the result
// has ceil((L-O)/(S-O)) chunks when L > S and a single chunk otherwise.
func Split(s string, cfg Config) ([]Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(s)
	n := len(runes)
	pages := pageMarkers(s)

	if n <= cfg.Size {
		return []Chunk{{Index: 0, Content: s, Offset: 0, Page: pageAt(pages, 0, n)}}, nil
	}

	chunks := make([]Chunk, 0, Count(n, cfg))
	for offset := 0; ; offset += cfg.stride() {
		end := min(offset+cfg.Size, n)
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Content: string(runes[offset:end]),
			Offset:  offset,
			Page:    pageAt(pages, offset, end),
		})
		if end == n {
			break
		}
	}
	return chunks, nil
}

// Count returns how many chunks Split produces for a text of length runes.
func Count(length int, cfg Config) int {
	if length <= cfg.Size {
		return 1
	}
	stride := cfg.stride()
	return (length - cfg.Overlap + stride - 1) / stride
}

// Reassemble drops each chunk's leading overlap and joins the rest.
func Reassemble(chunks []Chunk, overlap int) string {
	var out []rune
	for i, c := range chunks {
		r := []rune(c.Content)
		if i > 0 {
			r = r[min(overlap, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}

var pageMarker = regexp.MustCompile(`--- Page (\d+) ---`)

type marker struct {
	offset int
	page   int
}

func pageMarkers(s string) []marker {
	locs := pageMarker.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]marker, 0, len(locs))
	for _, loc := range locs {
		page, err := strconv.Atoi(s[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		out = append(out, marker{offset: utf8.RuneCountInString(s[:loc[0]]), page: page})
	}
	return out
}

// pageAt picks the page in effect at start, falling back to the first marker
// inside [start, end) when the chunk begins before any marker.
func pageAt(markers []marker, start, end int) int {
	page := 0
	for _, m := range markers {
		if m.offset > start {
			if page == 0 && m.offset < end {
				return m.page
			}
			break
		}
		page = m.page
	}
	return page
}
