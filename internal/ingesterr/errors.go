// Package ingesterr holds the error taxonomy shared by every ingestion stage.
package ingesterr

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step that produced an error.
type Stage string

const (
	StageConfig  Stage = "config"
	StageExtract Stage = "extract"
	StageEmbed   Stage = "embed"
	StageStore   Stage = "store"
	StageUnknown Stage = "unknown"
)

type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported document type: %q", e.Type)
}

// ExtractionError reports a malformed document or a failed fetch.
type ExtractionError struct {
	Type   string
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("extract %s from %s: %v", e.Type, e.Source, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Type, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

type EmptyContentError struct {
	Type string
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("no content after extracting %s document", e.Type)
}

type InvalidChunkConfigError struct {
	Size    int
	Overlap int
}

func (e *InvalidChunkConfigError) Error() string {
	return fmt.Sprintf("invalid chunk config: size=%d overlap=%d (need size > 0 and 0 <= overlap < size)", e.Size, e.Overlap)
}

// EmbeddingProviderError carries the provider's HTTP status (0 when unknown) and reason.
type EmbeddingProviderError struct {
	Status int
	Reason string
	Err    error
}

func (e *EmbeddingProviderError) Error() string {
	msg := "embedding provider error"
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil && e.Reason != e.Err.Error() {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EmbeddingProviderError) Unwrap() error { return e.Err }

type StoreWriteError struct {
	Backend string
	Err     error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("%s store write failed: %v", e.Backend, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// StageOf reports which stage err belongs to.
func StageOf(err error) Stage {
	var (
		unsupported *UnsupportedTypeError
		extraction  *ExtractionError
		empty       *EmptyContentError
		chunkCfg    *InvalidChunkConfigError
		provider    *EmbeddingProviderError
		store       *StoreWriteError
	)
	switch {
	case errors.As(err, &chunkCfg):
		return StageConfig
	case errors.As(err, &unsupported), errors.As(err, &extraction), errors.As(err, &empty):
		return StageExtract
	case errors.As(err, &provider):
		return StageEmbed
	case errors.As(err, &store):
		return StageStore
	}
	return StageUnknown
}

// Code maps err to the stable code used in API error bodies.
func Code(err error) string {
	var (
		unsupported *UnsupportedTypeError
		extraction  *ExtractionError
		empty       *EmptyContentError
		chunkCfg    *InvalidChunkConfigError
		provider    *EmbeddingProviderError
		store       *StoreWriteError
	)
	switch {
	case errors.As(err, &unsupported):
		return "UNSUPPORTED_TYPE"
	case errors.As(err, &extraction):
		return "EXTRACTION_ERROR"
	case errors.As(err, &empty):
		return "EMPTY_CONTENT"
	case errors.As(err, &chunkCfg):
		return "INVALID_CHUNK_CONFIG"
	case errors.As(err, &provider):
		return "EMBEDDING_PROVIDER_ERROR"
	case errors.As(err, &store):
		return "STORE_WRITE_ERROR"
	}
	return "INTERNAL_ERROR"
}
