// Package archive keeps the raw bytes of uploaded documents.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Archiver stores a raw document under key and returns where it went.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Key builds the object key for an uploaded file.
func Key(documentID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "document"
	}
	return documentID + "/" + name
}

type Local struct {
	dir string
}

func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

func (l *Local) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(l.dir, filepath.FromSlash(key))
	if !strings.HasPrefix(dst, filepath.Clean(l.dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive key escapes upload dir: %q", key)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("write archive file: %w", err)
	}
	return dst, nil
}
