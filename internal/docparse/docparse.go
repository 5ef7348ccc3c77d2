package docparse

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Parser extracts plain text from an uploaded requirement document so the
// item extractor can work over it like any other conversation turn.
type Parser interface {
	// Extensions lists the lowercase file extensions the parser accepts.
	Extensions() []string
	// Parse reads the document and returns its textual content.
	Parse(ctx context.Context, name string, r io.Reader) (string, error)
}

// Registry routes documents to a parser by file extension.
type Registry struct {
	byExt map[string]Parser
}

// NewRegistry builds a registry with the given parsers. Later parsers win on
// extension conflicts.
func NewRegistry(parsers ...Parser) *Registry {
	reg := &Registry{byExt: make(map[string]Parser)}
	for _, p := range parsers {
		for _, ext := range p.Extensions() {
			reg.byExt[strings.ToLower(ext)] = p
		}
	}
	return reg
}

// Parse dispatches by extension.
func (reg *Registry) Parse(ctx context.Context, name string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	p, ok := reg.byExt[ext]
	if !ok {
		return "", fmt.Errorf("unsupported document type %q", ext)
	}
	return p.Parse(ctx, name, r)
}

// Supported reports whether a file name has a registered parser.
func (reg *Registry) Supported(name string) bool {
	_, ok := reg.byExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

// PlainText handles .txt, .md and .csv requirement lists.
type PlainText struct {
	MaxBytes int64
}

func (PlainText) Extensions() []string { return []string{".txt", ".md", ".csv"} }

func (p PlainText) Parse(_ context.Context, name string, r io.Reader) (string, error) {
	limit := p.MaxBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", name)
	}
	return strings.TrimSpace(string(data)), nil
}
