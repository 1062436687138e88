// Package extract turns uploaded essay files into plain text.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// ErrUnsupported is returned for file types with no registered extractor.
var ErrUnsupported = errors.New("unsupported file type")

// Error reports a failed extraction. The upload that caused it is dropped;
// nothing else is affected.
type Error struct {
	Filename string
	Ext      string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Filename, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Extractor converts the raw bytes of one file type to text.
type Extractor interface {
	// Extract returns the document text.
	Extract(content []byte) (string, error)

	// Extensions lists the lower-case extensions handled, with the dot.
	Extensions() []string
}

// Registry maps file extensions to extractors.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]Extractor
}

// NewRegistry creates a registry with the txt, docx and pdf extractors.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	r.Register(TextExtractor{})
	r.Register(DocxExtractor{})
	r.Register(PDFExtractor{})
	return r
}

// Register adds e under each of its extensions, replacing earlier entries.
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range e.Extensions() {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// For returns the extractor for filename, or nil.
func (r *Registry) For(filename string) Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byExt[strings.ToLower(filepath.Ext(filename))]
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract picks an extractor by the file extension and returns NFC text.
// On failure the text is empty and the error is an *Error.
func (r *Registry) Extract(filename string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	e := r.For(filename)
	if e == nil {
		return "", &Error{Filename: filename, Ext: ext, Err: fmt.Errorf("%w %q (supported: %s)", ErrUnsupported, ext, strings.Join(r.Extensions(), ", "))}
	}
	text, err := e.Extract(content)
	if err != nil {
		return "", &Error{Filename: filename, Ext: ext, Err: err}
	}
	return norm.NFC.String(text), nil
}

// TextExtractor reads UTF-8 text, dropping invalid byte sequences.
type TextExtractor struct{}

func (TextExtractor) Extensions() []string { return []string{".txt"} }

func (TextExtractor) Extract(content []byte) (string, error) {
	return strings.ToValidUTF8(string(content), ""), nil
}
