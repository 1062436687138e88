// Package export writes a session bundle to a directory or a ZIP archive.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abhisek/redpen/internal/ledger"
)

// Artifact file names, in the order they are written.
const (
	OriginalFile   = "original.txt"
	StepRawFile    = "step_result_raw.txt"
	ErrorRawFile   = "error_result_raw.txt"
	ErrorDataFile  = "error_data.json"
	EditLogsFile   = "edit_logs.json"
	archiveSuffix  = "_session_results.zip"
	defaultDirPerm = 0o755
)

// File is one exported artifact.
type File struct {
	Name string
	Data []byte
}

// Files renders the five artifacts of b. The output depends only on b.
func Files(b ledger.Bundle) ([]File, error) {
	findings := b.Findings
	if findings == nil {
		findings = []ledger.Finding{}
	}
	logs := b.Logs
	if logs == nil {
		logs = []ledger.EditLogEntry{}
	}

	errorData, err := marshalIndent(findings)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ErrorDataFile, err)
	}
	editLogs, err := marshalIndent(logs)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", EditLogsFile, err)
	}

	return []File{
		{Name: OriginalFile, Data: []byte(b.OriginalText)},
		{Name: StepRawFile, Data: []byte(b.StepOutput)},
		{Name: ErrorRawFile, Data: []byte(b.ErrorOutput)},
		{Name: ErrorDataFile, Data: errorData},
		{Name: EditLogsFile, Data: editLogs},
	}, nil
}

// marshalIndent encodes v with two-space indentation, leaving non-ASCII
// and HTML characters unescaped.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Prefix is the "{name}_{id}" stem used for export paths.
func Prefix(s ledger.Student) string {
	return safeComponent(s.DisplayName()) + "_" + safeComponent(s.DisplayID())
}

// ArchiveName is the suggested file name for a ZIP export.
func ArchiveName(s ledger.Student) string {
	return Prefix(s) + archiveSuffix
}

// DirName is the directory a WriteDir at now creates.
func DirName(s ledger.Student, now time.Time) string {
	return fmt.Sprintf("%s_%d", Prefix(s), now.Unix())
}

// WriteDir writes the artifacts into root/{name}_{id}_{unix}/ and returns
// that directory.
func WriteDir(root string, b ledger.Bundle, now time.Time) (string, error) {
	files, err := Files(b)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, DirName(b.Student, now))
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.Name), f.Data, 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return dir, nil
}

// WriteZip writes the artifacts under a {name}_{id}/ prefix. Entry times
// are the session creation time, so equal bundles give equal archives.
func WriteZip(w io.Writer, b ledger.Bundle) error {
	files, err := Files(b)
	if err != nil {
		return err
	}
	prefix := Prefix(b.Student)
	modified := b.CreatedAt.UTC()
	if modified.IsZero() {
		modified = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	zw := zip.NewWriter(w)
	for _, f := range files {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     prefix + "/" + f.Name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return fmt.Errorf("add %s: %w", f.Name, err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

// WriteZipFile writes a ZIP export to path.
func WriteZipFile(path string, b ledger.Bundle) error {
	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	if err := WriteZip(f, b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// safeComponent keeps a student field from escaping the export root.
func safeComponent(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, s)
	if s == "." || s == ".." {
		return strings.Repeat("_", len(s))
	}
	return s
}
