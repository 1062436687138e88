package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// DocxExtractor reads the body paragraphs of a Word document, one per line.
type DocxExtractor struct{}

func (DocxExtractor) Extensions() []string { return []string{".docx"} }

func (DocxExtractor) Extract(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("open docx: word/document.xml not found")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open docx body: %w", err)
	}
	defer rc.Close()

	paras, err := bodyParagraphs(rc)
	if err != nil {
		return "", fmt.Errorf("read docx body: %w", err)
	}
	return strings.Join(paras, "\n"), nil
}

// bodyParagraphs collects the text of each w:p that is a direct child of
// w:body. Table cell paragraphs are skipped.
func bodyParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		stack []string
		paras []string
		cur   strings.Builder
		inPar bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return paras, nil
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			local := ""
			if t.Name.Space == wordNS {
				local = t.Name.Local
			}
			if local == "p" && len(stack) > 0 && stack[len(stack)-1] == "body" {
				inPar = true
				cur.Reset()
			}
			if inPar {
				switch local {
				case "tab":
					cur.WriteByte('\t')
				case "br", "cr":
					cur.WriteByte('\n')
				}
			}
			stack = append(stack, local)
		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			stack = stack[:len(stack)-1]
			if inPar && t.Name.Space == wordNS && t.Name.Local == "p" && len(stack) > 0 && stack[len(stack)-1] == "body" {
				paras = append(paras, cur.String())
				inPar = false
			}
		case xml.CharData:
			if inPar && len(stack) > 0 && stack[len(stack)-1] == "t" {
				cur.Write(t)
			}
		}
	}
}
