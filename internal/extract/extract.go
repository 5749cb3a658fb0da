// Package extract converts uploaded files into plain text. Dispatch is by
// file extension; unrecognized extensions are rejected before any I/O.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// SupportedExtension reports whether the filename's extension is one this
// package can extract text from.
func SupportedExtension(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".docx", ".txt":
		return true
	}
	return false
}

// Text extracts plain text from the raw file bytes based on the filename's
// extension. The result is trimmed; callers decide what an empty result means.
func Text(raw []byte, filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return fromPDF(raw)
	case ".docx":
		return fromDOCX(raw)
	case ".txt":
		return strings.TrimSpace(string(raw)), nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}
}

func fromPDF(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("pdf extraction failed: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf extraction failed on page %d: %w", i, err)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String()), nil
}

// fromDOCX reads word/document.xml out of the docx archive and collects the
// text runs, one line per paragraph.
func fromDOCX(raw []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("docx extraction failed: %w", err)
	}

	var document *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			document = f
			break
		}
	}
	if document == nil {
		return "", fmt.Errorf("docx extraction failed: word/document.xml not found")
	}

	rc, err := document.Open()
	if err != nil {
		return "", fmt.Errorf("docx extraction failed: %w", err)
	}
	defer rc.Close()

	return docxText(rc)
}

func docxText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var b strings.Builder
	inText := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx extraction failed: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return strings.TrimSpace(b.String()), nil
}
