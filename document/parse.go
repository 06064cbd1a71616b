package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// Parse extracts the text content of a document, dispatching on the file
// extension. Errors carry the original cause so callers can render it.
func Parse(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".txt", ".md", ".csv", ".json":
		return parseText(path)
	case ".html", ".htm":
		return parseHTML(path)
	case ".pdf":
		return parsePDF(path)
	case ".docx":
		return parseDOCX(path)
	default:
		return "", fmt.Errorf("parsing document %s: unsupported file extension %q", filepath.Base(path), ext)
	}
}

func supportedExtension(ext string) bool {
	switch ext {
	case ".txt", ".md", ".csv", ".json", ".html", ".htm", ".pdf", ".docx":
		return true
	}
	return false
}

func parseText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("parsing document %s: %w", filepath.Base(path), err)
	}
	return string(raw), nil
}

// parseHTML strips markup and returns the visible text of an HTML document.
func parseHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("parsing document %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("parsing document %s: %w", filepath.Base(path), err)
	}

	doc.Find("script, style, noscript").Remove()

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}

	// Collapse the whitespace runs left behind by removed markup.
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, "\n"), nil
}

// parsePDF extracts the plain text of every page.
func parsePDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("parsing document %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	body, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("parsing document %s: %w", filepath.Base(path), err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return "", fmt.Errorf("parsing document %s: %w", filepath.Base(path), err)
	}
	return buf.String(), nil
}

// parseDOCX reads the main document part of the OOXML archive and extracts
// the text runs, one line per paragraph.
func parseDOCX(path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("parsing document %s: %w", filepath.Base(path), err)
	}
	defer archive.Close()

	for _, file := range archive.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("parsing document %s: %w", filepath.Base(path), err)
		}
		defer rc.Close()

		text, err := docxText(rc)
		if err != nil {
			return "", fmt.Errorf("parsing document %s: %w", filepath.Base(path), err)
		}
		return text, nil
	}
	return "", fmt.Errorf("parsing document %s: no word/document.xml in archive", filepath.Base(path))
}

// docxText walks the document XML, concatenating w:t runs and breaking on
// paragraph ends.
func docxText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch el := token.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				var run string
				if err := decoder.DecodeElement(&run, &el); err != nil {
					return "", err
				}
				sb.WriteString(run)
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				sb.WriteString("\n")
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
