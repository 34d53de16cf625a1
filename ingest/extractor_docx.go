package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

var _ Extractor = (*DOCXExtractor)(nil)

// maxZipEntrySize caps the decompressed size of a single zip entry so a
// crafted archive cannot balloon in memory (100 MB).
const maxZipEntrySize = 100 << 20

// DOCXExtractor streams OOXML tokens out of word/document.xml to extract
// paragraph and table text without building a DOM. Table rows are rendered
// as "Header: Value" pairs keyed by the first row.
type DOCXExtractor struct{}

// NewDOCXExtractor creates a DOCX extractor.
func NewDOCXExtractor() *DOCXExtractor { return &DOCXExtractor{} }

// Extract extracts plain text from a DOCX document.
func (e *DOCXExtractor) Extract(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty docx content")
	}
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}
	data, err := docxDocumentXML(zr)
	if err != nil {
		return "", err
	}
	return docxStreamText(data)
}

func docxDocumentXML(zr *zip.Reader) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxZipEntrySize+1))
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}
		if len(data) > maxZipEntrySize {
			return nil, fmt.Errorf("document.xml exceeds %d byte limit", maxZipEntrySize)
		}
		return data, nil
	}
	return nil, fmt.Errorf("missing word/document.xml")
}

// docxWalker accumulates text while streaming the document XML.
type docxWalker struct {
	out strings.Builder

	inParagraph bool
	inRun       bool
	runs        []string

	inTable  bool
	inRow    bool
	headers  []string
	rowIdx   int
	cells    []string
	cellText strings.Builder
}

func docxStreamText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	w := &docxWalker{}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				w.inParagraph = true
				w.runs = nil
			case "r":
				w.inRun = true
			case "tbl":
				w.inTable = true
				w.headers = nil
				w.rowIdx = 0
			case "tr":
				w.inRow = true
				w.cells = nil
			case "tc":
				w.cellText.Reset()
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				w.inRun = false
			case "tc":
				w.cells = append(w.cells, strings.TrimSpace(w.cellText.String()))
			case "tr":
				w.endRow()
			case "tbl":
				w.inTable = false
			case "p":
				w.endParagraph()
			}
		case xml.CharData:
			w.charData(string(t))
		}
	}
	return strings.TrimSpace(w.out.String()), nil
}

func (w *docxWalker) charData(s string) {
	if w.inTable && w.inRow {
		w.cellText.WriteString(s)
		return
	}
	if w.inParagraph && w.inRun {
		w.runs = append(w.runs, s)
	}
}

func (w *docxWalker) endRow() {
	w.inRow = false
	if !w.inTable {
		return
	}
	// First row names the columns; later rows render as labeled fields.
	if w.rowIdx == 0 {
		w.headers = append([]string(nil), w.cells...)
		w.rowIdx++
		return
	}
	w.rowIdx++

	var fields []string
	for i, val := range w.cells {
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		if i < len(w.headers) && w.headers[i] != "" {
			fields = append(fields, w.headers[i]+": "+val)
		} else {
			fields = append(fields, val)
		}
	}
	if len(fields) == 0 {
		return
	}
	w.writeBlock(strings.Join(fields, ", "))
}

func (w *docxWalker) endParagraph() {
	w.inParagraph = false
	if w.inTable {
		return
	}
	text := strings.TrimSpace(strings.Join(w.runs, ""))
	if text == "" {
		return
	}
	w.writeBlock(text)
}

func (w *docxWalker) writeBlock(s string) {
	if w.out.Len() > 0 {
		w.out.WriteString("\n\n")
	}
	w.out.WriteString(s)
}
