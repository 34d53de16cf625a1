package docs

import (
	"bytes"
	"fmt"
	"strings"
)

// Page geometry for the minimal PDF writer.
const (
	pdfPageWidth   = 612
	pdfPageHeight  = 842
	pdfMargin      = 50
	pdfLeading     = 16
	pdfRowsPerPage = 46
)

// pdfRow is one laid-out text row.
type pdfRow struct {
	Text string
	Font string // "F1" regular, "F2" bold
	Size int
}

// buildPDF renders styled lines into a minimal multi-page PDF using the two
// built-in Helvetica fonts. No compression, plain xref table.
func buildPDF(lines []docLine) []byte {
	pages := paginate(layoutRows(lines), pdfRowsPerPage)
	if len(pages) == 0 {
		pages = [][]pdfRow{nil}
	}

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 5+2*i)
	}
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica-Bold >>",
	}
	for i, p := range pages {
		content := renderPageContent(p)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] "+
				"/Resources << /Font << /F1 3 0 R /F2 4 0 R >> >> /Contents %d 0 R >>",
				pdfPageWidth, pdfPageHeight, 6+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs)+1)
	for i, body := range objs {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for i := 1; i <= len(objs); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// layoutRows wraps styled lines into rows, inserting a blank row before
// headings and paragraphs for breathing room.
func layoutRows(lines []docLine) []pdfRow {
	var rows []pdfRow
	for _, l := range lines {
		font, size := "F1", 11
		prefix := ""
		switch l.Style {
		case styleH1:
			font, size = "F2", 16
		case styleH2:
			font, size = "F2", 14
		case styleH3:
			font, size = "F2", 12
		case styleBullet:
			prefix = "- "
		case styleCode:
			prefix = "    "
		}
		if len(rows) > 0 && l.Style != styleBullet && l.Style != styleCode {
			rows = append(rows, pdfRow{})
		}
		for i, w := range wrapText(l.Text, wrapWidth(size)-len(prefix)) {
			p := prefix
			if l.Style == styleBullet && i > 0 {
				p = "  "
			}
			rows = append(rows, pdfRow{Text: p + w, Font: font, Size: size})
		}
	}
	return rows
}

// wrapWidth estimates how many characters fit between the margins at a
// given Helvetica point size.
func wrapWidth(size int) int {
	usable := float64(pdfPageWidth - 2*pdfMargin)
	n := int(usable / (0.55 * float64(size)))
	if n < 20 {
		n = 20
	}
	return n
}

// wrapText greedily wraps text at word boundaries.
func wrapText(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}
	var out []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			out = append(out, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(out, line)
}

func paginate(rows []pdfRow, perPage int) [][]pdfRow {
	var pages [][]pdfRow
	for start := 0; start < len(rows); start += perPage {
		end := start + perPage
		if end > len(rows) {
			end = len(rows)
		}
		pages = append(pages, rows[start:end])
	}
	return pages
}

// renderPageContent emits one text object per row at a fixed leading.
func renderPageContent(rows []pdfRow) string {
	var b strings.Builder
	y := pdfPageHeight - pdfMargin
	for _, r := range rows {
		if r.Text != "" {
			fmt.Fprintf(&b, "BT /%s %d Tf %d %d Td (%s) Tj ET\n", r.Font, r.Size, pdfMargin, y, escapePDF(r.Text))
		}
		y -= pdfLeading
	}
	return strings.TrimRight(b.String(), "\n")
}

// escapePDF escapes the characters with meaning inside a PDF literal string.
func escapePDF(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
