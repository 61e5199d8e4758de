package labreport

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	linesPerPage = 48
	pageWidth    = 595
	pageHeight   = 842
)

// Lines renders the report as plain text lines, the same content the PDF shows.
func Lines(r Report) []string {
	lines := []string{
		fmt.Sprintf("MedicalLab Report (analysis_id=%d)", r.AnalysisID),
		"",
		"Indicators:",
	}
	for _, ind := range r.Indicators {
		dev := "-"
		if ind.Deviation != nil {
			dev = *ind.Deviation
		}
		lines = append(lines, fmt.Sprintf("- %s: %s %s (ref %s..%s) dev=%s",
			ind.TestName, formatNumber(ind.Value), ind.Units, formatNumber(ind.RefMin), formatNumber(ind.RefMax), dev))
	}
	lines = append(lines, "", "Deviations:")
	if len(r.Deviations) == 0 {
		lines = append(lines, "- None")
	}
	for _, d := range r.Deviations {
		lines = append(lines, fmt.Sprintf("- %s: %s (value=%s %s)", d.Test, d.Deviation, formatNumber(d.Value), d.Units))
	}
	lines = append(lines, "", "Recommendations:")
	for _, rec := range r.Recommendations {
		lines = append(lines, "- "+rec.Text)
	}
	return lines
}

// RenderPDF draws the report as a plain single-font PDF document.
func RenderPDF(r Report) []byte {
	return renderText(Lines(r))
}

func renderText(lines []string) []byte {
	var pages [][]string
	for len(lines) > linesPerPage {
		pages = append(pages, lines[:linesPerPage])
		lines = lines[linesPerPage:]
	}
	pages = append(pages, lines)

	// 1 catalog, 2 page tree, 3 font, then a page and its content stream per page.
	objCount := 3 + 2*len(pages)
	objects := make([]string, objCount+1)
	objects[1] = "<< /Type /Catalog /Pages 2 0 R >>"
	kids := make([]string, 0, len(pages))
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}
	objects[2] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))
	objects[3] = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"
	for i, page := range pages {
		pageObj, contentObj := 4+2*i, 5+2*i
		objects[pageObj] = fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			pageWidth, pageHeight, contentObj)
		stream := contentStream(page)
		objects[contentObj] = fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, objCount+1)
	for n := 1; n <= objCount; n++ {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, objects[n])
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", objCount+1)
	buf.WriteString("0000000000 65535 f \n")
	for n := 1; n <= objCount; n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", objCount+1, xref)
	return buf.Bytes()
}

func contentStream(lines []string) string {
	var b strings.Builder
	b.WriteString("BT\n/F1 11 Tf\n15 TL\n56 790 Td\n")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("T*\n")
		}
		b.WriteString("(" + escapePDF(line) + " ) Tj\n")
	}
	b.WriteString("ET")
	return b.String()
}

var pdfEscaper = strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)

// escapePDF escapes string delimiters and replaces anything outside printable
// ASCII, which the base font cannot draw.
func escapePDF(s string) string {
	clean := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '?'
		}
		return r
	}, s)
	return pdfEscaper.Replace(clean)
}

func formatNumber(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
