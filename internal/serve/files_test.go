package serve

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// onePagePDF builds a single-page PDF showing text in Helvetica, with a
// correct cross-reference table.
func onePagePDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return b.Bytes()
}

func TestExtractText(t *testing.T) {
	got, err := extractText("a.TXT", strings.NewReader("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", got)

	got, err = extractText("sheet.csv", strings.NewReader("a,b\nc,d\n"))
	require.NoError(t, err)
	assert.Equal(t, "a, b\nc, d", got)

	got, err = extractText("doc.pdf", bytes.NewReader(onePagePDF("Hello from a PDF")))
	require.NoError(t, err)
	assert.Contains(t, got, "Hello from a PDF")
}

func TestExtractTextErrors(t *testing.T) {
	_, err := extractText("bad.txt", bytes.NewReader([]byte{0xff, 0xfe}))
	assert.ErrorContains(t, err, "UTF-8")

	_, err = extractText("image.png", strings.NewReader("png"))
	assert.ErrorIs(t, err, errUnsupportedType)

	_, err = extractText("broken.pdf", strings.NewReader("%PDF-1.4 truncated"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errUnsupportedType)
}
