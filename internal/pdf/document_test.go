package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestPDF assembles a minimal valid PDF with one content stream per
// page, computing cross-reference offsets as it goes.
func buildTestPDF(t *testing.T, contents []string) []byte {
	t.Helper()

	var buf bytes.Buffer
	var offsets []int
	addObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.7\n")

	kids := make([]string, len(contents))
	for i := range contents {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	addObj("<< /Type /Catalog /Pages 2 0 R >>")
	addObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>",
		strings.Join(kids, " "), len(contents)))
	addObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	for i, c := range contents {
		addObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		addObj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(c), c))
	}

	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets)+1, xrefPos)
	return buf.Bytes()
}

const helloContent = "BT /F1 12 Tf 72 720 Td (Hello World) Tj ET"

func TestOpenDocumentPageCount(t *testing.T) {
	src := buildTestPDF(t, []string{helloContent, helloContent})
	doc, err := OpenDocument(src)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.PageCount())
}

func TestOpenDocumentRejectsGarbage(t *testing.T) {
	_, err := OpenDocument([]byte("not a pdf at all"))
	assert.Error(t, err)
}

func TestPageSize(t *testing.T) {
	doc, err := OpenDocument(buildTestPDF(t, []string{helloContent}))
	require.NoError(t, err)

	w, h, err := doc.PageSize(1)
	require.NoError(t, err)
	assert.InDelta(t, 612.0, w, 0.01)
	assert.InDelta(t, 792.0, h, 0.01)
}

func TestPageContent(t *testing.T) {
	doc, err := OpenDocument(buildTestPDF(t, []string{helloContent}))
	require.NoError(t, err)

	content, err := doc.PageContent(1)
	require.NoError(t, err)
	assert.Contains(t, string(content), "(Hello World) Tj")
}

func TestAllocateAndUpdateStreamRoundTrip(t *testing.T) {
	doc, err := OpenDocument(buildTestPDF(t, []string{helloContent}))
	require.NoError(t, err)

	objNr, err := doc.AllocateStream(1)
	require.NoError(t, err)
	require.Greater(t, objNr, 0)

	replacement := "BT /F1 12 Tf 72 720 Td (Replaced) Tj ET"
	require.NoError(t, doc.UpdateStream(objNr, []byte(replacement)))

	out, err := doc.Bytes()
	require.NoError(t, err)

	reopened, err := OpenDocument(out)
	require.NoError(t, err)
	content, err := reopened.PageContent(1)
	require.NoError(t, err)
	assert.Contains(t, string(content), "(Replaced) Tj")
	assert.NotContains(t, string(content), "Hello World")
}

func TestUpdateStreamUnknownObject(t *testing.T) {
	doc, err := OpenDocument(buildTestPDF(t, []string{helloContent}))
	require.NoError(t, err)
	assert.Error(t, doc.UpdateStream(9999, []byte("x")))
}

func TestRegisterPageFontSurvivesRoundTrip(t *testing.T) {
	doc, err := OpenDocument(buildTestPDF(t, []string{helloContent}))
	require.NoError(t, err)

	font, err := EnsureFallbackFont(doc, "")
	require.NoError(t, err)
	assert.Equal(t, FallbackResourceName, font.ResourceName)
	assert.False(t, font.Embedded())

	// The document must still validate with the new font objects wired in.
	out, err := doc.Bytes()
	require.NoError(t, err)
	_, err = OpenDocument(out)
	require.NoError(t, err)
}

func TestHelveticaOperandEscaping(t *testing.T) {
	f := &FallbackFont{ResourceName: FallbackResourceName}
	assert.Equal(t, `(a\(b\)c)`, f.ShowTextOperand("a(b)c"))
	assert.Equal(t, `(back\\slash)`, f.ShowTextOperand(`back\slash`))
	// Characters beyond Latin-1 degrade to a placeholder.
	assert.Equal(t, "(??)", f.ShowTextOperand("你好"))
}

func TestHeuristicWidth(t *testing.T) {
	assert.InDelta(t, 0.55*5, HeuristicWidthEm("Hello"), 0.001)
	assert.InDelta(t, 2.0, HeuristicWidthEm("你好"), 0.001)
}
