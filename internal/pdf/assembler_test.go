package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secondPageContent = "BT /F1 12 Tf 72 700 Td (Second Page) Tj ET"

func TestAssembleMonoAppliesPatches(t *testing.T) {
	src := buildTestPDF(t, []string{helloContent, secondPageContent})
	doc, err := OpenDocument(src)
	require.NoError(t, err)

	objNr, err := doc.AllocateStream(1)
	require.NoError(t, err)
	patches := []*Patch{{
		PageNo: 1,
		ObjNr:  objNr,
		Stream: []byte("BT /F1 12 Tf 72 720 Td (Translated) Tj ET"),
	}}

	outs, err := Assemble(doc, src, patches, AssembleOptions{SkipFontOptimization: true})
	require.NoError(t, err)

	mono, err := OpenDocument(outs.Mono)
	require.NoError(t, err)
	assert.Equal(t, 2, mono.PageCount())

	p1, err := mono.PageContent(1)
	require.NoError(t, err)
	assert.Contains(t, string(p1), "(Translated) Tj")

	// Unpatched pages keep their original stream.
	p2, err := mono.PageContent(2)
	require.NoError(t, err)
	assert.Contains(t, string(p2), "(Second Page) Tj")
}

func TestAssembleDualInterleavesPages(t *testing.T) {
	src := buildTestPDF(t, []string{helloContent, secondPageContent})
	doc, err := OpenDocument(src)
	require.NoError(t, err)

	objNr, err := doc.AllocateStream(1)
	require.NoError(t, err)
	patches := []*Patch{{
		PageNo: 1,
		ObjNr:  objNr,
		Stream: []byte("BT /F1 12 Tf 72 720 Td (Translated) Tj ET"),
	}}

	outs, err := Assemble(doc, src, patches, AssembleOptions{SkipFontOptimization: true})
	require.NoError(t, err)

	dual, err := OpenDocument(outs.Dual)
	require.NoError(t, err)
	require.Equal(t, 4, dual.PageCount())

	expect := []string{"(Hello World)", "(Translated)", "(Second Page)", "(Second Page)"}
	for i, want := range expect {
		content, err := dual.PageContent(i + 1)
		require.NoError(t, err)
		assert.Contains(t, string(content), want, "dual page %d", i+1)
	}
}

func TestAssembleWithOptimization(t *testing.T) {
	src := buildTestPDF(t, []string{helloContent})
	doc, err := OpenDocument(src)
	require.NoError(t, err)

	outs, err := Assemble(doc, src, nil, AssembleOptions{})
	require.NoError(t, err)

	// Optimized outputs still open and validate.
	mono, err := OpenDocument(outs.Mono)
	require.NoError(t, err)
	assert.Equal(t, 1, mono.PageCount())
	dual, err := OpenDocument(outs.Dual)
	require.NoError(t, err)
	assert.Equal(t, 2, dual.PageCount())
}
