package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeBasicTextBlock(t *testing.T) {
	content := []byte("BT /F1 12 Tf 72 720 Td (Hello) Tj ET")
	ops := GroupOps(Tokenize(content))

	require.Len(t, ops, 5)
	assert.Equal(t, "BT", ops[0].Operator)
	assert.Equal(t, "Tf", ops[1].Operator)
	assert.Equal(t, "Td", ops[2].Operator)
	assert.Equal(t, "Tj", ops[3].Operator)
	assert.Equal(t, "ET", ops[4].Operator)

	require.Len(t, ops[3].Operands, 1)
	assert.Equal(t, "Hello", ops[3].Operands[0].Val)
	// Raw span covers operands and operator.
	assert.Equal(t, "(Hello) Tj", string(content[ops[3].Start:ops[3].End]))
}

func TestTokenizeLiteralStringEscapes(t *testing.T) {
	tokens := Tokenize([]byte(`(a\(b\)c\\d\n\101)`))
	require.Len(t, tokens, 1)
	assert.Equal(t, "a(b)c\\d\nA", tokens[0].Val)
}

func TestTokenizeNestedParens(t *testing.T) {
	tokens := Tokenize([]byte("(outer (inner) more)"))
	require.Len(t, tokens, 1)
	assert.Equal(t, "outer (inner) more", tokens[0].Val)
}

func TestTokenizeHexString(t *testing.T) {
	tokens := Tokenize([]byte("<48 65 6C6C 6F>"))
	require.Len(t, tokens, 1)
	assert.Equal(t, TokHexString, tokens[0].Kind)
	assert.Equal(t, "Hello", tokens[0].Val)
}

func TestTokenizeHexStringOddDigitPadded(t *testing.T) {
	tokens := Tokenize([]byte("<48656C6C6F2>"))
	require.Len(t, tokens, 1)
	assert.Equal(t, "Hello ", tokens[0].Val)
}

func TestTokenizeTJArray(t *testing.T) {
	content := []byte("[(He) -50 (llo) -250 (World)] TJ")
	ops := GroupOps(Tokenize(content))
	require.Len(t, ops, 1)
	assert.Equal(t, "TJ", ops[0].Operator)
	assert.Equal(t, "Hello World", showOpText(ops[0]))
}

func TestTokenizeSkipsComments(t *testing.T) {
	ops := GroupOps(Tokenize([]byte("% a comment\nBT ET")))
	require.Len(t, ops, 2)
	assert.Equal(t, "BT", ops[0].Operator)
}

func TestTokenizeInlineDict(t *testing.T) {
	ops := GroupOps(Tokenize([]byte("/GS1 gs << /Type /Page >> BDC")))
	require.Len(t, ops, 2)
	assert.Equal(t, "gs", ops[0].Operator)
	assert.Equal(t, "BDC", ops[1].Operator)
}

func TestDecodeTextStringUTF16(t *testing.T) {
	// UTF-16BE with BOM for "Hi"
	s := string([]byte{0xFE, 0xFF, 0x00, 'H', 0x00, 'i'})
	assert.Equal(t, "Hi", DecodeTextString(s))
}

func TestDecodeTextStringLatin1(t *testing.T) {
	assert.Equal(t, "café", DecodeTextString(string([]byte{'c', 'a', 'f', 0xE9})))
}

func TestGroupOpsPreservesRawSpans(t *testing.T) {
	content := []byte("1 0 0 1 50 100 cm q 0.5 w Q")
	ops := GroupOps(Tokenize(content))
	require.Len(t, ops, 4)
	assert.Equal(t, "1 0 0 1 50 100 cm", string(content[ops[0].Start:ops[0].End]))
	assert.Equal(t, "q", string(content[ops[1].Start:ops[1].End]))
	assert.Equal(t, "0.5 w", string(content[ops[2].Start:ops[2].End]))
}
