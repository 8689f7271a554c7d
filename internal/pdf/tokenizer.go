// Package pdf implements the document model, content-stream interpretation
// and output assembly for the translation pipeline, on top of pdfcpu.
package pdf

import (
	"bytes"
	"strconv"

	"golang.org/x/text/encoding/unicode"
)

// TokenKind classifies one content-stream token.
type TokenKind int

const (
	TokNumber TokenKind = iota
	TokString
	TokHexString
	TokName
	TokArrayStart
	TokArrayEnd
	TokDictStart
	TokDictEnd
	TokOperator
)

// Token is one lexical unit of a content stream. Start/End index into the
// original stream so the raw bytes can be copied through untouched.
type Token struct {
	Kind  TokenKind
	Val   string // decoded payload for strings/names, literal text otherwise
	Num   float64
	Start int
	End   int
}

// Op is one content-stream operation: an operator with the operand tokens
// that preceded it. Raw covers the full original byte span.
type Op struct {
	Operator string
	Operands []Token
	Start    int
	End      int
}

// Tokenize splits a decoded content stream into tokens. The lexer is
// permissive: malformed trailing input yields what was recognized so far.
func Tokenize(content []byte) []Token {
	var tokens []Token
	i := 0
	n := len(content)
	for i < n {
		b := content[i]
		switch {
		case isWhitespace(b):
			i++
		case b == '%':
			for i < n && content[i] != '\n' && content[i] != '\r' {
				i++
			}
		case b == '(':
			start := i
			val, next := readLiteralString(content, i)
			tokens = append(tokens, Token{Kind: TokString, Val: val, Start: start, End: next})
			i = next
		case b == '<':
			if i+1 < n && content[i+1] == '<' {
				tokens = append(tokens, Token{Kind: TokDictStart, Val: "<<", Start: i, End: i + 2})
				i += 2
				break
			}
			start := i
			val, next := readHexString(content, i)
			tokens = append(tokens, Token{Kind: TokHexString, Val: val, Start: start, End: next})
			i = next
		case b == '>':
			if i+1 < n && content[i+1] == '>' {
				tokens = append(tokens, Token{Kind: TokDictEnd, Val: ">>", Start: i, End: i + 2})
				i += 2
			} else {
				i++
			}
		case b == '[':
			tokens = append(tokens, Token{Kind: TokArrayStart, Val: "[", Start: i, End: i + 1})
			i++
		case b == ']':
			tokens = append(tokens, Token{Kind: TokArrayEnd, Val: "]", Start: i, End: i + 1})
			i++
		case b == '/':
			start := i
			i++
			for i < n && !isDelimiter(content[i]) && !isWhitespace(content[i]) {
				i++
			}
			tokens = append(tokens, Token{Kind: TokName, Val: string(content[start+1 : i]), Start: start, End: i})
		default:
			start := i
			for i < n && !isDelimiter(content[i]) && !isWhitespace(content[i]) {
				i++
			}
			raw := string(content[start:i])
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				tokens = append(tokens, Token{Kind: TokNumber, Val: raw, Num: f, Start: start, End: i})
			} else {
				tokens = append(tokens, Token{Kind: TokOperator, Val: raw, Start: start, End: i})
			}
		}
	}
	return tokens
}

// GroupOps folds a token stream into operations. Inline-image payloads
// (BI..ID..EI) are not lexed; pages using them keep those spans verbatim
// because the tokenizer treats the binary payload as opaque operators that
// group into ops copied through unchanged.
func GroupOps(tokens []Token) []Op {
	var ops []Op
	pending := 0
	for i, t := range tokens {
		if t.Kind != TokOperator {
			continue
		}
		op := Op{
			Operator: t.Val,
			Operands: tokens[pending:i],
			Start:    t.Start,
			End:      t.End,
		}
		if len(op.Operands) > 0 {
			op.Start = op.Operands[0].Start
		}
		ops = append(ops, op)
		pending = i + 1
	}
	return ops
}

// readLiteralString decodes a parenthesized string starting at i.
// Returns the decoded value and the index just past the closing paren.
func readLiteralString(content []byte, i int) (string, int) {
	var out bytes.Buffer
	depth := 1
	i++ // opening paren
	n := len(content)
	for i < n {
		b := content[i]
		switch b {
		case '\\':
			i++
			if i >= n {
				return out.String(), i
			}
			e := content[i]
			switch e {
			case 'n':
				out.WriteByte('\n')
			case 'r':
				out.WriteByte('\r')
			case 't':
				out.WriteByte('\t')
			case 'b':
				out.WriteByte('\b')
			case 'f':
				out.WriteByte('\f')
			case '(', ')', '\\':
				out.WriteByte(e)
			case '\r':
				if i+1 < n && content[i+1] == '\n' {
					i++
				}
			case '\n':
				// line continuation, emit nothing
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && i+1 < n && content[i+1] >= '0' && content[i+1] <= '7'; k++ {
						i++
						v = v*8 + int(content[i]-'0')
					}
					out.WriteByte(byte(v))
				} else {
					out.WriteByte(e)
				}
			}
			i++
		case '(':
			depth++
			out.WriteByte(b)
			i++
		case ')':
			depth--
			if depth == 0 {
				return out.String(), i + 1
			}
			out.WriteByte(b)
			i++
		default:
			out.WriteByte(b)
			i++
		}
	}
	return out.String(), i
}

// readHexString decodes a <...> string starting at i. An odd final digit
// is padded with zero per the PDF spec.
func readHexString(content []byte, i int) (string, int) {
	var digits []byte
	i++ // opening angle
	n := len(content)
	for i < n && content[i] != '>' {
		b := content[i]
		if !isWhitespace(b) {
			digits = append(digits, b)
		}
		i++
	}
	if i < n {
		i++ // closing angle
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	var out bytes.Buffer
	for k := 0; k+1 < len(digits); k += 2 {
		hi := hexVal(digits[k])
		lo := hexVal(digits[k+1])
		if hi < 0 || lo < 0 {
			break
		}
		out.WriteByte(byte(hi<<4 | lo))
	}
	return out.String(), i
}

func hexVal(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10
	}
	return -1
}

// DecodeTextString interprets raw string bytes as text: UTF-16BE when the
// BOM is present, Latin-1 otherwise. Decoding is best effort; fonts with
// custom encodings fall back to verbatim copy upstream so exact glyph
// mapping is not required here.
func DecodeTextString(s string) string {
	b := []byte(s)
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		if out, err := dec.Bytes(b); err == nil {
			return string(out)
		}
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == 0
}

func isDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
