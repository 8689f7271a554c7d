package pdf

import (
	"bytes"
	"context"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/translator"
)

// Patch records the rewritten content stream for one page. The stream
// object has already been allocated in the working document; the
// assembler fills in the payload.
type Patch struct {
	PageNo int
	ObjNr  int
	Stream []byte
}

// Interpreter rewrites page content streams: text-showing operations in
// translatable regions are coalesced into runs, translated, and replaced
// with equivalent operations in the fallback font. Everything else is
// copied through byte for byte.
type Interpreter struct {
	doc    *Document
	font   *FallbackFont
	tr     translator.Translator
	strict bool
}

// NewInterpreter builds an interpreter over an open working document.
// In strict mode a failed translation aborts the page instead of
// falling back to the original text.
func NewInterpreter(doc *Document, font *FallbackFont, tr translator.Translator, strict bool) *Interpreter {
	return &Interpreter{doc: doc, font: font, tr: tr, strict: strict}
}

// matrix is a PDF transformation matrix [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns m applied before n (row-vector convention).
func mul(m, n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func translateMatrix(tx, ty float64) matrix {
	return matrix{1, 0, 0, 1, tx, ty}
}

// textRun is a contiguous stretch of text-showing operations inside one
// translatable region, buffered until the run breaks. ops holds every
// buffered operation's original span in program order, showing and
// positioning alike, so a failed translation replays the run verbatim.
type textRun struct {
	region       int
	source       strings.Builder
	ops          []runOp
	tm           matrix // text matrix at run start
	fontSize     float64
	estWidth     float64 // estimated source width in points
	pendingSpace bool
}

type runOp struct {
	raw  []byte
	show bool
}

type interpState struct {
	ctm        matrix
	ctmStack   []matrix
	tm, lm     matrix
	inText     bool
	leading    float64
	fontSize   float64
	fontName   string
	horizScale float64 // percent
}

// InterpretPage rewrites one page against the region mask. scale converts
// page points to mask pixels. Returns nil when nothing on the page needed
// translation; the page then keeps its original stream.
func (ip *Interpreter) InterpretPage(ctx context.Context, pageNo int, mask *layout.Mask, scale float64) (*Patch, error) {
	content, err := ip.doc.PageContent(pageNo)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, nil
	}

	ops := GroupOps(Tokenize(content))

	st := interpState{ctm: identity, tm: identity, lm: identity, horizScale: 100}
	var out bytes.Buffer
	var run *textRun
	changed := false

	emitRaw := func(op Op) {
		out.Write(content[op.Start:op.End])
		out.WriteByte('\n')
	}

	flush := func() error {
		if run == nil {
			return nil
		}
		r := run
		run = nil

		replay := func() {
			for _, o := range r.ops {
				out.Write(o.raw)
				out.WriteByte('\n')
			}
		}

		src := strings.TrimSpace(r.source.String())
		if src == "" {
			replay()
			return nil
		}

		translated, err := ip.tr.Translate(ctx, src)
		if err != nil {
			if ip.strict || ctx.Err() != nil {
				return err
			}
			logger.Warn("translation failed, keeping original text",
				zap.Int("page", pageNo), zap.Error(err))
			replay()
			return nil
		}

		// Positioning and text-state operators buffered inside the run
		// still apply to the rest of the stream; emit them ahead of the
		// replacement text.
		for _, o := range r.ops {
			if !o.show {
				out.Write(o.raw)
				out.WriteByte('\n')
			}
		}
		changed = true
		ip.emitReplacement(&out, &st, r, translated)
		return nil
	}

	for _, op := range ops {
		show, lineAdvance := classifyShowOp(op)
		if show {
			if err := ip.handleShow(&out, &st, &run, op, content, mask, scale, lineAdvance, flush); err != nil {
				return nil, err
			}
			continue
		}

		breaksRun, keepInRun := classifyStateOp(op.Operator)
		if run != nil && breaksRun {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		applyStateOp(&st, op)
		if run != nil && keepInRun {
			if isLineAdvanceOp(op) {
				run.pendingSpace = true
			}
			run.ops = append(run.ops, runOp{raw: content[op.Start:op.End]})
			continue
		}
		emitRaw(op)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if !changed {
		return nil, nil
	}

	objNr, err := ip.doc.AllocateStream(pageNo)
	if err != nil {
		return nil, err
	}
	return &Patch{PageNo: pageNo, ObjNr: objNr, Stream: out.Bytes()}, nil
}

// handleShow routes one text-showing operation: protected text is copied
// through, translatable text joins or starts a run.
func (ip *Interpreter) handleShow(out *bytes.Buffer, st *interpState, run **textRun, op Op, content []byte, mask *layout.Mask, scale float64, lineAdvance bool, flush func() error) error {
	// ' and " advance the line before showing.
	if lineAdvance {
		st.tm = mul(translateMatrix(0, -st.leading), st.lm)
		st.lm = st.tm
	}

	text := showOpText(op)
	region := ip.classifyRegion(st, mask, scale)

	if !st.inText || region == layout.RegionProtected {
		if err := flush(); err != nil {
			return err
		}
		out.Write(content[op.Start:op.End])
		out.WriteByte('\n')
		return nil
	}

	r := *run
	if r != nil && r.region != region {
		if err := flush(); err != nil {
			return err
		}
		r = nil
	}
	if r == nil {
		r = &textRun{
			region:   region,
			tm:       st.tm,
			fontSize: st.fontSize,
		}
		*run = r
	} else if lineAdvance {
		r.pendingSpace = true
	}
	if r.pendingSpace && r.source.Len() > 0 {
		r.source.WriteByte(' ')
		r.pendingSpace = false
	}
	r.source.WriteString(text)
	r.estWidth += HeuristicWidthEm(text) * st.fontSize
	r.ops = append(r.ops, runOp{raw: content[op.Start:op.End], show: true})
	return nil
}

// classifyRegion samples the mask at the current text origin in device
// space.
func (ip *Interpreter) classifyRegion(st *interpState, mask *layout.Mask, scale float64) int {
	m := mul(st.tm, st.ctm)
	x := m[4] * scale
	y := m[5] * scale
	return mask.Sample(x, y)
}

// emitReplacement writes the translated run: fallback font, the run's
// starting text matrix, a horizontal squeeze when the translation would
// overflow, then the text. Prior font and scale state is restored so the
// rest of the stream renders unchanged.
func (ip *Interpreter) emitReplacement(out *bytes.Buffer, st *interpState, r *textRun, translated string) {
	size := r.fontSize
	if size <= 0 {
		size = 10
	}

	newWidth := ip.font.WidthEm(translated) * size
	tz := 100.0
	if newWidth > r.estWidth && newWidth > 0 && r.estWidth > 0 {
		tz = 100 * r.estWidth / newWidth
		if tz < 40 {
			tz = 40
		}
	}

	out.WriteString("/" + ip.font.ResourceName + " " + fmtNum(size) + " Tf\n")
	out.WriteString(fmtMatrix(r.tm) + " Tm\n")
	if tz != 100 {
		out.WriteString(fmtNum(tz) + " Tz\n")
	}
	out.WriteString(ip.font.ShowTextOperand(translated) + " Tj\n")
	if tz != 100 {
		out.WriteString(fmtNum(st.horizScale) + " Tz\n")
	}
	if st.fontName != "" {
		out.WriteString("/" + st.fontName + " " + fmtNum(st.fontSize) + " Tf\n")
	}
	// Restore the line matrix clobbered by our Tm.
	out.WriteString(fmtMatrix(st.lm) + " Tm\n")
}

// classifyShowOp reports whether op shows text and whether it advances
// the line first.
func classifyShowOp(op Op) (show, lineAdvance bool) {
	switch op.Operator {
	case "Tj", "TJ":
		return true, false
	case "'", "\"":
		return true, true
	}
	return false, false
}

// showOpText decodes the text carried by a show operation. TJ kerning
// smaller than -100 thousandths of an em reads as an implicit space.
func showOpText(op Op) string {
	var sb strings.Builder
	switch op.Operator {
	case "Tj", "'":
		if len(op.Operands) > 0 {
			sb.WriteString(DecodeTextString(op.Operands[len(op.Operands)-1].Val))
		}
	case "\"":
		if len(op.Operands) > 0 {
			last := op.Operands[len(op.Operands)-1]
			if last.Kind == TokString || last.Kind == TokHexString {
				sb.WriteString(DecodeTextString(last.Val))
			}
		}
	case "TJ":
		for _, t := range op.Operands {
			switch t.Kind {
			case TokString, TokHexString:
				sb.WriteString(DecodeTextString(t.Val))
			case TokNumber:
				if t.Num < -100 {
					sb.WriteByte(' ')
				}
			}
		}
	}
	return sb.String()
}

// classifyStateOp decides run handling for non-showing operators.
// Positioning and text-state operators may occur inside a run; anything
// else (paths, XObjects, ET, q/Q, cm) ends it.
func classifyStateOp(operator string) (breaksRun, keepInRun bool) {
	switch operator {
	case "Td", "TD", "Tm", "T*", "TL", "Tc", "Tw", "Tz", "Tf", "Ts", "Tr":
		return false, true
	}
	return true, false
}

func isLineAdvanceOp(op Op) bool {
	switch op.Operator {
	case "T*", "TD":
		return true
	case "Td":
		return len(op.Operands) == 2 && op.Operands[1].Num != 0
	case "Tm":
		return true
	}
	return false
}

// applyStateOp updates interpreter state for one operation.
func applyStateOp(st *interpState, op Op) {
	nums := func(n int) []float64 {
		if len(op.Operands) < n {
			return nil
		}
		vals := make([]float64, n)
		for i := 0; i < n; i++ {
			vals[i] = op.Operands[len(op.Operands)-n+i].Num
		}
		return vals
	}

	switch op.Operator {
	case "q":
		st.ctmStack = append(st.ctmStack, st.ctm)
	case "Q":
		if n := len(st.ctmStack); n > 0 {
			st.ctm = st.ctmStack[n-1]
			st.ctmStack = st.ctmStack[:n-1]
		}
	case "cm":
		if v := nums(6); v != nil {
			st.ctm = mul(matrix{v[0], v[1], v[2], v[3], v[4], v[5]}, st.ctm)
		}
	case "BT":
		st.inText = true
		st.tm = identity
		st.lm = identity
	case "ET":
		st.inText = false
	case "Td":
		if v := nums(2); v != nil {
			st.lm = mul(translateMatrix(v[0], v[1]), st.lm)
			st.tm = st.lm
		}
	case "TD":
		if v := nums(2); v != nil {
			st.leading = -v[1]
			st.lm = mul(translateMatrix(v[0], v[1]), st.lm)
			st.tm = st.lm
		}
	case "Tm":
		if v := nums(6); v != nil {
			st.tm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			st.lm = st.tm
		}
	case "T*":
		st.tm = mul(translateMatrix(0, -st.leading), st.lm)
		st.lm = st.tm
	case "TL":
		if v := nums(1); v != nil {
			st.leading = v[0]
		}
	case "Tz":
		if v := nums(1); v != nil {
			st.horizScale = v[0]
		}
	case "Tf":
		if len(op.Operands) >= 2 {
			nameTok := op.Operands[len(op.Operands)-2]
			if nameTok.Kind == TokName {
				st.fontName = nameTok.Val
			}
			st.fontSize = op.Operands[len(op.Operands)-1].Num
		}
	}
}

func fmtNum(v float64) string {
	v = math.Round(v*10000) / 10000
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fmtMatrix(m matrix) string {
	parts := make([]string, 6)
	for i, v := range m {
		parts[i] = fmtNum(v)
	}
	return strings.Join(parts, " ")
}
