package pdf

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/golang/freetype/truetype"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"
	"golang.org/x/image/math/fixed"

	"pdf-translator/internal/logger"
)

// FallbackResourceName is the resource name the fallback font is
// registered under on every page, so rewritten text operations can
// reference it without per-page lookups.
const FallbackResourceName = "FT0"

// FallbackFont is the font every translated run is rendered with. With a
// TrueType file it is embedded as a CID-keyed font and strings encode to
// glyph indexes; without one it degrades to unembedded Helvetica and
// characters outside Latin-1 are replaced.
type FallbackFont struct {
	ResourceName string

	ttf     *truetype.Font
	cidFont types.Dict

	mu   sync.Mutex
	used map[rune]truetype.Index
}

// EnsureFallbackFont registers the fallback font on every page of the
// document and returns the handle the interpreter encodes with. An empty
// ttfPath selects the Helvetica fallback.
func EnsureFallbackFont(doc *Document, ttfPath string) (*FallbackFont, error) {
	f := &FallbackFont{
		ResourceName: FallbackResourceName,
		used:         make(map[rune]truetype.Index),
	}

	var ref *types.IndirectRef
	var err error
	if ttfPath != "" {
		ref, err = f.embedTrueType(doc, ttfPath)
	} else {
		logger.Warn("no fallback font file configured, using unembedded Helvetica")
		ref, err = doc.AddObject(types.Dict{
			"Type":     types.Name("Font"),
			"Subtype":  types.Name("Type1"),
			"BaseFont": types.Name("Helvetica"),
			"Encoding": types.Name("WinAnsiEncoding"),
		})
	}
	if err != nil {
		return nil, err
	}

	for p := 1; p <= doc.PageCount(); p++ {
		if err := doc.RegisterPageFont(p, f.ResourceName, ref); err != nil {
			return nil, fmt.Errorf("register font on page %d: %w", p, err)
		}
	}
	return f, nil
}

func (f *FallbackFont) embedTrueType(doc *Document, path string) (*types.IndirectRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font file: %w", err)
	}
	ttf, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font file: %w", err)
	}
	f.ttf = ttf

	psName := ttf.Name(truetype.NameIDPostscriptName)
	if psName == "" {
		psName = "EmbeddedFallback"
	}

	fileRef, err := doc.AddStreamObject(data, types.Dict{
		"Length1": types.Integer(len(data)),
	})
	if err != nil {
		return nil, fmt.Errorf("embed font program: %w", err)
	}

	bounds := ttf.Bounds(fixed.I(1000))
	descRef, err := doc.AddObject(types.Dict{
		"Type":     types.Name("FontDescriptor"),
		"FontName": types.Name(psName),
		"Flags":    types.Integer(4),
		"FontBBox": types.NewNumberArray(
			float64(bounds.Min.X.Round()), float64(bounds.Min.Y.Round()),
			float64(bounds.Max.X.Round()), float64(bounds.Max.Y.Round())),
		"ItalicAngle": types.Integer(0),
		"Ascent":      types.Integer(bounds.Max.Y.Round()),
		"Descent":     types.Integer(bounds.Min.Y.Round()),
		"CapHeight":   types.Integer(bounds.Max.Y.Round()),
		"StemV":       types.Integer(80),
		"FontFile2":   *fileRef,
	})
	if err != nil {
		return nil, fmt.Errorf("font descriptor: %w", err)
	}

	f.cidFont = types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("CIDFontType2"),
		"BaseFont": types.Name(psName),
		"CIDSystemInfo": types.Dict{
			"Registry":   types.StringLiteral("Adobe"),
			"Ordering":   types.StringLiteral("Identity"),
			"Supplement": types.Integer(0),
		},
		"FontDescriptor": *descRef,
		"DW":             types.Integer(1000),
		"CIDToGIDMap":    types.Name("Identity"),
	}
	cidRef, err := doc.AddObject(f.cidFont)
	if err != nil {
		return nil, fmt.Errorf("cid font: %w", err)
	}

	fontRef, err := doc.AddObject(types.Dict{
		"Type":            types.Name("Font"),
		"Subtype":         types.Name("Type0"),
		"BaseFont":        types.Name(psName),
		"Encoding":        types.Name("Identity-H"),
		"DescendantFonts": types.Array{*cidRef},
	})
	if err != nil {
		return nil, fmt.Errorf("type0 font: %w", err)
	}

	logger.Info("embedded fallback font",
		zap.String("path", path), zap.String("name", psName))
	return fontRef, nil
}

// Embedded reports whether a TrueType program backs the font.
func (f *FallbackFont) Embedded() bool {
	return f.ttf != nil
}

// ShowTextOperand encodes s as the operand of a text-showing operator:
// a hex string of glyph indexes for the embedded font, an escaped
// literal string for Helvetica.
func (f *FallbackFont) ShowTextOperand(s string) string {
	if f.ttf == nil {
		return literalOperand(s)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	buf := make([]byte, 0, len(s)*4+2)
	buf = append(buf, '<')
	for _, r := range s {
		idx, ok := f.used[r]
		if !ok {
			idx = f.ttf.Index(r)
			f.used[r] = idx
		}
		buf = append(buf, hexDigits[idx>>12&0xF], hexDigits[idx>>8&0xF], hexDigits[idx>>4&0xF], hexDigits[idx&0xF])
	}
	buf = append(buf, '>')
	return string(buf)
}

const hexDigits = "0123456789ABCDEF"

func literalOperand(s string) string {
	buf := make([]byte, 0, len(s)+2)
	buf = append(buf, '(')
	for _, r := range s {
		switch {
		case r == '(' || r == ')' || r == '\\':
			buf = append(buf, '\\', byte(r))
		case r < 0x20:
			buf = append(buf, []byte(fmt.Sprintf("\\%03o", r))...)
		case r < 0x100:
			buf = append(buf, byte(r))
		default:
			buf = append(buf, '?')
		}
	}
	buf = append(buf, ')')
	return string(buf)
}

// WidthEm estimates the rendered width of s in em units at size 1.
// Embedded fonts use real advance widths; Helvetica uses a per-script
// heuristic close enough for horizontal-scale fitting.
func (f *FallbackFont) WidthEm(s string) float64 {
	if f.ttf != nil {
		upem := fixed.Int26_6(f.ttf.FUnitsPerEm())
		var total float64
		for _, r := range s {
			hm := f.ttf.HMetric(upem, f.ttf.Index(r))
			total += float64(hm.AdvanceWidth) / float64(upem)
		}
		return total
	}
	return HeuristicWidthEm(s)
}

// HeuristicWidthEm estimates string width without font metrics: wide
// (CJK) characters advance a full em, everything else roughly half.
func HeuristicWidthEm(s string) float64 {
	var total float64
	for _, r := range s {
		if isWideRune(r) {
			total += 1.0
		} else {
			total += 0.55
		}
	}
	return total
}

// isWideRune reports whether r advances a full em. The ranges cover
// Hangul, kana, CJK ideographs with extensions A and B, Yi, and the
// fullwidth and compatibility blocks.
func isWideRune(r rune) bool {
	switch {
	case r >= 0x1100 && r <= 0x115F,
		r >= 0x2E80 && r <= 0x303E,
		r >= 0x3041 && r <= 0x33FF,
		r >= 0x3400 && r <= 0x4DBF,
		r >= 0x4E00 && r <= 0x9FFF,
		r >= 0xA000 && r <= 0xA4CF,
		r >= 0xAC00 && r <= 0xD7A3,
		r >= 0xF900 && r <= 0xFAFF,
		r >= 0xFE30 && r <= 0xFE4F,
		r >= 0xFF00 && r <= 0xFF60,
		r >= 0x20000 && r <= 0x2FA1F:
		return true
	}
	return false
}

// FinalizeWidths writes the advance widths of every glyph used so far
// into the CID font's W array. Call after all pages are interpreted.
func (f *FallbackFont) FinalizeWidths() {
	if f.ttf == nil || f.cidFont == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.used) == 0 {
		return
	}
	gids := make([]int, 0, len(f.used))
	seen := make(map[int]bool, len(f.used))
	for _, idx := range f.used {
		g := int(idx)
		if !seen[g] {
			seen[g] = true
			gids = append(gids, g)
		}
	}
	sort.Ints(gids)

	scale := fixed.I(1000)
	w := make(types.Array, 0, len(gids)*2)
	for _, g := range gids {
		hm := f.ttf.HMetric(scale, truetype.Index(g))
		w = append(w, types.Integer(g), types.Array{types.Integer(hm.AdvanceWidth.Round())})
	}
	f.cidFont["W"] = w
	logger.Debug("finalized fallback font widths", zap.Int("glyphs", len(gids)))
}
