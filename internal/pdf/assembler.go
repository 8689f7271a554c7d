package pdf

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"pdf-translator/internal/logger"
)

// Outputs holds the two assembled documents: Mono with every page
// translated in place, Dual with original and translated pages
// interleaved for side-by-side reading.
type Outputs struct {
	Mono []byte
	Dual []byte
}

// AssembleOptions tunes output production.
type AssembleOptions struct {
	// SkipFontOptimization leaves streams and font resources as written,
	// skipping the size-reducing optimization pass.
	SkipFontOptimization bool
}

// Assemble applies the page patches to the working document and
// produces the mono and dual outputs. Pages without a patch keep their
// original content stream.
func Assemble(doc *Document, original []byte, patches []*Patch, opts AssembleOptions) (*Outputs, error) {
	for _, p := range patches {
		if p == nil {
			continue
		}
		if err := doc.UpdateStream(p.ObjNr, p.Stream); err != nil {
			return nil, fmt.Errorf("apply patch for page %d: %w", p.PageNo, err)
		}
	}

	mono, err := doc.Bytes()
	if err != nil {
		return nil, err
	}
	if !opts.SkipFontOptimization {
		if mono, err = optimize(mono); err != nil {
			return nil, fmt.Errorf("optimize mono output: %w", err)
		}
	}

	dual, err := interleave(original, mono, doc.PageCount())
	if err != nil {
		return nil, fmt.Errorf("assemble dual output: %w", err)
	}
	if !opts.SkipFontOptimization {
		if dual, err = optimize(dual); err != nil {
			return nil, fmt.Errorf("optimize dual output: %w", err)
		}
	}

	logger.Info("assembled outputs",
		zap.Int("pages", doc.PageCount()),
		zap.Int("patched", len(patches)),
		zap.Int("mono_bytes", len(mono)),
		zap.Int("dual_bytes", len(dual)))
	return &Outputs{Mono: mono, Dual: dual}, nil
}

// interleave merges the original and translated documents, then reorders
// pages so each original page is followed by its translation.
func interleave(original, mono []byte, pageCount int) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var merged bytes.Buffer
	readers := []io.ReadSeeker{bytes.NewReader(original), bytes.NewReader(mono)}
	if err := api.MergeRaw(readers, &merged, false, conf); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	order := make([]string, 0, pageCount*2)
	for p := 1; p <= pageCount; p++ {
		order = append(order, strconv.Itoa(p), strconv.Itoa(pageCount+p))
	}

	var out bytes.Buffer
	if err := api.Collect(bytes.NewReader(merged.Bytes()), &out, order, conf); err != nil {
		return nil, fmt.Errorf("reorder: %w", err)
	}
	return out.Bytes(), nil
}

func optimize(src []byte) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(src), &out, conf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
