package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/pdf"
	"pdf-translator/internal/translator"
)

// State tracks where the orchestrator is in a file's lifecycle.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateProcessing
	StateAssembling
	StateDone
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateProcessing:
		return "processing"
	case StateAssembling:
		return "assembling"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Progress is delivered to the OnProgress callback after every finished
// page and on every state change. Callbacks run on the orchestrator
// goroutine, never on page workers.
type Progress struct {
	File  string
	Page  int // last finished page, 0 on state changes
	Done  int // pages finished so far
	Total int
	State State
}

// FileResult is the outcome of translating one input file.
type FileResult struct {
	ID       string
	Input    string
	State    State
	Pages    int
	MonoPath string
	DualPath string
	MonoSize int64
	DualSize int64
	Elapsed  time.Duration
	Err      error
}

// Options configures a translation run.
type Options struct {
	OutputDir       string // empty: next to each input
	Pages           string // page selection expression, empty for all
	Threads         int
	DPI             int
	Strict          bool
	SkipSubsetFonts bool
	FallbackFont    string     // path to a TrueType file
	DebugLayout     bool       // dump detection overlays next to outputs
	Imager          PageImager // nil: render pages with pdftoppm
	OnProgress      func(Progress)
}

// PageImager renders single pages for layout detection. *pdf.Rasterizer
// is the production implementation.
type PageImager interface {
	RenderPage(ctx context.Context, pdfPath string, pageNo int) (image.Image, error)
}

const (
	defaultThreads = 4
	defaultDPI     = 144
)

// Orchestrator runs the full pipeline over a batch of files. A format
// error in one file does not stop the batch; cancellation does, at the
// next page boundary.
type Orchestrator struct {
	opts Options
	tr   translator.Translator
	det  layout.Detector // nil: treat whole pages as translatable text

	mu    sync.Mutex
	state State
}

// New builds an orchestrator. det may be nil when no layout model is
// available; every page then translates as one text region.
func New(opts Options, tr translator.Translator, det layout.Detector) *Orchestrator {
	if opts.Threads <= 0 {
		opts.Threads = defaultThreads
	}
	if opts.DPI <= 0 {
		opts.DPI = defaultDPI
	}
	return &Orchestrator{opts: opts, tr: tr, det: det, state: StateIdle}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State, file string, done, total int) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	if o.opts.OnProgress != nil {
		o.opts.OnProgress(Progress{File: file, Done: done, Total: total, State: s})
	}
}

// Run translates each file in order. Cancellation marks the current and
// all remaining files cancelled; other failures are recorded per file
// and the batch continues.
func (o *Orchestrator) Run(ctx context.Context, files []string) []FileResult {
	results := make([]FileResult, 0, len(files))
	for i, f := range files {
		if ctx.Err() != nil {
			for _, rest := range files[i:] {
				results = append(results, FileResult{
					ID: uuid.NewString(), Input: rest,
					State: StateCancelled, Err: ctx.Err(),
				})
			}
			break
		}

		res := o.translateFile(ctx, f)
		results = append(results, res)
		if res.Err != nil && res.State == StateFailed {
			logger.Error("file failed", zap.String("file", f), zap.Error(res.Err))
		}
	}
	return results
}

func (o *Orchestrator) translateFile(ctx context.Context, path string) FileResult {
	start := time.Now()
	res := FileResult{ID: uuid.NewString(), Input: path, State: StateFailed}
	fail := func(err error) FileResult {
		res.Err = err
		res.Elapsed = time.Since(start)
		o.setState(StateFailed, path, 0, 0)
		return res
	}

	o.setState(StateOpening, path, 0, 0)

	info, err := pdf.Preflight(path)
	if err != nil {
		return fail(err)
	}
	if !info.HasText {
		return fail(fmt.Errorf("%s has no extractable text layer (scanned document?)", path))
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}
	doc, err := pdf.OpenDocument(src)
	if err != nil {
		return fail(err)
	}
	res.Pages = doc.PageCount()

	font, err := pdf.EnsureFallbackFont(doc, o.opts.FallbackFont)
	if err != nil {
		return fail(err)
	}

	pages, err := ParsePageRange(o.opts.Pages, doc.PageCount())
	if err != nil {
		return fail(err)
	}

	var raster PageImager
	if o.det != nil {
		if o.opts.Imager != nil {
			raster = o.opts.Imager
		} else if r, rerr := pdf.NewRasterizer(o.opts.DPI); rerr != nil {
			logger.Warn("rasterizer unavailable, layout detection disabled",
				zap.Error(rerr))
		} else {
			raster = r
			defer r.Close()
		}
	}

	ip := pdf.NewInterpreter(doc, font, o.tr, o.opts.Strict)

	o.setState(StateProcessing, path, 0, len(pages))
	patches, pagesDone, err := o.processPages(ctx, ip, doc, raster, path, pages)

	if ctx.Err() != nil {
		res.State = StateCancelled
		res.Err = ctx.Err()
		res.Elapsed = time.Since(start)
		o.setState(StateCancelled, path, pagesDone, len(pages))
		logger.Info("translation cancelled",
			zap.String("file", path), zap.Int("pages_done", pagesDone))
		return res
	}
	if err != nil {
		return fail(err)
	}

	font.FinalizeWidths()
	o.setState(StateAssembling, path, pagesDone, len(pages))

	outs, err := pdf.Assemble(doc, src, patches, pdf.AssembleOptions{
		SkipFontOptimization: o.opts.SkipSubsetFonts,
	})
	if err != nil {
		return fail(err)
	}

	outDir := o.opts.OutputDir
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	res.MonoPath = filepath.Join(outDir, stem+"-mono.pdf")
	res.DualPath = filepath.Join(outDir, stem+"-dual.pdf")
	if err := os.WriteFile(res.MonoPath, outs.Mono, 0o644); err != nil {
		return fail(err)
	}
	if err := os.WriteFile(res.DualPath, outs.Dual, 0o644); err != nil {
		return fail(err)
	}
	res.MonoSize = int64(len(outs.Mono))
	res.DualSize = int64(len(outs.Dual))
	res.State = StateDone
	res.Elapsed = time.Since(start)
	o.setState(StateDone, path, pagesDone, len(pages))

	logger.Info("translated",
		zap.String("file", path),
		zap.Int("pages", len(pages)),
		zap.String("mono", res.MonoPath),
		zap.String("dual", res.DualPath),
		zap.Duration("elapsed", res.Elapsed))
	return res
}

type pageOutcome struct {
	page  int
	patch *pdf.Patch
	err   error
}

// processPages fans the selected pages out to a bounded worker pool and
// gathers the patches. The first page error cancels the remaining
// workers; already-running pages finish their current page.
func (o *Orchestrator) processPages(ctx context.Context, ip *pdf.Interpreter, doc *pdf.Document, raster PageImager, path string, pages []int) ([]*pdf.Patch, int, error) {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, o.opts.Threads)
	outcomes := make(chan pageOutcome, len(pages))
	var wg sync.WaitGroup

	for _, p := range pages {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-workCtx.Done():
				outcomes <- pageOutcome{page: p, err: workCtx.Err()}
				return
			}
			if workCtx.Err() != nil {
				outcomes <- pageOutcome{page: p, err: workCtx.Err()}
				return
			}
			patch, err := o.translatePage(workCtx, ip, doc, raster, path, p)
			outcomes <- pageOutcome{page: p, patch: patch, err: err}
		}(p)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var patches []*pdf.Patch
	var firstErr error
	done := 0
	for out := range outcomes {
		if out.err != nil {
			if firstErr == nil && !errors.Is(out.err, context.Canceled) {
				firstErr = fmt.Errorf("page %d: %w", out.page, out.err)
				cancel()
			}
			continue
		}
		done++
		if out.patch != nil {
			patches = append(patches, out.patch)
		}
		if o.opts.OnProgress != nil {
			o.opts.OnProgress(Progress{
				File: path, Page: out.page, Done: done, Total: len(pages),
				State: StateProcessing,
			})
		}
	}
	return patches, done, firstErr
}

// translatePage builds the page's region mask and rewrites its content
// stream.
func (o *Orchestrator) translatePage(ctx context.Context, ip *pdf.Interpreter, doc *pdf.Document, raster PageImager, path string, pageNo int) (*pdf.Patch, error) {
	mask, scale, err := o.pageMask(ctx, doc, raster, path, pageNo)
	if err != nil {
		return nil, err
	}
	return ip.InterpretPage(ctx, pageNo, mask, scale)
}

// pageMask rasterizes and runs layout detection for one page. Without a
// detector the page dimensions in points become the grid and everything
// is translatable text. Render and detection failures degrade the same
// way instead of failing the page.
func (o *Orchestrator) pageMask(ctx context.Context, doc *pdf.Document, raster PageImager, path string, pageNo int) (*layout.Mask, float64, error) {
	pageW, pageH, err := doc.PageSize(pageNo)
	if err != nil {
		return nil, 0, err
	}
	wholePage := func() (*layout.Mask, float64, error) {
		return layout.BuildMask(int(pageH+0.5), int(pageW+0.5), nil), 1.0, nil
	}

	if o.det == nil || raster == nil {
		return wholePage()
	}

	img, err := raster.RenderPage(ctx, path, pageNo)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, err
		}
		logger.Warn("page render failed, translating whole page",
			zap.String("file", path), zap.Int("page", pageNo), zap.Error(err))
		return wholePage()
	}
	boxes, err := o.det.Detect(ctx, img, 0)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, err
		}
		logger.Warn("layout detection failed, translating whole page",
			zap.String("file", path), zap.Int("page", pageNo), zap.Error(err))
		return wholePage()
	}
	if o.opts.DebugLayout {
		o.dumpOverlay(path, pageNo, img, boxes)
	}

	b := img.Bounds()
	mask := layout.BuildMask(b.Dy(), b.Dx(), boxes)
	return mask, float64(b.Dy()) / pageH, nil
}

// dumpOverlay writes a detection visualization next to the outputs.
// Failures only log; the overlay is diagnostics, not output.
func (o *Orchestrator) dumpOverlay(path string, pageNo int, img image.Image, boxes []layout.Box) {
	outDir := o.opts.OutputDir
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	overlayPath := filepath.Join(outDir, fmt.Sprintf("%s-layout-p%d.png", stem, pageNo))

	f, err := os.Create(overlayPath)
	if err != nil {
		logger.Warn("overlay dump failed", zap.String("path", overlayPath), zap.Error(err))
		return
	}
	defer f.Close()
	if err := png.Encode(f, layout.DrawBoxes(img, boxes)); err != nil {
		logger.Warn("overlay encode failed", zap.String("path", overlayPath), zap.Error(err))
	}
}
