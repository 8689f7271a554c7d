package pdf

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"pdf-translator/internal/logger"
)

// Document is the mutable working copy of a PDF under translation. Pages
// are read concurrently by interpreter workers; all cross-reference
// mutation is serialized through mu.
type Document struct {
	ctx *model.Context
	mu  sync.Mutex
}

// OpenDocument parses src into a working document. Encrypted or
// structurally broken files surface as an error here, before any page
// work is scheduled.
func OpenDocument(src []byte) (*Document, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(src), conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate pdf: %w", err)
	}
	return &Document{ctx: ctx}, nil
}

// PageCount reports the number of pages.
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// PageSize returns the page's media box width and height in points.
// Page numbers are 1-based, matching pdfcpu.
func (d *Document) PageSize(pageNo int) (w, h float64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, _, attrs, err := d.ctx.PageDict(pageNo, false)
	if err != nil {
		return 0, 0, fmt.Errorf("page %d dict: %w", pageNo, err)
	}
	if attrs == nil || attrs.MediaBox == nil {
		return 0, 0, fmt.Errorf("page %d: missing media box", pageNo)
	}
	return attrs.MediaBox.Width(), attrs.MediaBox.Height(), nil
}

// PageContent returns the decoded content stream of a page. Multiple
// content streams are concatenated with a newline, as a viewer would
// process them.
func (d *Document) PageContent(pageNo int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pageDict, _, _, err := d.ctx.PageDict(pageNo, false)
	if err != nil {
		return nil, fmt.Errorf("page %d dict: %w", pageNo, err)
	}
	obj, found := pageDict.Find("Contents")
	if !found {
		return nil, nil
	}
	obj, err = d.ctx.Dereference(obj)
	if err != nil {
		return nil, fmt.Errorf("page %d contents: %w", pageNo, err)
	}

	var out bytes.Buffer
	appendStream := func(o types.Object) error {
		sd, _, err := d.ctx.DereferenceStreamDict(o)
		if err != nil {
			return err
		}
		if sd == nil {
			return nil
		}
		if err := sd.Decode(); err != nil {
			return err
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.Write(sd.Content)
		return nil
	}

	switch o := obj.(type) {
	case types.Array:
		for _, el := range o {
			if err := appendStream(el); err != nil {
				return nil, fmt.Errorf("page %d contents: %w", pageNo, err)
			}
		}
	default:
		if err := appendStream(obj); err != nil {
			return nil, fmt.Errorf("page %d contents: %w", pageNo, err)
		}
	}
	return out.Bytes(), nil
}

// AllocateStream reserves a new stream object in the cross-reference
// table and points the page's Contents at it. The stream starts empty;
// UpdateStream fills it in later. Returns the new object number.
func (d *Document) AllocateStream(pageNo int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sd, err := d.ctx.XRefTable.NewStreamDictForBuf(nil)
	if err != nil {
		return 0, fmt.Errorf("new stream: %w", err)
	}
	ir, err := d.ctx.XRefTable.IndRefForNewObject(*sd)
	if err != nil {
		return 0, fmt.Errorf("alloc stream object: %w", err)
	}

	pageDict, _, _, err := d.ctx.PageDict(pageNo, false)
	if err != nil {
		return 0, fmt.Errorf("page %d dict: %w", pageNo, err)
	}
	pageDict["Contents"] = *ir

	objNr := ir.ObjectNumber.Value()
	logger.Debug("allocated replacement content stream",
		zap.Int("page", pageNo), zap.Int("obj", objNr))
	return objNr, nil
}

// UpdateStream replaces the payload of a previously allocated stream
// object and re-encodes it.
func (d *Document) UpdateStream(objNr int, content []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, found := d.ctx.XRefTable.FindTableEntry(objNr, 0)
	if !found || entry == nil {
		return fmt.Errorf("stream object %d not found", objNr)
	}
	sd, err := d.ctx.XRefTable.NewStreamDictForBuf(content)
	if err != nil {
		return fmt.Errorf("stream object %d: %w", objNr, err)
	}
	if err := sd.Encode(); err != nil {
		return fmt.Errorf("encode stream %d: %w", objNr, err)
	}
	entry.Object = *sd
	return nil
}

// AddObject inserts an arbitrary object into the cross-reference table
// and returns its indirect reference. Used for font registration.
func (d *Document) AddObject(obj types.Object) (*types.IndirectRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctx.XRefTable.IndRefForNewObject(obj)
}

// AddStreamObject inserts a new stream object carrying buf.
func (d *Document) AddStreamObject(buf []byte, extra types.Dict) (*types.IndirectRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sd, err := d.ctx.XRefTable.NewStreamDictForBuf(buf)
	if err != nil {
		return nil, err
	}
	for k, v := range extra {
		sd.Dict[k] = v
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return d.ctx.XRefTable.IndRefForNewObject(*sd)
}

// pageFontDict returns the page's font resource dictionary, creating
// the Resources and Font entries when absent. Caller holds mu.
func (d *Document) pageFontDict(pageNo int) (types.Dict, error) {
	pageDict, _, _, err := d.ctx.PageDict(pageNo, false)
	if err != nil {
		return nil, fmt.Errorf("page %d dict: %w", pageNo, err)
	}

	resObj, found := pageDict.Find("Resources")
	var res types.Dict
	if found {
		o, err := d.ctx.Dereference(resObj)
		if err != nil {
			return nil, fmt.Errorf("page %d resources: %w", pageNo, err)
		}
		if dict, ok := o.(types.Dict); ok {
			res = dict
		}
	}
	if res == nil {
		res = types.Dict{}
		pageDict["Resources"] = res
	}

	fontObj, found := res.Find("Font")
	var fonts types.Dict
	if found {
		o, err := d.ctx.Dereference(fontObj)
		if err != nil {
			return nil, fmt.Errorf("page %d font resources: %w", pageNo, err)
		}
		if dict, ok := o.(types.Dict); ok {
			fonts = dict
		}
	}
	if fonts == nil {
		fonts = types.Dict{}
		res["Font"] = fonts
	}
	return fonts, nil
}

// RegisterPageFont adds a font reference to one page's resource
// dictionary under the given resource name.
func (d *Document) RegisterPageFont(pageNo int, name string, ref *types.IndirectRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	fonts, err := d.pageFontDict(pageNo)
	if err != nil {
		return err
	}
	fonts[name] = *ref
	return nil
}

// Bytes serializes the current state of the document.
func (d *Document) Bytes() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	if err := api.WriteContext(d.ctx, &buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
