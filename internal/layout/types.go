// Package layout provides page layout detection and the per-pixel region
// mask that drives content-stream translation decisions.
package layout

import "fmt"

// Category is a detector class from the DocStructBench label set.
type Category string

const (
	CategoryTitle          Category = "title"
	CategoryPlainText      Category = "plain_text"
	CategoryAbandon        Category = "abandon"
	CategoryFigure         Category = "figure"
	CategoryFigureCaption  Category = "figure_caption"
	CategoryTable          Category = "table"
	CategoryTableCaption   Category = "table_caption"
	CategoryTableFootnote  Category = "table_footnote"
	CategoryIsolateFormula Category = "isolate_formula"
	CategoryFormulaCaption Category = "formula_caption"
)

// categoryNames maps detector class indices to categories, in model output
// order.
var categoryNames = []Category{
	CategoryTitle,
	CategoryPlainText,
	CategoryAbandon,
	CategoryFigure,
	CategoryFigureCaption,
	CategoryTable,
	CategoryTableCaption,
	CategoryTableFootnote,
	CategoryIsolateFormula,
	CategoryFormulaCaption,
}

// CategoryForClass returns the category for a model class index.
func CategoryForClass(cls int) (Category, error) {
	if cls < 0 || cls >= len(categoryNames) {
		return "", fmt.Errorf("unknown layout class %d", cls)
	}
	return categoryNames[cls], nil
}

// Protected reports whether content under this category must be copied
// verbatim: figures, tables, isolated formulas, formula captions, and
// regions the detector marked abandoned.
func (c Category) Protected() bool {
	switch c {
	case CategoryFigure, CategoryTable, CategoryIsolateFormula,
		CategoryFormulaCaption, CategoryAbandon:
		return true
	}
	return false
}

// Box is one detected region on a page. Coordinates are page-pixel units at
// the raster resolution the detector ran on, with a bottom-up y-axis
// (y0 is the lower edge).
type Box struct {
	Category   Category
	X0, Y0     float64
	X1, Y1     float64
	Confidence float64
}
