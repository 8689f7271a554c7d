package layout

// Region ids inside a Mask:
//
//	0  - protected, copy verbatim
//	1  - ordinary text not under any detected box
//	>1 - one id per translatable box, in detection order
const (
	RegionProtected = 0
	RegionText      = 1
)

// Mask is a page-sized grid of region ids. Rows run top-down (image
// convention); boxes are supplied bottom-up and flipped during stamping.
// A Mask is built once per page and read-only afterwards.
type Mask struct {
	w, h int
	grid []int32
}

// BuildMask rasterizes detector boxes into a region grid. Translatable
// boxes are stamped first with unique ids, protected boxes are stamped
// last with id 0 so they win regardless of detection order. With no boxes
// the whole page classifies as ordinary text.
func BuildMask(height, width int, boxes []Box) *Mask {
	m := &Mask{w: width, h: height, grid: make([]int32, width*height)}
	for i := range m.grid {
		m.grid[i] = RegionText
	}
	for i, b := range boxes {
		if !b.Category.Protected() {
			m.stamp(b, int32(i+2))
		}
	}
	for _, b := range boxes {
		if b.Category.Protected() {
			m.stamp(b, RegionProtected)
		}
	}
	return m
}

// stamp paints id over the box rectangle, expanded by one pixel and
// clipped to the grid. The vertical flip (h - y) converts the bottom-up
// box edges to top-down rows; it is applied to both edges so the interval
// stays well formed.
func (m *Mask) stamp(b Box, id int32) {
	x0 := clamp(int(b.X0)-1, 0, m.w-1)
	x1 := clamp(int(b.X1)+1, 0, m.w-1)
	r0 := clamp(m.h-int(b.Y1)-1, 0, m.h-1)
	r1 := clamp(m.h-int(b.Y0)+1, 0, m.h-1)
	for r := r0; r < r1; r++ {
		row := m.grid[r*m.w : (r+1)*m.w]
		for x := x0; x < x1; x++ {
			row[x] = id
		}
	}
}

// Sample returns the region id at a device-space point. The point uses
// page-pixel units with a bottom-up y-axis, matching Box coordinates.
// Out-of-grid points clamp to the nearest cell.
func (m *Mask) Sample(x, y float64) int {
	col := clamp(int(x), 0, m.w-1)
	row := clamp(m.h-int(y), 0, m.h-1)
	return int(m.grid[row*m.w+col])
}

// Width returns the grid width in pixels.
func (m *Mask) Width() int { return m.w }

// Height returns the grid height in pixels.
func (m *Mask) Height() int { return m.h }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
