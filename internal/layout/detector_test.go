package layout

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ort "github.com/yalue/onnxruntime_go"
)

func TestLetterboxSquareInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 512, 512))
	data, scale, dx, dy := letterbox(img, 1024)

	assert.Len(t, data, 3*1024*1024)
	assert.InDelta(t, 2.0, scale, 0.001)
	assert.Equal(t, 0, dx)
	assert.Equal(t, 0, dy)
}

func TestLetterboxPortraitInputCentersHorizontally(t *testing.T) {
	// A 1:2 portrait page scales to fit the tile height.
	img := image.NewRGBA(image.Rect(0, 0, 256, 512))
	data, scale, dx, dy := letterbox(img, 1024)

	assert.InDelta(t, 2.0, scale, 0.001)
	assert.Equal(t, (1024-512)/2, dx)
	assert.Equal(t, 0, dy)

	// Padding columns carry the gray fill, normalized.
	assert.InDelta(t, 114.0/255.0, float64(data[0]), 0.001)
}

// synthOutput builds a [1, 4+nc, anchors] tensor with the given anchors,
// each anchor as (cx, cy, w, h, class scores...).
func synthOutput(t *testing.T, nc int, anchors [][]float32) ([]float32, ort.Shape) {
	t.Helper()
	rows := 4 + nc
	data := make([]float32, rows*len(anchors))
	for a, vals := range anchors {
		require.Len(t, vals, rows)
		for r, v := range vals {
			data[r*len(anchors)+a] = v
		}
	}
	return data, ort.NewShape(1, int64(rows), int64(len(anchors)))
}

func TestDecodeDetectionsMapsAndFlips(t *testing.T) {
	// One confident title detection centered at tile (200, 300), 100x50,
	// no letterbox offset, scale 1, on a 1024x1024 page raster.
	anchor := make([]float32, 4+len(categoryNames))
	anchor[0], anchor[1], anchor[2], anchor[3] = 200, 300, 100, 50
	anchor[4] = 0.9 // class 0: title
	data, shape := synthOutput(t, len(categoryNames), [][]float32{anchor})

	boxes := decodeDetections(data, shape, 1.0, 0, 0, 1024, 1024)
	require.Len(t, boxes, 1)
	b := boxes[0]
	assert.Equal(t, CategoryTitle, b.Category)
	assert.InDelta(t, 150, b.X0, 0.5)
	assert.InDelta(t, 250, b.X1, 0.5)
	// Image rows flip to bottom-up page pixels.
	assert.InDelta(t, 1024-325, b.Y0, 0.5)
	assert.InDelta(t, 1024-275, b.Y1, 0.5)
	assert.InDelta(t, 0.9, b.Confidence, 0.001)
}

func TestDecodeDetectionsUndoesLetterbox(t *testing.T) {
	anchor := make([]float32, 4+len(categoryNames))
	// Detection at tile (612, 300) with dx=100, scale 2 maps back to
	// image x = (612-100)/2 = 256.
	anchor[0], anchor[1], anchor[2], anchor[3] = 612, 300, 200, 100
	anchor[7] = 0.8 // class 3: figure
	data, shape := synthOutput(t, len(categoryNames), [][]float32{anchor})

	boxes := decodeDetections(data, shape, 2.0, 100, 0, 512, 512)
	require.Len(t, boxes, 1)
	b := boxes[0]
	assert.Equal(t, CategoryFigure, b.Category)
	assert.InDelta(t, (612-100-100)/2.0, b.X0, 0.5)
	assert.InDelta(t, (612-100+100)/2.0, b.X1, 0.5)
}

func TestDecodeDetectionsDropsLowConfidence(t *testing.T) {
	anchor := make([]float32, 4+len(categoryNames))
	anchor[0], anchor[1], anchor[2], anchor[3] = 200, 200, 50, 50
	anchor[4] = 0.1 // below threshold
	data, shape := synthOutput(t, len(categoryNames), [][]float32{anchor})

	boxes := decodeDetections(data, shape, 1.0, 0, 0, 1024, 1024)
	assert.Empty(t, boxes)
}

func TestDecodeDetectionsMergesSameClassOverlaps(t *testing.T) {
	a := make([]float32, 4+len(categoryNames))
	a[0], a[1], a[2], a[3] = 200, 200, 100, 100
	a[5] = 0.9 // plain_text
	b := make([]float32, 4+len(categoryNames))
	b[0], b[1], b[2], b[3] = 205, 200, 100, 100
	b[5] = 0.6 // same class, heavy overlap
	data, shape := synthOutput(t, len(categoryNames), [][]float32{a, b})

	boxes := decodeDetections(data, shape, 1.0, 0, 0, 1024, 1024)
	require.Len(t, boxes, 1)
	assert.InDelta(t, 0.9, boxes[0].Confidence, 0.001)
}
