package layout

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	"pdf-translator/internal/logger"
)

const (
	// confThreshold drops detections below this score.
	confThreshold = 0.25
	// iouThreshold is the NMS overlap limit.
	iouThreshold = 0.45
)

// Detector produces layout boxes for one rasterized page. Implementations
// are consulted once per page and must be safe for concurrent use.
type Detector interface {
	Detect(ctx context.Context, img image.Image, tileSize int) ([]Box, error)
}

// OnnxDetector runs a DocLayout-YOLO model through onnxruntime.
type OnnxDetector struct {
	session *ort.DynamicAdvancedSession
}

// NewOnnxDetector loads the model at modelPath. The onnxruntime shared
// library location may be supplied via ONNXRUNTIME_SHARED_LIBRARY_PATH.
func NewOnnxDetector(modelPath string) (*OnnxDetector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("layout model not found: %w", err)
	}
	if !ort.IsInitialized() {
		if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initializing onnxruntime: %w", err)
		}
	}
	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"images"}, []string{"output0"}, nil)
	if err != nil {
		return nil, fmt.Errorf("loading layout model: %w", err)
	}
	logger.Info("layout model loaded", zap.String("path", modelPath))
	return &OnnxDetector{session: session}, nil
}

// Close releases the onnxruntime session.
func (d *OnnxDetector) Close() error {
	return d.session.Destroy()
}

// Detect rasterizes the model input at tileSize, runs inference and maps
// detections back to page-pixel coordinates with a bottom-up y-axis.
func (d *OnnxDetector) Detect(ctx context.Context, img image.Image, tileSize int) ([]Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tileSize <= 0 {
		tileSize = 1024
	}
	tileSize = (tileSize / 32) * 32

	data, scale, dx, dy := letterbox(img, tileSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(tileSize), int64(tileSize)), data)
	if err != nil {
		return nil, fmt.Errorf("building input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := d.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("layout inference: %w", err)
	}
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected model output type %T", outputs[0])
	}
	defer out.Destroy()

	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	boxes := decodeDetections(out.GetData(), out.GetShape(), scale, dx, dy, w, h)
	logger.Debug("layout detection complete",
		zap.Int("boxes", len(boxes)), zap.Int("tile", tileSize))
	return boxes, nil
}

// letterbox scales img into a tileSize square with preserved aspect ratio,
// gray padding, and returns the CHW float tensor plus the inverse-mapping
// parameters.
func letterbox(img image.Image, tile int) (data []float32, scale float64, dx, dy int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale = float64(tile) / float64(w)
	if s := float64(tile) / float64(h); s < scale {
		scale = s
	}
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	dx = (tile - nw) / 2
	dy = (tile - nh) / 2

	canvas := image.NewRGBA(image.Rect(0, 0, tile, tile))
	gray := color.RGBA{R: 114, G: 114, B: 114, A: 255}
	for i := 0; i < len(canvas.Pix); i += 4 {
		canvas.Pix[i], canvas.Pix[i+1], canvas.Pix[i+2], canvas.Pix[i+3] = gray.R, gray.G, gray.B, gray.A
	}
	xdraw.ApproxBiLinear.Scale(canvas, image.Rect(dx, dy, dx+nw, dy+nh), img, b, xdraw.Over, nil)

	data = make([]float32, 3*tile*tile)
	plane := tile * tile
	for y := 0; y < tile; y++ {
		for x := 0; x < tile; x++ {
			i := canvas.PixOffset(x, y)
			j := y*tile + x
			data[j] = float32(canvas.Pix[i]) / 255.0
			data[plane+j] = float32(canvas.Pix[i+1]) / 255.0
			data[2*plane+j] = float32(canvas.Pix[i+2]) / 255.0
		}
	}
	return data, scale, dx, dy
}

type detection struct {
	box   Box
	cls   int
	score float64
}

// decodeDetections parses YOLO output laid out as [1, 4+nc, anchors]
// (cx, cy, w, h, class scores), undoes the letterbox transform and applies
// per-class NMS. Resulting boxes use bottom-up y coordinates.
func decodeDetections(data []float32, shape ort.Shape, scale float64, dx, dy, imgW, imgH int) []Box {
	if len(shape) != 3 {
		return nil
	}
	rows := int(shape[1])
	anchors := int(shape[2])
	nc := rows - 4
	if nc <= 0 || len(data) < rows*anchors {
		return nil
	}

	var dets []detection
	at := func(r, a int) float64 { return float64(data[r*anchors+a]) }
	for a := 0; a < anchors; a++ {
		bestCls, bestScore := -1, 0.0
		for c := 0; c < nc; c++ {
			if s := at(4+c, a); s > bestScore {
				bestScore = s
				bestCls = c
			}
		}
		if bestScore < confThreshold {
			continue
		}
		cat, err := CategoryForClass(bestCls)
		if err != nil {
			continue
		}
		cx, cy := at(0, a), at(1, a)
		bw, bh := at(2, a), at(3, a)
		x0 := (cx - bw/2 - float64(dx)) / scale
		y0 := (cy - bh/2 - float64(dy)) / scale
		x1 := (cx + bw/2 - float64(dx)) / scale
		y1 := (cy + bh/2 - float64(dy)) / scale
		x0 = clampF(x0, 0, float64(imgW))
		x1 = clampF(x1, 0, float64(imgW))
		y0 = clampF(y0, 0, float64(imgH))
		y1 = clampF(y1, 0, float64(imgH))
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		dets = append(dets, detection{
			// flip top-down image rows to bottom-up page pixels
			box: Box{
				Category:   cat,
				X0:         x0,
				Y0:         float64(imgH) - y1,
				X1:         x1,
				Y1:         float64(imgH) - y0,
				Confidence: bestScore,
			},
			cls:   bestCls,
			score: bestScore,
		})
	}
	return nms(dets)
}

// nms keeps the highest-scoring detection among same-class overlaps.
func nms(dets []detection) []Box {
	sort.Slice(dets, func(i, j int) bool { return dets[i].score > dets[j].score })
	var kept []detection
	for _, d := range dets {
		drop := false
		for _, k := range kept {
			if d.cls == k.cls && iou(d.box, k.box) > iouThreshold {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, d)
		}
	}
	boxes := make([]Box, len(kept))
	for i, d := range kept {
		boxes[i] = d.box
	}
	return boxes
}

func iou(a, b Box) float64 {
	ix0 := maxF(a.X0, b.X0)
	iy0 := maxF(a.Y0, b.Y0)
	ix1 := minF(a.X1, b.X1)
	iy1 := minF(a.Y1, b.Y1)
	if ix1 <= ix0 || iy1 <= iy0 {
		return 0
	}
	inter := (ix1 - ix0) * (iy1 - iy0)
	areaA := (a.X1 - a.X0) * (a.Y1 - a.Y0)
	areaB := (b.X1 - b.X0) * (b.Y1 - b.Y0)
	return inter / (areaA + areaB - inter)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
