package pdf

import (
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"pdf-translator/internal/logger"
)

// Rasterizer renders single pages to images for layout detection. It
// shells out to pdftoppm from poppler-utils.
type Rasterizer struct {
	dpi     int
	tempDir string
}

// NewRasterizer returns a rasterizer rendering at the given DPI. It
// fails fast when pdftoppm is not on PATH so a missing dependency is
// reported before any page work starts.
func NewRasterizer(dpi int) (*Rasterizer, error) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return nil, fmt.Errorf("pdftoppm not found, install poppler-utils: %w", err)
	}
	tempDir, err := os.MkdirTemp("", "pdftranslate_raster_*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &Rasterizer{dpi: dpi, tempDir: tempDir}, nil
}

// RenderPage rasterizes one page (1-based) of the PDF at pdfPath.
func (r *Rasterizer) RenderPage(ctx context.Context, pdfPath string, pageNo int) (image.Image, error) {
	prefix := filepath.Join(r.tempDir, fmt.Sprintf("page_%d", pageNo))
	args := []string{
		"-f", strconv.Itoa(pageNo),
		"-l", strconv.Itoa(pageNo),
		"-png",
		"-r", strconv.Itoa(r.dpi),
		"-singlefile",
		pdfPath,
		prefix,
	}

	out, err := exec.CommandContext(ctx, "pdftoppm", args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %w, output: %s", pageNo, err, out)
	}

	imgPath := prefix + ".png"
	f, err := os.Open(imgPath)
	if err != nil {
		return nil, fmt.Errorf("open rendered page: %w", err)
	}
	defer f.Close()
	defer os.Remove(imgPath)

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode rendered page %d: %w", pageNo, err)
	}
	logger.Debug("rasterized page",
		zap.Int("page", pageNo),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))
	return img, nil
}

// DPI reports the configured render resolution.
func (r *Rasterizer) DPI() int {
	return r.dpi
}

// Close removes the rasterizer's temp directory.
func (r *Rasterizer) Close() {
	if r.tempDir != "" {
		os.RemoveAll(r.tempDir)
		r.tempDir = ""
	}
}
