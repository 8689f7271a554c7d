package layout

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
)

// DrawBoxes renders detected boxes over the page raster for debugging.
// Protected regions get red outlines, translatable ones green. The input
// image is not modified.
func DrawBoxes(img image.Image, boxes []Box) image.Image {
	h := img.Bounds().Dy()
	dc := gg.NewContextForImage(img)
	dc.SetLineWidth(2)
	for _, b := range boxes {
		if b.Category.Protected() {
			dc.SetRGB(0.85, 0.10, 0.10)
		} else {
			dc.SetRGB(0.10, 0.65, 0.20)
		}
		// boxes are bottom-up, the canvas is top-down
		top := float64(h) - b.Y1
		dc.DrawRectangle(b.X0, top, b.X1-b.X0, b.Y1-b.Y0)
		dc.Stroke()
		dc.DrawString(fmt.Sprintf("%s %.2f", b.Category, b.Confidence), b.X0+2, top+12)
	}
	return dc.Image()
}
