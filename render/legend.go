package render

import (
	"image"
	"image/draw"

	"github.com/llgcode/draw2d"
	"github.com/llgcode/draw2d/draw2dimg"
)

// Legend layout. The strip is a horizontal gradient with short tick strokes
// along the bottom edge; value labels are the client's job since it knows
// the active unit.
const (
	legendWidth  = 512
	legendHeight = 40
	legendStrip  = 28
	legendTicks  = 5
)

// Legend renders a horizontal colorbar for a ramp as an encoded PNG.
func Legend(name string) ([]byte, error) {
	ramp := RampByName(name)

	canvas := image.NewRGBA(image.Rect(0, 0, legendWidth, legendHeight))
	draw.Draw(canvas, canvas.Bounds(), image.Transparent, image.Point{}, draw.Src)

	for x := 0; x < legendWidth; x++ {
		c := ramp.At(float64(x) / float64(legendWidth-1))
		for y := 0; y < legendStrip; y++ {
			canvas.Set(x, y, c)
		}
	}

	gc := draw2dimg.NewGraphicContext(canvas)
	gc.SetStrokeColor(OceanColor)
	gc.SetLineWidth(1)
	gc.SetLineCap(draw2d.ButtCap)
	for i := 0; i < legendTicks; i++ {
		x := float64(i) * float64(legendWidth-1) / float64(legendTicks-1)
		if i == 0 {
			x = 0.5
		} else if i == legendTicks-1 {
			x = float64(legendWidth) - 0.5
		}
		gc.MoveTo(x, float64(legendStrip))
		gc.LineTo(x, float64(legendHeight))
		gc.Stroke()
	}

	return pngBytes(canvas)
}
