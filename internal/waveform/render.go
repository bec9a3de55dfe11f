package waveform

import (
	"image"
	"image/color"
	"image/png"
	"os"
)

var (
	backgroundColor = color.RGBA{238, 238, 238, 255} // #EEEEEE
	lineColor       = color.RGBA{0, 0, 0, 255}
)

const renderHeight = 280

// render draws data as vertical bars from the image's horizontal center
// line and writes it as a PNG to path. Half-length per column is
// (value + (1 - max(data))) * height/2, which scales the largest peak to
// full height while preserving relative amplitudes.
func render(data []float64, path string) error {
	width := len(data)
	img := image.NewRGBA(image.Rect(0, 0, width, renderHeight))

	for y := 0; y < renderHeight; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, backgroundColor)
		}
	}

	max := 0.0
	for _, v := range data {
		if v > max {
			max = v
		}
	}
	scale := 1 - max
	center := renderHeight / 2

	for x, value := range data {
		half := (value + scale) * float64(renderHeight) / 2
		top := center - int(half)
		bottom := center + int(half)
		for y := top; y <= bottom; y++ {
			if y >= 0 && y < renderHeight {
				img.Set(x, y, lineColor)
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return png.Encode(f, img)
}
