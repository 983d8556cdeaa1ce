package plots

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ImageDecoder turns the flattened pixels recorded for a task into an image.
type ImageDecoder func(pixels []float64) (image.Image, error)

// Decoders holds the task image decoders by domain. Domains without an entry use
// GreyscaleImage.
var Decoders = map[string]ImageDecoder{
	"logo":     maskDecoder(128),
	"rational": maskDecoder(64),
	"tower":    TowerImage,
}

// DecodeTaskImage decodes pixels with the decoder registered for domain.
func DecodeTaskImage(domain string, pixels []float64) (image.Image, error) {
	if dec, ok := Decoders[domain]; ok {
		return dec(pixels)
	}
	return GreyscaleImage(pixels)
}

// maskDecoder draws a side x side mask, nonzero pixels black on a transparent background.
func maskDecoder(side int) ImageDecoder {
	return func(pixels []float64) (image.Image, error) {
		if len(pixels) != side*side {
			return nil, errors.Errorf("expected %d mask pixels, got %d", side*side, len(pixels))
		}
		img := image.NewNRGBA(image.Rect(0, 0, side, side))
		for i, v := range pixels {
			x, y := i%side, i/side
			if v != 0 {
				img.SetNRGBA(x, y, color.NRGBA{A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255})
			}
		}
		return img, nil
	}
}

const towerSide = 256

// TowerImage decodes a 256x256 RGB image, making black pixels transparent. Channel values in
// [0, 1] are scaled to [0, 255].
func TowerImage(pixels []float64) (image.Image, error) {
	if len(pixels) != towerSide*towerSide*3 {
		return nil, errors.Errorf("expected %d tower pixels, got %d", towerSide*towerSide*3, len(pixels))
	}
	scale := 1.0
	if floats.Max(pixels) <= 1 {
		scale = 255
	}
	img := image.NewNRGBA(image.Rect(0, 0, towerSide, towerSide))
	for i := 0; i < towerSide*towerSide; i++ {
		r, g, b := pixels[3*i], pixels[3*i+1], pixels[3*i+2]
		c := color.NRGBA{R: channel(r * scale), G: channel(g * scale), B: channel(b * scale), A: 255}
		if r == 0 {
			c.A = 0
		}
		img.SetNRGBA(i%towerSide, i/towerSide, c)
	}
	return img, nil
}

// GreyscaleImage decodes a square image, scaling values between their minimum and maximum.
func GreyscaleImage(pixels []float64) (image.Image, error) {
	side := int(math.Sqrt(float64(len(pixels))))
	if side == 0 || side*side != len(pixels) {
		return nil, errors.Errorf("cannot decode %d pixels as a square image", len(pixels))
	}
	lo, hi := floats.Min(pixels), floats.Max(pixels)
	img := image.NewGray(image.Rect(0, 0, side, side))
	for i, v := range pixels {
		var y float64
		if hi > lo {
			y = 255 * (v - lo) / (hi - lo)
		}
		img.SetGray(i%side, i/side, color.Gray{Y: channel(y)})
	}
	return img, nil
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}
