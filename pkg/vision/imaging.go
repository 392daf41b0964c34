package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	// Register decoders for the formats boards are photographed in.
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// BoxColor is the outline and label color of annotations.
var BoxColor = color.RGBA{R: 0, G: 255, B: 255, A: 255}

// BoxStroke is the outline width in pixels.
const BoxStroke = 3

// LoadImage reads and decodes the image at path.
func LoadImage(path string) (image.Image, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, data, nil
}

// toRGBA copies img into a fresh RGBA anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// PaddedRect expands box by CropPadding per side and clamps it to bounds.
func PaddedRect(box Box, bounds image.Rectangle) image.Rectangle {
	padX := float64(box.W) * CropPadding
	padY := float64(box.H) * CropPadding
	r := image.Rect(
		int(float64(box.X)-padX),
		int(float64(box.Y)-padY),
		int(float64(box.X+box.W)+padX),
		int(float64(box.Y+box.H)+padY),
	)
	return r.Intersect(bounds)
}

// CropDefect returns the padded, clamped region around box scaled to CropSize×CropSize.
func CropDefect(img image.Image, box Box) (*image.RGBA, error) {
	b := img.Bounds()
	region := PaddedRect(box, image.Rect(0, 0, b.Dx(), b.Dy()))
	if region.Empty() {
		return nil, fmt.Errorf("box %+v lies outside the %dx%d image", box, b.Dx(), b.Dy())
	}
	dst := image.NewRGBA(image.Rect(0, 0, CropSize, CropSize))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, region.Add(b.Min), xdraw.Src, nil)
	return dst, nil
}

// Annotate draws every detection onto a copy of img.
func Annotate(img image.Image, dets []Detection) *image.RGBA {
	out := toRGBA(img)
	for _, d := range dets {
		drawRect(out, d.Box.Rect(), BoxStroke, BoxColor)
		drawLabel(out, d.Box.X+2, d.Box.Y-4, d.Label(), BoxColor)
	}
	return out
}

func drawRect(dst *image.RGBA, r image.Rectangle, stroke int, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+stroke),
		image.Rect(r.Min.X, r.Max.Y-stroke, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+stroke, r.Max.Y),
		image.Rect(r.Max.X-stroke, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

func drawLabel(dst *image.RGBA, x, y int, text string, c color.Color) {
	face := basicfont.Face7x13
	// Labels above the top edge move inside the box.
	if y-face.Ascent < 0 {
		y = face.Ascent + 2
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
