package segment

import (
	"image"
	"image/color"
)

type Options struct {
	MaxClusters int
	// SampleSize caps the pixels used for fitting; every pixel is still
	// labelled with its nearest center.
	SampleSize int
	Seed       int64
}

func (o Options) withDefaults() Options {
	if o.MaxClusters <= 0 {
		o.MaxClusters = 10
	}
	if o.SampleSize <= 0 {
		o.SampleSize = 4000
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	return o
}

type Result struct {
	Segmented *image.RGBA
	Model     *Model
	Selection *Selection
}

// Segment replaces every pixel of img with the colour of its cluster.
func Segment(img image.Image, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	b := img.Bounds()
	sample := SamplePixels(img, opts.SampleSize)

	sel, err := OptimalClusters(sample, opts.MaxClusters, opts.Seed)
	if err != nil {
		return nil, err
	}
	model, err := KMeans(sample, sel.K, opts.Seed)
	if err != nil {
		return nil, err
	}

	palette := make([]color.RGBA, len(model.Centers))
	for i, c := range model.Centers {
		palette[i] = color.RGBA{R: toUint8(c[0]), G: toUint8(c[1]), B: toUint8(c[2]), A: 0xff}
	}

	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := palette[model.Predict(pixelAt(img, b.Min.X+x, b.Min.Y+y))]
			i := y*out.Stride + x*4
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = c.R, c.G, c.B, c.A
		}
	}
	return &Result{Segmented: out, Model: model, Selection: sel}, nil
}

// SamplePixels takes up to n pixels on an even stride in raster order.
func SamplePixels(img image.Image, n int) []Point {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return nil
	}
	if n <= 0 || n > total {
		n = total
	}
	points := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		idx := int(int64(i) * int64(total) / int64(n))
		points = append(points, pixelAt(img, b.Min.X+idx%b.Dx(), b.Min.Y+idx/b.Dx()))
	}
	return points
}

func pixelAt(img image.Image, x, y int) Point {
	r, g, b, _ := img.At(x, y).RGBA()
	return Point{float64(r >> 8), float64(g >> 8), float64(b >> 8)}
}

func toUint8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
