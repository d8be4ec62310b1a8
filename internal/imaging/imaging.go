// Package imaging holds the classical image operations used by the scan
// pipeline. Single-channel work is done on *image.Gray, binary images use
// 0 and 255. Pixel filters come from bild; the steps it lacks live in
// edges.go, contours.go and threshold.go.
package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/histogram"
	xdraw "golang.org/x/image/draw"
)

// binomial5 is the 1-D Gaussian approximation [1 4 6 4 1]/16.
var binomial5 = [5]float64{1, 4, 6, 4, 1}

// Resize scales img to exactly w×h.
func Resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// ToRGBA copies img into an RGBA image anchored at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// Grayscale uses the Rec. 601 luma weights.
func Grayscale(img image.Image) *image.Gray {
	return firstChannel(effect.GrayscaleWithWeights(img, 0.299, 0.587, 0.114))
}

// GaussianBlur5 convolves with the 5×5 binomial kernel, edge pixels
// extended past the border.
func GaussianBlur5(src *image.Gray) *image.Gray {
	k := convolution.NewKernel(5, 5)
	for y, wy := range binomial5 {
		for x, wx := range binomial5 {
			k.Matrix[y*5+x] = wy * wx / 256
		}
	}
	return firstChannel(convolution.Convolve(src, k, &convolution.Options{Wrap: false}))
}

// EqualizeHist spreads the cumulative histogram over 0..255.
func EqualizeHist(src *image.Gray) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	total := w * h
	if total == 0 {
		return dst
	}

	hist := grayHistogram(src)
	first := 0
	for first < 255 && hist[first] == 0 {
		first++
	}
	if hist[first] == total {
		for i := range dst.Pix {
			dst.Pix[i] = uint8(first)
		}
		return dst
	}

	var lut [256]uint8
	scale := 255.0 / float64(total-hist[first])
	sum := 0
	for i := first + 1; i < 256; i++ {
		sum += hist[i]
		lut[i] = uint8(min(float64(sum)*scale+0.5, 255))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Pix[y*dst.Stride+x] = lut[src.Pix[y*src.Stride+x]]
		}
	}
	return dst
}

// Overlay lays top over base at the given opacity, so each channel ends up
// as (1-opacity)·base + opacity·top.
func Overlay(base, top image.Image, opacity float64) *image.RGBA {
	return blend.Opacity(base, top, opacity)
}

// grayHistogram counts pixel values; for a gray image the red channel
// carries the value.
func grayHistogram(src *image.Gray) []int {
	return histogram.NewRGBAHistogram(src).R.Bins
}

// firstChannel reads a gray image back out of an RGBA image whose
// channels are equal.
func firstChannel(img *image.RGBA) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			dst.Pix[y*dst.Stride+x] = row[x*4]
		}
	}
	return dst
}
