package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/segment"
)

// OtsuThreshold picks the threshold that maximises between-class variance
// and returns the binary image (value > t → 255) together with t.
func OtsuThreshold(src *image.Gray) (*image.Gray, uint8) {
	hist := grayHistogram(src)
	total := 0.0
	sumAll := 0.0
	for i, n := range hist {
		total += float64(n)
		sumAll += float64(i * n)
	}

	var (
		best      uint8
		bestSigma = -1.0
		weightB   float64
		sumB      float64
	)
	for t, n := range hist {
		weightB += float64(n)
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(t * n)
		meanB := sumB / weightB
		meanF := (sumAll - sumB) / weightF
		sigma := weightB * weightF * (meanB - meanF) * (meanB - meanF)
		if sigma > bestSigma {
			bestSigma = sigma
			best = uint8(t)
		}
	}
	return Threshold(src, best), best
}

// Threshold maps pixels above t to 255 and the rest to 0.
func Threshold(src *image.Gray, t uint8) *image.Gray {
	if t == 255 {
		return image.NewGray(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	}
	return segment.Threshold(src, t+1)
}
