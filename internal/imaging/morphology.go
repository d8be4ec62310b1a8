package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
)

// MorphClose is a dilation followed by an erosion over a disc of the given
// radius; it fills gaps narrower than the disc.
func MorphClose(src *image.Gray, radius float64) *image.Gray {
	return firstChannel(effect.Erode(effect.Dilate(src, radius), radius))
}
