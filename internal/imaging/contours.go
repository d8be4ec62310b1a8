package imaging

import "image"

// Contour is one 8-connected blob of non-zero pixels.
type Contour struct {
	Bounds image.Rectangle
	Area   int
}

// AspectRatio is width over height of the bounding rectangle.
func (c Contour) AspectRatio() float64 {
	if c.Bounds.Dy() == 0 {
		return 0
	}
	return float64(c.Bounds.Dx()) / float64(c.Bounds.Dy())
}

// FindContours labels the 8-connected components of src in raster order.
func FindContours(src *image.Gray) []Contour {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	seen := make([]bool, w*h)
	var contours []Contour
	var queue []int

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			start := y*w + x
			if seen[start] || src.Pix[y*src.Stride+x] == 0 {
				continue
			}
			seen[start] = true
			queue = append(queue[:0], start)
			minX, minY, maxX, maxY := x, y, x, y
			area := 0

			for len(queue) > 0 {
				i := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				cx, cy := i%w, i/w
				area++
				minX, maxX = min(minX, cx), max(maxX, cx)
				minY, maxY = min(minY, cy), max(maxY, cy)

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := cx+dx, cy+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h {
							continue
						}
						j := ny*w + nx
						if seen[j] || src.Pix[ny*src.Stride+nx] == 0 {
							continue
						}
						seen[j] = true
						queue = append(queue, j)
					}
				}
			}

			contours = append(contours, Contour{
				Bounds: image.Rect(minX, minY, maxX+1, maxY+1),
				Area:   area,
			})
		}
	}
	return contours
}
