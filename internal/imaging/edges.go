package imaging

import (
	"image"
	"math"
)

// tan(22.5°) and tan(67.5°) split gradient directions into four bins.
var (
	tan22 = math.Tan(math.Pi / 8)
	tan67 = math.Tan(3 * math.Pi / 8)
)

// sobel returns the signed 3×3 Sobel derivatives of src, border mirrored.
// Canny needs the sign for the gradient direction, which bild's
// magnitude-only Sobel drops.
func sobel(src *image.Gray) (gx, gy []int) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	gx = make([]int, w*h)
	gy = make([]int, w*h)
	at := func(x, y int) int {
		return int(src.Pix[reflect101(y, h)*src.Stride+reflect101(x, w)])
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tl, t, tr := at(x-1, y-1), at(x, y-1), at(x+1, y-1)
			l, r := at(x-1, y), at(x+1, y)
			bl, b, br := at(x-1, y+1), at(x, y+1), at(x+1, y+1)
			gx[y*w+x] = (tr + 2*r + br) - (tl + 2*l + bl)
			gy[y*w+x] = (bl + 2*b + br) - (tl + 2*t + tr)
		}
	}
	return gx, gy
}

// Canny finds edges with L1 gradient magnitude, non-maximum suppression
// and hysteresis between low and high. The result is binary.
func Canny(src *image.Gray, low, high float64) *image.Gray {
	if low > high {
		low, high = high, low
	}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	gx, gy := sobel(src)
	mag := make([]float64, w*h)
	for i := range mag {
		mag[i] = math.Abs(float64(gx[i])) + math.Abs(float64(gy[i]))
	}
	magAt := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	const (
		none = iota
		weak
		strong
	)
	state := make([]uint8, w*h)
	var stack []int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}
			ax, ay := math.Abs(float64(gx[i])), math.Abs(float64(gy[i]))
			var before, after float64
			switch {
			case ay < ax*tan22:
				before, after = magAt(x-1, y), magAt(x+1, y)
			case ay > ax*tan67:
				before, after = magAt(x, y-1), magAt(x, y+1)
			default:
				s := 1
				if (gx[i] < 0) != (gy[i] < 0) {
					s = -1
				}
				before, after = magAt(x-s, y-1), magAt(x+s, y+1)
			}
			if !(m > before && m >= after) {
				continue
			}
			if m > high {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		dst.Pix[(i/w)*dst.Stride+i%w] = 255
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}
	return dst
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}
