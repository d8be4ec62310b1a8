package segment

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeBlobs returns 20 jittered points around each of three far-apart colours.
func threeBlobs() []Point {
	centers := []Point{{20, 20, 20}, {220, 30, 30}, {40, 200, 220}}
	var points []Point
	for _, c := range centers {
		for i := 0; i < 20; i++ {
			j := float64(i%5) - 2
			points = append(points, Point{c[0] + j, c[1] - j, c[2] + float64(i%3) - 1})
		}
	}
	return points
}

func TestKMeans_SeparatesBlobs(t *testing.T) {
	points := threeBlobs()
	m, err := KMeans(points, 3, DefaultSeed)
	require.NoError(t, err)
	require.Len(t, m.Centers, 3)

	for blob := 0; blob < 3; blob++ {
		first := m.Labels[blob*20]
		for i := blob * 20; i < (blob+1)*20; i++ {
			assert.Equal(t, first, m.Labels[i], "point %d", i)
		}
	}
	assert.NotEqual(t, m.Labels[0], m.Labels[20])
	assert.NotEqual(t, m.Labels[20], m.Labels[40])
	assert.NotEqual(t, m.Labels[0], m.Labels[40])

	red := m.Centers[m.Labels[20]]
	assert.InDelta(t, 220, red[0], 1)
	assert.Less(t, m.Inertia, 500.0)
	assert.Equal(t, m.Labels[25], m.Predict(Point{230, 20, 20}))
}

func TestKMeans_Deterministic(t *testing.T) {
	points := threeBlobs()
	a, err := KMeans(points, 4, 7)
	require.NoError(t, err)
	b, err := KMeans(points, 4, 7)
	require.NoError(t, err)
	assert.Equal(t, a.Centers, b.Centers)
	assert.Equal(t, a.Labels, b.Labels)
}

func TestKMeans_Edges(t *testing.T) {
	_, err := KMeans([]Point{{1, 1, 1}}, 2, DefaultSeed)
	assert.ErrorIs(t, err, ErrTooFewPoints)
	_, err = KMeans(threeBlobs(), 0, DefaultSeed)
	assert.ErrorIs(t, err, ErrTooFewPoints)

	same := []Point{{5, 5, 5}, {5, 5, 5}, {5, 5, 5}}
	m, err := KMeans(same, 2, DefaultSeed)
	require.NoError(t, err)
	assert.Zero(t, m.Inertia)
}

func TestSilhouette(t *testing.T) {
	points := []Point{{0, 0, 0}, {1, 0, 0}, {100, 0, 0}, {101, 0, 0}}
	good := Silhouette(points, []int{0, 0, 1, 1}, 2)
	assert.Greater(t, good, 0.95)

	bad := Silhouette(points, []int{0, 1, 0, 1}, 2)
	assert.Less(t, bad, 0.0)

	assert.Zero(t, Silhouette(points, []int{0, 0, 0, 0}, 2))
	assert.Zero(t, Silhouette(points, []int{0, 0, 0, 0}, 1))
}

func TestOptimalClusters(t *testing.T) {
	sel, err := OptimalClusters(threeBlobs(), 6, DefaultSeed)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3, 4, 5, 6}, sel.Ks)
	require.Len(t, sel.Inertia, 5)
	require.Len(t, sel.Silhouettes, 5)
	// the largest inertia drop is 2→3, which lands the elbow on k=2
	assert.Equal(t, 2, sel.ElbowK)
	assert.Equal(t, 3, sel.SilhouetteK)
	assert.Equal(t, 2, sel.K)
}

func TestOptimalClusters_Bounds(t *testing.T) {
	_, err := OptimalClusters(threeBlobs(), 1, DefaultSeed)
	assert.Error(t, err)

	sel, err := OptimalClusters([]Point{{0, 0, 0}, {255, 255, 255}}, 10, DefaultSeed)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, sel.Ks)
	assert.Equal(t, 2, sel.K)
}

func TestSamplePixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for i := 0; i < 8; i++ {
		img.Set(i%4, i/4, color.RGBA{R: uint8(i), A: 255})
	}
	all := SamplePixels(img, 0)
	require.Len(t, all, 8)

	half := SamplePixels(img, 4)
	require.Len(t, half, 4)
	assert.Equal(t, []float64{0, 2, 4, 6}, []float64{half[0][0], half[1][0], half[2][0], half[3][0]})
}

func TestSegment(t *testing.T) {
	red := color.RGBA{R: 200, G: 10, B: 10, A: 255}
	blue := color.RGBA{R: 10, G: 20, B: 210, A: 255}
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			if x < 12 {
				img.Set(x, y, red)
			} else {
				img.Set(x, y, blue)
			}
		}
	}

	res, err := Segment(img, Options{MaxClusters: 5, SampleSize: 100})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Selection.K)
	assert.Equal(t, image.Rect(0, 0, 20, 10), res.Segmented.Bounds())
	assert.Equal(t, red, res.Segmented.RGBAAt(0, 0))
	assert.Equal(t, blue, res.Segmented.RGBAAt(19, 9))
}
