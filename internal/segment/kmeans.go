// Package segment clusters pixel colours with k-means and picks the number
// of clusters from the elbow of the inertia curve and the silhouette score.
package segment

import (
	"errors"
	"math"
	"math/rand"
)

const (
	DefaultSeed    = 42
	maxIterations  = 300
	minClusterSize = 2
)

var ErrTooFewPoints = errors.New("not enough points to cluster")

// Point is one RGB sample.
type Point [3]float64

// Model is a fitted k-means clustering.
type Model struct {
	Centers []Point
	Labels  []int
	// Inertia is the sum of squared distances to the nearest center.
	Inertia    float64
	Iterations int
}

// KMeans runs Lloyd's algorithm from a k-means++ seeding. The same seed
// always yields the same model.
func KMeans(points []Point, k int, seed int64) (*Model, error) {
	if k < 1 || len(points) < k {
		return nil, ErrTooFewPoints
	}
	rng := rand.New(rand.NewSource(seed))
	centers := seedPlusPlus(points, k, rng)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}

	iter := 0
	for iter < maxIterations {
		iter++
		changed := false
		for i, p := range points {
			best, _ := nearest(p, centers)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([]Point, k)
		counts := make([]int, k)
		for i, p := range points {
			c := labels[i]
			counts[c]++
			for d := 0; d < 3; d++ {
				sums[c][d] += p[d]
			}
		}
		for c := range centers {
			// an empty cluster keeps its previous center
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < 3; d++ {
				centers[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	inertia := 0.0
	for i, p := range points {
		inertia += sqDist(p, centers[labels[i]])
	}
	return &Model{Centers: centers, Labels: labels, Inertia: inertia, Iterations: iter}, nil
}

// Predict returns the index of the center nearest to p.
func (m *Model) Predict(p Point) int {
	best, _ := nearest(p, m.Centers)
	return best
}

func seedPlusPlus(points []Point, k int, rng *rand.Rand) []Point {
	centers := make([]Point, 0, k)
	centers = append(centers, points[rng.Intn(len(points))])

	dist := make([]float64, len(points))
	for i, p := range points {
		dist[i] = sqDist(p, centers[0])
	}
	for len(centers) < k {
		total := 0.0
		for _, d := range dist {
			total += d
		}
		var next int
		if total == 0 {
			next = rng.Intn(len(points))
		} else {
			target := rng.Float64() * total
			next = len(points) - 1
			for i, d := range dist {
				target -= d
				if target < 0 {
					next = i
					break
				}
			}
		}
		c := points[next]
		centers = append(centers, c)
		for i, p := range points {
			dist[i] = math.Min(dist[i], sqDist(p, c))
		}
	}
	return centers
}

func nearest(p Point, centers []Point) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centers {
		if d := sqDist(p, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

func sqDist(a, b Point) float64 {
	dr, dg, db := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dr*dr + dg*dg + db*db
}
