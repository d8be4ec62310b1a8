package segment

import (
	"fmt"
	"math"
)

// Silhouette is the mean silhouette coefficient of a labelling. Points in
// singleton clusters score 0; fewer than two populated clusters give 0.
func Silhouette(points []Point, labels []int, k int) float64 {
	n := len(points)
	if n == 0 || k < 2 {
		return 0
	}
	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}
	populated := 0
	for _, s := range sizes {
		if s > 0 {
			populated++
		}
	}
	if populated < 2 {
		return 0
	}

	total := 0.0
	sums := make([]float64, k)
	for i, p := range points {
		for c := range sums {
			sums[c] = 0
		}
		for j, q := range points {
			if i == j {
				continue
			}
			sums[labels[j]] += math.Sqrt(sqDist(p, q))
		}

		own := labels[i]
		if sizes[own] <= 1 {
			continue
		}
		a := sums[own] / float64(sizes[own]-1)
		b := math.Inf(1)
		for c, s := range sums {
			if c == own || sizes[c] == 0 {
				continue
			}
			b = math.Min(b, s/float64(sizes[c]))
		}
		if denom := math.Max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(n)
}

// Selection records how the number of clusters was chosen.
type Selection struct {
	Ks          []int     `json:"ks" yaml:"ks"`
	Inertia     []float64 `json:"inertia" yaml:"inertia"`
	Silhouettes []float64 `json:"silhouettes" yaml:"silhouettes"`
	ElbowK      int       `json:"elbow_k" yaml:"elbow_k"`
	SilhouetteK int       `json:"silhouette_k" yaml:"silhouette_k"`
	K           int       `json:"k" yaml:"k"`
}

// OptimalClusters fits k = 2..maxK. The elbow is where the inertia drops
// the most, the silhouette pick is the best-scoring k, and the result is
// their truncated mean.
func OptimalClusters(points []Point, maxK int, seed int64) (*Selection, error) {
	if maxK < minClusterSize {
		return nil, fmt.Errorf("max clusters must be at least %d, got %d", minClusterSize, maxK)
	}
	if maxK > len(points) {
		maxK = len(points)
	}
	if maxK < minClusterSize {
		return nil, ErrTooFewPoints
	}

	sel := &Selection{}
	for k := minClusterSize; k <= maxK; k++ {
		m, err := KMeans(points, k, seed)
		if err != nil {
			return nil, err
		}
		sel.Ks = append(sel.Ks, k)
		sel.Inertia = append(sel.Inertia, m.Inertia)
		sel.Silhouettes = append(sel.Silhouettes, Silhouette(points, m.Labels, k))
	}

	sel.ElbowK = minClusterSize
	bestDrop := math.Inf(1)
	for i := 0; i+1 < len(sel.Inertia); i++ {
		if d := sel.Inertia[i+1] - sel.Inertia[i]; d < bestDrop {
			bestDrop = d
			sel.ElbowK = i + minClusterSize
		}
	}

	sel.SilhouetteK = minClusterSize
	bestScore := math.Inf(-1)
	for i, s := range sel.Silhouettes {
		if s > bestScore {
			bestScore = s
			sel.SilhouetteK = i + minClusterSize
		}
	}

	sel.K = (sel.ElbowK + sel.SilhouetteK) / 2
	return sel, nil
}
