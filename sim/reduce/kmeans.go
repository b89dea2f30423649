package reduce

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// kMeans clusters points into at most k centres: k-means++ seeding followed by
// Lloyd iterations until assignments stop changing or maxIter is reached.
// Returns the centres and the number of iterations run.
func kMeans(points [][]float64, k, maxIter int, rng *rand.Rand) ([][]float64, int) {
	k = min(k, len(points))
	if k <= 0 {
		return nil, 0
	}
	centers := seedPlusPlus(points, k, rng)

	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}
	iter := 0
	for iter < maxIter {
		iter++
		changed := false
		for i, p := range points {
			if c := nearest(centers, p); c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i, p := range points {
			c := assign[i]
			if sums[c] == nil {
				sums[c] = make([]float64, len(p))
			}
			floats.Add(sums[c], p)
			counts[c]++
		}
		for c := range centers {
			// an empty cluster keeps its previous centre
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			centers[c] = sums[c]
		}
	}
	return centers, iter
}

// seedPlusPlus picks the first centre uniformly, then each next one with
// probability proportional to its squared distance from the closest centre.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, clonePoint(points[rng.Intn(len(points))]))

	dist := make([]float64, len(points))
	for len(centers) < k {
		for i, p := range points {
			dist[i] = math.Inf(1)
			for _, c := range centers {
				d := floats.Distance(p, c, 2)
				dist[i] = math.Min(dist[i], d*d)
			}
		}
		total := floats.Sum(dist)
		var pick int
		if total <= 0 {
			pick = rng.Intn(len(points))
		} else {
			target := rng.Float64() * total
			for pick = 0; pick < len(points)-1; pick++ {
				target -= dist[pick]
				if target < 0 {
					break
				}
			}
		}
		centers = append(centers, clonePoint(points[pick]))
	}
	return centers
}

// nearest returns the index of the closest centre; ties go to the lowest index.
func nearest(centers [][]float64, p []float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		if d := floats.Distance(p, center, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func clonePoint(p []float64) []float64 {
	return append([]float64(nil), p...)
}
