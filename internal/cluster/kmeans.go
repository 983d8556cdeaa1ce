package cluster

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const kmeansMaxIter = 300

// kmeans runs k-means++ seeded Lloyd iterations over the rows of x and returns a label per row.
func kmeans(x *mat.Dense, k int, rng *rand.Rand) []int {
	n, d := x.Dims()
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), x.RawRowView(rng.Intn(n))...))

	dist := make([]float64, n)
	for len(centers) < k {
		var total float64
		for i := 0; i < n; i++ {
			dist[i] = math.Inf(1)
			for _, c := range centers {
				dist[i] = math.Min(dist[i], sqDist(x.RawRowView(i), c))
			}
			total += dist[i]
		}
		next := 0
		if total > 0 {
			target := rng.Float64() * total
			for i, v := range dist {
				target -= v
				if target <= 0 {
					next = i
					break
				}
			}
		} else {
			next = rng.Intn(n)
		}
		centers = append(centers, append([]float64(nil), x.RawRowView(next)...))
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	counts := make([]float64, k)
	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i := 0; i < n; i++ {
			best, bestDist := 0, math.Inf(1)
			for j, c := range centers {
				if dd := sqDist(x.RawRowView(i), c); dd < bestDist {
					best, bestDist = j, dd
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		for j := range centers {
			counts[j] = 0
		}
		sums := make([][]float64, k)
		for j := range sums {
			sums[j] = make([]float64, d)
		}
		for i := 0; i < n; i++ {
			floats.Add(sums[labels[i]], x.RawRowView(i))
			counts[labels[i]]++
		}
		for j := range centers {
			// Empty clusters keep their previous center.
			if counts[j] > 0 {
				floats.ScaleTo(centers[j], 1/counts[j], sums[j])
			}
		}
	}
	return labels
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
