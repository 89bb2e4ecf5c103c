package analysis

import (
	domain "github.com/r3e-labs/rlstudio/internal/app/domain/analysis"
	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
)

// detectAttractors runs a small from-scratch DBSCAN over the visited
// positions (radius AttractorRadius, min-samples AttractorMinSamples),
// reporting each dense cluster's centroid, visit count, and dwell steps.
func detectAttractors(positions []envspec.Position) []domain.Attractor {
	n := len(positions)
	labels := make([]int, n) // 0 = unvisited, -1 = noise, >0 = cluster id
	clusterID := 0

	neighbors := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if euclid(positions[i], positions[j]) <= AttractorRadius {
				out = append(out, j)
			}
		}
		return out
	}

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}
		neigh := neighbors(i)
		if len(neigh) < AttractorMinSamples {
			labels[i] = -1
			continue
		}
		clusterID++
		labels[i] = clusterID
		queue := append([]int(nil), neigh...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if labels[j] == -1 {
				labels[j] = clusterID
			}
			if labels[j] != 0 {
				continue
			}
			labels[j] = clusterID
			jn := neighbors(j)
			if len(jn) >= AttractorMinSamples {
				queue = append(queue, jn...)
			}
		}
	}

	clusters := make(map[int][]envspec.Position)
	for i, label := range labels {
		if label > 0 {
			clusters[label] = append(clusters[label], positions[i])
		}
	}

	out := make([]domain.Attractor, 0, len(clusters))
	for _, pts := range clusters {
		var sumX, sumY float64
		for _, p := range pts {
			sumX += p.X
			sumY += p.Y
		}
		center := [2]float64{sumX / float64(len(pts)), sumY / float64(len(pts))}
		out = append(out, domain.Attractor{
			Center:     center,
			VisitCount: len(pts),
			DwellSteps: len(pts),
		})
	}
	return out
}
