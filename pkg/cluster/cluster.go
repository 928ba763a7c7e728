// Package cluster groups actors by behavioral similarity.
//
// Feature vectors are min-max normalized, partitioned with seeded k-means,
// and annotated with outlier flags and a 2D projection. The projection is a
// coarse axis selection (the two normalized features with the highest
// population variance become the plot axes), not a general dimensionality
// reduction; it is good enough to scatter actors for a presentation layer
// and nothing more.
package cluster

import (
	"math"
	"math/rand"
	"sort"

	"riskscope/pkg/extract"
)

// MinRecordsPerActor is how many records an actor needs before its feature
// vector is stable enough to cluster.
const MinRecordsPerActor = 5

// maxRounds caps k-means iterations.
const maxRounds = 50

// outlierSigma is the number of standard deviations above the mean centroid
// distance at which a point is flagged.
const outlierSigma = 2.0

// projectionScale rescales normalized [0,1] coordinates for plotting.
const projectionScale = 100.0

// Cluster labels, applied in fixed priority order by nameCluster.
const (
	LabelHighRisk   = "High Risk Users"
	LabelViolators  = "Policy Violators"
	LabelIrregular  = "Irregular Hours"
	LabelPowerUsers = "Power Users"
	LabelInfrequent = "Infrequent Users"
	LabelNormal     = "Normal Activity"
)

// NamingThresholds hold the denormalized centroid breakpoints used to label
// clusters. Risk values are on the source system's scale, whatever that is;
// nothing here assumes a particular range.
type NamingThresholds struct {
	HighAvgRisk      float64
	HighBreachCount  float64
	HighHourVariance float64
	HighIntegrations float64
	HighVelocity     float64
	LowVelocity      float64
}

// DefaultNamingThresholds returns breakpoints observed to work on the
// source data scale.
func DefaultNamingThresholds() NamingThresholds {
	return NamingThresholds{
		HighAvgRisk:      1000,
		HighBreachCount:  2,
		HighHourVariance: 25,
		HighIntegrations: 3,
		HighVelocity:     5,
		LowVelocity:      1.5,
	}
}

// Assignment places one actor in a cluster.
type Assignment struct {
	Actor    string  `json:"actor"`
	Cluster  int     `json:"cluster"`
	Label    string  `json:"label"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Outlier  bool    `json:"outlier"`
	Distance float64 `json:"distance"`
}

// Info summarizes one cluster for the presentation layer.
type Info struct {
	ID       int       `json:"id"`
	Label    string    `json:"label"`
	Size     int       `json:"size"`
	Centroid []float64 `json:"centroid"` // denormalized, FeatureNames order
}

// Result is the output of one clustering run.
type Result struct {
	Assignments []Assignment `json:"assignments"`
	Clusters    []Info       `json:"clusters"`

	// ProjectionAxes are the indexes of the two features used as plot axes.
	ProjectionAxes [2]int `json:"projection_axes"`

	// InsufficientData is set when fewer than k actors had enough records.
	// No assignments are produced in that case.
	InsufficientData bool `json:"insufficient_data"`
}

// Cluster partitions actors into k behavioral groups.
//
// The seed fully determines centroid initialization; an unseeded draw is
// deliberately not offered so results are reproducible under test. Actors
// with MinRecordsPerActor or fewer records are excluded; if fewer than k
// remain, the result reports InsufficientData instead of failing.
func Cluster(vectors map[string]extract.FeatureVector, k int, seed int64, thresholds NamingThresholds) Result {
	eligible := eligibleVectors(vectors)
	if k <= 0 || len(eligible) < k {
		return Result{InsufficientData: true}
	}

	points, ranges := normalize(eligible)
	centroids := initCentroids(points, k, seed)
	assignments := iterate(points, centroids)

	distances := make([]float64, len(points))
	for i, p := range points {
		distances[i] = euclidean(p, centroids[assignments[i]])
	}
	outliers := flagOutliers(distances)

	axisX, axisY := projectionAxes(points)

	result := Result{ProjectionAxes: [2]int{axisX, axisY}}
	for i, fv := range eligible {
		result.Assignments = append(result.Assignments, Assignment{
			Actor:    fv.Actor,
			Cluster:  assignments[i],
			X:        points[i][axisX] * projectionScale,
			Y:        points[i][axisY] * projectionScale,
			Outlier:  outliers[i],
			Distance: distances[i],
		})
	}

	for id := 0; id < k; id++ {
		centroid := denormalize(centroids[id], ranges)
		info := Info{
			ID:       id,
			Label:    nameCluster(centroid, thresholds),
			Centroid: centroid,
		}
		for _, a := range assignments {
			if a == id {
				info.Size++
			}
		}
		result.Clusters = append(result.Clusters, info)
	}

	for i := range result.Assignments {
		result.Assignments[i].Label = result.Clusters[result.Assignments[i].Cluster].Label
	}
	return result
}

// eligibleVectors filters and orders vectors by actor so the run is a pure
// function of input and seed.
func eligibleVectors(vectors map[string]extract.FeatureVector) []extract.FeatureVector {
	out := make([]extract.FeatureVector, 0, len(vectors))
	for _, fv := range vectors {
		if fv.RecordCount > MinRecordsPerActor {
			out = append(out, fv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Actor < out[j].Actor })
	return out
}

// featureRange records one feature's observed span for denormalization.
type featureRange struct {
	min, max float64
}

func normalize(vectors []extract.FeatureVector) ([][]float64, []featureRange) {
	ranges := make([]featureRange, extract.FeatureDim)
	for d := range ranges {
		ranges[d] = featureRange{min: math.Inf(1), max: math.Inf(-1)}
	}

	raw := make([][]float64, len(vectors))
	for i := range vectors {
		raw[i] = vectors[i].Values()
		for d, v := range raw[i] {
			if v < ranges[d].min {
				ranges[d].min = v
			}
			if v > ranges[d].max {
				ranges[d].max = v
			}
		}
	}

	points := make([][]float64, len(raw))
	for i, values := range raw {
		p := make([]float64, extract.FeatureDim)
		for d, v := range values {
			span := ranges[d].max - ranges[d].min
			if span > 0 {
				p[d] = (v - ranges[d].min) / span
			}
		}
		points[i] = p
	}
	return points, ranges
}

func denormalize(point []float64, ranges []featureRange) []float64 {
	out := make([]float64, len(point))
	for d, v := range point {
		out[d] = ranges[d].min + v*(ranges[d].max-ranges[d].min)
	}
	return out
}

// initCentroids samples k distinct normalized points using the seeded RNG.
func initCentroids(points [][]float64, k int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(points))

	centroids := make([][]float64, k)
	for i := 0; i < k; i++ {
		c := make([]float64, len(points[perm[i]]))
		copy(c, points[perm[i]])
		centroids[i] = c
	}
	return centroids
}

// iterate runs k-means rounds until assignments stabilize or maxRounds is
// reached. A centroid with no assigned points keeps its previous position.
func iterate(points [][]float64, centroids [][]float64) []int {
	assignments := make([]int, len(points))
	for i := range assignments {
		assignments[i] = -1
	}

	for round := 0; round < maxRounds; round++ {
		changed := false
		for i, p := range points {
			nearest := nearestCentroid(p, centroids)
			if assignments[i] != nearest {
				assignments[i] = nearest
				changed = true
			}
		}
		if !changed {
			break
		}

		for id := range centroids {
			mean := make([]float64, len(centroids[id]))
			count := 0
			for i, a := range assignments {
				if a != id {
					continue
				}
				count++
				for d, v := range points[i] {
					mean[d] += v
				}
			}
			if count == 0 {
				continue
			}
			for d := range mean {
				mean[d] /= float64(count)
			}
			centroids[id] = mean
		}
	}
	return assignments
}

// nearestCentroid returns the index of the closest centroid; distance ties
// resolve to the lower index.
func nearestCentroid(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for id, c := range centroids {
		if d := euclidean(p, c); d < bestDist {
			best, bestDist = id, d
		}
	}
	return best
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for d := range a {
		diff := a[d] - b[d]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// flagOutliers marks points whose centroid distance exceeds mean + 2σ.
func flagOutliers(distances []float64) []bool {
	out := make([]bool, len(distances))
	if len(distances) == 0 {
		return out
	}

	var sum float64
	for _, d := range distances {
		sum += d
	}
	mean := sum / float64(len(distances))

	var sq float64
	for _, d := range distances {
		diff := d - mean
		sq += diff * diff
	}
	stddev := math.Sqrt(sq / float64(len(distances)))

	limit := mean + outlierSigma*stddev
	for i, d := range distances {
		out[i] = d > limit
	}
	return out
}

// projectionAxes picks the two normalized features with the highest
// population variance. Variance ties resolve to the lower feature index.
func projectionAxes(points [][]float64) (int, int) {
	if len(points) == 0 {
		return 0, 1
	}

	variances := make([]float64, extract.FeatureDim)
	for d := 0; d < extract.FeatureDim; d++ {
		var sum float64
		for _, p := range points {
			sum += p[d]
		}
		mean := sum / float64(len(points))
		var sq float64
		for _, p := range points {
			diff := p[d] - mean
			sq += diff * diff
		}
		variances[d] = sq / float64(len(points))
	}

	first, second := 0, 1
	if variances[second] > variances[first] {
		first, second = second, first
	}
	for d := 2; d < extract.FeatureDim; d++ {
		switch {
		case variances[d] > variances[first]:
			first, second = d, first
		case variances[d] > variances[second]:
			second = d
		}
	}
	if first > second {
		first, second = second, first
	}
	return first, second
}

// nameCluster labels a denormalized centroid using a fixed priority order.
func nameCluster(centroid []float64, t NamingThresholds) string {
	avgRisk := centroid[extract.FeatureAvgRisk]
	breaches := centroid[extract.FeatureBreachCount]
	variance := centroid[extract.FeatureHourVariance]
	integrations := centroid[extract.FeatureIntegrationCount]
	velocity := centroid[extract.FeatureVelocity]

	switch {
	case avgRisk > t.HighAvgRisk && breaches > t.HighBreachCount:
		return LabelHighRisk
	case breaches > t.HighBreachCount:
		return LabelViolators
	case variance > t.HighHourVariance:
		return LabelIrregular
	case integrations > t.HighIntegrations && velocity > t.HighVelocity:
		return LabelPowerUsers
	case velocity < t.LowVelocity:
		return LabelInfrequent
	default:
		return LabelNormal
	}
}
