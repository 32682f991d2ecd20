package vivaldi

import (
	"math"
	"math/rand"
	"time"
)

// GenerateModels returns the given number of models, all built from the same
// config. When the config carries a nonzero seed each model gets a distinct
// derived seed, so simulations stay reproducible without every model sharing
// one random stream.
func GenerateModels(nodes int, config *Config) ([]*Model, error) {
	models := make([]*Model, nodes)
	for i := range models {
		nodeConfig := *config
		if nodeConfig.Seed != 0 {
			nodeConfig.Seed += int64(i)
		}

		model, err := NewModel(&nodeConfig)
		if err != nil {
			return nil, err
		}

		models[i] = model
	}
	return models, nil
}

// GenerateLine returns a truth matrix for nodes in a line, with the given
// spacing between adjacent nodes.
func GenerateLine(nodes int, spacing time.Duration) [][]time.Duration {
	truth := newTruthMatrix(nodes)

	for i := 0; i < nodes; i++ {
		for j := i + 1; j < nodes; j++ {
			rtt := time.Duration(j-i) * spacing
			truth[i][j], truth[j][i] = rtt, rtt
		}
	}
	return truth
}

// GenerateGrid returns a truth matrix for nodes in a two dimensional grid,
// with the given spacing between adjacent nodes.
func GenerateGrid(nodes int, spacing time.Duration) [][]time.Duration {
	truth := newTruthMatrix(nodes)

	n := int(math.Sqrt(float64(nodes)))
	for i := 0; i < nodes; i++ {
		for j := i + 1; j < nodes; j++ {
			x1, y1 := float64(i%n), float64(i/n)
			x2, y2 := float64(j%n), float64(j/n)
			dx, dy := x2-x1, y2-y1
			dist := math.Sqrt(dx*dx + dy*dy)
			rtt := time.Duration(dist * float64(spacing))
			truth[i][j], truth[j][i] = rtt, rtt
		}
	}
	return truth
}

// GenerateSplit returns a truth matrix for two halves of nodes a WAN apart,
// with nodes inside each half a LAN apart.
func GenerateSplit(nodes int, lan time.Duration, wan time.Duration) [][]time.Duration {
	truth := newTruthMatrix(nodes)

	split := nodes / 2
	for i := 0; i < nodes; i++ {
		for j := i + 1; j < nodes; j++ {
			rtt := lan
			if (i <= split && j > split) || (i > split && j <= split) {
				rtt += wan
			}
			truth[i][j], truth[j][i] = rtt, rtt
		}
	}
	return truth
}

// GenerateCircle returns a truth matrix for nodes on a circle of the given
// radius, except node 0 which sits in the middle at 2*radius from everyone.
// This breaks the triangle inequality on purpose and is the hardest of the
// synthetic topologies to embed.
func GenerateCircle(nodes int, radius time.Duration) [][]time.Duration {
	truth := newTruthMatrix(nodes)

	for i := 0; i < nodes; i++ {
		for j := i + 1; j < nodes; j++ {
			var rtt time.Duration
			if i == 0 {
				rtt = 2 * radius
			} else {
				t1 := 2.0 * math.Pi * float64(i) / float64(nodes)
				x1, y1 := math.Cos(t1), math.Sin(t1)
				t2 := 2.0 * math.Pi * float64(j) / float64(nodes)
				x2, y2 := math.Cos(t2), math.Sin(t2)
				dx, dy := x2-x1, y2-y1
				dist := math.Sqrt(dx*dx + dy*dy)
				rtt = time.Duration(dist * float64(radius))
			}
			truth[i][j], truth[j][i] = rtt, rtt
		}
	}
	return truth
}

// GenerateRandom returns a truth matrix with normally distributed
// round-trip times, drawn from the given source.
func GenerateRandom(nodes int, mean time.Duration, deviation time.Duration, rng *rand.Rand) [][]time.Duration {
	truth := newTruthMatrix(nodes)

	for i := 0; i < nodes; i++ {
		for j := i + 1; j < nodes; j++ {
			rttSeconds := rng.NormFloat64()*deviation.Seconds() + mean.Seconds()
			rtt := time.Duration(rttSeconds * secondsToNanoseconds)
			truth[i][j], truth[j][i] = rtt, rtt
		}
	}
	return truth
}

func newTruthMatrix(nodes int) [][]time.Duration {
	truth := make([][]time.Duration, nodes)
	for i := range truth {
		truth[i] = make([]time.Duration, nodes)
	}
	return truth
}

// Simulate runs the given number of update cycles against the models. Each
// cycle lets every model observe the true round-trip time to one randomly
// chosen peer, exactly as an application piggybacking coordinates on its own
// traffic would.
func Simulate(rng *rand.Rand, models []*Model, truth [][]time.Duration, cycles int) {
	nodes := len(models)
	for cycle := 0; cycle < cycles; cycle++ {
		for i := range models {
			if j := rng.Intn(nodes); j != i {
				coord := models[j].GetCoordinate()
				remoteError := models[j].GetErrorEstimate()
				models[i].Update(coord, remoteError, truth[i][j])
			}
		}
	}
}

// Stats summarizes how well a set of coordinates reproduces a truth matrix.
type Stats struct {
	ErrorMax float64
	ErrorAvg float64
}

// Evaluate compares the modeled round-trip time of every node pair with the
// truth matrix and reports the relative error.
func Evaluate(models []*Model, truth [][]time.Duration) (stats Stats) {
	nodes := len(models)
	count := 0
	for i := 0; i < nodes; i++ {
		for j := i + 1; j < nodes; j++ {
			est := models[i].DistanceTo(models[j].GetCoordinate()).Seconds()
			actual := truth[i][j].Seconds()
			error := math.Abs(est-actual) / actual
			stats.ErrorMax = math.Max(stats.ErrorMax, error)
			stats.ErrorAvg += error
			count += 1
		}
	}

	stats.ErrorAvg /= float64(count)
	return
}
