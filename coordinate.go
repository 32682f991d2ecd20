package vivaldi

import (
	"math"
	"math/rand"
	"time"
)

const (
	// secondsToNanoseconds converts the float64 seconds used internally to
	// the nanoseconds of a time.Duration.
	secondsToNanoseconds = 1.0e9

	// zeroThreshold is the magnitude below which a vector is treated as
	// having no usable direction.
	zeroThreshold = 1.0e-6
)

// DimensionalityConflictError is the panic value raised when two coordinates
// with different dimensionalities meet in a pure query. Mixing
// dimensionalities is a programming error, never a runtime condition, so the
// read-only paths fail fast rather than returning an error.
type DimensionalityConflictError struct{}

func (e DimensionalityConflictError) Error() string {
	return "coordinate dimensionality does not match"
}

// Coordinate is a position in the Euclidean space a Model operates in. The
// distance between two coordinates predicts the round-trip time between the
// nodes that own them. A Coordinate carries no confidence information; the
// error estimate belongs to the Model.
type Coordinate struct {
	// Vec holds one component per dimension, in seconds. Every coordinate
	// combined with this one must have the same length.
	Vec []float64
}

// NewCoordinate returns a coordinate at the origin of a space with the given
// number of dimensions.
func NewCoordinate(dimensionality uint) *Coordinate {
	return &Coordinate{
		Vec: make([]float64, dimensionality),
	}
}

// Clone returns a copy that shares no memory with the original.
func (c *Coordinate) Clone() *Coordinate {
	vec := make([]float64, len(c.Vec))
	copy(vec, c.Vec)
	return &Coordinate{
		Vec: vec,
	}
}

func componentIsValid(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// IsValid reports whether every component of the coordinate is a finite
// number.
func (c *Coordinate) IsValid() bool {
	for i := range c.Vec {
		if !componentIsValid(c.Vec[i]) {
			return false
		}
	}
	return true
}

// IsCompatibleWith reports whether the two coordinates live in the same
// space and can therefore be compared or combined.
func (c *Coordinate) IsCompatibleWith(other *Coordinate) bool {
	return len(c.Vec) == len(other.Vec)
}

// DistanceTo returns the modeled round-trip time between this coordinate and
// the other one. It panics with DimensionalityConflictError if the
// dimensionalities differ.
func (c *Coordinate) DistanceTo(other *Coordinate) time.Duration {
	if !c.IsCompatibleWith(other) {
		panic(DimensionalityConflictError{})
	}

	return time.Duration(magnitude(diff(c.Vec, other.Vec)) * secondsToNanoseconds)
}

// EstimateRTT predicts the round-trip time between any two nodes from their
// coordinates alone. Neither node needs to have probed the other, or to be
// the caller; coordinates learned secondhand work just as well. It panics
// with DimensionalityConflictError if the dimensionalities differ.
func EstimateRTT(a *Coordinate, b *Coordinate) time.Duration {
	return a.DistanceTo(b)
}

func add(vec1 []float64, vec2 []float64) []float64 {
	ret := make([]float64, len(vec1))
	for i := range ret {
		ret[i] = vec1[i] + vec2[i]
	}
	return ret
}

func diff(vec1 []float64, vec2 []float64) []float64 {
	ret := make([]float64, len(vec1))
	for i := range ret {
		ret[i] = vec1[i] - vec2[i]
	}
	return ret
}

func mul(vec []float64, factor float64) []float64 {
	ret := make([]float64, len(vec))
	for i := range vec {
		ret[i] = vec[i] * factor
	}
	return ret
}

func magnitude(vec []float64) float64 {
	sum := 0.0
	for i := range vec {
		sum += vec[i] * vec[i]
	}
	return math.Sqrt(sum)
}

// unitVectorAt returns a unit vector pointing at vec1 from vec2, along with
// the distance between the two positions. If the positions are too close to
// derive a direction, a random unit vector is substituted and the returned
// distance is 0.0, so the caller can still push the two points apart.
func unitVectorAt(vec1 []float64, vec2 []float64, rng *rand.Rand) ([]float64, float64) {
	ret := diff(vec1, vec2)
	if mag := magnitude(ret); mag > zeroThreshold {
		return mul(ret, 1.0/mag), mag
	}

	return randomUnitVector(len(vec1), rng), 0.0
}

// randomUnitVector samples each axis from a symmetric distribution around
// zero and normalizes the result. A near-zero draw is resampled rather than
// patched up so the direction stays uniformly distributed.
func randomUnitVector(dimensionality int, rng *rand.Rand) []float64 {
	ret := make([]float64, dimensionality)
	for {
		for i := range ret {
			ret[i] = rng.Float64() - 0.5
		}
		if mag := magnitude(ret); mag > zeroThreshold {
			return mul(ret, 1.0/mag)
		}
	}
}
