package vivaldi

import (
	"math"
	"math/rand"
	"time"

	"github.com/armon/go-metrics"
	"github.com/pkg/errors"
)

var (
	// ErrDimensionalityConflict is the cause of errors returned when a
	// remote coordinate does not have the model's dimensionality. This is a
	// structural contract violation on the caller's side, not bad input
	// data.
	ErrDimensionalityConflict = errors.New("coordinate dimensionality does not match")

	// ErrInvalidSample is the cause of errors returned when an observation
	// is unusable, either because the round-trip time is not a positive
	// value or because the remote coordinate carries non-finite components.
	// The sample is discarded and the model keeps its prior state.
	ErrInvalidSample = errors.New("sample is not usable")

	// ErrInvalidErrorEstimate is the cause of errors returned when the
	// remote node's error estimate is not a finite, non-negative value.
	ErrInvalidErrorEstimate = errors.New("error estimate is not a finite, non-negative value")
)

// Model maintains the local node's position in the network's coordinate
// space, along with an estimate of how accurate that position is. One Model
// is created per node (or per distinct network the node participates in) and
// is updated by feeding it round-trip time observations as the application
// makes them.
//
// A Model is deliberately unsynchronized. Each Update is a synchronous
// read-modify-write intended to run inline with the caller's measurement
// path; if several goroutines share one Model, the caller must serialize
// access.
type Model struct {
	// coord is the position of the local node.
	coord *Coordinate

	// localError is the node's confidence in coord, between 0 (perfect)
	// and 1 (none). A fresh model starts at 1 since it has observed
	// nothing.
	localError float64

	config *Config

	// rng supplies directions when two coordinates coincide. It is owned by
	// this model so that instances stay independent and reproducible under
	// test.
	rng *rand.Rand

	stats ModelStats
}

// ModelStats counts what happened to the samples offered to a Model.
type ModelStats struct {
	// Applied is the number of samples folded into the coordinate.
	Applied int

	// Rejected is the number of samples discarded by validation.
	Rejected int

	// Coincident is the number of applied samples where the remote
	// coordinate matched the local one and a random direction was used.
	Coincident int
}

// NewModel returns a model positioned at the origin with maximal
// uncertainty.
func NewModel(config *Config) (*Model, error) {
	if config.Dimensionality == 0 {
		return nil, errors.New("dimensionality must be >0")
	}
	if !(config.VivaldiCE > 0.0 && config.VivaldiCE <= 1.0) {
		return nil, errors.Errorf("ce must be in (0, 1], got %f", config.VivaldiCE)
	}
	if !(config.VivaldiCC > 0.0 && config.VivaldiCC <= 1.0) {
		return nil, errors.Errorf("cc must be in (0, 1], got %f", config.VivaldiCC)
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Model{
		coord:      NewCoordinate(config.Dimensionality),
		localError: 1.0,
		config:     config,
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// GetCoordinate returns a snapshot of the local coordinate. The returned
// value is a clone; mutating it does not affect the model.
func (m *Model) GetCoordinate() *Coordinate {
	return m.coord.Clone()
}

// GetErrorEstimate returns the node's current error estimate, in [0, 1].
func (m *Model) GetErrorEstimate() float64 {
	return m.localError
}

// SetCoordinate replaces the local coordinate, typically with one restored
// from the caller's own persistence after a restart.
func (m *Model) SetCoordinate(coord *Coordinate) error {
	if err := m.checkCoordinate(coord); err != nil {
		return err
	}

	m.coord = coord.Clone()
	return nil
}

// SetErrorEstimate replaces the local error estimate, the companion of
// SetCoordinate when restoring saved state. The value must lie in [0, 1].
func (m *Model) SetErrorEstimate(errorEstimate float64) error {
	if !componentIsValid(errorEstimate) || errorEstimate < 0.0 || errorEstimate > 1.0 {
		return errors.Wrapf(ErrInvalidErrorEstimate, "cannot set error estimate to %f", errorEstimate)
	}

	m.localError = errorEstimate
	return nil
}

// Stats returns the model's sample counters.
func (m *Model) Stats() ModelStats {
	return m.stats
}

// DistanceTo returns the modeled round-trip time from the local node to the
// node owning the other coordinate.
func (m *Model) DistanceTo(other *Coordinate) time.Duration {
	return m.coord.DistanceTo(other)
}

func (m *Model) checkCoordinate(coord *Coordinate) error {
	if !m.coord.IsCompatibleWith(coord) {
		return errors.Wrapf(ErrDimensionalityConflict,
			"local coordinate has %d dimensions, remote has %d", len(m.coord.Vec), len(coord.Vec))
	}
	if !coord.IsValid() {
		return errors.Wrap(ErrInvalidSample, "coordinate has a non-finite component")
	}

	return nil
}

// Update folds one round-trip time observation into the model: the remote
// node's self-reported coordinate and error estimate, plus the RTT the
// caller measured to it. On success the local coordinate and error estimate
// move and a clone of the new coordinate is returned. On failure the model
// is left exactly as it was; the returned error's cause is one of
// ErrDimensionalityConflict, ErrInvalidSample, or ErrInvalidErrorEstimate.
//
// The relative error of a sample is |predicted − measured| / measured,
// capped at 1.0, so a wildly wrong prediction counts the same as a fully
// wrong one.
func (m *Model) Update(other *Coordinate, remoteError float64, rtt time.Duration) (*Coordinate, error) {
	if err := m.checkCoordinate(other); err != nil {
		m.reject()
		return nil, err
	}
	if rtt <= 0 {
		m.reject()
		return nil, errors.Wrapf(ErrInvalidSample, "round-trip time %v is not positive", rtt)
	}
	if !componentIsValid(remoteError) || remoteError < 0.0 {
		m.reject()
		return nil, errors.Wrapf(ErrInvalidErrorEstimate, "remote reported %f", remoteError)
	}

	rttSeconds := rtt.Seconds()

	// The model's current prediction for this peer, and how wrong it was
	// relative to the measurement.
	dist := magnitude(diff(m.coord.Vec, other.Vec))
	relativeError := math.Abs(dist-rttSeconds) / rttSeconds
	if relativeError > 1.0 {
		relativeError = 1.0
	}

	// Split the blame between the two nodes by confidence. A node with a
	// large error estimate owns more of the discrepancy and moves further.
	weight := 0.5
	if totalError := m.localError + remoteError; totalError > 0.0 {
		weight = m.localError / totalError
	}

	localError := relativeError*m.config.VivaldiCE*weight + m.localError*(1.0-m.config.VivaldiCE*weight)
	if localError > 1.0 {
		localError = 1.0
	}
	if localError < 0.0 {
		localError = 0.0
	}

	// Spring relaxation: move along the line between the two positions by
	// an adaptive step, away from the peer if the real network is slower
	// than modeled, toward it if faster.
	delta := m.config.VivaldiCC * weight
	force := rttSeconds - dist

	unit, mag := unitVectorAt(m.coord.Vec, other.Vec, m.rng)
	coord := &Coordinate{Vec: add(m.coord.Vec, mul(unit, delta*force))}
	if !coord.IsValid() {
		m.reject()
		return nil, errors.Wrap(ErrInvalidSample, "sample would move the coordinate out of range")
	}

	// Commit. Everything above worked on copies, so a rejected sample
	// never leaves a partial write behind.
	if mag <= zeroThreshold {
		metrics.IncrCounter([]string{"vivaldi", "update", "coincident"}, 1)
		m.stats.Coincident++
	}
	m.coord = coord
	m.localError = localError
	m.stats.Applied++

	return m.coord.Clone(), nil
}

func (m *Model) reject() {
	metrics.IncrCounter([]string{"vivaldi", "update", "rejected"}, 1)
	m.stats.Rejected++
}
