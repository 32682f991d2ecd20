package vivaldi

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T, dimensionality uint) *Model {
	t.Helper()
	config := DefaultConfig()
	config.Dimensionality = dimensionality
	config.Seed = 1
	model, err := NewModel(config)
	require.NoError(t, err)
	return model
}

// requireUnchanged asserts the model still holds the given coordinate and
// error estimate, i.e. a rejected sample left no partial write behind.
func requireUnchanged(t *testing.T, model *Model, coord *Coordinate, errorEstimate float64) {
	t.Helper()
	require.Equal(t, coord, model.GetCoordinate())
	require.Equal(t, errorEstimate, model.GetErrorEstimate())
}

func TestNewModel(t *testing.T) {
	model, err := NewModel(DefaultConfig())
	require.NoError(t, err)

	require.Len(t, model.GetCoordinate().Vec, 8)
	require.Equal(t, NewCoordinate(8), model.GetCoordinate())
	require.Equal(t, 1.0, model.GetErrorEstimate())
	require.Equal(t, ModelStats{}, model.Stats())
}

func TestNewModel_InvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.Dimensionality = 0
	_, err := NewModel(config)
	require.Error(t, err)

	for _, ce := range []float64{0.0, -0.25, 1.5} {
		config := DefaultConfig()
		config.VivaldiCE = ce
		_, err := NewModel(config)
		require.Error(t, err, "ce=%f should be rejected", ce)
	}

	for _, cc := range []float64{0.0, -0.25, 1.5} {
		config := DefaultConfig()
		config.VivaldiCC = cc
		_, err := NewModel(config)
		require.Error(t, err, "cc=%f should be rejected", cc)
	}
}

func TestModel_Update_DimensionalityConflict(t *testing.T) {
	model := newTestModel(t, 3)
	before := model.GetCoordinate()

	_, err := model.Update(NewCoordinate(2), 0.5, 10*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, ErrDimensionalityConflict, errors.Cause(err))
	requireUnchanged(t, model, before, 1.0)
	require.Equal(t, 1, model.Stats().Rejected)
}

func TestModel_Update_InvalidSample(t *testing.T) {
	model := newTestModel(t, 3)
	before := model.GetCoordinate()
	remote := &Coordinate{Vec: []float64{0.1, 0.2, 0.3}}

	for _, rtt := range []time.Duration{0, -5 * time.Second} {
		_, err := model.Update(remote, 0.5, rtt)
		require.Error(t, err, "rtt %v should be rejected", rtt)
		require.Equal(t, ErrInvalidSample, errors.Cause(err))
		requireUnchanged(t, model, before, 1.0)
	}

	poisoned := remote.Clone()
	poisoned.Vec[1] = math.NaN()
	_, err := model.Update(poisoned, 0.5, 10*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, ErrInvalidSample, errors.Cause(err))
	requireUnchanged(t, model, before, 1.0)

	require.Equal(t, 3, model.Stats().Rejected)
	require.Equal(t, 0, model.Stats().Applied)
}

func TestModel_Update_InvalidErrorEstimate(t *testing.T) {
	model := newTestModel(t, 3)
	before := model.GetCoordinate()
	remote := &Coordinate{Vec: []float64{0.1, 0.2, 0.3}}

	for _, bad := range []float64{-0.1, math.NaN(), math.Inf(1)} {
		_, err := model.Update(remote, bad, 10*time.Millisecond)
		require.Error(t, err, "remote error %f should be rejected", bad)
		require.Equal(t, ErrInvalidErrorEstimate, errors.Cause(err))
		requireUnchanged(t, model, before, 1.0)
	}
}

// A model updated against a remote at the exact same position must still
// move, in some direction, by exactly cc * weight * rtt.
func TestModel_Update_CoincidentCoordinates(t *testing.T) {
	model := newTestModel(t, 2)

	coord, err := model.Update(NewCoordinate(2), 1.0, 10*time.Second)
	require.NoError(t, err)
	require.True(t, coord.IsValid())

	// Both error estimates were 1.0, so the blame weight is 0.5 and the
	// relative error of the sample is 1.0. The EWMA then works out to
	// exactly the prior error.
	require.Equal(t, 1.0, model.GetErrorEstimate())

	// The displacement is cc * 0.5 * 10s regardless of direction.
	expected := DefaultConfig().VivaldiCC * 0.5 * 10.0
	require.InDelta(t, expected, magnitude(coord.Vec), 1.0e-9)

	require.Equal(t, ModelStats{Applied: 1, Coincident: 1}, model.Stats())
}

func TestModel_Update_ForceDirection(t *testing.T) {
	model := newTestModel(t, 2)
	require.NoError(t, model.SetErrorEstimate(0.5))
	remote := &Coordinate{Vec: []float64{3.0, 4.0}}

	// Measured exactly as modeled: the coordinate must not move and the
	// error estimate must improve.
	coord, err := model.Update(remote, 0.5, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, NewCoordinate(2), coord)
	require.Less(t, model.GetErrorEstimate(), 0.5)

	// Measured slower than modeled: push away from the remote.
	coord, err = model.Update(remote, 0.5, 8*time.Second)
	require.NoError(t, err)
	require.Greater(t, EstimateRTT(coord, remote), 5*time.Second)

	// Measured faster than modeled: pull toward the remote.
	prev := EstimateRTT(model.GetCoordinate(), remote)
	coord, err = model.Update(remote, 0.5, time.Millisecond)
	require.NoError(t, err)
	require.Less(t, EstimateRTT(coord, remote), prev)
}

// Feeding arbitrary valid samples must keep the error estimate in [0, 1]
// and the coordinate finite.
func TestModel_Update_ErrorBounds(t *testing.T) {
	model := newTestModel(t, 4)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		remote := NewCoordinate(4)
		for j := range remote.Vec {
			remote.Vec[j] = rng.NormFloat64()
		}
		remoteError := rng.Float64() * 2.0
		rtt := time.Duration(1+rng.Intn(500)) * time.Millisecond

		_, err := model.Update(remote, remoteError, rtt)
		require.NoError(t, err)
		require.True(t, model.GetCoordinate().IsValid())
		require.GreaterOrEqual(t, model.GetErrorEstimate(), 0.0)
		require.LessOrEqual(t, model.GetErrorEstimate(), 1.0)
	}
}

// Two nodes exchanging measurements of a constant true RTT must settle at
// positions whose distance reproduces that RTT.
func TestModel_Convergence(t *testing.T) {
	configA := DefaultConfig()
	configA.Seed = 1
	a, err := NewModel(configA)
	require.NoError(t, err)

	configB := DefaultConfig()
	configB.Seed = 2
	b, err := NewModel(configB)
	require.NoError(t, err)

	const rtt = 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		_, err = a.Update(b.GetCoordinate(), b.GetErrorEstimate(), rtt)
		require.NoError(t, err)
		_, err = b.Update(a.GetCoordinate(), a.GetErrorEstimate(), rtt)
		require.NoError(t, err)
	}

	est := EstimateRTT(a.GetCoordinate(), b.GetCoordinate()).Seconds()
	require.InDelta(t, rtt.Seconds(), est, 0.1*rtt.Seconds(),
		"estimate %fs did not converge to %v", est, rtt)
	require.Less(t, a.GetErrorEstimate(), 0.4)
	require.Less(t, b.GetErrorEstimate(), 0.4)
}

func TestModel_SetCoordinate(t *testing.T) {
	model := newTestModel(t, 3)

	restored := &Coordinate{Vec: []float64{0.1, 0.2, 0.3}}
	require.NoError(t, model.SetCoordinate(restored))
	require.Equal(t, restored, model.GetCoordinate())

	// The model must keep its own copy.
	restored.Vec[0] = 9.9
	require.Equal(t, 0.1, model.GetCoordinate().Vec[0])

	err := model.SetCoordinate(NewCoordinate(2))
	require.Error(t, err)
	require.Equal(t, ErrDimensionalityConflict, errors.Cause(err))

	poisoned := NewCoordinate(3)
	poisoned.Vec[0] = math.Inf(1)
	err = model.SetCoordinate(poisoned)
	require.Error(t, err)
	require.Equal(t, ErrInvalidSample, errors.Cause(err))
	require.Equal(t, 0.1, model.GetCoordinate().Vec[0])
}

func TestModel_SetErrorEstimate(t *testing.T) {
	model := newTestModel(t, 3)

	require.NoError(t, model.SetErrorEstimate(0.5))
	require.Equal(t, 0.5, model.GetErrorEstimate())

	for _, bad := range []float64{-0.1, 1.1, math.NaN(), math.Inf(-1)} {
		err := model.SetErrorEstimate(bad)
		require.Error(t, err, "error estimate %f should be rejected", bad)
		require.Equal(t, ErrInvalidErrorEstimate, errors.Cause(err))
		require.Equal(t, 0.5, model.GetErrorEstimate())
	}
}
