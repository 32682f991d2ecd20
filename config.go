package vivaldi

// Config controls the tuning of a Model. A single Config can be shared by
// every Model participating in the same network; mixing dimensionalities
// across a network makes coordinates incomparable.
type Config struct {
	// Dimensionality is the number of axes of the Euclidean space the model
	// positions itself in. All nodes in a network must agree on this.
	Dimensionality uint

	// VivaldiCE is the maximum fraction by which one sample may move the
	// local error estimate. Must be in (0, 1].
	VivaldiCE float64

	// VivaldiCC sets the adaptive timestep used when moving the coordinate.
	// Must be in (0, 1].
	VivaldiCC float64

	// Seed initializes the model's private random source, which is only
	// consulted when two coordinates coincide and a direction must be
	// invented. Zero means seed from the wall clock; any other value makes
	// the model's degenerate-case behavior reproducible.
	Seed int64
}

// DefaultConfig returns a Config with the constants from the Vivaldi paper.
func DefaultConfig() *Config {
	return &Config{
		Dimensionality: 8,
		VivaldiCE:      0.25,
		VivaldiCC:      0.25,
	}
}
