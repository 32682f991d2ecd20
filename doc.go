// Package vivaldi assigns a node a synthetic position in Euclidean space
// such that the distance between any two nodes' positions approximates the
// round-trip time between them. Positions emerge from a decentralized
// spring-relaxation process: each node folds in RTT observations it makes
// anyway, using the peer's self-reported coordinate and confidence, and
// nudges its own coordinate to shrink the gap between modeled and measured
// time.
//
// The package is transport-agnostic. The application measures RTT itself,
// piggybacks coordinates and error estimates on its own messages, and calls
// Model.Update with what it learns. EstimateRTT then predicts the latency
// between any two coordinates the application has seen, including pairs of
// nodes that never probed each other.
package vivaldi
