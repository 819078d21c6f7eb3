// Package l4dda owns Layer 4 (Detect-Describe-Associate) of the feature
// tracking data model.
//
// Responsibilities: descriptor representation and scoring, greedy and
// optimal descriptor association with ambiguity and reciprocal rejection,
// and the detect → describe → associate pipeline used to re-identify
// features after KLT loses them.
// Key types: Point, Descriptor, Match, Greedy, Optimal, Pipeline.
//
// Interest point detection and region description numerics are external
// capabilities supplied through Detector and Describer.
//
// Dependency rule: L4 may depend on L1-L2, never on L3 or L5.
package l4dda
