// Package l3klt owns Layer 3 (Optical flow) of the feature tracking data
// model.
//
// Responsibilities: per-feature pyramidal Kanade-Lucas-Tomasi tracking.
// A Feature holds the appearance template sampled from the frame a track
// was described in; a Tracker refines the feature's position in a new
// pyramid coarse to fine, solving the linearised brightness-constancy
// system with gonum at every level.
// Key types: Config, Feature, Tracker, Result, Fault.
//
// Dependency rule: L3 may depend on L1-L2, never on L4 and above.
package l3klt
