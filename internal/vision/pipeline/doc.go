// Package pipeline provides the combined feature tracker that orchestrates
// the vision layers for one frame sequence.
//
// This package is the composition root: it imports from layer packages
// (l1image, l2pyramid, l3klt, l4dda, l5tracks) and the debug collector,
// but none of those packages import pipeline/.
//
// Per frame the pyramid is rebuilt, every live track is refined by KLT
// on a pool of workers, and the results are committed to the track pool
// in one step. Drops accumulate until the reactivation threshold is
// reached, at which point the detect-describe-associate pass re-identifies
// recently lost features and spawns them as new tracks.
package pipeline
