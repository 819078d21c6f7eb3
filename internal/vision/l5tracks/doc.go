// Package l5tracks owns Layer 5 (Tracks) of the feature tracking data
// model.
//
// Responsibilities: the track pool. It hands out monotonically increasing
// track IDs, enforces the track budget and the minimum spawn separation,
// drives the new → active → lost status machine, and applies per-frame
// tracking results as a single-writer barrier.
// Key types: Pool, Track, TrackStatus, Update.
//
// Dependency rule: L5 may depend on L1-L4, never on the pipeline.
// No SQL/database code is allowed in this package.
package l5tracks
