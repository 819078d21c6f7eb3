// Package l1image owns Layer 1 (Images) of the feature tracking data model.
//
// Responsibilities: dense single-band pixel buffers parameterised by
// element kind, in-place reshaping, kind conversion to float32 working
// images, and bilinear sampling.
// Key types: Image, Kind, Frame.
//
// Dependency rule: L1 depends on nothing else in internal/vision.
package l1image
