// Package l2pyramid owns Layer 2 (Pyramids) of the feature tracking data model.
//
// Responsibilities: building the multi-resolution image pyramid and its
// horizontal/vertical gradient pyramids for every frame, reusing level
// buffers across frames, and validating scale sequences at construction.
// Key types: Pyramid, Builder, Config.
//
// Blur and gradient numerics are external capabilities supplied through
// Blurrer and GradientProvider.
//
// Dependency rule: L2 may depend on L1, never on L3 and above.
package l2pyramid
