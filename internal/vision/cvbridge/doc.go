// Package cvbridge provides OpenCV-backed tracker capabilities through
// GoCV: Gaussian blur, Sobel gradients, FAST and good-features-to-track
// detection and ORB description.
//
// The providers are compiled only with the opencv build tag, since GoCV
// needs cgo and an installed OpenCV. Without the tag Capabilities returns
// ErrUnavailable and callers fall back to pipeline.NativeCapabilities.
package cvbridge
