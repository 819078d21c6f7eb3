// Package features provides pure-Go reference implementations of the
// capabilities the tracking layers consume: image blur and gradients for
// the pyramid builder, interest point detectors and region describers
// for the detect-describe-associate pipeline.
//
// Variants are selected by name through NewDetector and NewDescriber so
// configuration files can choose them. The cvbridge package offers
// OpenCV-backed alternatives behind the same interfaces.
package features
