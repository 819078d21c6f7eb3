//go:build !opencv

package cvbridge

import (
	"github.com/banshee-data/featuretrack/internal/vision/features"
	"github.com/banshee-data/featuretrack/internal/vision/l2pyramid"
	"github.com/banshee-data/featuretrack/internal/vision/l4dda"
)

const available = false

func newBlurrer() l2pyramid.Blurrer { return &features.BinomialBlur{} }

func newGradient() l2pyramid.GradientProvider { return features.Sobel{} }

func newDetector(name string, cfg features.DetectorConfig) (l4dda.Detector, error) {
	return features.NewDetector(name, cfg)
}

func newDescriber(name string, cfg features.DescriberConfig) (l4dda.Describer, error) {
	return features.NewDescriber(name, cfg)
}
