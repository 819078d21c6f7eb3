package cvbridge

import (
	"errors"
	"fmt"

	"github.com/banshee-data/featuretrack/internal/config"
	"github.com/banshee-data/featuretrack/internal/vision/pipeline"
)

// ErrUnavailable is returned when the binary was built without OpenCV.
var ErrUnavailable = errors.New("cvbridge: opencv backend not compiled in")

// Available reports whether the OpenCV providers are compiled in.
func Available() bool {
	return available
}

// Capabilities returns the OpenCV provider set for tc. Detector and
// describer variants OpenCV does not cover here (harris, brief, ncc) use
// the native implementations.
func Capabilities(tc *config.TuningConfig) (pipeline.Capabilities, error) {
	if !available {
		return pipeline.Capabilities{}, fmt.Errorf("%w: rebuild with -tags opencv", ErrUnavailable)
	}
	det, err := newDetector(tc.GetDetector(), pipeline.DetectorConfigFromTuning(tc))
	if err != nil {
		return pipeline.Capabilities{}, err
	}
	desc, err := newDescriber(tc.GetDescriber(), pipeline.DescriberConfigFromTuning(tc))
	if err != nil {
		return pipeline.Capabilities{}, err
	}
	diagf("opencv capabilities: detector=%s describer=%s", tc.GetDetector(), tc.GetDescriber())
	return pipeline.Capabilities{
		Blurrer:   newBlurrer(),
		Gradient:  newGradient(),
		Detector:  det,
		Describer: desc,
	}, nil
}
