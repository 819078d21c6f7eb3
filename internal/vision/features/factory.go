package features

import (
	"errors"
	"fmt"

	"github.com/banshee-data/featuretrack/internal/vision/l4dda"
)

// ErrUnknownVariant is returned for a detector or describer name that
// this package does not implement.
var ErrUnknownVariant = errors.New("features: unknown variant")

// Variant names accepted by NewDetector and NewDescriber.
const (
	DetectorFast      = "fast"
	DetectorHarris    = "harris"
	DetectorShiTomasi = "shi_tomasi"

	DescriberBrief = "brief"
	DescriberNCC   = "ncc"
	DescriberORB   = "orb"
)

// NewDetector returns the named detector.
func NewDetector(name string, cfg DetectorConfig) (l4dda.Detector, error) {
	switch name {
	case DetectorFast:
		return NewFast(cfg), nil
	case DetectorHarris:
		return NewHarris(cfg), nil
	case DetectorShiTomasi:
		return NewShiTomasi(cfg), nil
	}
	return nil, fmt.Errorf("%w: detector %q", ErrUnknownVariant, name)
}

// NewDescriber returns the named describer. ORB has no pure-Go
// implementation here and is only available from cvbridge.
func NewDescriber(name string, cfg DescriberConfig) (l4dda.Describer, error) {
	switch name {
	case DescriberBrief:
		return NewBrief(cfg), nil
	case DescriberNCC:
		return NewTemplate(cfg), nil
	}
	return nil, fmt.Errorf("%w: describer %q", ErrUnknownVariant, name)
}
