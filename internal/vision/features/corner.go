package features

import (
	"math"
	"sort"

	"github.com/banshee-data/featuretrack/internal/vision/l1image"
	"github.com/banshee-data/featuretrack/internal/vision/l4dda"
)

// DetectorConfig holds the parameters shared by every detector variant.
type DetectorConfig struct {
	// MaxFeatures caps the number of points returned, strongest first.
	// Zero or negative means no cap.
	MaxFeatures int
	// Radius is the non-maximum suppression radius and, for the gradient
	// detectors, the structure-tensor window radius.
	Radius int
	// Border excludes points closer than this to the image edge so they
	// can be described and tracked.
	Border int
	// RelativeThreshold drops gradient-detector responses below this
	// fraction of the strongest response in the image.
	RelativeThreshold float64
	// FastThreshold is the intensity difference a FAST circle pixel must
	// exceed.
	FastThreshold float64
	// HarrisK is the trace weight of the Harris response.
	HarrisK float64
}

// DefaultDetectorConfig returns settings suited to 8-bit imagery.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MaxFeatures:       200,
		Radius:            3,
		Border:            8,
		RelativeThreshold: 0.01,
		FastThreshold:     20,
		HarrisK:           0.04,
	}
}

type cornerKind int

const (
	shiTomasi cornerKind = iota
	harris
)

// CornerDetector scores every pixel from the local structure tensor and
// keeps local maxima. The Shi-Tomasi variant scores by the smaller
// eigenvalue, the Harris variant by det − k·trace².
type CornerDetector struct {
	cfg  DetectorConfig
	kind cornerKind
}

var _ l4dda.Detector = (*CornerDetector)(nil)

// NewShiTomasi returns a minimum-eigenvalue corner detector.
func NewShiTomasi(cfg DetectorConfig) *CornerDetector {
	return &CornerDetector{cfg: cfg, kind: shiTomasi}
}

// NewHarris returns a Harris corner detector.
func NewHarris(cfg DetectorConfig) *CornerDetector {
	return &CornerDetector{cfg: cfg, kind: harris}
}

// Detect implements l4dda.Detector.
func (d *CornerDetector) Detect(img *l1image.Image[float32]) []l4dda.Point {
	w, h := img.Width, img.Height
	if w == 0 || h == 0 {
		return nil
	}
	dx := l1image.New[float32](w, h)
	dy := l1image.New[float32](w, h)
	Sobel{}.Gradient(img, dx, dy)

	resp := l1image.New[float32](w, h)
	r := max(d.cfg.Radius, 1)
	var peak float32
	for y := r; y < h-r; y++ {
		for x := r; x < w-r; x++ {
			var sxx, sxy, syy float64
			for j := -r; j <= r; j++ {
				for i := -r; i <= r; i++ {
					gx := float64(dx.At(x+i, y+j))
					gy := float64(dy.At(x+i, y+j))
					sxx += gx * gx
					sxy += gx * gy
					syy += gy * gy
				}
			}
			var v float64
			switch d.kind {
			case harris:
				tr := sxx + syy
				v = sxx*syy - sxy*sxy - d.cfg.HarrisK*tr*tr
			default:
				half := (sxx - syy) / 2
				v = (sxx+syy)/2 - math.Sqrt(half*half+sxy*sxy)
			}
			resp.Set(x, y, float32(v))
			peak = max(peak, float32(v))
		}
	}
	if peak <= 0 {
		return nil
	}
	threshold := float32(d.cfg.RelativeThreshold) * peak
	return selectMaxima(resp, threshold, d.cfg)
}

// selectMaxima keeps pixels strictly above threshold that are the maximum
// of their suppression window, away from the border, strongest first.
// Equal responses resolve in raster order so output is deterministic.
func selectMaxima(resp *l1image.Image[float32], threshold float32, cfg DetectorConfig) []l4dda.Point {
	w, h := resp.Width, resp.Height
	r := max(cfg.Radius, 1)
	b := max(cfg.Border, r)
	var pts []l4dda.Point
	for y := b; y < h-b; y++ {
		for x := b; x < w-b; x++ {
			v := resp.At(x, y)
			if v <= threshold || !isLocalMax(resp, x, y, r) {
				continue
			}
			pts = append(pts, l4dda.Point{X: float64(x), Y: float64(y), Response: float64(v)})
		}
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Response > pts[j].Response })
	if cfg.MaxFeatures > 0 && len(pts) > cfg.MaxFeatures {
		pts = pts[:cfg.MaxFeatures]
	}
	return pts
}

// isLocalMax reports whether (x, y) is the maximum of its window. Ties
// are broken in favour of the earlier pixel in raster order.
func isLocalMax(resp *l1image.Image[float32], x, y, r int) bool {
	v := resp.At(x, y)
	for j := -r; j <= r; j++ {
		yy := y + j
		if yy < 0 || yy >= resp.Height {
			continue
		}
		for i := -r; i <= r; i++ {
			xx := x + i
			if xx < 0 || xx >= resp.Width || (i == 0 && j == 0) {
				continue
			}
			o := resp.At(xx, yy)
			if o > v || (o == v && (j < 0 || (j == 0 && i < 0))) {
				return false
			}
		}
	}
	return true
}
