package features

import (
	"github.com/banshee-data/featuretrack/internal/vision/l1image"
	"github.com/banshee-data/featuretrack/internal/vision/l4dda"
)

// fastCircle is the 16-pixel Bresenham circle of radius 3, clockwise from
// the top.
var fastCircle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// fastArc is the contiguous arc length that makes a FAST-9 corner.
const fastArc = 9

// FastDetector is the FAST-9 segment test: a pixel is a corner when at
// least nine contiguous circle pixels are all brighter or all darker than
// it by more than the threshold. The score is the summed excess over the
// threshold of the qualifying pixels.
type FastDetector struct {
	cfg DetectorConfig
}

var _ l4dda.Detector = (*FastDetector)(nil)

// NewFast returns a FAST-9 detector.
func NewFast(cfg DetectorConfig) *FastDetector {
	return &FastDetector{cfg: cfg}
}

// Detect implements l4dda.Detector.
func (d *FastDetector) Detect(img *l1image.Image[float32]) []l4dda.Point {
	w, h := img.Width, img.Height
	if w < 7 || h < 7 {
		return nil
	}
	t := float32(d.cfg.FastThreshold)
	score := l1image.New[float32](w, h)
	var ring [16]float32
	for y := 3; y < h-3; y++ {
		for x := 3; x < w-3; x++ {
			p := img.At(x, y)
			for i, o := range fastCircle {
				ring[i] = img.At(x+o[0], y+o[1]) - p
			}
			score.Set(x, y, segmentScore(&ring, t))
		}
	}
	cfg := d.cfg
	cfg.Border = max(cfg.Border, 3)
	return selectMaxima(score, 0, cfg)
}

// segmentScore returns the corner score for a ring of differences, or
// zero when no arc of fastArc pixels passes.
func segmentScore(ring *[16]float32, t float32) float32 {
	var best float32
	for _, sign := range [2]float32{1, -1} {
		run := 0
		var sum, runSum float32
		passed := false
		// Walk the ring twice so arcs that wrap are counted.
		for k := 0; k < 32; k++ {
			v := sign * ring[k%16]
			if v > t {
				run++
				runSum += v - t
				if run >= fastArc {
					passed = true
					sum = max(sum, runSum)
				}
			} else {
				run = 0
				runSum = 0
			}
			if run == 16 {
				break
			}
		}
		if passed {
			best = max(best, sum)
		}
	}
	return best
}
