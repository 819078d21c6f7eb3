//go:build opencv

package cvbridge

import (
	"fmt"
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"

	"github.com/banshee-data/featuretrack/internal/vision/features"
	"github.com/banshee-data/featuretrack/internal/vision/l1image"
	"github.com/banshee-data/featuretrack/internal/vision/l2pyramid"
	"github.com/banshee-data/featuretrack/internal/vision/l4dda"
)

const available = true

// orbPatchRadius bounds the patch copied for one ORB description. It
// covers the 31 pixel ORB patch plus OpenCV's edge threshold.
const orbPatchRadius = 48

func newBlurrer() l2pyramid.Blurrer { return &GaussianBlur{} }

func newGradient() l2pyramid.GradientProvider { return &Sobel{} }

func newDetector(name string, cfg features.DetectorConfig) (l4dda.Detector, error) {
	switch name {
	case features.DetectorFast:
		return &FastDetector{cfg: cfg}, nil
	case features.DetectorShiTomasi:
		return &GoodFeatures{cfg: cfg}, nil
	}
	return features.NewDetector(name, cfg)
}

func newDescriber(name string, cfg features.DescriberConfig) (l4dda.Describer, error) {
	if name == features.DescriberORB {
		return ORB{}, nil
	}
	return features.NewDescriber(name, cfg)
}

// toMat copies img into a new CV_32F Mat.
func toMat(img *l1image.Image[float32]) (gocv.Mat, error) {
	m := gocv.NewMatWithSize(img.Height, img.Width, gocv.MatTypeCV32F)
	data, err := m.DataPtrFloat32()
	if err != nil {
		m.Close()
		return gocv.Mat{}, err
	}
	for y := 0; y < img.Height; y++ {
		copy(data[y*img.Width:(y+1)*img.Width], img.Row(y))
	}
	return m, nil
}

// fromMat copies a continuous CV_32F Mat into dst.
func fromMat(m gocv.Mat, dst *l1image.Image[float32]) error {
	data, err := m.DataPtrFloat32()
	if err != nil {
		return err
	}
	dst.Reshape(m.Cols(), m.Rows())
	copy(dst.Pix, data)
	return nil
}

// to8U copies img into a new CV_8U Mat, saturating to [0, 255].
func to8U(img *l1image.Image[float32]) (gocv.Mat, error) {
	f, err := toMat(img)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer f.Close()
	u := gocv.NewMat()
	f.ConvertTo(&u, gocv.MatTypeCV8U)
	if u.Empty() {
		u.Close()
		return gocv.Mat{}, fmt.Errorf("cvbridge: conversion to 8 bit failed")
	}
	return u, nil
}

// GaussianBlur is a 5×5 Gaussian with σ = 1 and replicated borders,
// matching features.BinomialBlur. It falls back to the native filter if
// OpenCV fails.
type GaussianBlur struct {
	fallback features.BinomialBlur
}

// Blur implements l2pyramid.Blurrer.
func (b *GaussianBlur) Blur(src, dst *l1image.Image[float32]) {
	in, err := toMat(src)
	if err != nil {
		opsf("blur: %v, using native filter", err)
		b.fallback.Blur(src, dst)
		return
	}
	defer in.Close()
	out := gocv.NewMat()
	defer out.Close()
	gocv.GaussianBlur(in, &out, image.Point{X: 5, Y: 5}, 1, 1, gocv.BorderReplicate)
	if err := fromMat(out, dst); err != nil {
		opsf("blur: %v, using native filter", err)
		b.fallback.Blur(src, dst)
	}
}

// Sobel computes 3×3 Sobel derivatives scaled by 1/8 with replicated
// borders, matching features.Sobel.
type Sobel struct {
	fallback features.Sobel
}

// Gradient implements l2pyramid.GradientProvider.
func (s *Sobel) Gradient(src, dx, dy *l1image.Image[float32]) {
	in, err := toMat(src)
	if err != nil {
		opsf("gradient: %v, using native filter", err)
		s.fallback.Gradient(src, dx, dy)
		return
	}
	defer in.Close()
	gx, gy := gocv.NewMat(), gocv.NewMat()
	defer gx.Close()
	defer gy.Close()
	gocv.Sobel(in, &gx, gocv.MatTypeCV32F, 1, 0, 3, 0.125, 0, gocv.BorderReplicate)
	gocv.Sobel(in, &gy, gocv.MatTypeCV32F, 0, 1, 3, 0.125, 0, gocv.BorderReplicate)
	if err := fromMat(gx, dx); err != nil {
		opsf("gradient: %v, using native filter", err)
		s.fallback.Gradient(src, dx, dy)
		return
	}
	if err := fromMat(gy, dy); err != nil {
		opsf("gradient: %v, using native filter", err)
		s.fallback.Gradient(src, dx, dy)
	}
}

// FastDetector wraps OpenCV's FAST-9 detector with non-maximum
// suppression.
type FastDetector struct {
	cfg features.DetectorConfig
}

// Detect implements l4dda.Detector.
func (d *FastDetector) Detect(img *l1image.Image[float32]) []l4dda.Point {
	u, err := to8U(img)
	if err != nil {
		opsf("fast: %v", err)
		return nil
	}
	defer u.Close()
	fast := gocv.NewFastFeatureDetectorWithParams(int(d.cfg.FastThreshold), true, gocv.FastFeatureDetectorType9To16)
	defer fast.Close()
	kps := fast.Detect(u)
	pts := make([]l4dda.Point, 0, len(kps))
	for _, kp := range kps {
		pts = append(pts, l4dda.Point{X: kp.X, Y: kp.Y, Response: kp.Response})
	}
	pts = limit(pts, img.Width, img.Height, d.cfg)
	tracef("fast: %d keypoints, %d kept", len(kps), len(pts))
	return pts
}

// GoodFeatures wraps cv::goodFeaturesToTrack, the Shi-Tomasi detector.
type GoodFeatures struct {
	cfg features.DetectorConfig
}

// Detect implements l4dda.Detector. OpenCV returns corners strongest
// first without scores, so Response encodes the rank.
func (d *GoodFeatures) Detect(img *l1image.Image[float32]) []l4dda.Point {
	in, err := toMat(img)
	if err != nil {
		opsf("good features: %v", err)
		return nil
	}
	defer in.Close()
	corners := gocv.NewMat()
	defer corners.Close()
	quality := d.cfg.RelativeThreshold
	if quality <= 0 {
		quality = 0.01
	}
	gocv.GoodFeaturesToTrack(in, &corners, d.cfg.MaxFeatures, quality, float64(max(d.cfg.Radius, 1)))
	n := corners.Rows()
	pts := make([]l4dda.Point, 0, n)
	for i := 0; i < n; i++ {
		v := corners.GetVecfAt(i, 0)
		pts = append(pts, l4dda.Point{X: float64(v[0]), Y: float64(v[1]), Response: float64(n - i)})
	}
	pts = limit(pts, img.Width, img.Height, d.cfg)
	tracef("good features: %d corners, %d kept", n, len(pts))
	return pts
}

// limit drops points inside the border and keeps the MaxFeatures
// strongest, ordered by decreasing response.
func limit(pts []l4dda.Point, w, h int, cfg features.DetectorConfig) []l4dda.Point {
	b := float64(cfg.Border)
	kept := pts[:0]
	for _, p := range pts {
		if p.X < b || p.Y < b || p.X > float64(w-1)-b || p.Y > float64(h-1)-b {
			continue
		}
		kept = append(kept, p)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Response > kept[j].Response })
	if cfg.MaxFeatures > 0 && len(kept) > cfg.MaxFeatures {
		kept = kept[:cfg.MaxFeatures]
	}
	return kept
}

// ORB computes 256 bit ORB descriptors with OpenCV. Each call copies a
// patch around the point so concurrent calls share no OpenCV state.
type ORB struct{}

// Metric implements l4dda.Describer.
func (ORB) Metric() l4dda.Metric { return l4dda.Hamming }

// Describe implements l4dda.Describer.
func (ORB) Describe(img *l1image.Image[float32], p l4dda.Point) (l4dda.Descriptor, bool) {
	r := orbPatchRadius
	cx, cy := int(math.Round(p.X)), int(math.Round(p.Y))
	if cx-r < 0 || cy-r < 0 || cx+r >= img.Width || cy+r >= img.Height {
		return l4dda.Descriptor{}, false
	}
	size := 2*r + 1
	patch := gocv.NewMatWithSize(size, size, gocv.MatTypeCV8U)
	defer patch.Close()
	for y := 0; y < size; y++ {
		row := img.Row(cy - r + y)
		for x := 0; x < size; x++ {
			patch.SetUCharAt(y, x, saturate(row[cx-r+x]))
		}
	}

	orb := gocv.NewORB()
	defer orb.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	kp := gocv.KeyPoint{
		X:    float64(r) + p.X - float64(cx),
		Y:    float64(r) + p.Y - float64(cy),
		Size: 31,
	}
	kps, desc := orb.Compute(patch, mask, []gocv.KeyPoint{kp})
	defer desc.Close()
	if len(kps) != 1 || desc.Rows() != 1 {
		return l4dda.Descriptor{}, false
	}
	cols := desc.Cols()
	bits := make([]uint64, (cols+7)/8)
	for j := 0; j < cols; j++ {
		bits[j/8] |= uint64(desc.GetUCharAt(0, j)) << (8 * uint(j%8))
	}
	return l4dda.Descriptor{Bits: bits}, true
}

func saturate(v float32) uint8 {
	switch {
	case v <= 0 || v != v:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
