package l1image

import (
	"errors"
	"fmt"
	"image"
)

// ErrEmptyImage is returned when an operation requires a non-empty buffer.
var ErrEmptyImage = errors.New("l1image: empty image")

// Pixel is the set of element types a single-band buffer may hold.
type Pixel interface {
	~uint8 | ~uint16 | ~int16 | ~int32 | ~float32 | ~float64
}

// Image is a dense single-band buffer. Pix is row-major; row y starts at
// y*Stride. Stride is at least Width.
type Image[T Pixel] struct {
	Width  int
	Height int
	Stride int
	Pix    []T
}

// Frame is the read-only view the tracker accepts as input. Every *Image[T]
// satisfies it.
type Frame interface {
	Dims() (width, height int)
	Kind() Kind
	// ConvertTo writes the frame into dst as float32, reshaping dst to the
	// frame dimensions.
	ConvertTo(dst *Image[float32])
}

// New allocates a zeroed width×height image.
func New[T Pixel](width, height int) *Image[T] {
	img := &Image[T]{}
	img.Reshape(width, height)
	return img
}

// Reshape changes the image dimensions, reusing the backing array when it
// is large enough. Pixel contents are unspecified afterwards.
func (img *Image[T]) Reshape(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	n := width * height
	if cap(img.Pix) < n {
		img.Pix = make([]T, n)
	} else {
		img.Pix = img.Pix[:n]
	}
	img.Width = width
	img.Height = height
	img.Stride = width
}

// Dims returns the image width and height; a nil image is 0×0.
func (img *Image[T]) Dims() (int, int) {
	if img == nil {
		return 0, 0
	}
	return img.Width, img.Height
}

// Kind reports the element kind of the buffer.
func (img *Image[T]) Kind() Kind {
	return KindOf[T]()
}

// Empty reports whether the image holds no pixels.
func (img *Image[T]) Empty() bool {
	return img == nil || img.Width == 0 || img.Height == 0
}

// InBounds reports whether integer pixel (x, y) lies inside the image.
func (img *Image[T]) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < img.Width && y < img.Height
}

// At returns pixel (x, y). It panics when (x, y) is outside the image,
// like a slice index would.
func (img *Image[T]) At(x, y int) T {
	return img.Pix[y*img.Stride+x]
}

// Set writes pixel (x, y).
func (img *Image[T]) Set(x, y int, v T) {
	img.Pix[y*img.Stride+x] = v
}

// Row returns the pixels of row y.
func (img *Image[T]) Row(y int) []T {
	start := y * img.Stride
	return img.Pix[start : start+img.Width]
}

// Fill sets every pixel to v.
func (img *Image[T]) Fill(v T) {
	for y := 0; y < img.Height; y++ {
		row := img.Row(y)
		for x := range row {
			row[x] = v
		}
	}
}

// ConvertTo implements Frame.
func (img *Image[T]) ConvertTo(dst *Image[float32]) {
	dst.Reshape(img.Width, img.Height)
	for y := 0; y < img.Height; y++ {
		src := img.Row(y)
		out := dst.Row(y)
		for x, v := range src {
			out[x] = float32(v)
		}
	}
}

// Clone returns a deep copy with a compact stride.
func (img *Image[T]) Clone() *Image[T] {
	out := New[T](img.Width, img.Height)
	for y := 0; y < img.Height; y++ {
		copy(out.Row(y), img.Row(y))
	}
	return out
}

// String implements fmt.Stringer for log lines.
func (img *Image[T]) String() string {
	return fmt.Sprintf("%s %dx%d", img.Kind(), img.Width, img.Height)
}

// FromGray copies a standard library gray image into an 8-bit buffer.
func FromGray(src *image.Gray) *Image[uint8] {
	b := src.Bounds()
	out := New[uint8](b.Dx(), b.Dy())
	for y := 0; y < out.Height; y++ {
		off := (y+b.Min.Y-src.Rect.Min.Y)*src.Stride + (b.Min.X - src.Rect.Min.X)
		copy(out.Row(y), src.Pix[off:off+out.Width])
	}
	return out
}

// FromGray16 copies a standard library 16-bit gray image.
func FromGray16(src *image.Gray16) *Image[uint16] {
	b := src.Bounds()
	out := New[uint16](b.Dx(), b.Dy())
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			out.Set(x, y, src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
		}
	}
	return out
}
