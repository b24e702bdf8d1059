// Package geometry converts between pixel coordinates on a capture
// surface and normalized coordinates in the unit square. Annotations
// travel over the wire normalized so peers with different window sizes
// render them in the same place.
package geometry

import (
	"errors"
	"fmt"
)

// ErrDegenerateGeometry is returned when a surface has zero or negative
// dimensions and a point cannot be meaningfully normalized.
var ErrDegenerateGeometry = errors.New("degenerate surface geometry")

// DefaultPressure is used when a pointer device reports no pressure.
const DefaultPressure = 0.5

// Point is a normalized annotation point. X and Y are always in [0,1].
type Point struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure"`
}

// Size describes a capture surface in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the surface has positive area.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Clamp01 clamps v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Normalize maps a pixel coordinate on the surface to the unit square.
// Out-of-bounds pixels are clamped. A surface without positive area
// yields the origin and ErrDegenerateGeometry.
func Normalize(px, py float64, s Size) (Point, error) {
	if !s.Valid() {
		return Point{}, fmt.Errorf("normalize %gx%g: %w", s.Width, s.Height, ErrDegenerateGeometry)
	}
	return Point{
		X:        Clamp01(px / s.Width),
		Y:        Clamp01(py / s.Height),
		Pressure: DefaultPressure,
	}, nil
}

// Denormalize maps a normalized point back to pixel coordinates on the
// surface. No clamping: the render boundary trusts stored points,
// which are already in the unit square.
func Denormalize(p Point, s Size) (x, y float64) {
	return p.X * s.Width, p.Y * s.Height
}

// NormalizeBatch normalizes a slice of pixel coordinate pairs. Pixels
// is interpreted as (x0, y0, x1, y1, ...); an odd-length slice or a
// degenerate surface fails the whole batch.
func NormalizeBatch(pixels []float64, s Size) ([]Point, error) {
	if len(pixels)%2 != 0 {
		return nil, fmt.Errorf("normalize batch: odd coordinate count %d", len(pixels))
	}
	if !s.Valid() {
		return nil, fmt.Errorf("normalize batch %gx%g: %w", s.Width, s.Height, ErrDegenerateGeometry)
	}
	points := make([]Point, 0, len(pixels)/2)
	for i := 0; i < len(pixels); i += 2 {
		p, err := Normalize(pixels[i], pixels[i+1], s)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// DenormalizeBatch maps normalized points back to pixel pairs in the
// same (x0, y0, x1, y1, ...) layout NormalizeBatch consumes.
func DenormalizeBatch(points []Point, s Size) []float64 {
	pixels := make([]float64, 0, len(points)*2)
	for _, p := range points {
		x, y := Denormalize(p, s)
		pixels = append(pixels, x, y)
	}
	return pixels
}

// FromPointer builds a normalized point from a raw pointer event.
// Devices that report no pressure send zero or a negative value; those
// get DefaultPressure so pen width math stays stable.
func FromPointer(px, py, pressure float64, s Size) (Point, error) {
	p, err := Normalize(px, py, s)
	if err != nil {
		return Point{}, err
	}
	if pressure <= 0 {
		p.Pressure = DefaultPressure
	} else {
		p.Pressure = Clamp01(pressure)
	}
	return p, nil
}
