package geometry

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-9

func TestNormalizeRoundTrip(t *testing.T) {
	s := Size{Width: 1920, Height: 1080}
	cases := []struct{ px, py float64 }{
		{0, 0},
		{960, 540},
		{1920, 1080},
		{123.5, 987.25},
	}
	for _, c := range cases {
		p, err := Normalize(c.px, c.py, s)
		if err != nil {
			t.Fatalf("Normalize(%g, %g): %v", c.px, c.py, err)
		}
		x, y := Denormalize(p, s)
		if math.Abs(x-c.px) > tolerance || math.Abs(y-c.py) > tolerance {
			t.Errorf("round trip (%g, %g) -> (%g, %g)", c.px, c.py, x, y)
		}
	}
}

func TestNormalizeClamps(t *testing.T) {
	s := Size{Width: 100, Height: 100}
	p, err := Normalize(-50, 250, s)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if p.X != 0 || p.Y != 1 {
		t.Errorf("expected clamped (0, 1), got (%g, %g)", p.X, p.Y)
	}
}

func TestNormalizeDegenerateSurface(t *testing.T) {
	for _, s := range []Size{{0, 100}, {100, 0}, {0, 0}, {-1, 100}} {
		p, err := Normalize(50, 50, s)
		if !errors.Is(err, ErrDegenerateGeometry) {
			t.Errorf("size %v: expected ErrDegenerateGeometry, got %v", s, err)
		}
		if p.X != 0 || p.Y != 0 {
			t.Errorf("size %v: expected origin, got (%g, %g)", s, p.X, p.Y)
		}
	}
}

func TestDenormalizeDoesNotClamp(t *testing.T) {
	s := Size{Width: 200, Height: 100}
	x, y := Denormalize(Point{X: 1.5, Y: -0.5}, s)
	if x != 300 || y != -50 {
		t.Errorf("expected (300, -50), got (%g, %g)", x, y)
	}
}

func TestNormalizeBatch(t *testing.T) {
	s := Size{Width: 100, Height: 100}
	points, err := NormalizeBatch([]float64{0, 0, 50, 50, 100, 100}, s)
	if err != nil {
		t.Fatalf("NormalizeBatch: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if points[1].X != 0.5 || points[1].Y != 0.5 {
		t.Errorf("expected midpoint (0.5, 0.5), got (%g, %g)", points[1].X, points[1].Y)
	}

	if _, err := NormalizeBatch([]float64{1, 2, 3}, s); err == nil {
		t.Error("expected error for odd coordinate count")
	}
	if _, err := NormalizeBatch([]float64{1, 2}, Size{}); !errors.Is(err, ErrDegenerateGeometry) {
		t.Errorf("expected ErrDegenerateGeometry, got %v", err)
	}
}

func TestDenormalizeBatch(t *testing.T) {
	s := Size{Width: 10, Height: 20}
	pixels := DenormalizeBatch([]Point{{X: 0.5, Y: 0.5}, {X: 1, Y: 1}}, s)
	want := []float64{5, 10, 10, 20}
	if len(pixels) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(pixels))
	}
	for i := range want {
		if math.Abs(pixels[i]-want[i]) > tolerance {
			t.Errorf("pixel %d: expected %g, got %g", i, want[i], pixels[i])
		}
	}
}

func TestFromPointerDefaultPressure(t *testing.T) {
	s := Size{Width: 100, Height: 100}
	p, err := FromPointer(50, 50, 0, s)
	if err != nil {
		t.Fatalf("FromPointer: %v", err)
	}
	if p.Pressure != DefaultPressure {
		t.Errorf("expected default pressure %g, got %g", DefaultPressure, p.Pressure)
	}

	p, err = FromPointer(50, 50, 2.5, s)
	if err != nil {
		t.Fatalf("FromPointer: %v", err)
	}
	if p.Pressure != 1 {
		t.Errorf("expected clamped pressure 1, got %g", p.Pressure)
	}

	if _, err := FromPointer(50, 50, 0.5, Size{}); !errors.Is(err, ErrDegenerateGeometry) {
		t.Errorf("expected ErrDegenerateGeometry, got %v", err)
	}
}
