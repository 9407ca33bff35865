package main

import (
	"fmt"
	"math"
)

// Affine is a 2D affine matrix in screen coordinates (y grows downward):
//
//	x' = a*x + b*y + c
//	y' = d*x + e*y + f
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Point is a position in CSS pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IdentityAffine leaves points unchanged
func IdentityAffine() Affine {
	return Affine{A: 1, E: 1}
}

// Multiply returns m * other, which applies other first and then m
func (m Affine) Multiply(other Affine) Affine {
	return Affine{
		A: m.A*other.A + m.B*other.D,
		B: m.A*other.B + m.B*other.E,
		C: m.A*other.C + m.B*other.F + m.C,
		D: m.D*other.A + m.E*other.D,
		E: m.D*other.B + m.E*other.E,
		F: m.D*other.C + m.E*other.F + m.F,
	}
}

// Apply maps a point through the matrix
func (m Affine) Apply(p Point) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.C,
		Y: m.D*p.X + m.E*p.Y + m.F,
	}
}

// CSS renders the matrix as a CSS matrix() function
func (m Affine) CSS() string {
	return fmt.Sprintf("matrix(%g, %g, %g, %g, %g, %g)", m.A, m.D, m.B, m.E, m.C, m.F)
}

// matrix resolves a single op for an element of the given size.
// CSS rotate() is clockwise on screen because y points down.
func (op AffineOp) matrix(width, height float64) Affine {
	switch op.Kind {
	case OpScaleX:
		return Affine{A: op.Scale, E: 1}
	case OpScaleY:
		return Affine{A: 1, E: op.Scale}
	case OpRotate:
		cos, sin := rightAngleCosSin(op.Degrees)
		return Affine{A: cos, B: -sin, D: sin, E: cos}
	case OpTranslate:
		return Affine{A: 1, E: 1, C: op.X / 100 * width, F: op.Y / 100 * height}
	case OpTranslateX:
		return Affine{A: 1, E: 1, C: op.X / 100 * width}
	case OpTranslateY:
		return Affine{A: 1, E: 1, F: op.Y / 100 * height}
	}
	return IdentityAffine()
}

// rightAngleCosSin is exact for multiples of 90 degrees
func rightAngleCosSin(degrees float64) (float64, float64) {
	turns := math.Mod(degrees, 360)
	if turns < 0 {
		turns += 360
	}
	switch turns {
	case 0:
		return 1, 0
	case 90:
		return 0, 1
	case 180:
		return -1, 0
	case 270:
		return 0, -1
	}
	rad := degrees * math.Pi / 180
	return math.Cos(rad), math.Sin(rad)
}

// Matrix composes the transform for an element of width x height, anchored at the origin.
// Only the top-left origin is modelled; the identity transform has no origin.
func (t PreviewTransform) Matrix(width, height float64) Affine {
	m := IdentityAffine()
	for _, op := range t.Ops {
		m = m.Multiply(op.matrix(width, height))
	}
	return m
}
