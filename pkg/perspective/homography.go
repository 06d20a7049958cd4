package perspective

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/menta2k/page-rectifier/pkg/geometry"
)

// Homography is a row-major 3x3 projective transform.
type Homography [9]float64

// ComputeHomography returns the transform mapping src[i] onto dst[i]. Both
// point sets are normalized (centroid at the origin, mean distance sqrt 2)
// before the 8x8 system is solved, which keeps it well conditioned for pixel
// coordinates.
func ComputeHomography(src, dst [4]geometry.Point2D) (Homography, error) {
	ts, err := normalization(src[:])
	if err != nil {
		return Homography{}, err
	}
	td, err := normalization(dst[:])
	if err != nil {
		return Homography{}, err
	}

	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		s := ts.Apply(src[i])
		d := td.Apply(dst[i])
		a.SetRow(2*i, []float64{s.X, s.Y, 1, 0, 0, 0, -d.X * s.X, -d.X * s.Y})
		a.SetRow(2*i+1, []float64{0, 0, 0, s.X, s.Y, 1, -d.Y * s.X, -d.Y * s.Y})
		b.SetVec(2*i, d.X)
		b.SetVec(2*i+1, d.Y)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Homography{}, fmt.Errorf("solve homography: %w", err)
	}
	var hn Homography
	for i := 0; i < 8; i++ {
		hn[i] = h.AtVec(i)
	}
	hn[8] = 1

	tdInv, err := td.Inverse()
	if err != nil {
		return Homography{}, err
	}
	return tdInv.Mul(hn).Mul(ts), nil
}

// Apply maps p through the transform.
func (h Homography) Apply(p geometry.Point2D) geometry.Point2D {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return geometry.Pt(math.Inf(1), math.Inf(1))
	}
	return geometry.Pt((h[0]*p.X+h[1]*p.Y+h[2])/w, (h[3]*p.X+h[4]*p.Y+h[5])/w)
}

// Mul returns h * o.
func (h Homography) Mul(o Homography) Homography {
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += h[r*3+k] * o[k*3+c]
			}
			out[r*3+c] = sum
		}
	}
	return out
}

// Inverse returns the inverse transform.
func (h Homography) Inverse() (Homography, error) {
	m := mat.NewDense(3, 3, h[:])
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Homography{}, fmt.Errorf("invert homography: %w", err)
	}
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = inv.At(r, c)
		}
	}
	return out, nil
}

func normalization(points []geometry.Point2D) (Homography, error) {
	c := geometry.Centroid(points)
	var mean float64
	for _, p := range points {
		mean += p.Distance(c)
	}
	mean /= float64(len(points))
	if mean < 1e-9 {
		return Homography{}, fmt.Errorf("points coincide")
	}
	s := math.Sqrt2 / mean
	return Homography{s, 0, -s * c.X, 0, s, -s * c.Y, 0, 0, 1}, nil
}
