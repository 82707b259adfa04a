// Package vrs is the VRS (Virtual Reference Station) Engine: it fits a
// planar residual gradient across the baselines around a synced
// subnet, uses it plus a Saastamoinen troposphere correction to
// synthesize a virtual station's carrier-phase/pseudorange
// observations, and emits them as an MSM RTCM3 message (spec §4.7).
package vrs

import "github.com/bramburn/gnssgo/pkg/gnssgo"

// fitGradient solves the small (<=3-unknown) weighted least-squares
// problem `H·c ≈ v` for the ENU gradient c, by the normal-equations
// method with ridge regularization added to the diagonal when the
// system is rank-deficient (near-collinear baselines). No example
// repo in this corpus ships a linear-algebra library (no gonum or
// equivalent anywhere in the pack's go.mod set); this mirrors
// pkg/gnssgo/geo.go's own stance that closed-form/small-matrix
// numerics stay on the standard library absent a pack alternative.
//
// rows holds each baseline's ENU displacement vector from the synced
// vertex to its peer; targets holds the corresponding per-
// (satellite,frequency) residual. Returns ok=false when fewer than 2
// rows are given (spec §4.7: "skip non-converged residual fits,
// m<2").
func fitGradient(rows []gnssgo.Vec3, targets []float64, ridge float64) (gnssgo.Vec3, bool) {
	m := len(rows)
	if m < 2 || m != len(targets) {
		return gnssgo.Vec3{}, false
	}

	var ata [3][3]float64
	var atb [3]float64
	for i := 0; i < m; i++ {
		r := rows[i]
		for a := 0; a < 3; a++ {
			atb[a] += r[a] * targets[i]
			for b := 0; b < 3; b++ {
				ata[a][b] += r[a] * r[b]
			}
		}
	}
	for a := 0; a < 3; a++ {
		ata[a][a] += ridge
	}

	c, ok := solve3(ata, atb)
	if !ok {
		return gnssgo.Vec3{}, false
	}
	return gnssgo.Vec3{c[0], c[1], c[2]}, true
}

// solve3 solves the 3x3 linear system a·x = b by Gaussian elimination
// with partial pivoting, returning ok=false if a is singular even
// after ridge regularization.
func solve3(a [3][3]float64, b [3]float64) ([3]float64, bool) {
	const eps = 1e-12

	// augmented matrix
	var m [3][4]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = a[i][j]
		}
		m[i][3] = b[i]
	}

	for col := 0; col < 3; col++ {
		pivot := col
		for r := col + 1; r < 3; r++ {
			if abs(m[r][col]) > abs(m[pivot][col]) {
				pivot = r
			}
		}
		m[col], m[pivot] = m[pivot], m[col]
		if abs(m[col][col]) < eps {
			return [3]float64{}, false
		}
		for r := col + 1; r < 3; r++ {
			factor := m[r][col] / m[col][col]
			for c := col; c < 4; c++ {
				m[r][c] -= factor * m[col][c]
			}
		}
	}

	var x [3]float64
	for i := 2; i >= 0; i-- {
		sum := m[i][3]
		for j := i + 1; j < 3; j++ {
			sum -= m[i][j] * x[j]
		}
		x[i] = sum / m[i][i]
	}
	return x, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
