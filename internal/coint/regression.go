package coint

import (
	"fmt"
	"math"
)

// olsMulti solves a small multiple regression target = X*b by normal
// equations and returns coefficients with their standard errors. cols are
// the design matrix columns. Meant for the handful-of-regressors cases in
// this package; no linear algebra dependency is warranted for 3x3 systems.
func olsMulti(cols [][]float64, target []float64) (coefs, stderrs []float64, err error) {
	k := len(cols)
	if k == 0 || k > 4 {
		return nil, nil, fmt.Errorf("coint: unsupported regressor count %d", k)
	}
	n := len(target)
	for _, c := range cols {
		if len(c) != n {
			return nil, nil, fmt.Errorf("coint: ragged design matrix")
		}
	}
	if n <= k {
		return nil, nil, fmt.Errorf("%w: %d rows for %d coefficients", ErrInsufficientData, n, k)
	}

	// normal equations: (X'X) b = X'y
	xtx := make([][]float64, k)
	xty := make([]float64, k)
	for i := 0; i < k; i++ {
		xtx[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			var s float64
			for r := 0; r < n; r++ {
				s += cols[i][r] * cols[j][r]
			}
			xtx[i][j] = s
		}
		var s float64
		for r := 0; r < n; r++ {
			s += cols[i][r] * target[r]
		}
		xty[i] = s
	}

	inv, err := invert(xtx)
	if err != nil {
		return nil, nil, err
	}

	coefs = make([]float64, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			coefs[i] += inv[i][j] * xty[j]
		}
	}

	var rss float64
	for r := 0; r < n; r++ {
		pred := 0.0
		for i := 0; i < k; i++ {
			pred += coefs[i] * cols[i][r]
		}
		e := target[r] - pred
		rss += e * e
	}
	sigma2 := rss / float64(n-k)

	stderrs = make([]float64, k)
	for i := 0; i < k; i++ {
		v := sigma2 * inv[i][i]
		if v < 0 {
			v = 0
		}
		stderrs[i] = math.Sqrt(v)
	}
	return coefs, stderrs, nil
}

// invert computes the inverse of a small symmetric positive matrix by
// Gauss-Jordan elimination with partial pivoting.
func invert(m [][]float64) ([][]float64, error) {
	k := len(m)
	aug := make([][]float64, k)
	for i := range aug {
		aug[i] = make([]float64, 2*k)
		copy(aug[i], m[i])
		aug[i][k+i] = 1
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("coint: singular design matrix")
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		p := aug[col][col]
		for j := 0; j < 2*k; j++ {
			aug[col][j] /= p
		}
		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			f := aug[r][col]
			for j := 0; j < 2*k; j++ {
				aug[r][j] -= f * aug[col][j]
			}
		}
	}

	inv := make([][]float64, k)
	for i := range inv {
		inv[i] = aug[i][k:]
	}
	return inv, nil
}
