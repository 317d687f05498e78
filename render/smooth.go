package render

import (
	"math"

	"github.com/ecvx/ecvserv/grid"
	"gonum.org/v1/gonum/floats"
)

// FillMissing replaces missing cells with the mean of the valid cells so a
// later blur does not bleed NaN into valid neighbors, and returns the
// parallel validity field (1 where the cell held real data, 0 where it did
// not). The validity field, blurred alongside the values, becomes the alpha
// weight that gives soft coastlines instead of a hard cliff.
func FillMissing(values [][]float64) (filled, validity [][]float64) {
	var sum float64
	var n int
	for _, row := range values {
		for _, v := range row {
			if !grid.Missing(v) {
				sum += v
				n++
			}
		}
	}
	mean := 0.0
	if n > 0 {
		mean = sum / float64(n)
	}

	filled = make([][]float64, len(values))
	validity = make([][]float64, len(values))
	for i, row := range values {
		f := make([]float64, len(row))
		m := make([]float64, len(row))
		for j, v := range row {
			if grid.Missing(v) {
				f[j] = mean
			} else {
				f[j] = v
				m[j] = 1
			}
		}
		filled[i] = f
		validity[i] = m
	}
	return filled, validity
}

// Smooth applies an isotropic Gaussian blur with standard deviation sigma,
// in grid-index space, and returns a new field. sigma <= 0 returns an
// unmodified copy. Edges reflect.
func Smooth(field [][]float64, sigma float64) [][]float64 {
	out := make([][]float64, len(field))
	for i, row := range field {
		out[i] = append([]float64(nil), row...)
	}
	if sigma <= 0 || len(field) == 0 {
		return out
	}

	k := gaussianKernel(sigma)
	h, w := len(out), len(out[0])

	// Separable blur: rows, then columns.
	tmp := make([]float64, w)
	for y := 0; y < h; y++ {
		convolveReflect(out[y], tmp, k)
		copy(out[y], tmp)
	}
	col := make([]float64, h)
	colOut := make([]float64, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = out[y][x]
		}
		convolveReflect(col, colOut, k)
		for y := 0; y < h; y++ {
			out[y][x] = colOut[y]
		}
	}
	return out
}

// gaussianKernel builds a normalized 1D kernel truncated at 4 sigma.
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(4 * sigma))
	k := make([]float64, 2*radius+1)
	for i := range k {
		d := float64(i - radius)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

func convolveReflect(in, out []float64, k []float64) {
	n := len(in)
	radius := len(k) / 2
	for i := 0; i < n; i++ {
		var acc float64
		for j, kv := range k {
			idx := reflectIndex(i+j-radius, n)
			acc += kv * in[idx]
		}
		out[i] = acc
	}
}

// reflectIndex mirrors an out-of-range index back into [0,n), matching the
// reflect boundary mode of the usual array-processing filters.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}
