package render

import "sort"

// Sampler bilinearly interpolates a field defined on a regular (but not
// necessarily uniform) coordinate grid. Descending axes are reversed to
// ascending internally; the caller's row/column order is unchanged.
// Points outside the grid domain return the fill value, never an
// extrapolation.
type Sampler struct {
	xs, ys []float64   // ascending
	values [][]float64 // indexed [y][x] in ascending axis order
	fill   float64
}

// NewSampler builds a sampler over values indexed [lat][lon] with the given
// coordinate vectors. fill is returned for out-of-domain points.
func NewSampler(lons, lats []float64, values [][]float64, fill float64) *Sampler {
	s := &Sampler{fill: fill}

	s.xs = lons
	s.ys = lats
	s.values = values

	if len(lats) > 1 && lats[0] > lats[len(lats)-1] {
		s.ys = reversed(lats)
		rows := make([][]float64, len(values))
		for i := range values {
			rows[i] = values[len(values)-1-i]
		}
		s.values = rows
	}
	if len(lons) > 1 && lons[0] > lons[len(lons)-1] {
		s.xs = reversed(lons)
		rows := make([][]float64, len(s.values))
		for i, row := range s.values {
			rows[i] = reversed(row)
		}
		s.values = rows
	}
	return s
}

func reversed(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[len(v)-1-i] = x
	}
	return out
}

// At returns the bilinear interpolation of the field at (lon, lat).
func (s *Sampler) At(lon, lat float64) float64 {
	xi, xf, ok := locate(s.xs, lon)
	if !ok {
		return s.fill
	}
	yi, yf, ok := locate(s.ys, lat)
	if !ok {
		return s.fill
	}

	v00 := s.values[yi][xi]
	v01 := s.values[yi][xi+1]
	v10 := s.values[yi+1][xi]
	v11 := s.values[yi+1][xi+1]

	top := v00*(1-xf) + v01*xf
	bot := v10*(1-xf) + v11*xf
	return top*(1-yf) + bot*yf
}

// locate finds the cell [i, i+1] bracketing v on an ascending axis and the
// fractional position within it.
func locate(axis []float64, v float64) (i int, f float64, ok bool) {
	n := len(axis)
	if n < 2 || v < axis[0] || v > axis[n-1] {
		return 0, 0, false
	}
	i = sort.SearchFloat64s(axis, v) - 1
	if i < 0 {
		i = 0
	}
	if i > n-2 {
		i = n - 2
	}
	span := axis[i+1] - axis[i]
	if span <= 0 {
		return i, 0, true
	}
	f = (v - axis[i]) / span
	return i, f, true
}
