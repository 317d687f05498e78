package grid

import (
	"math"
	"time"

	"github.com/ecvx/ecvserv/proj"
)

// Point is one sample of a point time series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// nearestIndex returns the index of the coordinate closest to v. The vector
// may be ascending or descending.
func nearestIndex(coords []float64, v float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, c := range coords {
		if d := math.Abs(c - v); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// Timeseries extracts the full time dimension at the grid cell nearest to
// (lon, lat), dropping missing entries, in ascending time order.
//
// Nearest means independent nearest-index search on each coordinate axis,
// not a geodesic nearest-point search; near the poles or on anisotropic
// grids the chosen cell can be geodesically suboptimal. This matches the
// lookup the interactive map performs.
func (s *Store) Timeseries(datasetID, variable string, lon, lat float64) ([]Point, error) {
	ds, err := s.getDataset(datasetID)
	if err != nil {
		if err == ErrNotFound {
			return []Point{}, nil
		}
		return nil, err
	}
	info := Datasets[datasetID]
	if _, ok := info.Variables[variable]; !ok {
		return []Point{}, nil
	}

	// Polar grids are indexed by projected meters, so the click position is
	// forward-projected before the nearest-index search. Geographic grids
	// keep their file-native longitude convention here, so a western
	// longitude folds onto a 0..360 axis.
	x, y := lon, lat
	if ds.projected {
		x, y = proj.LonLatToPolarStereographicNorth(lon, lat)
	} else if x < 0 && len(ds.lons) > 0 && ds.lons[len(ds.lons)-1] > 180 {
		x += 360
	}
	col := nearestIndex(ds.lons, x)
	row := nearestIndex(ds.lats, y)

	vg, err := ds.nc.GetVarGetter(variable)
	if err != nil {
		return []Point{}, nil
	}

	samples := make([]float64, len(ds.times))
	for t := range ds.times {
		raw, err := vg.GetSlice(int64(t), int64(t)+1)
		if err != nil {
			return nil, err
		}
		values, err := coerceSlice(raw)
		if err != nil {
			return nil, err
		}
		samples[t] = values[row][col]
	}
	return cleanSeries(ds.times, samples), nil
}

// cleanSeries pairs samples with timestamps, dropping missing entries.
func cleanSeries(times []time.Time, samples []float64) []Point {
	pts := make([]Point, 0, len(samples))
	for i, v := range samples {
		if Missing(v) {
			continue
		}
		pts = append(pts, Point{Time: times[i], Value: v})
	}
	return pts
}
