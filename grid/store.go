// Package grid reads time/lat/lon climate variables out of NetCDF stores and
// hands normalized 2D slices to the render pipeline.
package grid

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/dsnet/compress/bzip2"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrNotFound reports a dataset, variable, or time index that does not
	// exist in the store.
	ErrNotFound = errors.New("grid: not found")
)

// TZ=UTC date --date="1900-01-01 00:00:00" +%s
const unixSecs1900 = -2208988800

// missingThreshold marks sentinel fill values that some products use in
// place of NaN.
const missingThreshold = 1e30

// Missing reports whether a cell holds no data.
func Missing(v float64) bool {
	return math.IsNaN(v) || math.Abs(v) >= missingThreshold
}

// VariableInfo describes one variable of a dataset.
type VariableInfo struct {
	Name     string `json:"name"`
	Units    string `json:"units"`
	Colormap string `json:"colormap"`
}

// DatasetInfo describes one dataset in the registry.
type DatasetInfo struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name"`
	File       string                  `json:"-"`
	Projection string                  `json:"projection"`
	Variables  map[string]VariableInfo `json:"variables"`
}

// Datasets is the static dataset registry.
var Datasets = map[string]DatasetInfo{
	"radiation": {
		ID:         "radiation",
		Name:       "Earth Radiation Budget",
		File:       "radiation.nc",
		Projection: "EPSG:3857",
		Variables: map[string]VariableInfo{
			"incoming_shortwave_radiation": {Name: "Incoming Shortwave Radiation", Units: "W/m²", Colormap: "YlOrRd"},
			"outgoing_longwave_radiation":  {Name: "Outgoing Longwave Radiation", Units: "W/m²", Colormap: "RdYlBu_r"},
			"outgoing_shortwave_radiation": {Name: "Outgoing Shortwave Radiation", Units: "W/m²", Colormap: "YlOrRd"},
		},
	},
	"era5_land": {
		ID:         "era5_land",
		Name:       "ERA5-Land Temperature",
		File:       "era5_land.nc",
		Projection: "EPSG:3857",
		Variables: map[string]VariableInfo{
			"2m_temperature":   {Name: "2m Temperature", Units: "°C", Colormap: "RdYlBu_r"},
			"skin_temperature": {Name: "Skin Temperature", Units: "°C", Colormap: "RdYlBu_r"},
		},
	},
	"soil_moisture": {
		ID:         "soil_moisture",
		Name:       "Satellite Soil Moisture",
		File:       "soil_moisture.nc",
		Projection: "EPSG:3857",
		Variables: map[string]VariableInfo{
			"volumetric_surface_soil_moisture": {Name: "Volumetric Surface Soil Moisture", Units: "m³/m³", Colormap: "YlGnBu"},
			"surface_soil_moisture":            {Name: "Surface Soil Moisture", Units: "m³/m³", Colormap: "YlGnBu"},
		},
	},
	"sea_ice": {
		ID:         "sea_ice",
		Name:       "Sea Ice Concentration",
		File:       "sea_ice.nc",
		Projection: "EPSG:3413",
		Variables: map[string]VariableInfo{
			"ice_concentration": {Name: "Sea Ice Concentration", Units: "%", Colormap: "IceBlue"},
		},
	},
}

// Snapshot is one time step of one variable: the raw 2D value array plus 1D
// coordinate vectors. For geographic grids the longitudes have been
// normalized to (-180,180]; for projected grids (sea ice) the coordinate
// vectors are EPSG:3413 meters and Projected is set.
type Snapshot struct {
	Lons      []float64
	Lats      []float64
	Values    [][]float64
	VMin      float64
	VMax      float64
	Projected bool
}

// Stats are global statistics over the non-missing values of one slice.
type Stats struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// dataset is a lazily opened NetCDF handle plus its coordinate vectors.
type dataset struct {
	nc        api.Group
	lons      []float64
	lats      []float64
	times     []time.Time
	projected bool
}

// Store loads variable slices from NetCDF files in a directory. Handles are
// opened on first access and memoized; the handle map is shared mutable
// state and is guarded for concurrent requests.
type Store struct {
	dir string

	mtx  sync.RWMutex
	open map[string]*dataset
}

// NewStore creates a store over the given data directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir, open: make(map[string]*dataset)}
}

// isDataFile reports whether a file name is a NetCDF store, optionally
// bzip2-compressed. Sidecar and hidden files are skipped.
func isDataFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(base, ".nc") || strings.HasSuffix(base, ".nc.bz2")
}

// Available returns the dataset IDs whose store file exists on disk, sorted.
func (s *Store) Available() []string {
	ids := []string{}
	for id, info := range Datasets {
		if _, err := os.Stat(filepath.Join(s.dir, info.File)); err == nil {
			ids = append(ids, id)
		} else if _, err := os.Stat(filepath.Join(s.dir, info.File+".bz2")); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) getDataset(id string) (*dataset, error) {
	s.mtx.RLock()
	if ds, ok := s.open[id]; ok {
		s.mtx.RUnlock()
		return ds, nil
	}
	s.mtx.RUnlock()

	s.mtx.Lock()
	defer s.mtx.Unlock()
	// Another request may have opened it while we waited for the lock.
	if ds, ok := s.open[id]; ok {
		return ds, nil
	}

	info, ok := Datasets[id]
	if !ok {
		return nil, ErrNotFound
	}
	logrus.Debugf("opening dataset %q", id)
	ds, err := openDataset(s.dir, info)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.open[id] = ds
	return ds, nil
}

func openDataset(dir string, info DatasetInfo) (*dataset, error) {
	path := filepath.Join(dir, info.File)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := decompressBzip2(path+".bz2", path); err != nil {
			return nil, err
		}
	}

	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, err
	}

	ds := &dataset{nc: nc, projected: info.Projection == "EPSG:3413"}

	lonName, latName := "lon", "lat"
	if ds.projected {
		lonName, latName = "x", "y"
	}
	if ds.lons, err = coordVector(nc, lonName); err != nil {
		nc.Close()
		return nil, err
	}
	if ds.lats, err = coordVector(nc, latName); err != nil {
		nc.Close()
		return nil, err
	}
	hours, err := coordVector(nc, "time")
	if err != nil {
		nc.Close()
		return nil, err
	}
	ds.times = make([]time.Time, len(hours))
	for i, h := range hours {
		ds.times[i] = time.Unix(int64(h)*3600+unixSecs1900, 0).UTC()
	}
	return ds, nil
}

// decompressBzip2 inflates a .nc.bz2 archive next to itself so subsequent
// opens hit the plain file.
func decompressBzip2(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	bz, err := bzip2.NewReader(in, nil)
	if err != nil {
		return err
	}
	defer bz.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, bz); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	logrus.Infof("decompressed %s", src)
	return out.Close()
}

// Slice loads the 2D value array of one variable at one time index, with
// longitudes normalized to (-180,180] and the 2nd/98th percentile value
// range for color normalization.
func (s *Store) Slice(datasetID, variable string, timeIndex int) (*Snapshot, error) {
	ds, err := s.getDataset(datasetID)
	if err != nil {
		return nil, err
	}
	info := Datasets[datasetID]
	if _, ok := info.Variables[variable]; !ok {
		return nil, ErrNotFound
	}
	if timeIndex < 0 || timeIndex >= len(ds.times) {
		return nil, ErrNotFound
	}

	vg, err := ds.nc.GetVarGetter(variable)
	if err != nil {
		return nil, ErrNotFound
	}
	raw, err := vg.GetSlice(int64(timeIndex), int64(timeIndex)+1)
	if err != nil {
		return nil, fmt.Errorf("grid: reading %s/%s[%d]: %w", datasetID, variable, timeIndex, err)
	}
	values, err := coerceSlice(raw)
	if err != nil {
		return nil, fmt.Errorf("grid: %s/%s: %w", datasetID, variable, err)
	}

	lons := append([]float64(nil), ds.lons...)
	if !ds.projected {
		lons, values = NormalizeLongitudes(lons, values)
	}

	vmin, vmax := percentileRange(values)
	return &Snapshot{
		Lons:      lons,
		Lats:      append([]float64(nil), ds.lats...),
		Values:    values,
		VMin:      vmin,
		VMax:      vmax,
		Projected: ds.projected,
	}, nil
}

// Times returns the decoded time axis of a dataset.
func (s *Store) Times(datasetID string) ([]time.Time, error) {
	ds, err := s.getDataset(datasetID)
	if err != nil {
		return nil, err
	}
	return ds.times, nil
}

// Stats computes global statistics over the non-missing values of a slice.
func (s *Store) Stats(datasetID, variable string, timeIndex int) (*Stats, error) {
	snap, err := s.Slice(datasetID, variable, timeIndex)
	if err != nil {
		return nil, err
	}
	valid := validSorted(snap.Values)
	if len(valid) == 0 {
		return nil, ErrNotFound
	}
	mean, std := stat.MeanStdDev(valid, nil)
	if math.IsNaN(std) { // single value
		std = 0
	}
	return &Stats{
		Mean:   mean,
		Std:    std,
		Min:    valid[0],
		Max:    valid[len(valid)-1],
		Median: stat.Quantile(0.5, stat.Empirical, valid, nil),
	}, nil
}

// NormalizeLongitudes recenters a 0..360 longitude axis to -180..180 by
// splitting at the 180 crossing and reassembling the two halves, reordering
// the value columns to match. Grids already on -180..180 pass through
// untouched. The result is a pure permutation of the input columns.
func NormalizeLongitudes(lons []float64, values [][]float64) ([]float64, [][]float64) {
	maxLon := math.Inf(-1)
	for _, l := range lons {
		if l > maxLon {
			maxLon = l
		}
	}
	if maxLon <= 180 {
		return lons, values
	}

	split := sort.SearchFloat64s(lons, 180)
	n := len(lons)
	outLons := make([]float64, n)
	copy(outLons, lons[split:])
	for i := 0; i < n-split; i++ {
		outLons[i] -= 360
	}
	copy(outLons[n-split:], lons[:split])

	outValues := make([][]float64, len(values))
	for r, row := range values {
		out := make([]float64, n)
		copy(out, row[split:])
		copy(out[n-split:], row[:split])
		outValues[r] = out
	}
	return outLons, outValues
}

func validSorted(values [][]float64) []float64 {
	var valid []float64
	for _, row := range values {
		for _, v := range row {
			if !Missing(v) {
				valid = append(valid, v)
			}
		}
	}
	sort.Float64s(valid)
	return valid
}

// percentileRange returns the 2nd/98th percentiles of the non-missing
// values; (0,1) when the slice is entirely missing. The percentile range is
// robust to outliers, unlike the true min/max.
func percentileRange(values [][]float64) (vmin, vmax float64) {
	valid := validSorted(values)
	if len(valid) == 0 {
		return 0, 1
	}
	vmin = stat.Quantile(0.02, stat.Empirical, valid, nil)
	vmax = stat.Quantile(0.98, stat.Empirical, valid, nil)
	return vmin, vmax
}

// coordVector reads a 1D coordinate variable as float64.
func coordVector(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("grid: missing coordinate %q: %w", name, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	switch vec := v.(type) {
	case []float64:
		return vec, nil
	case []float32:
		out := make([]float64, len(vec))
		for i, x := range vec {
			out[i] = float64(x)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(vec))
		for i, x := range vec {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(vec))
		for i, x := range vec {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("grid: coordinate %q has unsupported type %T", name, v)
	}
}

// coerceSlice converts a [1][H][W] GetSlice result to [][]float64.
func coerceSlice(v any) ([][]float64, error) {
	switch m := v.(type) {
	case [][][]float64:
		return m[0], nil
	case [][][]float32:
		out := make([][]float64, len(m[0]))
		for i, row := range m[0] {
			r := make([]float64, len(row))
			for j, x := range row {
				r[j] = float64(x)
			}
			out[i] = r
		}
		return out, nil
	case [][][]int16:
		out := make([][]float64, len(m[0]))
		for i, row := range m[0] {
			r := make([]float64, len(row))
			for j, x := range row {
				r[j] = float64(x)
			}
			out[i] = r
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported variable type %T", v)
	}
}
