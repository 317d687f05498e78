// Package mask derives land/ocean masks on a dataset's sampling grid from a
// coastline shapefile. Masks are memoized in memory and persisted to disk,
// and the builder degrades through a chain of strategies: GDAL
// rasterization when the bindings work, a point-in-polygon test otherwise,
// and no mask at all when both fail.
package mask

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

type maskKey struct {
	w, h int
	name string
}

type strategy interface {
	name() string
	build(shapefile string, lons, lats []float64) ([][]bool, error)
}

// Builder computes and caches land masks. Safe for concurrent use.
type Builder struct {
	shapefile string
	cacheDir  string

	mtx  sync.RWMutex
	memo map[maskKey][][]bool

	strategies []strategy
}

// NewBuilder creates a mask builder reading coastline polygons from
// shapefile and persisting computed masks under cacheDir. An empty
// shapefile path disables masking entirely.
func NewBuilder(shapefile, cacheDir string) *Builder {
	return &Builder{
		shapefile:  shapefile,
		cacheDir:   cacheDir,
		memo:       map[maskKey][][]bool{},
		strategies: []strategy{rasterizeStrategy{}, pointInPolygonStrategy{}},
	}
}

// LandMask returns a mask where mask[i][j] is true when the cell at
// (lats[i], lons[j]) is land. It returns nil when no mask can be derived;
// callers then fall back to the data's own missing-value pattern. A nil
// result is memoized too, so a broken strategy chain is only probed once
// per grid shape.
func (b *Builder) LandMask(lons, lats []float64, name string) [][]bool {
	if b == nil || b.shapefile == "" || len(lons) == 0 || len(lats) == 0 {
		return nil
	}
	k := maskKey{w: len(lons), h: len(lats), name: name}

	b.mtx.RLock()
	m, ok := b.memo[k]
	b.mtx.RUnlock()
	if ok {
		return m
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()
	if m, ok := b.memo[k]; ok {
		return m
	}

	m = b.load(k)
	if m == nil {
		m = b.compute(lons, lats)
		if m != nil {
			b.store(k, m)
		}
	}
	b.memo[k] = m
	return m
}

func (b *Builder) compute(lons, lats []float64) [][]bool {
	for _, s := range b.strategies {
		m, err := s.build(b.shapefile, lons, lats)
		if err != nil {
			logrus.Warnf("land mask via %s: %v", s.name(), err)
			continue
		}
		logrus.Debugf("land mask %dx%d built via %s", len(lats), len(lons), s.name())
		return m
	}
	logrus.Warn("no land mask strategy succeeded, rendering without coastline masking")
	return nil
}

// maskFile is the on-disk form, row-major with row 0 pairing with lats[0].
type maskFile struct {
	W    int
	H    int
	Bits []bool
}

func (b *Builder) path(k maskKey) string {
	return filepath.Join(b.cacheDir, fmt.Sprintf("land_mask_%s_%dx%d.msgpack.zst", k.name, k.h, k.w))
}

func (b *Builder) load(k maskKey) [][]bool {
	if b.cacheDir == "" {
		return nil
	}
	f, err := os.Open(b.path(k))
	if err != nil {
		return nil
	}
	defer f.Close()

	zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil
	}
	defer zr.Close()

	var mf maskFile
	if err := msgpack.NewDecoder(zr).Decode(&mf); err != nil || mf.W != k.w || mf.H != k.h || len(mf.Bits) != k.w*k.h {
		logrus.Warnf("discarding unreadable mask cache %s", b.path(k))
		return nil
	}

	m := make([][]bool, mf.H)
	for i := range m {
		m[i] = mf.Bits[i*mf.W : (i+1)*mf.W]
	}
	return m
}

func (b *Builder) store(k maskKey, m [][]bool) {
	if b.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(b.cacheDir, 0755); err != nil {
		logrus.Warnf("mask cache dir: %v", err)
		return
	}

	mf := maskFile{W: k.w, H: k.h, Bits: make([]bool, 0, k.w*k.h)}
	for _, row := range m {
		mf.Bits = append(mf.Bits, row...)
	}

	f, err := os.Create(b.path(k))
	if err != nil {
		logrus.Warnf("mask cache write: %v", err)
		return
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return
	}
	if err := msgpack.NewEncoder(zw).Encode(mf); err != nil {
		logrus.Warnf("mask cache encode: %v", err)
	}
	if err := zw.Close(); err != nil {
		logrus.Warnf("mask cache close: %v", err)
	}
}

func minMax(v []float64) (lo, hi float64) {
	lo, hi = v[0], v[0]
	for _, x := range v[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

// normLon folds a longitude into [-180, 180) so 0-360 grids test against
// shapefiles stored in the -180..180 convention.
func normLon(lon float64) float64 {
	lon = mod360(lon + 180)
	return lon - 180
}

func mod360(v float64) float64 {
	v = v - 360*float64(int(v/360))
	if v < 0 {
		v += 360
	}
	return v
}
