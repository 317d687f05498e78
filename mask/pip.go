package mask

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"
)

// pointInPolygonStrategy tests every grid cell center against the coastline
// polygons through an r-tree. Slower than rasterizing but needs no GDAL.
type pointInPolygonStrategy struct{}

func (pointInPolygonStrategy) name() string { return "point in polygon" }

func (pointInPolygonStrategy) build(shapefile string, lons, lats []float64) ([][]bool, error) {
	d, err := shp.NewDecoder(shapefile)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", shapefile, err)
	}
	defer d.Close()

	index := rtree.NewTree(25, 50)
	n := 0
	for {
		g, _, more := d.DecodeRowFields()
		if !more {
			break
		}
		poly, ok := g.(geom.Polygonal)
		if !ok {
			continue
		}
		index.Insert(poly)
		n++
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", shapefile, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%s holds no polygons", shapefile)
	}

	m := make([][]bool, len(lats))
	for i, lat := range lats {
		row := make([]bool, len(lons))
		for j, lon := range lons {
			row[j] = isLand(index, normLon(lon), lat)
		}
		m[i] = row
	}
	return m, nil
}

func isLand(index *rtree.Rtree, lon, lat float64) bool {
	p := geom.Point{X: lon, Y: lat}
	for _, pI := range index.SearchIntersect(p.Bounds()) {
		in := p.Within(pI.(geom.Polygonal))
		if in == geom.Inside || in == geom.OnEdge {
			return true
		}
	}
	return false
}
