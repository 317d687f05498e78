package mask

import (
	"fmt"
	"strconv"

	"github.com/airbusgeo/godal"
)

// rasterizeStrategy burns the coastline polygons onto the sampling grid
// with GDAL. ALL_TOUCHED burning keeps thin islands and coastal cells that
// a center-only test would drop.
type rasterizeStrategy struct{}

func (rasterizeStrategy) name() string { return "gdal rasterize" }

func (rasterizeStrategy) build(shapefile string, lons, lats []float64) ([][]bool, error) {
	godal.RegisterAll()

	vecDS, err := godal.Open(shapefile, godal.VectorOnly())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", shapefile, err)
	}
	defer vecDS.Close()

	w, h := len(lons), len(lats)
	minLon, maxLon := minMax(lons)
	minLat, maxLat := minMax(lats)

	switches := []string{
		"-burn", "1",
		"-at",
		"-ts", strconv.Itoa(w), strconv.Itoa(h),
		"-te",
		fmt.Sprintf("%f", minLon),
		fmt.Sprintf("%f", minLat),
		fmt.Sprintf("%f", maxLon),
		fmt.Sprintf("%f", maxLat),
		"-ot", "Byte",
		"-of", "MEM",
	}
	burnDS, err := vecDS.Rasterize("", switches)
	if err != nil {
		return nil, fmt.Errorf("rasterize: %w", err)
	}
	defer burnDS.Close()

	pix := make([]byte, w*h)
	if err := burnDS.Bands()[0].Read(0, 0, pix, w, h); err != nil {
		return nil, fmt.Errorf("read burned band: %w", err)
	}

	northFirst := len(lats) < 2 || lats[0] > lats[len(lats)-1]
	return orientRows(pix, w, h, northFirst), nil
}

// orientRows converts a north-up burned band to the mask row order, where
// row i pairs with lats[i]. GDAL's row 0 is the northern edge, so a
// south-first latitude axis needs the rows flipped.
func orientRows(pix []byte, w, h int, northFirst bool) [][]bool {
	m := make([][]bool, h)
	for i := 0; i < h; i++ {
		src := i
		if !northFirst {
			src = h - 1 - i
		}
		row := make([]bool, w)
		for j := 0; j < w; j++ {
			row[j] = pix[src*w+j] != 0
		}
		m[i] = row
	}
	return m
}
