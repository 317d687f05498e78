// Package render turns lat/lon value grids into RGBA PNGs aligned to a web
// map: an equirectangular overlay mode, a whole-map Web Mercator mode, and
// 256x256 slippy tiles, all sharing one smoothing/masking/colorize pipeline.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"

	"github.com/ecvx/ecvserv/grid"
	"github.com/ecvx/ecvserv/proj"
)

// Mode selects the render surface.
type Mode int

const (
	// ModeOverlay renders the grid as-is (no reprojection), north up, with
	// transparent no-data pixels; the map library positions it by bounding
	// box.
	ModeOverlay Mode = iota
	// ModeMercator reprojects per-pixel onto a Web Mercator world image so
	// the raster lines up with standard basemap tiles.
	ModeMercator
	// ModeTile renders one 256x256 slippy tile.
	ModeTile
)

// TileSize is the slippy tile edge in pixels.
const TileSize = 256

// upscaleFactor is the cosmetic magnification applied in overlay mode and
// the Mercator output width multiplier.
const upscaleFactor = 4

// OceanColor matches the dark basemap the map UI uses, so blended ocean
// pixels disappear into it.
var OceanColor = color.NRGBA{R: 20, G: 20, B: 24, A: 255}

// ErrUnprojectable reports a tile request against a grid whose coordinates
// are already projected meters (the polar datasets); such grids are served
// in overlay mode only.
var ErrUnprojectable = errors.New("render: grid coordinates are not geographic")

// Request fully determines a rendered image and doubles as the cache key.
type Request struct {
	Dataset   string
	Variable  string
	TimeIndex int
	Colormap  string
	Sigma     float64
	Interp    string
	Mode      Mode
	Z, X, Y   int
}

// normalized clamps the cosmetic parameters to their documented defaults so
// equivalent requests share a cache entry. Structural parameters (dataset,
// variable, time) are left alone; those fail as not-found instead.
func (req Request) normalized() Request {
	if req.Sigma < 0 || math.IsNaN(req.Sigma) {
		req.Sigma = 1
	}
	switch req.Interp {
	case "nearest", "bilinear", "bicubic", "lanczos":
	default:
		req.Interp = "bilinear"
	}
	if _, ok := ramps[req.Colormap]; !ok {
		req.Colormap = DefaultRamp
	}
	return req
}

// Bounds is the geographic (or projected, for polar grids) bounding box an
// image covers.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Image is an encoded render result.
type Image struct {
	PNG      []byte
	Bounds   Bounds
	CacheHit bool
}

// Source loads variable slices; satisfied by grid.Store.
type Source interface {
	Slice(datasetID, variable string, timeIndex int) (*grid.Snapshot, error)
}

// MaskSource derives land masks on a sampling grid; nil result means no
// authoritative land data is available and the value grid's own missing
// pattern is used instead. Satisfied by mask.Builder.
type MaskSource interface {
	LandMask(lons, lats []float64, resolutionName string) [][]bool
}

// Renderer runs the full pipeline. Cache and mask source are injected so
// lifecycle and test isolation stay controllable.
type Renderer struct {
	src   Source
	masks MaskSource
	cache *Cache
}

// New creates a renderer. masks may be nil.
func New(src Source, masks MaskSource, cache *Cache) *Renderer {
	return &Renderer{src: src, masks: masks, cache: cache}
}

// Render produces the image for a request, serving repeats from cache.
func (r *Renderer) Render(req Request) (*Image, error) {
	req = req.normalized()

	if cached, ok := r.cache.get(req); ok {
		hit := *cached
		hit.CacheHit = true
		return &hit, nil
	}

	snap, err := r.src.Slice(req.Dataset, req.Variable, req.TimeIndex)
	if err != nil {
		return nil, err
	}
	if len(snap.Lons) == 0 || len(snap.Lats) == 0 {
		return nil, grid.ErrNotFound
	}

	var img *Image
	switch {
	case req.Mode == ModeTile && snap.Projected:
		return nil, ErrUnprojectable
	case req.Mode == ModeOverlay || snap.Projected:
		img, err = r.renderOverlay(snap, req)
	case req.Mode == ModeMercator:
		img, err = r.renderMercator(snap, req)
	default:
		img, err = r.renderTile(snap, req)
	}
	if err != nil {
		return nil, fmt.Errorf("render %s/%s[%d]: %w", req.Dataset, req.Variable, req.TimeIndex, err)
	}

	r.cache.add(req, img)
	return img, nil
}

// renderOverlay draws the grid in its own coordinate space. Missing cells
// become fully transparent; the client positions the image by its bounds.
func (r *Renderer) renderOverlay(snap *grid.Snapshot, req Request) (*Image, error) {
	ramp := RampByName(req.Colormap)
	filled, validity := FillMissing(snap.Values)
	smoothed := Smooth(filled, req.Sigma)

	// Row 0 of the image must be the northern edge.
	if len(snap.Lats) > 1 && snap.Lats[0] < snap.Lats[len(snap.Lats)-1] {
		flipRows(smoothed)
		flipRows(validity)
	}

	h, w := len(smoothed), len(smoothed[0])
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if validity[y][x] == 0 {
				continue // transparent
			}
			c := ramp.At(Normalize(smoothed[y][x], snap.VMin, snap.VMax))
			canvas.SetNRGBA(x, y, c)
		}
	}

	var out image.Image = canvas
	if req.Interp != "nearest" {
		out = resize.Resize(uint(w*upscaleFactor), uint(h*upscaleFactor), canvas, resizeKernel(req.Interp))
	}

	data, err := pngBytes(out)
	if err != nil {
		return nil, err
	}
	return &Image{PNG: data, Bounds: extent(snap)}, nil
}

// renderMercator resamples the smoothed field per output pixel through the
// inverse Mercator transform, blending ocean toward the basemap color with
// the smoothed validity field as weight.
func (r *Renderer) renderMercator(snap *grid.Snapshot, req Request) (*Image, error) {
	values, validity := r.preparedFields(snap, req)

	w := len(snap.Lons) * upscaleFactor
	h := w / 2
	valueSampler := NewSampler(snap.Lons, snap.Lats, values, math.NaN())
	alphaSampler := NewSampler(snap.Lons, snap.Lats, validity, 0)
	ramp := RampByName(req.Colormap)

	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		lat := proj.MercatorYToLat(float64(y) / float64(h-1))
		for x := 0; x < w; x++ {
			lon := -180 + 360*float64(x)/float64(w-1)
			canvas.SetNRGBA(x, y, r.shade(valueSampler, alphaSampler, ramp, lon, lat, snap, true))
		}
	}

	data, err := pngBytes(canvas)
	if err != nil {
		return nil, err
	}
	return &Image{PNG: data, Bounds: Bounds{West: -180, South: -proj.MaxLat, East: 180, North: proj.MaxLat}}, nil
}

// renderTile renders one slippy tile; pixels outside the data domain stay
// transparent so empty tiles vanish over the basemap.
func (r *Renderer) renderTile(snap *grid.Snapshot, req Request) (*Image, error) {
	values, validity := r.preparedFields(snap, req)

	west, south, east, north := proj.TileBounds(req.Z, req.X, req.Y)
	yTop := proj.LatToMercatorY(north)
	yBot := proj.LatToMercatorY(south)

	valueSampler := NewSampler(snap.Lons, snap.Lats, values, math.NaN())
	alphaSampler := NewSampler(snap.Lons, snap.Lats, validity, 0)
	ramp := RampByName(req.Colormap)

	canvas := image.NewNRGBA(image.Rect(0, 0, TileSize, TileSize))
	for py := 0; py < TileSize; py++ {
		yn := yTop + (yBot-yTop)*(float64(py)+0.5)/TileSize
		lat := proj.MercatorYToLat(yn)
		for px := 0; px < TileSize; px++ {
			lon := west + (east-west)*(float64(px)+0.5)/TileSize
			canvas.SetNRGBA(px, py, r.shade(valueSampler, alphaSampler, ramp, lon, lat, snap, false))
		}
	}

	data, err := pngBytes(canvas)
	if err != nil {
		return nil, err
	}
	return &Image{PNG: data, Bounds: Bounds{West: west, South: south, East: east, North: north}}, nil
}

// preparedFields runs the shared data-level stages: land mask (falling back
// to the grid's own missing pattern), mean-fill, and Gaussian smoothing of
// both the value and validity fields. The validity field gets at least as
// much smoothing as the values so coastlines come out anti-aliased.
func (r *Renderer) preparedFields(snap *grid.Snapshot, req Request) (values, validity [][]float64) {
	filled, dataMask := FillMissing(snap.Values)

	validity = dataMask
	if r.masks != nil {
		if land := r.masks.LandMask(snap.Lons, snap.Lats, req.Dataset); land != nil {
			validity = make([][]float64, len(land))
			for i, row := range land {
				f := make([]float64, len(row))
				for j, b := range row {
					if b {
						f[j] = 1
					}
				}
				validity[i] = f
			}
		}
	}

	values = Smooth(filled, req.Sigma)
	maskSigma := math.Max(2.0, req.Sigma+1.0)
	validity = Smooth(validity, maskSigma)
	return values, validity
}

// shade colors one output pixel. blendOcean selects between blending toward
// OceanColor (whole-map mode) and transparency (tiles outside the data
// domain still vanish either way).
func (r *Renderer) shade(valueSampler, alphaSampler *Sampler, ramp Ramp, lon, lat float64, snap *grid.Snapshot, blendOcean bool) color.NRGBA {
	v := valueSampler.At(lon, lat)
	if math.IsNaN(v) {
		if blendOcean {
			return OceanColor
		}
		return color.NRGBA{}
	}
	alpha := alphaSampler.At(lon, lat)
	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}

	c := ramp.At(Normalize(v, snap.VMin, snap.VMax))
	if blendOcean {
		return blend(c, OceanColor, alpha)
	}
	c.A = uint8(alpha*255 + 0.5)
	return c
}

func blend(fg, bg color.NRGBA, alpha float64) color.NRGBA {
	mix := func(a, b uint8) uint8 {
		return uint8(alpha*float64(a) + (1-alpha)*float64(b) + 0.5)
	}
	return color.NRGBA{R: mix(fg.R, bg.R), G: mix(fg.G, bg.G), B: mix(fg.B, bg.B), A: 255}
}

func flipRows(field [][]float64) {
	for i, j := 0, len(field)-1; i < j; i, j = i+1, j-1 {
		field[i], field[j] = field[j], field[i]
	}
}

func extent(snap *grid.Snapshot) Bounds {
	return Bounds{
		West:  minOf(snap.Lons),
		East:  maxOf(snap.Lons),
		South: minOf(snap.Lats),
		North: maxOf(snap.Lats),
	}
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func resizeKernel(interp string) resize.InterpolationFunction {
	switch interp {
	case "nearest":
		return resize.NearestNeighbor
	case "bicubic":
		return resize.Bicubic
	case "lanczos":
		return resize.Lanczos3
	default:
		return resize.Bilinear
	}
}

func pngBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		logrus.Errorf("png encode: %v", err)
		return nil, err
	}
	return buf.Bytes(), nil
}

// TransparentTile is a fully transparent slippy tile, served when a tile
// has no data or its render fails.
func TransparentTile() []byte {
	data, _ := pngBytes(image.NewNRGBA(image.Rect(0, 0, TileSize, TileSize)))
	return data
}
