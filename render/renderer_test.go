package render

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/ecvx/ecvserv/grid"
)

func init() {
	registerRamp("graytest", []stopDef{{0, "#000000"}, {1, "#ffffff"}})
}

type fakeSource struct {
	snap *grid.Snapshot
}

func (f *fakeSource) Slice(datasetID, variable string, timeIndex int) (*grid.Snapshot, error) {
	if f.snap == nil || datasetID != "fake" {
		return nil, grid.ErrNotFound
	}
	return f.snap, nil
}

// testSnapshot is a 4x4 grid with values rising row by row, north first.
func testSnapshot() *grid.Snapshot {
	values := make([][]float64, 4)
	for i := range values {
		values[i] = make([]float64, 4)
		for j := range values[i] {
			values[i][j] = float64(10 * (i*4 + j + 1))
		}
	}
	return &grid.Snapshot{
		Lons:   []float64{-135, -45, 45, 135},
		Lats:   []float64{67.5, 22.5, -22.5, -67.5},
		Values: values,
		VMin:   10,
		VMax:   160,
	}
}

func testRenderer(cacheSize int) (*Renderer, *Cache) {
	cache, err := NewCache(cacheSize)
	if err != nil {
		panic(err)
	}
	return New(&fakeSource{snap: testSnapshot()}, nil, cache), cache
}

func decodePNG(t *testing.T, data []byte) (nrgbaAt func(x, y int) color.NRGBA, w, h int) {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	b := img.Bounds()
	return func(x, y int) color.NRGBA {
		return color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
	}, b.Dx(), b.Dy()
}

func TestRenderOverlayNearest(t *testing.T) {
	r, _ := testRenderer(10)
	img, err := r.Render(Request{
		Dataset: "fake", Variable: "v", Colormap: "graytest", Interp: "nearest", Mode: ModeOverlay,
	})
	if err != nil {
		t.Fatal(err)
	}

	at, w, h := decodePNG(t, img.PNG)
	if w != 4 || h != 4 {
		t.Fatalf("nearest overlay is %dx%d, want 4x4", w, h)
	}
	if c := at(0, 0); c.R != 0 || c.A != 255 {
		t.Errorf("minimum-value pixel = %v, want opaque black", c)
	}
	if c := at(3, 3); c.R < 250 {
		t.Errorf("maximum-value pixel = %v, want near white", c)
	}
	// Brightness follows the value field.
	if at(0, 0).R >= at(3, 0).R || at(3, 0).R >= at(3, 3).R {
		t.Error("pixel brightness does not track values")
	}

	wantBounds := Bounds{West: -135, South: -67.5, East: 135, North: 67.5}
	if img.Bounds != wantBounds {
		t.Errorf("bounds = %+v, want %+v", img.Bounds, wantBounds)
	}
}

func TestRenderOverlayMissingTransparent(t *testing.T) {
	src := &fakeSource{snap: testSnapshot()}
	src.snap.Values[0][0] = math.NaN()
	cache, _ := NewCache(10)
	r := New(src, nil, cache)

	img, err := r.Render(Request{Dataset: "fake", Variable: "v", Colormap: "graytest", Interp: "nearest", Mode: ModeOverlay})
	if err != nil {
		t.Fatal(err)
	}
	at, _, _ := decodePNG(t, img.PNG)
	if c := at(0, 0); c.A != 0 {
		t.Errorf("missing cell alpha = %d, want 0", c.A)
	}
	if c := at(1, 0); c.A != 255 {
		t.Errorf("neighbor cell alpha = %d, want 255", c.A)
	}
}

func TestRenderOverlayUpscales(t *testing.T) {
	r, _ := testRenderer(10)
	img, err := r.Render(Request{Dataset: "fake", Variable: "v", Colormap: "graytest", Interp: "bilinear", Mode: ModeOverlay})
	if err != nil {
		t.Fatal(err)
	}
	_, w, h := decodePNG(t, img.PNG)
	if w != 16 || h != 16 {
		t.Fatalf("bilinear overlay is %dx%d, want 16x16", w, h)
	}
}

func TestRenderOverlayFlipsAscendingLats(t *testing.T) {
	src := &fakeSource{snap: testSnapshot()}
	// South-first axis; the value rows still pair with these latitudes,
	// so row 0 (smallest values) is now the southern edge.
	src.snap.Lats = []float64{-67.5, -22.5, 22.5, 67.5}
	cache, _ := NewCache(10)
	r := New(src, nil, cache)

	img, err := r.Render(Request{Dataset: "fake", Variable: "v", Colormap: "graytest", Interp: "nearest", Mode: ModeOverlay})
	if err != nil {
		t.Fatal(err)
	}
	at, _, _ := decodePNG(t, img.PNG)
	// Image row 0 is north, which now holds the largest values.
	if at(0, 0).R <= at(0, 3).R {
		t.Errorf("north row %v not brighter than south row %v", at(0, 0), at(0, 3))
	}
}

func TestRenderMercator(t *testing.T) {
	r, _ := testRenderer(10)
	img, err := r.Render(Request{Dataset: "fake", Variable: "v", Colormap: "graytest", Mode: ModeMercator})
	if err != nil {
		t.Fatal(err)
	}

	at, w, h := decodePNG(t, img.PNG)
	if w != 16 || h != 8 {
		t.Fatalf("mercator image is %dx%d, want 16x8", w, h)
	}
	// Outside the data domain (lon -180) everything is ocean.
	if c := at(0, h/2); c != OceanColor {
		t.Errorf("off-domain pixel = %v, want ocean %v", c, OceanColor)
	}
	// The center of the domain is opaque data, not ocean.
	if c := at(w/2, h/2); c == OceanColor {
		t.Error("in-domain pixel is pure ocean")
	} else if c.A != 255 {
		t.Errorf("mercator pixel alpha = %d, want 255", c.A)
	}

	want := Bounds{West: -180, South: -85.051, East: 180, North: 85.051}
	if img.Bounds != want {
		t.Errorf("bounds = %+v, want %+v", img.Bounds, want)
	}
}

func TestRenderTile(t *testing.T) {
	r, _ := testRenderer(10)
	img, err := r.Render(Request{Dataset: "fake", Variable: "v", Colormap: "graytest", Mode: ModeTile, Z: 0, X: 0, Y: 0})
	if err != nil {
		t.Fatal(err)
	}
	at, w, h := decodePNG(t, img.PNG)
	if w != TileSize || h != TileSize {
		t.Fatalf("tile is %dx%d, want %dx%d", w, h, TileSize, TileSize)
	}
	// The z0 tile covers the whole world; its center lies inside the grid.
	if c := at(TileSize/2, TileSize/2); c.A == 0 {
		t.Error("tile center transparent inside the data domain")
	}
	// The far west edge is outside the grid and stays transparent.
	if c := at(0, TileSize/2); c.A != 0 {
		t.Errorf("off-domain tile pixel alpha = %d, want 0", c.A)
	}
}

func TestRenderProjectedGrid(t *testing.T) {
	src := &fakeSource{snap: testSnapshot()}
	src.snap.Projected = true
	src.snap.Lons = []float64{-3e6, -1e6, 1e6, 3e6}
	src.snap.Lats = []float64{3e6, 1e6, -1e6, -3e6}
	cache, _ := NewCache(10)
	r := New(src, nil, cache)

	if _, err := r.Render(Request{Dataset: "fake", Variable: "v", Mode: ModeTile}); !errors.Is(err, ErrUnprojectable) {
		t.Fatalf("tile render of projected grid: err = %v, want ErrUnprojectable", err)
	}

	// Mercator and overlay requests both fall back to overlay output.
	for _, mode := range []Mode{ModeOverlay, ModeMercator} {
		img, err := r.Render(Request{Dataset: "fake", Variable: "v", Colormap: "graytest", Interp: "nearest", Mode: mode})
		if err != nil {
			t.Fatalf("mode %v: %v", mode, err)
		}
		if img.Bounds.West != -3e6 || img.Bounds.North != 3e6 {
			t.Errorf("mode %v bounds = %+v", mode, img.Bounds)
		}
	}
}

func TestRenderCache(t *testing.T) {
	r, cache := testRenderer(10)
	req := Request{Dataset: "fake", Variable: "v", Colormap: "graytest", Interp: "nearest", Mode: ModeOverlay}

	first, err := r.Render(req)
	if err != nil {
		t.Fatal(err)
	}
	if first.CacheHit {
		t.Error("first render reported a cache hit")
	}

	second, err := r.Render(req)
	if err != nil {
		t.Fatal(err)
	}
	if !second.CacheHit {
		t.Error("repeat render missed the cache")
	}
	if !bytes.Equal(first.PNG, second.PNG) {
		t.Error("cached bytes differ from original")
	}
	if cache.Len() != 1 {
		t.Errorf("cache holds %d entries, want 1", cache.Len())
	}
}

func TestRenderCacheNormalizesCosmetics(t *testing.T) {
	r, cache := testRenderer(10)
	a := Request{Dataset: "fake", Variable: "v", Colormap: "no-such-map", Sigma: -3, Interp: "cubic??", Mode: ModeOverlay}
	b := Request{Dataset: "fake", Variable: "v", Colormap: DefaultRamp, Sigma: 1, Interp: "bilinear", Mode: ModeOverlay}

	if _, err := r.Render(a); err != nil {
		t.Fatal(err)
	}
	img, err := r.Render(b)
	if err != nil {
		t.Fatal(err)
	}
	if !img.CacheHit {
		t.Error("defaulted request did not share the cache entry")
	}
	if cache.Len() != 1 {
		t.Errorf("cache holds %d entries, want 1", cache.Len())
	}
}

func TestRenderCacheEviction(t *testing.T) {
	cache, _ := NewCache(2)
	r := New(&fakeSource{snap: testSnapshot()}, nil, cache)
	req := func(sigma float64) Request {
		return Request{Dataset: "fake", Variable: "v", Sigma: sigma, Interp: "nearest", Mode: ModeOverlay}
	}
	for i := 0; i < 3; i++ {
		if _, err := r.Render(req(float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	if cache.Len() != 2 {
		t.Errorf("cache holds %d entries, want bound 2", cache.Len())
	}

	// Least-recently-used entry (sigma 0) was evicted, the newest survives.
	img, err := r.Render(req(0))
	if err != nil {
		t.Fatal(err)
	}
	if img.CacheHit {
		t.Error("evicted entry still served from cache")
	}
	img, err = r.Render(req(2))
	if err != nil {
		t.Fatal(err)
	}
	if !img.CacheHit {
		t.Error("most recent entry was evicted")
	}
}

func TestRenderNotFound(t *testing.T) {
	r, _ := testRenderer(10)
	if _, err := r.Render(Request{Dataset: "nope", Variable: "v", Mode: ModeOverlay}); !errors.Is(err, grid.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTransparentTile(t *testing.T) {
	at, w, h := decodePNG(t, TransparentTile())
	if w != TileSize || h != TileSize {
		t.Fatalf("transparent tile is %dx%d", w, h)
	}
	if c := at(128, 128); c.A != 0 {
		t.Errorf("alpha = %d, want 0", c.A)
	}
}

func TestLegend(t *testing.T) {
	data, err := Legend("graytest")
	if err != nil {
		t.Fatal(err)
	}
	at, w, h := decodePNG(t, data)
	if w != legendWidth || h != legendHeight {
		t.Fatalf("legend is %dx%d, want %dx%d", w, h, legendWidth, legendHeight)
	}
	left := at(0, legendStrip/2)
	right := at(legendWidth-1, legendStrip/2)
	if left.R >= right.R {
		t.Errorf("gradient not ascending: left %v right %v", left, right)
	}
}
