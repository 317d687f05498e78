package mask

import (
	"errors"
	"testing"
)

type fakeStrategy struct {
	calls int
	fail  bool
}

func (f *fakeStrategy) name() string { return "fake" }

func (f *fakeStrategy) build(shapefile string, lons, lats []float64) ([][]bool, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("boom")
	}
	m := make([][]bool, len(lats))
	for i := range m {
		m[i] = make([]bool, len(lons))
		m[i][0] = true // land along the western column
	}
	return m, nil
}

func testBuilder(strategies ...strategy) *Builder {
	b := NewBuilder("coastline.shp", "")
	b.strategies = strategies
	return b
}

func TestLandMaskMemoized(t *testing.T) {
	fake := &fakeStrategy{}
	b := testBuilder(fake)
	lons := []float64{0, 10, 20}
	lats := []float64{50, 40}

	first := b.LandMask(lons, lats, "era5")
	if first == nil || len(first) != 2 || len(first[0]) != 3 {
		t.Fatalf("mask shape = %v", first)
	}
	if !first[0][0] || first[0][1] {
		t.Errorf("mask content wrong: %v", first)
	}

	second := b.LandMask(lons, lats, "era5")
	if fake.calls != 1 {
		t.Errorf("strategy ran %d times, want 1", fake.calls)
	}
	if &second[0][0] != &first[0][0] {
		t.Error("memo returned a different mask")
	}
}

func TestLandMaskDistinctGrids(t *testing.T) {
	fake := &fakeStrategy{}
	b := testBuilder(fake)

	b.LandMask([]float64{0, 1}, []float64{0, 1}, "a")
	b.LandMask([]float64{0, 1, 2}, []float64{0, 1}, "a")
	b.LandMask([]float64{0, 1}, []float64{0, 1}, "b")
	if fake.calls != 3 {
		t.Errorf("strategy ran %d times, want 3", fake.calls)
	}
}

func TestLandMaskFallbackOrder(t *testing.T) {
	broken := &fakeStrategy{fail: true}
	working := &fakeStrategy{}
	b := testBuilder(broken, working)

	if m := b.LandMask([]float64{0, 1}, []float64{0, 1}, "x"); m == nil {
		t.Fatal("fallback strategy not used")
	}
	if broken.calls != 1 || working.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", broken.calls, working.calls)
	}
}

func TestLandMaskAllStrategiesFail(t *testing.T) {
	broken := &fakeStrategy{fail: true}
	b := testBuilder(broken)

	if m := b.LandMask([]float64{0, 1}, []float64{0, 1}, "x"); m != nil {
		t.Fatalf("mask = %v, want nil", m)
	}
	// The nil outcome memoizes too.
	if m := b.LandMask([]float64{0, 1}, []float64{0, 1}, "x"); m != nil {
		t.Fatal("second call produced a mask")
	}
	if broken.calls != 1 {
		t.Errorf("strategy ran %d times, want 1", broken.calls)
	}
}

func TestLandMaskDisabled(t *testing.T) {
	b := NewBuilder("", "")
	if m := b.LandMask([]float64{0, 1}, []float64{0, 1}, "x"); m != nil {
		t.Fatal("masking without a shapefile should be disabled")
	}
}

func TestMaskPersistence(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeStrategy{}
	b := NewBuilder("coastline.shp", dir)
	b.strategies = []strategy{fake}

	lons := []float64{0, 10}
	lats := []float64{50, 40, 30}
	want := b.LandMask(lons, lats, "era5")
	if want == nil {
		t.Fatal("no mask built")
	}

	// A fresh builder with only broken strategies must read it from disk.
	b2 := NewBuilder("coastline.shp", dir)
	b2.strategies = []strategy{&fakeStrategy{fail: true}}
	got := b2.LandMask(lons, lats, "era5")
	if got == nil {
		t.Fatal("persisted mask not loaded")
	}
	for i := range want {
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Fatalf("mask[%d][%d] = %v after reload", i, j, got[i][j])
			}
		}
	}
}

func TestOrientRows(t *testing.T) {
	// A 2x2 north-up band with land in the northwest corner only.
	pix := []byte{
		1, 0,
		0, 0,
	}

	// North-first latitudes: row order matches the band directly, so [0][0]
	// stays land and [1][1] stays ocean.
	m := orientRows(pix, 2, 2, true)
	if !m[0][0] || m[1][1] {
		t.Errorf("north-first mask = %v", m)
	}

	// South-first latitudes: the land pixel moves to the last row, keeping
	// the same geographic cell land.
	m = orientRows(pix, 2, 2, false)
	if !m[1][0] || m[0][0] {
		t.Errorf("south-first mask = %v", m)
	}
}

func TestNormLon(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{45, 45},
		{-45, -45},
		{180, -180},
		{190, -170},
		{360, 0},
		{-190, 170},
		{0, 0},
	}
	for _, c := range cases {
		if got := normLon(c.in); got != c.want {
			t.Errorf("normLon(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
