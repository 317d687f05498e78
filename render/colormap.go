package render

import (
	"image/color"
	"sort"
)

// normEpsilon guards the degenerate vmin==vmax case in Normalize.
const normEpsilon = 1e-10

// Stop is one control point of a color ramp.
type Stop struct {
	Pos   float64
	Color color.NRGBA
}

// Ramp is an ordered sequence of color stops, monotonic in position, first
// stop at 0 and last at 1. Lookup interpolates linearly between the two
// bracketing stops in each channel.
type Ramp struct {
	Name  string
	Stops []Stop
}

// At returns the ramp color at t. t is clamped to [0,1].
func (r Ramp) At(t float64) color.NRGBA {
	if t <= 0 {
		return r.Stops[0].Color
	}
	if t >= 1 {
		return r.Stops[len(r.Stops)-1].Color
	}
	hi := sort.Search(len(r.Stops), func(i int) bool { return r.Stops[i].Pos >= t })
	if hi == 0 {
		return r.Stops[0].Color
	}
	lo := hi - 1
	a, b := r.Stops[lo], r.Stops[hi]
	span := b.Pos - a.Pos
	if span <= 0 {
		return b.Color
	}
	f := (t - a.Pos) / span
	return color.NRGBA{
		R: lerp8(a.Color.R, b.Color.R, f),
		G: lerp8(a.Color.G, b.Color.G, f),
		B: lerp8(a.Color.B, b.Color.B, f),
		A: 255,
	}
}

func lerp8(a, b uint8, f float64) uint8 {
	return uint8(float64(a)*(1-f) + float64(b)*f + 0.5)
}

// Normalize maps a value into [0,1] over the (vmin, vmax) range, clamped.
// A degenerate range yields a finite value, never NaN or Inf.
func Normalize(v, vmin, vmax float64) float64 {
	t := (v - vmin) / (vmax - vmin + normEpsilon)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// DefaultRamp is used when an unknown colormap name is requested. Colormap
// names are cosmetic parameters, so a bad name falls back rather than
// failing the request.
const DefaultRamp = "RdYlBu_r"

// RampByName resolves a colormap name to its ramp.
func RampByName(name string) Ramp {
	if r, ok := ramps[name]; ok {
		return r
	}
	return ramps[DefaultRamp]
}

// RampNames lists the available colormaps, sorted.
func RampNames() []string {
	names := make([]string, 0, len(ramps))
	for n := range ramps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var ramps = map[string]Ramp{}

type stopDef struct {
	pos float64
	hex string
}

func registerRamp(name string, defs []stopDef) {
	stops := make([]Stop, len(defs))
	for i, d := range defs {
		stops[i] = Stop{Pos: d.pos, Color: hexColor(d.hex)}
	}
	ramps[name] = Ramp{Name: name, Stops: stops}
}

func hexColor(s string) color.NRGBA {
	hex := func(c byte) uint8 {
		switch {
		case c >= '0' && c <= '9':
			return c - '0'
		case c >= 'a' && c <= 'f':
			return c - 'a' + 10
		default:
			return c - 'A' + 10
		}
	}
	return color.NRGBA{
		R: hex(s[1])<<4 | hex(s[2]),
		G: hex(s[3])<<4 | hex(s[4]),
		B: hex(s[5])<<4 | hex(s[6]),
		A: 255,
	}
}

func init() {
	registerRamp("YlOrRd", []stopDef{
		{0.0, "#ffffcc"}, {0.125, "#ffeda0"}, {0.25, "#fed976"},
		{0.375, "#feb24c"}, {0.5, "#fd8d3c"}, {0.625, "#fc4e2a"},
		{0.75, "#e31a1c"}, {0.875, "#bd0026"}, {1.0, "#800026"},
	})
	registerRamp("RdYlBu_r", []stopDef{
		{0.0, "#313695"}, {0.1, "#4575b4"}, {0.2, "#74add1"},
		{0.3, "#abd9e9"}, {0.4, "#e0f3f8"}, {0.5, "#ffffbf"},
		{0.6, "#fee090"}, {0.7, "#fdae61"}, {0.8, "#f46d43"},
		{0.9, "#d73027"}, {1.0, "#a50026"},
	})
	registerRamp("Viridis", []stopDef{
		{0.0, "#440154"}, {0.1, "#482475"}, {0.2, "#414487"},
		{0.3, "#355f8d"}, {0.4, "#2a788e"}, {0.5, "#21918c"},
		{0.6, "#22a884"}, {0.7, "#44bf70"}, {0.8, "#7ad151"},
		{0.9, "#bddf26"}, {1.0, "#fde725"},
	})
	registerRamp("YlGnBu", []stopDef{
		{0.0, "#ffffd9"}, {0.125, "#edf8b1"}, {0.25, "#c7e9b4"},
		{0.375, "#7fcdbb"}, {0.5, "#41b6c4"}, {0.625, "#1d91c0"},
		{0.75, "#225ea8"}, {0.875, "#253494"}, {1.0, "#081d58"},
	})
	registerRamp("IceBlue", []stopDef{
		{0.0, "#08306b"}, {0.25, "#2171b5"}, {0.5, "#6baed6"},
		{0.75, "#c6dbef"}, {1.0, "#f7fbff"},
	})
}
