package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ecvx/ecvserv/render"
)

// renderRequest parses the path and query parameters shared by the three
// render surfaces. Cosmetic parameters never fail; a malformed sigma or an
// unknown interp just takes its default. Structural parameters report !ok.
func renderRequest(c *gin.Context, mode render.Mode) (render.Request, bool) {
	timeIndex, ok := parseTimeIndex(c.Param("time"))
	if !ok {
		return render.Request{}, false
	}

	sigma := 1.0
	if v, err := strconv.ParseFloat(c.Query("sigma"), 64); err == nil && v >= 0 {
		sigma = v
	}

	return render.Request{
		Dataset:   c.Param("dataset"),
		Variable:  c.Param("variable"),
		TimeIndex: timeIndex,
		Colormap:  c.Param("colormap"),
		Sigma:     sigma,
		Interp:    c.DefaultQuery("interp", "bilinear"),
		Mode:      mode,
	}, true
}

func (s *server) serveImage(c *gin.Context, req render.Request) {
	img, err := s.renderer.Render(req)
	if err != nil {
		abortStoreError(c, err)
		return
	}

	if img.CacheHit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	setBoundsHeaders(c, img.Bounds)
	c.Data(http.StatusOK, "image/png", img.PNG)
}

func (s *server) overlayHandler(c *gin.Context) {
	colormap, ok := pngName(c.Param("colormap"))
	if !ok {
		c.String(http.StatusNotFound, "No data")
		return
	}
	req, ok := renderRequest(c, render.ModeOverlay)
	if !ok {
		c.String(http.StatusNotFound, "No data")
		return
	}
	req.Colormap = colormap
	s.serveImage(c, req)
}

func (s *server) mapHandler(c *gin.Context) {
	colormap, ok := pngName(c.Param("colormap"))
	if !ok {
		c.String(http.StatusNotFound, "No data")
		return
	}
	req, ok := renderRequest(c, render.ModeMercator)
	if !ok {
		c.String(http.StatusNotFound, "No data")
		return
	}
	req.Colormap = colormap
	s.serveImage(c, req)
}

// tileHandler never errors toward the client: map UIs fire hundreds of tile
// requests and a broken one should vanish, not pop an error.
func (s *server) tileHandler(c *gin.Context) {
	req, ok := renderRequest(c, render.ModeTile)
	if ok {
		req.Z, ok = atoiOK(c.Param("z"))
	}
	if ok {
		req.X, ok = atoiOK(c.Param("x"))
	}
	if ok {
		var yName string
		yName, ok = pngName(c.Param("y"))
		if ok {
			req.Y, ok = atoiOK(yName)
		}
	}
	if !ok {
		transparentTile(c)
		return
	}

	img, err := s.renderer.Render(req)
	if err != nil {
		logrus.Debugf("tile %s/%s[%d] z%d/%d/%d: %v", req.Dataset, req.Variable, req.TimeIndex, req.Z, req.X, req.Y, err)
		transparentTile(c)
		return
	}
	if img.CacheHit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.Data(http.StatusOK, "image/png", img.PNG)
}

func transparentTile(c *gin.Context) {
	c.Data(http.StatusOK, "image/png", render.TransparentTile())
}

func (s *server) legendHandler(c *gin.Context) {
	name, ok := pngName(c.Param("colormap"))
	if !ok {
		c.String(http.StatusNotFound, "No data")
		return
	}
	data, err := render.Legend(name)
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

func setBoundsHeaders(c *gin.Context, b render.Bounds) {
	c.Header("X-Bounds-West", strconv.FormatFloat(b.West, 'f', -1, 64))
	c.Header("X-Bounds-South", strconv.FormatFloat(b.South, 'f', -1, 64))
	c.Header("X-Bounds-East", strconv.FormatFloat(b.East, 'f', -1, 64))
	c.Header("X-Bounds-North", strconv.FormatFloat(b.North, 'f', -1, 64))
}
