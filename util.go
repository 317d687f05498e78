package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ecvx/ecvserv/grid"
	"github.com/ecvx/ecvserv/render"
)

// pngName strips a required .png suffix from a path parameter. The image
// routes mimic static file paths, so a request without the suffix is a
// request for something that does not exist.
func pngName(param string) (string, bool) {
	name := strings.TrimSuffix(param, ".png")
	if name == param || name == "" {
		return "", false
	}
	return name, true
}

// parseTimeIndex parses the time path parameter. Time is addressed by index
// into the dataset's time axis.
func parseTimeIndex(param string) (int, bool) {
	n, err := strconv.Atoi(param)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func atoiOK(param string) (int, bool) {
	n, err := strconv.Atoi(param)
	if err != nil {
		return 0, false
	}
	return n, true
}

// abortStoreError maps storage and render errors onto responses: anything
// the client asked for that does not exist is a plain 404, everything else
// is a 500.
func abortStoreError(c *gin.Context, err error) {
	if errors.Is(err, grid.ErrNotFound) || errors.Is(err, render.ErrUnprojectable) {
		c.String(http.StatusNotFound, "No data")
		return
	}
	c.AbortWithError(http.StatusInternalServerError, err)
}
