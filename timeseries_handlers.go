package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *server) timeseriesHandler(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr != nil || lonErr != nil || lat < -90 || lat > 90 {
		c.AbortWithError(http.StatusBadRequest, fmt.Errorf("timeseries needs lat and lon query parameters"))
		return
	}

	dataset := c.Param("dataset")
	variable := c.Param("variable")
	points, err := s.store.Timeseries(dataset, variable, lon, lat)
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if c.Query("format") == "csv" {
		var b strings.Builder
		b.WriteString("time,value\n")
		for _, p := range points {
			fmt.Fprintf(&b, "%s,%g\n", p.Time.UTC().Format(time.RFC3339), p.Value)
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_%s.csv", dataset, variable))
		c.Data(http.StatusOK, "text/csv", []byte(b.String()))
		return
	}

	c.JSON(200, gin.H{
		"dataset":  dataset,
		"variable": variable,
		"lat":      lat,
		"lon":      lon,
		"points":   points,
	})
}
