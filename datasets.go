package main

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ecvx/ecvserv/grid"
	"github.com/ecvx/ecvserv/render"
)

// dataStore is the slice of grid.Store the handlers need.
type dataStore interface {
	Available() []string
	Times(datasetID string) ([]time.Time, error)
	Stats(datasetID, variable string, timeIndex int) (*grid.Stats, error)
	Timeseries(datasetID, variable string, lon, lat float64) ([]grid.Point, error)
}

type imageRenderer interface {
	Render(req render.Request) (*render.Image, error)
}

type server struct {
	store    dataStore
	renderer imageRenderer
}

func (s *server) listDatasetsHandler(c *gin.Context) {
	ids := s.store.Available()
	sort.Strings(ids)
	c.JSON(200, ids)
}

// datasetMeta is the /datasets/:dataset response: the registry entry plus
// the time axis labels a client needs to build its time slider.
type datasetMeta struct {
	grid.DatasetInfo
	Times []string `json:"times"`
}

func (s *server) datasetMetaHandler(c *gin.Context) {
	info, ok := grid.Datasets[c.Param("dataset")]
	if !ok {
		c.String(http.StatusNotFound, "No data")
		return
	}

	times, err := s.store.Times(info.ID)
	if err != nil {
		c.String(http.StatusNotFound, "No data")
		return
	}
	labels := make([]string, len(times))
	for i, t := range times {
		labels[i] = t.UTC().Format("2006-01-02 15:04")
	}

	c.JSON(200, datasetMeta{DatasetInfo: info, Times: labels})
}

func (s *server) statsHandler(c *gin.Context) {
	timeIndex, ok := parseTimeIndex(c.Param("time"))
	if !ok {
		c.String(http.StatusNotFound, "No data")
		return
	}

	stats, err := s.store.Stats(c.Param("dataset"), c.Param("variable"), timeIndex)
	if err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(200, stats)
}
