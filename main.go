package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cache"
	"github.com/gin-contrib/cache/persistence"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ecvx/ecvserv/grid"
	"github.com/ecvx/ecvserv/mask"
	"github.com/ecvx/ecvserv/render"
)

// Wrap cache.CachePage and also emit client-side Cache-Control/Expires headers
func cachePageWithClientHeaders(store persistence.CacheStore, expiration time.Duration, h gin.HandlerFunc) gin.HandlerFunc {
	ch := cache.CachePage(store, expiration, h)
	return func(c *gin.Context) {
		// Add headers before invoking cached handler
		c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(expiration.Seconds())))
		c.Header("Expires", time.Now().UTC().Add(expiration).Format(http.TimeFormat))
		ch(c)
	}
}

func newRouter(s *server) *gin.Engine {
	r := gin.Default()
	store := persistence.NewInMemoryStore(time.Minute)

	r.GET("/datasets", cachePageWithClientHeaders(store, 1*time.Minute, s.listDatasetsHandler))
	r.GET("/datasets/:dataset", cachePageWithClientHeaders(store, 1*time.Minute, s.datasetMetaHandler))
	r.GET("/datasets/:dataset/:variable/:time/stats", cachePageWithClientHeaders(store, 1*time.Hour, s.statsHandler))

	// The rendered image cache lives behind these, no page cache on top.
	r.GET("/render/:dataset/:variable/:time/:colormap", s.overlayHandler)
	r.GET("/map/:dataset/:variable/:time/:colormap", s.mapHandler)
	r.GET("/tiles/:dataset/:variable/:time/:colormap/:z/:x/:y", s.tileHandler)

	r.GET("/timeseries/:dataset/:variable", s.timeseriesHandler)
	r.GET("/legend/:colormap", cachePageWithClientHeaders(store, 24*time.Hour, s.legendHandler))

	return r
}

func main() {
	addr := flag.String("addr", ":8081", "Listen address")
	dataDir := flag.String("data", "./data", "Directory holding the dataset NetCDF files")
	cacheDir := flag.String("cache", "./cache", "Directory for derived artifacts (land masks)")
	shapefile := flag.String("shapefile", "", "Coastline polygon shapefile for land masking")
	cacheSize := flag.Int("cache-size", render.DefaultCacheSize, "Rendered image cache size")
	syncGCS := flag.String("sync-gcs", "", "GCS bucket to fetch missing dataset files from at startup")
	syncS3 := flag.String("sync-s3", "", "S3 bucket to fetch missing dataset files from at startup")
	verbose := flag.Bool("verbose", false, "Verbose mode")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	store := grid.NewStore(*dataDir)
	if *syncGCS != "" {
		if err := store.SyncGCS(context.Background(), *syncGCS); err != nil {
			logrus.Errorf("gcs sync: %v", err)
		}
	}
	if *syncS3 != "" {
		if err := store.SyncS3(context.Background(), *syncS3); err != nil {
			logrus.Errorf("s3 sync: %v", err)
		}
	}

	renderCache, err := render.NewCache(*cacheSize)
	if err != nil {
		logrus.Fatalf("render cache: %v", err)
	}
	renderer := render.New(store, mask.NewBuilder(*shapefile, *cacheDir), renderCache)

	s := &server{store: store, renderer: renderer}
	newRouter(s).Run(*addr)
}
