package grid

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// objectTimeout bounds each remote object download so a stalled transfer
// fails instead of hanging the sync.
const objectTimeout = 60 * time.Second

func listGCS(ctx context.Context, bucket *storage.BucketHandle, prefix string) []string {
	blobs := []string{}

	it := bucket.Objects(ctx, &storage.Query{
		Prefix:    prefix,
		Delimiter: "/",
	})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logrus.Errorf("Bucket.Objects: %v", err)
			break
		}
		if attrs.Name != "" {
			blobs = append(blobs, attrs.Name)
		}
	}
	return blobs
}

// SyncGCS downloads dataset store files missing from the data directory
// from a GCS bucket. Objects that are not NetCDF stores or that already
// exist locally are skipped; a failed object is logged and skipped rather
// than aborting the sync.
func (s *Store) SyncGCS(ctx context.Context, bucketName string) error {
	var opts []option.ClientOption
	if _, err := os.Stat("service_account.json"); err == nil {
		opts = append(opts, option.WithCredentialsFile("service_account.json"))
	} else {
		opts = append(opts, option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return err
	}
	defer client.Close()
	bucket := client.Bucket(bucketName)

	for _, name := range listGCS(ctx, bucket, "") {
		if !isDataFile(name) {
			continue
		}
		dst := filepath.Join(s.dir, filepath.Base(name))
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := fetchGCSObject(ctx, bucket, name, dst); err != nil {
			logrus.Errorf("fetching gs://%s/%s: %v", bucketName, name, err)
			continue
		}
		logrus.Infof("fetched gs://%s/%s", bucketName, name)
	}
	return nil
}

func fetchGCSObject(ctx context.Context, bucket *storage.BucketHandle, name, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, objectTimeout)
	defer cancel()

	rc, err := bucket.Object(name).NewReader(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
