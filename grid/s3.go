package grid

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"
)

// SyncS3 downloads dataset store files missing from the data directory from
// a public S3 mirror, read with anonymous credentials.
func (s *Store) SyncS3(ctx context.Context, bucketName string) error {
	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.AnonymousCredentials,
		Region:      aws.String("us-east-1"),
	})
	if err != nil {
		return err
	}
	svc := s3.New(sess)
	bucket := aws.String(bucketName)

	var token *string
	var objects []*s3.Object
	for {
		resp, err := svc.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
			Bucket:            bucket,
			ContinuationToken: token,
		})
		if err != nil {
			return err
		}
		objects = append(objects, resp.Contents...)
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		token = resp.NextContinuationToken
	}

	for _, obj := range objects {
		key := aws.StringValue(obj.Key)
		if !isDataFile(key) {
			continue
		}
		dst := filepath.Join(s.dir, filepath.Base(key))
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := s.fetchS3Object(ctx, svc, bucket, key, dst); err != nil {
			logrus.Errorf("fetching s3://%s/%s: %v", bucketName, key, err)
			continue
		}
		logrus.Infof("fetched s3://%s/%s", bucketName, key)
	}
	return nil
}

func (s *Store) fetchS3Object(ctx context.Context, svc *s3.S3, bucket *string, key, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, objectTimeout)
	defer cancel()

	resp, err := svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
