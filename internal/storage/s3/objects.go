package s3

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/volstore/volstore/internal/filesystem"
	"github.com/volstore/volstore/internal/storage/keys"
	"github.com/volstore/volstore/pkg/errors"
	"github.com/volstore/volstore/pkg/types"
)

// Exists reports whether key is present. A missing object is (false, nil).
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	remote := keys.Remote(c.prefix, key)

	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(remote),
	})
	if err != nil {
		verr := translateError(err, "Exists", remote, errors.ErrCodeObjectNotFound)
		if verr.Code == errors.ErrCodeObjectNotFound {
			c.observe("exists", start, 0, nil)
			return false, nil
		}
		c.observe("exists", start, 0, verr)
		c.logFailure("exists", key, verr)
		return false, verr
	}

	c.observe("exists", start, 0, nil)
	return true, nil
}

// Upload copies a local file to key. Files larger than the part size are sent
// as a multipart upload.
func (c *Client) Upload(ctx context.Context, localPath, key string) error {
	start := time.Now()
	remote := keys.Remote(c.prefix, key)

	info, err := filesystem.CheckUploadSource(localPath)
	if err != nil {
		if verr, ok := errors.As(err); ok {
			verr.WithComponent(DriverName).WithOperation("Upload").WithContext("key", remote)
		}
		c.observe("upload", start, 0, err)
		c.logFailure("upload", key, err)
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		verr := errors.Wrap(errors.ErrCodeOperationFailed, "failed to open local file", err).
			WithComponent(DriverName).WithOperation("Upload").WithContext("path", localPath)
		c.observe("upload", start, 0, verr)
		c.logFailure("upload", key, verr)
		return verr
	}
	defer f.Close()

	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(remote),
		Body:        f,
		ContentType: aws.String(keys.ContentType(key)),
	})
	if err != nil {
		verr := translateError(err, "Upload", remote, errors.ErrCodeObjectNotFound)
		c.observe("upload", start, 0, verr)
		c.logFailure("upload", key, verr)
		return verr
	}

	c.observe("upload", start, info.Size(), nil)
	c.logger.Debug().
		Str("key", key).
		Str("path", localPath).
		Int64("bytes", info.Size()).
		Dur("duration", time.Since(start)).
		Msg("Uploaded object")
	return nil
}

// Download copies key to localPath, creating parent directories. The file only
// appears at localPath once the whole object has been received.
func (c *Client) Download(ctx context.Context, key, localPath string) error {
	start := time.Now()
	remote := keys.Remote(c.prefix, key)

	n, err := filesystem.WriteAtomic(localPath, func(f *os.File) error {
		_, err := c.downloader.Download(ctx, f, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(remote),
		})
		if err != nil {
			return translateError(err, "Download", remote, errors.ErrCodeObjectNotFound)
		}
		return nil
	})
	if err != nil {
		if verr, ok := errors.As(err); ok && verr.Component == "" {
			verr.WithComponent(DriverName).WithOperation("Download").WithContext("key", remote)
		}
		c.observe("download", start, 0, err)
		c.logFailure("download", key, err)
		return err
	}

	c.observe("download", start, n, nil)
	c.logger.Debug().
		Str("key", key).
		Str("path", localPath).
		Int64("bytes", n).
		Dur("duration", time.Since(start)).
		Msg("Downloaded object")
	return nil
}

// Delete removes key. Deleting a missing key succeeds.
func (c *Client) Delete(ctx context.Context, key string) error {
	start := time.Now()
	remote := keys.Remote(c.prefix, key)

	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(remote),
	})
	if err != nil {
		verr := translateError(err, "Delete", remote, errors.ErrCodeObjectNotFound)
		c.observe("delete", start, 0, verr)
		c.logFailure("delete", key, verr)
		return verr
	}

	c.observe("delete", start, 0, nil)
	return nil
}

// List returns the logical keys under prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	objects, err := c.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(objects))
	for _, obj := range objects {
		out = append(out, obj.Key)
	}
	return out, nil
}

// ListObjects enumerates every object under prefix, following continuation
// tokens until the listing is exhausted.
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]types.ObjectInfo, error) {
	start := time.Now()
	remotePrefix := keys.Remote(c.prefix, prefix)

	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(remotePrefix),
	})

	var objects []types.ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			verr := translateError(err, "ListObjects", remotePrefix, errors.ErrCodeBucketNotFound)
			c.observe("list", start, 0, verr)
			c.logFailure("list", prefix, verr)
			return nil, verr
		}
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectInfo{
				Key:          keys.Logical(c.prefix, aws.ToString(obj.Key)),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
			})
		}
	}

	c.observe("list", start, 0, nil)
	return objects, nil
}

// Stats counts the objects and bytes under prefix.
func (c *Client) Stats(ctx context.Context, prefix string) (types.Stats, error) {
	objects, err := c.ListObjects(ctx, prefix)
	if err != nil {
		return types.Stats{Prefix: prefix}, err
	}
	return types.Summarize(prefix, objects), nil
}

// Info summarizes the whole volume.
func (c *Client) Info(ctx context.Context) (types.StorageInfo, error) {
	stats, err := c.Stats(ctx, "")
	if err != nil {
		return types.StorageInfo{}, err
	}
	return types.NewStorageInfo(c.datacenter, c.bucket, c.endpoint, stats), nil
}

// URL returns the HTTPS address of key. No request is made.
func (c *Client) URL(key string) string {
	return keys.ObjectURL(c.endpoint, c.bucket, keys.Remote(c.prefix, key))
}

// URI returns the s3:// address of key.
func (c *Client) URI(key string) string {
	return keys.ObjectURI(c.bucket, keys.Remote(c.prefix, key))
}

// UploadDirectory uploads every regular file below localDir to keyPrefix plus
// its relative path.
func (c *Client) UploadDirectory(ctx context.Context, localDir, keyPrefix string) (types.TransferReport, error) {
	return filesystem.UploadTree(ctx, localDir, keyPrefix, c.Upload, c.logger)
}
