package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

type fakeObject struct {
	data        []byte
	modified    time.Time
	contentType string
}

// fakeMinIO is an in-memory bucket implementing API.
type fakeMinIO struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]fakeObject
	calls   map[string]int

	bucketErr error
	putErr    error
}

func newFakeMinIO(bucket string) *fakeMinIO {
	return &fakeMinIO{
		bucket:  bucket,
		objects: make(map[string]fakeObject),
		calls:   make(map[string]int),
	}
}

func noSuchKey(bucket, key string) error {
	return minio.ErrorResponse{
		Code:       "NoSuchKey",
		Message:    "The specified key does not exist.",
		BucketName: bucket,
		Key:        key,
		StatusCode: http.StatusNotFound,
	}
}

func noSuchBucket(bucket string) error {
	return minio.ErrorResponse{
		Code:       "NoSuchBucket",
		Message:    "The specified bucket does not exist",
		BucketName: bucket,
		StatusCode: http.StatusNotFound,
	}
}

func (f *fakeMinIO) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeMinIO) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{data: data, modified: time.Now()}
}

func (f *fakeMinIO) get(key string) (fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	return obj, ok
}

func (f *fakeMinIO) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["BucketExists"]++
	if f.bucketErr != nil {
		return false, f.bucketErr
	}
	return bucketName == f.bucket, nil
}

func (f *fakeMinIO) StatObject(ctx context.Context, bucketName, objectName string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["StatObject"]++
	if bucketName != f.bucket {
		return minio.ObjectInfo{}, noSuchBucket(bucketName)
	}
	obj, ok := f.objects[objectName]
	if !ok {
		return minio.ObjectInfo{}, noSuchKey(bucketName, objectName)
	}
	return minio.ObjectInfo{Key: objectName, Size: int64(len(obj.data)), LastModified: obj.modified}, nil
}

func (f *fakeMinIO) FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FPutObject"]++
	if bucketName != f.bucket {
		return minio.UploadInfo{}, noSuchBucket(bucketName)
	}
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	f.objects[objectName] = fakeObject{data: data, modified: time.Now(), contentType: opts.ContentType}
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: int64(len(data))}, nil
}

func (f *fakeMinIO) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListObjects"]++

	out := make(chan minio.ObjectInfo, len(f.objects)+1)
	defer close(out)
	if bucketName != f.bucket {
		out <- minio.ObjectInfo{Err: noSuchBucket(bucketName)}
		return out
	}

	var matched []string
	for k := range f.objects {
		if strings.HasPrefix(k, opts.Prefix) {
			matched = append(matched, k)
		}
	}
	sort.Strings(matched)
	for _, k := range matched {
		obj := f.objects[k]
		out <- minio.ObjectInfo{Key: k, Size: int64(len(obj.data)), LastModified: obj.modified, ETag: "etag"}
	}
	return out
}

func (f *fakeMinIO) RemoveObject(ctx context.Context, bucketName, objectName string, _ minio.RemoveObjectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["RemoveObject"]++
	if bucketName != f.bucket {
		return noSuchBucket(bucketName)
	}
	delete(f.objects, objectName)
	return nil
}

func (f *fakeMinIO) OpenObject(ctx context.Context, bucketName, objectName string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["OpenObject"]++
	if bucketName != f.bucket {
		return nil, noSuchBucket(bucketName)
	}
	obj, ok := f.objects[objectName]
	if !ok {
		return nil, noSuchKey(bucketName, objectName)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), obj.data...))), nil
}
