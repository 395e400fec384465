package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeObject struct {
	data        []byte
	modified    time.Time
	contentType string
}

// fakeS3 is an in-memory bucket implementing API.
type fakeS3 struct {
	mu       sync.Mutex
	bucket   string
	objects  map[string]fakeObject
	uploads  map[string]map[int32][]byte
	nextID   int
	pageSize int
	calls    map[string]int

	headBucketErr error
	putErr        error
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{
		bucket:   bucket,
		objects:  make(map[string]fakeObject),
		uploads:  make(map[string]map[int32][]byte),
		pageSize: 1000,
		calls:    make(map[string]int),
	}
}

func (f *fakeS3) record(op string) {
	f.calls[op]++
}

func (f *fakeS3) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeS3) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{data: data, modified: time.Now()}
}

func (f *fakeS3) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	return obj.data, ok
}

func (f *fakeS3) checkBucket(bucket *string) error {
	if aws.ToString(bucket) != f.bucket {
		return &s3types.NoSuchBucket{Message: aws.String("The specified bucket does not exist")}
	}
	return nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("PutObject")
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.objects[aws.ToString(in.Key)] = fakeObject{data: data, modified: time.Now(), contentType: aws.ToString(in.ContentType)}
	return &s3.PutObjectOutput{ETag: aws.String(fmt.Sprintf("%q", strconv.Itoa(len(data))))}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateMultipartUpload")
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	f.uploads[id] = make(map[int32][]byte)
	return &s3.CreateMultipartUploadOutput{Bucket: in.Bucket, Key: in.Key, UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UploadPart")
	parts, ok := f.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &s3types.NoSuchUpload{}
	}
	n := aws.ToInt32(in.PartNumber)
	parts[n] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("\"part-%d\"", n))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CompleteMultipartUpload")
	id := aws.ToString(in.UploadId)
	parts, ok := f.uploads[id]
	if !ok {
		return nil, &s3types.NoSuchUpload{}
	}
	var buf bytes.Buffer
	for _, p := range in.MultipartUpload.Parts {
		buf.Write(parts[aws.ToInt32(p.PartNumber)])
	}
	delete(f.uploads, id)
	f.objects[aws.ToString(in.Key)] = fakeObject{data: buf.Bytes(), modified: time.Now()}
	return &s3.CompleteMultipartUploadOutput{Bucket: in.Bucket, Key: in.Key}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AbortMultipartUpload")
	delete(f.uploads, aws.ToString(in.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetObject")
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}

	total := int64(len(obj.data))
	start, end := int64(0), total-1
	if r := aws.ToString(in.Range); r != "" {
		if _, err := fmt.Sscanf(r, "bytes=%d-%d", &start, &end); err != nil {
			return nil, fmt.Errorf("bad range %q: %w", r, err)
		}
		if end > total-1 {
			end = total - 1
		}
	}
	chunk := append([]byte(nil), obj.data[start:end+1]...)

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(chunk)),
		ContentLength: aws.Int64(int64(len(chunk))),
		ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, total)),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("HeadObject")
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("HeadBucket")
	if f.headBucketErr != nil {
		return nil, f.headBucketErr
	}
	if aws.ToString(in.Bucket) != f.bucket {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteObject")
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListObjectsV2")
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}

	prefix := aws.ToString(in.Prefix)
	var matched []string
	for k := range f.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			matched = append(matched, k)
		}
	}
	sort.Strings(matched)

	offset := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("bad continuation token %q", tok)
		}
		offset = n
	}
	end := offset + f.pageSize
	if end > len(matched) {
		end = len(matched)
	}

	out := &s3.ListObjectsV2Output{
		KeyCount:    aws.Int32(int32(end - offset)),
		IsTruncated: aws.Bool(end < len(matched)),
	}
	for _, k := range matched[offset:end] {
		obj := f.objects[k]
		out.Contents = append(out.Contents, s3types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
			ETag:         aws.String("\"etag\""),
		})
	}
	if end < len(matched) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}
