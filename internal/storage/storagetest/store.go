// Package storagetest provides an in-memory types.ObjectStore for tests of
// packages built on top of the storage drivers.
package storagetest

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/volstore/volstore/internal/filesystem"
	"github.com/volstore/volstore/internal/storage/keys"
	"github.com/volstore/volstore/pkg/errors"
	"github.com/volstore/volstore/pkg/types"
)

// Store is a map-backed object store. Errors set in Fail are returned by the
// named operation ("Exists", "Upload", "Download", "Delete", "List",
// "HealthCheck") until cleared.
type Store struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
	fail    map[string]error
	calls   map[string]int
}

var _ types.ObjectStore = (*Store)(nil)

// New returns an empty store for bucket.
func New(bucket string) *Store {
	return &Store{
		bucket:  bucket,
		objects: make(map[string][]byte),
		fail:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// Put stores data under key.
func (s *Store) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
}

// Get returns the data under key.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

// Fail makes operation return err; a nil err clears it.
func (s *Store) Fail(operation string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, operation)
		return
	}
	s.fail[operation] = err
}

// Calls returns how often operation ran.
func (s *Store) Calls(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[operation]
}

func (s *Store) enter(operation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[operation]++
	return s.fail[operation]
}

func notFound(key string) error {
	return errors.NewError(errors.ErrCodeObjectNotFound, fmt.Sprintf("%s not found", key)).
		WithComponent("memory").WithContext("key", key)
}

// Exists implements types.ObjectStore.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.enter("Exists"); err != nil {
		return false, err
	}
	_, ok := s.Get(key)
	return ok, nil
}

// Upload implements types.ObjectStore.
func (s *Store) Upload(ctx context.Context, localPath, key string) error {
	if err := s.enter("Upload"); err != nil {
		return err
	}
	if _, err := filesystem.CheckUploadSource(localPath); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeOperationFailed, "read failed", err)
	}
	s.Put(key, data)
	return nil
}

// Download implements types.ObjectStore.
func (s *Store) Download(ctx context.Context, key, localPath string) error {
	if err := s.enter("Download"); err != nil {
		return err
	}
	data, ok := s.Get(key)
	if !ok {
		return notFound(key)
	}
	_, err := filesystem.WriteAtomic(localPath, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
	return err
}

// Delete implements types.ObjectStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.enter("Delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// List implements types.ObjectStore.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	objects, err := s.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(objects))
	for i, o := range objects {
		out[i] = o.Key
	}
	return out, nil
}

// ListObjects implements types.ObjectStore.
func (s *Store) ListObjects(ctx context.Context, prefix string) ([]types.ObjectInfo, error) {
	if err := s.enter("List"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.ObjectInfo
	for k, v := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, types.ObjectInfo{Key: k, Size: int64(len(v)), LastModified: time.Unix(0, 0).UTC()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Stats implements types.ObjectStore.
func (s *Store) Stats(ctx context.Context, prefix string) (types.Stats, error) {
	objects, err := s.ListObjects(ctx, prefix)
	if err != nil {
		return types.Stats{Prefix: prefix}, err
	}
	return types.Summarize(prefix, objects), nil
}

// URL implements types.ObjectStore.
func (s *Store) URL(key string) string {
	return keys.ObjectURL("https://memory.invalid", s.bucket, key)
}

// URI implements types.ObjectStore.
func (s *Store) URI(key string) string {
	return keys.ObjectURI(s.bucket, key)
}

// HealthCheck implements types.ObjectStore.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.enter("HealthCheck")
}

// Info implements types.ObjectStore.
func (s *Store) Info(ctx context.Context) (types.StorageInfo, error) {
	stats, err := s.Stats(ctx, "")
	if err != nil {
		return types.StorageInfo{}, err
	}
	return types.NewStorageInfo("MEMORY", s.bucket, "https://memory.invalid", stats), nil
}

// UploadDirectory implements types.ObjectStore.
func (s *Store) UploadDirectory(ctx context.Context, localDir, keyPrefix string) (types.TransferReport, error) {
	return filesystem.UploadTree(ctx, localDir, keyPrefix, s.Upload, zerolog.Nop())
}
