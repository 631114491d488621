package drivers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/clipforge/exportd/internal/blob"
	"github.com/clipforge/exportd/internal/platform/dbctx"
)

// fakeStore is an in-memory blob.Store used to exercise drivers without a
// real object storage backend. It's deliberately minimal: only the methods
// the drivers and the local renderer actually call are meaningfully
// implemented.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) objKey(category blob.Category, key string) string {
	return fmt.Sprintf("%s/%s", category, key)
}

func (f *fakeStore) put(category blob.Category, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[f.objKey(category, key)] = data
}

func (f *fakeStore) UploadFile(dbc dbctx.Context, category blob.Category, key string, file io.Reader) error {
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.put(category, key, data)
	return nil
}

func (f *fakeStore) DeleteFile(dbc dbctx.Context, category blob.Category, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, f.objKey(category, key))
	return nil
}

func (f *fakeStore) ReplaceFile(dbc dbctx.Context, category blob.Category, key string, newFile io.Reader) error {
	return f.UploadFile(dbc, category, key, newFile)
}

func (f *fakeStore) DownloadFile(ctx context.Context, category blob.Category, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	data, ok := f.objects[f.objKey(category, key)]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", category, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStore) OpenRangeReader(ctx context.Context, category blob.Category, key string, offset, length int64) (io.ReadCloser, error) {
	return f.DownloadFile(ctx, category, key)
}

func (f *fakeStore) GetObjectAttrs(ctx context.Context, category blob.Category, key string) (*blob.ObjectAttrs, error) {
	f.mu.Lock()
	data, ok := f.objects[f.objKey(category, key)]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", category, key)
	}
	return &blob.ObjectAttrs{Size: int64(len(data))}, nil
}

func (f *fakeStore) CopyObject(ctx context.Context, category blob.Category, srcKey, dstKey string) error {
	f.mu.Lock()
	data, ok := f.objects[f.objKey(category, srcKey)]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("object %s/%s not found", category, srcKey)
	}
	f.put(category, dstKey, data)
	return nil
}

func (f *fakeStore) ListKeys(ctx context.Context, category blob.Category, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	want := f.objKey(category, prefix)
	for k := range f.objects {
		if strings.HasPrefix(k, want) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeStore) DeletePrefix(ctx context.Context, category blob.Category, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := f.objKey(category, prefix)
	for k := range f.objects {
		if strings.HasPrefix(k, want) {
			delete(f.objects, k)
		}
	}
	return nil
}

func (f *fakeStore) GetPublicURL(ctx context.Context, category blob.Category, key string) (string, error) {
	return "https://fake.local/" + f.objKey(category, key), nil
}
