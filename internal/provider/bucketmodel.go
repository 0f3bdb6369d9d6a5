package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/gcsdrive/gcsdrive-go/internal/gcsclient"
)

// FolderContentType marks entries that stand in for a key prefix rather
// than a stored object.
const FolderContentType = "Folder"

// Entry is a bucket item as seen through the model: either a real stored
// object, or a folder synthesized from a key prefix that has no real
// trailing-slash object behind it.
type Entry struct {
	Object    *gcsclient.Object
	Synthetic bool
}

// BucketModel indexes one bucket's flat key listing into a synthesized
// prefix hierarchy so existence, container-ness and child-presence queries
// can usually be answered without another round trip. Only the first
// listing page is fetched eagerly; when that page was truncated the model
// degrades to point queries and caches their outcomes, negative results
// included.
//
// Like the rest of the provider state, a model is driven by a single
// caller and does no locking of its own.
type BucketModel struct {
	client StorageClient
	bucket string

	// objects maps full key to metadata; a nil value records a key
	// confirmed absent by an earlier point query.
	objects map[string]*gcsclient.Object

	// prefixes maps each synthesized folder prefix (trailing separator
	// stripped) to whether a known real child lies strictly beneath it.
	prefixes map[string]bool

	pageLimited bool
}

// NewBucketModel builds a model from a single listing page of the bucket.
func NewBucketModel(ctx context.Context, client StorageClient, bucket string) (*BucketModel, error) {
	m := &BucketModel{
		client:   client,
		bucket:   bucket,
		objects:  make(map[string]*gcsclient.Object),
		prefixes: make(map[string]bool),
	}

	page, err := client.ListObjects(ctx, bucket, gcsclient.ListQuery{})
	if err != nil {
		return nil, fmt.Errorf("failed to populate bucket model for %q: %w", bucket, err)
	}

	m.pageLimited = page.NextPageToken != ""
	for _, obj := range page.Objects {
		m.AddObject(obj)
	}
	return m, nil
}

// PageLimited reports whether the model's snapshot was truncated by
// pagination and therefore cannot be treated as a complete enumeration.
func (m *BucketModel) PageLimited() bool {
	return m.pageLimited
}

// AddObject upserts an object into the index and registers every strict
// ancestor prefix of its key. The immediate parent counts the object as a
// real child only when the key carries content past its final separator,
// i.e. the object is not merely that folder's own marker; every prefix
// above has a confirmed descendant either way.
func (m *BucketModel) AddObject(obj *gcsclient.Object) {
	m.objects[obj.Name] = obj

	name := obj.Name
	last := strings.LastIndex(name, "/")
	if last < 0 {
		return
	}

	hasChild := last+1 < len(name)
	prefix := name[:last]
	m.prefixes[prefix] = m.prefixes[prefix] || hasChild

	for {
		last = strings.LastIndex(prefix, "/")
		if last < 0 {
			return
		}
		prefix = prefix[:last]
		m.prefixes[prefix] = true
	}
}

// addPrefix records a folder prefix discovered through a delimiter-scoped
// listing without asserting anything about its children.
func (m *BucketModel) addPrefix(prefix string) {
	trimmed := trimSeparators(prefix)
	if trimmed == "" {
		return
	}
	if _, ok := m.prefixes[trimmed]; !ok {
		m.prefixes[trimmed] = false
	}
}

// ObjectExists reports whether key names a known real object or folder
// prefix. When the snapshot is page-limited and the key is unknown, one
// point query settles it and the outcome is cached either way.
func (m *BucketModel) ObjectExists(ctx context.Context, key string) (bool, error) {
	if obj, ok := m.objects[key]; ok {
		if obj != nil {
			return true, nil
		}
		// Confirmed absent earlier; only a prefix can still make it
		// visible.
		_, isPrefix := m.prefixes[trimSeparators(key)]
		return isPrefix, nil
	}
	if _, ok := m.prefixes[trimSeparators(key)]; ok {
		return true, nil
	}
	if !m.pageLimited {
		return false, nil
	}

	obj, err := m.client.GetObject(ctx, m.bucket, key)
	if err != nil {
		if gcsclient.IsNotFound(err) {
			m.objects[key] = nil
			return false, nil
		}
		return false, err
	}
	m.AddObject(obj)
	return true, nil
}

// IsContainer reports whether key (separator-trimmed) is a known folder
// prefix, falling back to a delimiter-scoped listing when the snapshot is
// page-limited.
func (m *BucketModel) IsContainer(ctx context.Context, key string) (bool, error) {
	key = trimSeparators(key)
	if key == "" {
		return true, nil
	}
	if _, ok := m.prefixes[key]; ok {
		return true, nil
	}
	if !m.pageLimited {
		return false, nil
	}

	page, err := m.client.ListObjects(ctx, m.bucket, gcsclient.ListQuery{
		Prefix:    key,
		Delimiter: "/",
	})
	if err != nil {
		return false, err
	}
	for _, prefix := range page.Prefixes {
		if prefix == key+"/" {
			m.addPrefix(prefix)
			return true, nil
		}
	}
	return false, nil
}

// HasChildren reports whether anything is known to live under key. The
// empty key asks about the bucket root.
func (m *BucketModel) HasChildren(ctx context.Context, key string) (bool, error) {
	key = trimSeparators(key)
	if key == "" {
		for _, obj := range m.objects {
			if obj != nil {
				return true, nil
			}
		}
		return false, nil
	}

	if has, ok := m.prefixes[key]; ok {
		return has, nil
	}
	if !m.pageLimited {
		return false, nil
	}

	page, err := m.client.ListObjects(ctx, m.bucket, gcsclient.ListQuery{
		Prefix: key + "/",
	})
	if err != nil {
		return false, err
	}
	for _, obj := range page.Objects {
		m.AddObject(obj)
	}
	return len(page.Objects) > 0, nil
}

// GetEntry returns the entry for key: the cached object, a synthesized
// folder when key is a known prefix with no real trailing-slash object, or
// the result of a point query. A point query miss surfaces as an error
// because the caller asked for a specific item.
func (m *BucketModel) GetEntry(ctx context.Context, key string) (*Entry, error) {
	if obj, ok := m.objects[key]; ok && obj != nil {
		return &Entry{Object: obj}, nil
	}

	trimmed := trimSeparators(key)
	if _, ok := m.prefixes[trimmed]; ok {
		if obj, ok := m.objects[trimmed+"/"]; ok && obj != nil {
			return &Entry{Object: obj}, nil
		}
		return &Entry{
			Object: &gcsclient.Object{
				Bucket:      m.bucket,
				Name:        trimmed + "/",
				ContentType: FolderContentType,
			},
			Synthetic: true,
		}, nil
	}

	obj, err := m.client.GetObject(ctx, m.bucket, key)
	if err != nil {
		return nil, err
	}
	m.AddObject(obj)
	return &Entry{Object: obj}, nil
}

// IsReal reports whether key is a genuine stored object, as opposed to a
// synthesized prefix. A 404 on the fallback point query answers "no"
// rather than propagating; any other fault does propagate.
func (m *BucketModel) IsReal(ctx context.Context, key string) (bool, error) {
	if obj, ok := m.objects[key]; ok {
		return obj != nil, nil
	}
	if !m.pageLimited {
		return false, nil
	}

	obj, err := m.client.GetObject(ctx, m.bucket, key)
	if err != nil {
		if gcsclient.IsNotFound(err) {
			m.objects[key] = nil
			return false, nil
		}
		return false, err
	}
	m.AddObject(obj)
	return true, nil
}
