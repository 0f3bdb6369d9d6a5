package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gcsdrive/gcsdrive-go/internal/cache"
	"github.com/gcsdrive/gcsdrive-go/internal/gcsclient"
)

// DefaultBucketCacheLifetime bounds how long the process-wide bucket
// directory is trusted before a drive listing refreshes it.
const DefaultBucketCacheLifetime = time.Minute

// DefaultTextContentType is used for in-memory content uploads when the
// caller does not name one.
const DefaultTextContentType = "text/plain; charset=utf-8"

// StorageClient is the remote surface the provider composes: the object
// store plus the project directory. The real implementation lives in
// internal/gcsclient; tests use its in-memory mock.
type StorageClient interface {
	ListObjects(ctx context.Context, bucket string, q gcsclient.ListQuery) (*gcsclient.ObjectPage, error)
	GetObject(ctx context.Context, bucket, key string) (*gcsclient.Object, error)
	NewRangeReader(ctx context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error)
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) (*gcsclient.Object, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (*gcsclient.Object, error)
	GetBucket(ctx context.Context, name string) (*gcsclient.Bucket, error)
	InsertBucket(ctx context.Context, projectID string, spec gcsclient.BucketSpec) (*gcsclient.Bucket, error)
	DeleteBucket(ctx context.Context, name string) error
	ListBuckets(ctx context.Context, projectID, pageToken string) (*gcsclient.BucketPage, error)
	ListProjects(ctx context.Context, pageToken string) (*gcsclient.ProjectPage, error)
}

// Item is a resolved provider item. Exactly one of Bucket and Entry is set
// for bucket and object paths; both are nil for the drive root.
type Item struct {
	Path   Path
	Bucket *gcsclient.Bucket
	Entry  *Entry
}

// Name returns the item's leaf name relative to its container.
func (i *Item) Name() string {
	if i.Path.Key == "" {
		return i.Path.Bucket
	}
	key := trimSeparators(i.Path.Key)
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

// IsContainer reports whether the item can hold children.
func (i *Item) IsContainer() bool {
	if i.Entry == nil {
		return true
	}
	return i.Entry.Synthetic || strings.HasSuffix(i.Entry.Object.Name, "/")
}

// Options configures a Provider.
type Options struct {
	// DefaultProject is used for bucket creation when no explicit
	// project is given.
	DefaultProject string

	// BucketCacheLifetime overrides DefaultBucketCacheLifetime.
	BucketCacheLifetime time.Duration

	// Progress, when set, receives incremental completion counts during
	// bulk object deletion.
	Progress func(completed, total int)
}

// Provider presents the flatly-namespaced object store as a hierarchical
// namespace: drive, buckets, synthesized folders, objects. It owns two
// caches: the process-wide bucket directory and one content model per
// visited bucket. Both are invalidated wholesale after mutations, since a
// missed partial invalidation is worse than an extra round trip.
//
// A Provider instance expects a single logical caller; concurrency is
// confined to the producer side of its enumeration internals.
type Provider struct {
	client   StorageClient
	project  string
	buckets  *cache.Cell[map[string]*gcsclient.Bucket]
	models   map[string]*BucketModel
	progress func(completed, total int)
}

// New creates a provider around the given client. Caches start empty and
// fill on first use.
func New(client StorageClient, opts Options) *Provider {
	lifetime := opts.BucketCacheLifetime
	if lifetime <= 0 {
		lifetime = DefaultBucketCacheLifetime
	}

	p := &Provider{
		client:   client,
		project:  opts.DefaultProject,
		models:   make(map[string]*BucketModel),
		progress: opts.Progress,
	}
	p.buckets = cache.NewCell(lifetime, func(ctx context.Context) (map[string]*gcsclient.Bucket, error) {
		buckets, err := p.enumerateBuckets(ctx, nil)
		if buckets == nil {
			return nil, err
		}
		if err != nil {
			// Partial enumeration is still a usable directory.
			log.Printf("bucket refresh completed with errors: %v", err)
		}
		return buckets, nil
	})
	return p
}

// model returns the content model for a bucket, building it from one
// listing page on first touch.
func (p *Provider) model(ctx context.Context, bucket string) (*BucketModel, error) {
	if m, ok := p.models[bucket]; ok {
		return m, nil
	}
	m, err := NewBucketModel(ctx, p.client, bucket)
	if err != nil {
		return nil, err
	}
	p.models[bucket] = m
	return m, nil
}

// invalidateModel discards a bucket's content model after a mutation.
func (p *Provider) invalidateModel(bucket string) {
	delete(p.models, bucket)
}

// ItemExists implements the test-path-exists operation.
func (p *Provider) ItemExists(ctx context.Context, path string) (bool, error) {
	parsed := ParsePath(path)
	switch parsed.Type() {
	case PathTypeDrive:
		return true, nil
	case PathTypeBucket:
		return p.bucketExists(ctx, parsed.Bucket)
	default:
		m, err := p.model(ctx, parsed.Bucket)
		if err != nil {
			return false, err
		}
		return m.ObjectExists(ctx, parsed.Key)
	}
}

// IsContainer implements the test-is-container operation.
func (p *Provider) IsContainer(ctx context.Context, path string) (bool, error) {
	parsed := ParsePath(path)
	switch parsed.Type() {
	case PathTypeDrive:
		return true, nil
	case PathTypeBucket:
		return p.bucketExists(ctx, parsed.Bucket)
	default:
		m, err := p.model(ctx, parsed.Bucket)
		if err != nil {
			return false, err
		}
		return m.IsContainer(ctx, parsed.Key)
	}
}

// HasChildItems implements the test-has-children operation.
func (p *Provider) HasChildItems(ctx context.Context, path string) (bool, error) {
	parsed := ParsePath(path)
	switch parsed.Type() {
	case PathTypeDrive:
		buckets, err := p.buckets.Value(ctx)
		if err != nil {
			return false, err
		}
		return len(buckets) > 0, nil
	case PathTypeBucket:
		m, err := p.model(ctx, parsed.Bucket)
		if err != nil {
			return false, err
		}
		return m.HasChildren(ctx, "")
	default:
		m, err := p.model(ctx, parsed.Bucket)
		if err != nil {
			return false, err
		}
		return m.HasChildren(ctx, parsed.Key)
	}
}

// GetItem implements the get-item operation.
func (p *Provider) GetItem(ctx context.Context, path string) (*Item, error) {
	parsed := ParsePath(path)
	switch parsed.Type() {
	case PathTypeDrive:
		return &Item{Path: parsed}, nil
	case PathTypeBucket:
		bucket, err := p.getBucket(ctx, parsed.Bucket)
		if err != nil {
			return nil, err
		}
		return &Item{Path: parsed, Bucket: bucket}, nil
	default:
		m, err := p.model(ctx, parsed.Bucket)
		if err != nil {
			return nil, err
		}
		entry, err := m.GetEntry(ctx, parsed.Key)
		if err != nil {
			return nil, err
		}
		return &Item{Path: parsed, Entry: entry}, nil
	}
}

// ChildItemNames implements the list-child-names operation.
func (p *Provider) ChildItemNames(ctx context.Context, path string) ([]string, error) {
	var names []string
	err := p.ListChildren(ctx, path, false, func(item *Item) error {
		names = append(names, item.Name())
		return nil
	})
	return names, err
}

// ChildItems collects the stream from ListChildren into a slice.
func (p *Provider) ChildItems(ctx context.Context, path string, recurse bool) ([]*Item, error) {
	var items []*Item
	err := p.ListChildren(ctx, path, recurse, func(item *Item) error {
		items = append(items, item)
		return nil
	})
	return items, err
}

// ListChildren streams the children of a path to fn as they are
// discovered. For the drive a fresh bucket directory is iterated directly;
// a stale one triggers a concurrent refresh that emits each bucket the
// moment its project listing yields it. Bucket and object listings are
// delimiter-scoped unless recurse is set, and every real object seen is
// written back into the bucket's content model.
func (p *Provider) ListChildren(ctx context.Context, path string, recurse bool, fn func(*Item) error) error {
	parsed := ParsePath(path)
	if parsed.Type() == PathTypeDrive {
		return p.listDriveChildren(ctx, recurse, fn)
	}
	return p.listObjectChildren(ctx, parsed, recurse, fn)
}

func (p *Provider) listDriveChildren(ctx context.Context, recurse bool, fn func(*Item) error) error {
	emitBucket := func(b *gcsclient.Bucket) error {
		if err := fn(&Item{Path: Path{Bucket: b.Name}, Bucket: b}); err != nil {
			return err
		}
		if !recurse {
			return nil
		}
		return p.listObjectChildren(ctx, Path{Bucket: b.Name}, true, fn)
	}

	if p.buckets.Fresh() {
		buckets, _ := p.buckets.LastValue()
		names := make([]string, 0, len(buckets))
		for name := range buckets {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := emitBucket(buckets[name]); err != nil {
				return err
			}
		}
		return nil
	}

	buckets, err := p.enumerateBuckets(ctx, emitBucket)
	if buckets != nil {
		p.buckets.Store(buckets)
	}
	return err
}

func (p *Provider) listObjectChildren(ctx context.Context, parsed Path, recurse bool, fn func(*Item) error) error {
	m, err := p.model(ctx, parsed.Bucket)
	if err != nil {
		return err
	}

	prefix := ensureTrailingSeparator(parsed.Key)
	query := gcsclient.ListQuery{Prefix: prefix}
	if !recurse {
		query.Delimiter = "/"
	}

	for {
		page, err := p.client.ListObjects(ctx, parsed.Bucket, query)
		if err != nil {
			return err
		}

		for _, obj := range page.Objects {
			m.AddObject(obj)
			if obj.Name == prefix {
				// The query prefix's own folder marker is not
				// one of its children.
				continue
			}
			item := &Item{
				Path:  Path{Bucket: parsed.Bucket, Key: obj.Name},
				Entry: &Entry{Object: obj},
			}
			if err := fn(item); err != nil {
				return err
			}
		}
		for _, common := range page.Prefixes {
			m.addPrefix(common)
			item := &Item{
				Path: Path{Bucket: parsed.Bucket, Key: common},
				Entry: &Entry{
					Object: &gcsclient.Object{
						Bucket:      parsed.Bucket,
						Name:        common,
						ContentType: FolderContentType,
					},
					Synthetic: true,
				},
			}
			if err := fn(item); err != nil {
				return err
			}
		}

		if page.NextPageToken == "" {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		query.PageToken = page.NextPageToken
	}
}

// NewItemOptions configures NewItem.
type NewItemOptions struct {
	// ItemType "Directory" forces the key to name a folder marker.
	ItemType string

	// Content is uploaded as the object body when SourceFile is empty.
	Content []byte

	// SourceFile names a local file whose content becomes the object.
	SourceFile string

	// ContentType overrides the inferred content type.
	ContentType string

	// Bucket creation settings.
	Project                    string
	Location                   string
	StorageClass               string
	PredefinedACL              string
	PredefinedDefaultObjectACL string
}

// NewItem implements the create-item operation: a bucket insert for bucket
// paths, a streaming object upload otherwise.
func (p *Provider) NewItem(ctx context.Context, path string, opts NewItemOptions) (*Item, error) {
	parsed := ParsePath(path)
	if strings.EqualFold(opts.ItemType, "Directory") {
		parsed.Key = ensureTrailingSeparator(parsed.Key)
	}

	switch parsed.Type() {
	case PathTypeDrive:
		return nil, fmt.Errorf("cannot create an item at the drive root")
	case PathTypeBucket:
		return p.newBucket(ctx, parsed, opts)
	default:
		return p.newObject(ctx, parsed, opts)
	}
}

func (p *Provider) newBucket(ctx context.Context, parsed Path, opts NewItemOptions) (*Item, error) {
	project := opts.Project
	if project == "" {
		project = p.project
	}
	if project == "" {
		return nil, fmt.Errorf("no project id given and no default project configured")
	}

	bucket, err := p.client.InsertBucket(ctx, project, gcsclient.BucketSpec{
		Name:                       parsed.Bucket,
		Location:                   opts.Location,
		StorageClass:               opts.StorageClass,
		PredefinedACL:              opts.PredefinedACL,
		PredefinedDefaultObjectACL: opts.PredefinedDefaultObjectACL,
	})
	if err != nil {
		return nil, err
	}

	p.buckets.Reset()
	return &Item{Path: parsed, Bucket: bucket}, nil
}

func (p *Provider) newObject(ctx context.Context, parsed Path, opts NewItemOptions) (*Item, error) {
	var body io.Reader
	contentType := opts.ContentType

	if opts.SourceFile != "" {
		f, err := os.Open(opts.SourceFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open source file: %w", err)
		}
		defer f.Close()
		body = f
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(opts.SourceFile))
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	} else {
		body = bytes.NewReader(opts.Content)
		if contentType == "" {
			contentType = DefaultTextContentType
		}
	}

	obj, err := p.client.Upload(ctx, parsed.Bucket, parsed.Key, contentType, body)
	if err != nil {
		return nil, err
	}

	// Remote state may now differ in ways incremental patching cannot
	// track.
	p.invalidateModel(parsed.Bucket)
	return &Item{Path: parsed, Entry: &Entry{Object: obj}}, nil
}

// CopyItem implements the copy-item operation. A recursive copy re-roots
// every descendant of the source prefix under the destination prefix, plus
// the source's own folder marker when one really exists.
func (p *Provider) CopyItem(ctx context.Context, srcPath, dstPath string, recurse bool) (*Item, error) {
	src := ParsePath(srcPath)
	dst := ParsePath(dstPath)
	if src.Type() != PathTypeObject || dst.Type() != PathTypeObject {
		return nil, fmt.Errorf("copy requires object paths, got %s and %s", src.Type(), dst.Type())
	}

	if !recurse {
		obj, err := p.client.CopyObject(ctx, src.Bucket, src.Key, dst.Bucket, dst.Key)
		if err != nil {
			return nil, err
		}
		p.invalidateModel(dst.Bucket)
		return &Item{Path: dst, Entry: &Entry{Object: obj}}, nil
	}

	srcRoot := Path{Bucket: src.Bucket, Key: ensureTrailingSeparator(src.Key)}
	dstRoot := Path{Bucket: dst.Bucket, Key: ensureTrailingSeparator(dst.Key)}

	m, err := p.model(ctx, src.Bucket)
	if err != nil {
		return nil, err
	}
	real, err := m.IsReal(ctx, srcRoot.Key)
	if err != nil {
		return nil, err
	}
	if real {
		if _, err := p.client.CopyObject(ctx, srcRoot.Bucket, srcRoot.Key, dstRoot.Bucket, dstRoot.Key); err != nil {
			return nil, err
		}
	}

	query := gcsclient.ListQuery{Prefix: srcRoot.Key}
	for {
		page, err := p.client.ListObjects(ctx, srcRoot.Bucket, query)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Objects {
			if obj.Name == srcRoot.Key {
				continue
			}
			rel, err := srcRoot.RelativeToChild(obj.Name)
			if err != nil {
				return nil, err
			}
			if _, err := p.client.CopyObject(ctx, srcRoot.Bucket, obj.Name, dstRoot.Bucket, dstRoot.Key+rel); err != nil {
				return nil, err
			}
		}
		if page.NextPageToken == "" {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		query.PageToken = page.NextPageToken
	}

	p.invalidateModel(src.Bucket)
	p.invalidateModel(dst.Bucket)
	return &Item{
		Path: dstRoot,
		Entry: &Entry{
			Object: &gcsclient.Object{
				Bucket:      dstRoot.Bucket,
				Name:        dstRoot.Key,
				ContentType: FolderContentType,
			},
			Synthetic: true,
		},
	}, nil
}

// RemoveItem implements the remove-item operation. Removing a bucket with
// recurse set empties it first; the bucket delete retries once on a 409
// because the backend may not yet have observed the object deletions.
func (p *Provider) RemoveItem(ctx context.Context, path string, recurse bool) error {
	parsed := ParsePath(path)
	switch parsed.Type() {
	case PathTypeDrive:
		return fmt.Errorf("cannot remove the drive root")
	case PathTypeBucket:
		return p.removeBucket(ctx, parsed.Bucket, recurse)
	default:
		return p.removeObject(ctx, parsed, recurse)
	}
}

func (p *Provider) removeBucket(ctx context.Context, bucket string, recurse bool) error {
	if recurse {
		if err := p.deleteAllObjects(ctx, bucket); err != nil {
			return err
		}
	}

	err := p.client.DeleteBucket(ctx, bucket)
	if gcsclient.IsConflict(err) {
		// A stale "bucket not empty" right after emptying it; one
		// retry, never a loop.
		err = p.client.DeleteBucket(ctx, bucket)
	}
	if err != nil {
		return err
	}

	p.invalidateModel(bucket)
	p.buckets.Reset()
	return nil
}

func (p *Provider) removeObject(ctx context.Context, parsed Path, recurse bool) error {
	m, err := p.model(ctx, parsed.Bucket)
	if err != nil {
		return err
	}

	container, err := m.IsContainer(ctx, parsed.Key)
	if err != nil {
		return err
	}

	if container {
		marker := ensureTrailingSeparator(parsed.Key)
		real, err := m.IsReal(ctx, marker)
		if err != nil {
			return err
		}
		if real {
			if err := p.client.DeleteObject(ctx, parsed.Bucket, marker); err != nil {
				return err
			}
		}
		if recurse {
			query := gcsclient.ListQuery{Prefix: marker}
			for {
				page, err := p.client.ListObjects(ctx, parsed.Bucket, query)
				if err != nil {
					return err
				}
				for _, obj := range page.Objects {
					if err := ctx.Err(); err != nil {
						return err
					}
					if err := p.client.DeleteObject(ctx, parsed.Bucket, obj.Name); err != nil && !gcsclient.IsNotFound(err) {
						return err
					}
				}
				if page.NextPageToken == "" {
					break
				}
				query.PageToken = page.NextPageToken
			}
		}
	} else {
		if err := p.client.DeleteObject(ctx, parsed.Bucket, parsed.Key); err != nil {
			return err
		}
	}

	p.invalidateModel(parsed.Bucket)
	return nil
}

// ClearContent implements the clear-content operation: a zero-length
// overwrite that replaces the body but keeps the object's identity.
func (p *Provider) ClearContent(ctx context.Context, path string) error {
	parsed := ParsePath(path)
	if parsed.Type() != PathTypeObject {
		return fmt.Errorf("content operations require an object path, got %s", parsed.Type())
	}

	obj, err := p.client.GetObject(ctx, parsed.Bucket, parsed.Key)
	if err != nil {
		return err
	}

	if _, err := p.client.Upload(ctx, parsed.Bucket, parsed.Key, obj.ContentType, bytes.NewReader(nil)); err != nil {
		return err
	}
	p.invalidateModel(parsed.Bucket)
	return nil
}

// getBucket resolves a bucket, preferring the last-known directory over a
// remote call.
func (p *Provider) getBucket(ctx context.Context, name string) (*gcsclient.Bucket, error) {
	if buckets, ok := p.buckets.LastValue(); ok {
		if b, ok := buckets[name]; ok {
			return b, nil
		}
	}

	b, err := p.client.GetBucket(ctx, name)
	if err != nil {
		return nil, err
	}
	p.cacheBucket(b)
	return b, nil
}

// bucketExists checks the last-known bucket directory without ever forcing
// a full multi-project enumeration, falling back to a point query whose
// result is cached.
func (p *Provider) bucketExists(ctx context.Context, name string) (bool, error) {
	if buckets, ok := p.buckets.LastValue(); ok {
		if _, ok := buckets[name]; ok {
			return true, nil
		}
	}

	b, err := p.client.GetBucket(ctx, name)
	if err != nil {
		if gcsclient.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	p.cacheBucket(b)
	return true, nil
}

func (p *Provider) cacheBucket(b *gcsclient.Bucket) {
	if buckets, ok := p.buckets.LastValue(); ok {
		buckets[b.Name] = b
	}
}
