package gcsclient

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Client wraps the Cloud Storage SDK and the project directory behind the
// narrow surface the provider needs.
type Client struct {
	storage  *storage.Client
	projects ProjectLister
}

// NewClient creates a new client. Options typically carry a credentials
// file or an emulator endpoint.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	sc, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	pl, err := newProjectService(ctx, opts...)
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("failed to create project service: %w", err)
	}

	return &Client{storage: sc, projects: pl}, nil
}

// Close releases the underlying connections.
func (c *Client) Close() error {
	return c.storage.Close()
}

// ListObjects returns one page of the bucket's object listing. Common
// prefixes grouped by the delimiter are returned alongside the objects.
func (c *Client) ListObjects(ctx context.Context, bucket string, q ListQuery) (*ObjectPage, error) {
	it := c.storage.Bucket(bucket).Objects(ctx, &storage.Query{
		Prefix:    q.Prefix,
		Delimiter: q.Delimiter,
	})

	pageSize := q.MaxResults
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var attrs []*storage.ObjectAttrs
	pager := iterator.NewPager(it, pageSize, q.PageToken)
	next, err := pager.NextPage(&attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in %q: %w", bucket, err)
	}

	page := &ObjectPage{NextPageToken: next}
	for _, a := range attrs {
		if a.Prefix != "" {
			page.Prefixes = append(page.Prefixes, a.Prefix)
			continue
		}
		page.Objects = append(page.Objects, objectFromAttrs(a))
	}
	return page, nil
}

// GetObject performs a point metadata query for a single key.
func (c *Client) GetObject(ctx context.Context, bucket, key string) (*Object, error) {
	attrs, err := c.storage.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotExist
		}
		return nil, fmt.Errorf("failed to get object %q: %w", key, err)
	}
	return objectFromAttrs(attrs), nil
}

// NewRangeReader opens the object's media body for reading. length -1 reads
// to the end of the object.
func (c *Client) NewRangeReader(ctx context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error) {
	r, err := c.storage.Bucket(bucket).Object(key).NewRangeReader(ctx, offset, length)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotExist
		}
		return nil, fmt.Errorf("failed to open object %q: %w", key, err)
	}
	return r, nil
}

// Upload streams body into the named object, replacing any existing
// content, and returns the resulting metadata record.
func (c *Client) Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) (*Object, error) {
	w := c.storage.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize object %q: %w", key, err)
	}
	return objectFromAttrs(w.Attrs()), nil
}

// DeleteObject deletes a single object.
func (c *Client) DeleteObject(ctx context.Context, bucket, key string) error {
	err := c.storage.Bucket(bucket).Object(key).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrObjectNotExist
		}
		return fmt.Errorf("failed to delete object %q: %w", key, err)
	}
	return nil
}

// CopyObject performs a server-side copy.
func (c *Client) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (*Object, error) {
	src := c.storage.Bucket(srcBucket).Object(srcKey)
	dst := c.storage.Bucket(dstBucket).Object(dstKey)

	attrs, err := dst.CopierFrom(src).Run(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotExist
		}
		return nil, fmt.Errorf("failed to copy %s/%s to %s/%s: %w", srcBucket, srcKey, dstBucket, dstKey, err)
	}
	return objectFromAttrs(attrs), nil
}

// GetBucket performs a point metadata query for a single bucket.
func (c *Client) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	attrs, err := c.storage.Bucket(name).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrBucketNotExist) {
			return nil, ErrBucketNotExist
		}
		return nil, fmt.Errorf("failed to get bucket %q: %w", name, err)
	}
	return bucketFromAttrs(attrs, ""), nil
}

// InsertBucket creates a bucket in the given project.
func (c *Client) InsertBucket(ctx context.Context, projectID string, spec BucketSpec) (*Bucket, error) {
	attrs := &storage.BucketAttrs{
		Location:                   spec.Location,
		StorageClass:               spec.StorageClass,
		PredefinedACL:              spec.PredefinedACL,
		PredefinedDefaultObjectACL: spec.PredefinedDefaultObjectACL,
	}

	handle := c.storage.Bucket(spec.Name)
	if err := handle.Create(ctx, projectID, attrs); err != nil {
		return nil, fmt.Errorf("failed to create bucket %q: %w", spec.Name, err)
	}

	created, err := handle.Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read back bucket %q: %w", spec.Name, err)
	}
	return bucketFromAttrs(created, projectID), nil
}

// DeleteBucket deletes a bucket. The remote end rejects the call with a 409
// while the bucket still holds objects.
func (c *Client) DeleteBucket(ctx context.Context, name string) error {
	if err := c.storage.Bucket(name).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrBucketNotExist) {
			return ErrBucketNotExist
		}
		return fmt.Errorf("failed to delete bucket %q: %w", name, err)
	}
	return nil
}

// ListBuckets returns one page of the project's bucket listing.
func (c *Client) ListBuckets(ctx context.Context, projectID, pageToken string) (*BucketPage, error) {
	it := c.storage.Buckets(ctx, projectID)

	var attrs []*storage.BucketAttrs
	pager := iterator.NewPager(it, DefaultPageSize, pageToken)
	next, err := pager.NextPage(&attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets in project %q: %w", projectID, err)
	}

	page := &BucketPage{NextPageToken: next}
	for _, a := range attrs {
		page.Buckets = append(page.Buckets, bucketFromAttrs(a, projectID))
	}
	return page, nil
}

// ListProjects returns one page of the projects visible to the caller's
// identity.
func (c *Client) ListProjects(ctx context.Context, pageToken string) (*ProjectPage, error) {
	return c.projects.ListProjects(ctx, pageToken)
}

func objectFromAttrs(a *storage.ObjectAttrs) *Object {
	return &Object{
		Bucket:      a.Bucket,
		Name:        a.Name,
		ContentType: a.ContentType,
		Size:        a.Size,
		Generation:  a.Generation,
		MediaLink:   a.MediaLink,
		Updated:     a.Updated,
		Metadata:    a.Metadata,
	}
}

func bucketFromAttrs(a *storage.BucketAttrs, projectID string) *Bucket {
	return &Bucket{
		Name:         a.Name,
		ProjectID:    projectID,
		Location:     a.Location,
		StorageClass: a.StorageClass,
		Created:      a.Created,
	}
}
