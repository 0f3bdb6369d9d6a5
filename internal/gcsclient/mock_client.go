package gcsclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
)

// MockClient is an in-memory implementation of the storage and project
// surfaces for unit tests. Listings are paginated with a configurable page
// size so page-limited behavior can be exercised, and individual projects
// and bucket deletes can be made to fail.
type MockClient struct {
	mu       sync.Mutex
	pageSize int
	buckets  map[string]*Bucket
	objects  map[string]map[string]*Object
	data     map[string]map[string][]byte
	projects []*Project
	nextGen  int64

	// ForbiddenProjects makes ListBuckets return a 403 for these projects.
	ForbiddenProjects map[string]bool

	// FailProjects makes ListBuckets return the given error for these
	// projects.
	FailProjects map[string]error

	// ConflictOnBucketDelete makes the next DeleteBucket for these
	// buckets return a single 409 before succeeding.
	ConflictOnBucketDelete map[string]bool

	// Call counters for cache behavior tests.
	GetObjectCalls   int
	ListObjectsCalls int
}

// NewMockClient creates an empty mock store. pageSize 0 uses
// DefaultPageSize.
func NewMockClient(pageSize int) *MockClient {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &MockClient{
		pageSize:               pageSize,
		buckets:                make(map[string]*Bucket),
		objects:                make(map[string]map[string]*Object),
		data:                   make(map[string]map[string][]byte),
		ForbiddenProjects:      make(map[string]bool),
		FailProjects:           make(map[string]error),
		ConflictOnBucketDelete: make(map[string]bool),
	}
}

// AddProject registers a project in the mock directory.
func (m *MockClient) AddProject(id, name, lifecycleState string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects = append(m.projects, &Project{ID: id, Name: name, LifecycleState: lifecycleState})
}

// AddBucket registers a bucket owned by the given project.
func (m *MockClient) AddBucket(projectID, name string) *Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addBucketLocked(projectID, name, BucketSpec{Name: name})
}

func (m *MockClient) addBucketLocked(projectID, name string, spec BucketSpec) *Bucket {
	b := &Bucket{
		Name:         name,
		ProjectID:    projectID,
		Location:     spec.Location,
		StorageClass: spec.StorageClass,
		Created:      time.Now(),
	}
	m.buckets[name] = b
	m.objects[name] = make(map[string]*Object)
	m.data[name] = make(map[string][]byte)
	return b
}

// PutObject stores an object directly, bypassing the Upload path.
func (m *MockClient) PutObject(bucket, key, contentType string, content []byte) *Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLocked(bucket, key, contentType, content)
}

func (m *MockClient) putLocked(bucket, key, contentType string, content []byte) *Object {
	m.nextGen++
	obj := &Object{
		Bucket:      bucket,
		Name:        key,
		ContentType: contentType,
		Size:        int64(len(content)),
		Generation:  m.nextGen,
		MediaLink:   fmt.Sprintf("mock://%s/%s", bucket, key),
		Updated:     time.Now(),
	}
	if m.objects[bucket] == nil {
		m.objects[bucket] = make(map[string]*Object)
		m.data[bucket] = make(map[string][]byte)
	}
	m.objects[bucket][key] = obj
	m.data[bucket][key] = append([]byte(nil), content...)
	return copyObject(obj)
}

// ObjectKeys returns the sorted keys currently stored in a bucket.
func (m *MockClient) ObjectKeys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.objects[bucket] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ListObjects emulates a delimiter-scoped, paginated listing. Entries are
// returned in lexical key order; page tokens are offsets into the combined
// object/prefix entry list.
func (m *MockClient) ListObjects(ctx context.Context, bucket string, q ListQuery) (*ObjectPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListObjectsCalls++

	if _, ok := m.buckets[bucket]; !ok {
		return nil, ErrBucketNotExist
	}

	type entry struct {
		obj    *Object
		prefix string
	}

	var keys []string
	for key := range m.objects[bucket] {
		if strings.HasPrefix(key, q.Prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var entries []entry
	seenPrefix := make(map[string]bool)
	for _, key := range keys {
		if q.Delimiter != "" {
			rest := key[len(q.Prefix):]
			if idx := strings.Index(rest, q.Delimiter); idx >= 0 {
				common := key[:len(q.Prefix)+idx+len(q.Delimiter)]
				if !seenPrefix[common] {
					seenPrefix[common] = true
					entries = append(entries, entry{prefix: common})
				}
				continue
			}
		}
		entries = append(entries, entry{obj: m.objects[bucket][key]})
	}

	offset := 0
	if q.PageToken != "" {
		n, err := strconv.Atoi(q.PageToken)
		if err != nil {
			return nil, fmt.Errorf("invalid page token %q", q.PageToken)
		}
		offset = n
	}

	pageSize := q.MaxResults
	if pageSize <= 0 {
		pageSize = m.pageSize
	}

	page := &ObjectPage{}
	end := offset + pageSize
	if end > len(entries) {
		end = len(entries)
	}
	for _, e := range entries[offset:end] {
		if e.prefix != "" {
			page.Prefixes = append(page.Prefixes, e.prefix)
		} else {
			page.Objects = append(page.Objects, copyObject(e.obj))
		}
	}
	if end < len(entries) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// GetObject performs a point metadata query.
func (m *MockClient) GetObject(ctx context.Context, bucket, key string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetObjectCalls++

	obj, ok := m.objects[bucket][key]
	if !ok {
		return nil, ErrObjectNotExist
	}
	return copyObject(obj), nil
}

// NewRangeReader serves the object's stored bytes.
func (m *MockClient) NewRangeReader(ctx context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	content, ok := m.data[bucket][key]
	if !ok {
		return nil, ErrObjectNotExist
	}
	if offset > int64(len(content)) {
		offset = int64(len(content))
	}
	rest := content[offset:]
	if length >= 0 && length < int64(len(rest)) {
		rest = rest[:length]
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), rest...))), nil
}

// Upload stores the body as the object's new content.
func (m *MockClient) Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) (*Object, error) {
	content, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload body: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		return nil, ErrBucketNotExist
	}
	return m.putLocked(bucket, key, contentType, content), nil
}

// DeleteObject removes an object.
func (m *MockClient) DeleteObject(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[bucket][key]; !ok {
		return ErrObjectNotExist
	}
	delete(m.objects[bucket], key)
	delete(m.data[bucket], key)
	return nil
}

// CopyObject copies content and content type to the destination key.
func (m *MockClient) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.objects[srcBucket][srcKey]
	if !ok {
		return nil, ErrObjectNotExist
	}
	if _, ok := m.buckets[dstBucket]; !ok {
		return nil, ErrBucketNotExist
	}
	return m.putLocked(dstBucket, dstKey, src.ContentType, m.data[srcBucket][srcKey]), nil
}

// GetBucket performs a point bucket query.
func (m *MockClient) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[name]
	if !ok {
		return nil, ErrBucketNotExist
	}
	bc := *b
	return &bc, nil
}

// InsertBucket creates a bucket in the given project.
func (m *MockClient) InsertBucket(ctx context.Context, projectID string, spec BucketSpec) (*Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[spec.Name]; ok {
		return nil, &googleapi.Error{Code: 409, Message: "bucket already exists"}
	}
	b := m.addBucketLocked(projectID, spec.Name, spec)
	bc := *b
	return &bc, nil
}

// DeleteBucket removes a bucket. A non-empty bucket, or a bucket primed via
// ConflictOnBucketDelete, yields a 409.
func (m *MockClient) DeleteBucket(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[name]; !ok {
		return ErrBucketNotExist
	}
	if m.ConflictOnBucketDelete[name] {
		m.ConflictOnBucketDelete[name] = false
		return &googleapi.Error{Code: 409, Message: "bucket is not empty"}
	}
	if len(m.objects[name]) > 0 {
		return &googleapi.Error{Code: 409, Message: "bucket is not empty"}
	}
	delete(m.buckets, name)
	delete(m.objects, name)
	delete(m.data, name)
	return nil
}

// ListBuckets returns one page of the project's buckets.
func (m *MockClient) ListBuckets(ctx context.Context, projectID, pageToken string) (*BucketPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ForbiddenProjects[projectID] {
		return nil, &googleapi.Error{Code: 403, Message: "caller does not have storage.buckets.list access"}
	}
	if err := m.FailProjects[projectID]; err != nil {
		return nil, err
	}

	var names []string
	for name, b := range m.buckets {
		if b.ProjectID == projectID {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("invalid page token %q", pageToken)
		}
		offset = n
	}

	page := &BucketPage{}
	end := offset + m.pageSize
	if end > len(names) {
		end = len(names)
	}
	for _, name := range names[offset:end] {
		bc := *m.buckets[name]
		page.Buckets = append(page.Buckets, &bc)
	}
	if end < len(names) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// ListProjects returns one page of the registered projects.
func (m *MockClient) ListProjects(ctx context.Context, pageToken string) (*ProjectPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("invalid page token %q", pageToken)
		}
		offset = n
	}

	page := &ProjectPage{}
	end := offset + m.pageSize
	if end > len(m.projects) {
		end = len(m.projects)
	}
	for _, p := range m.projects[offset:end] {
		pc := *p
		page.Projects = append(page.Projects, &pc)
	}
	if end < len(m.projects) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func copyObject(o *Object) *Object {
	oc := *o
	return &oc
}
