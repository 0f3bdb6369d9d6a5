package gcsclient

import (
	"errors"
	"time"

	"google.golang.org/api/googleapi"
)

// DefaultPageSize is the page size used for listings when the caller does
// not specify one.
const DefaultPageSize = 1000

// Object is the metadata record for a stored object. Keys use "/" as a
// conventional separator but the store itself has no directories.
type Object struct {
	Bucket      string
	Name        string
	ContentType string
	Size        int64
	Generation  int64
	MediaLink   string
	Updated     time.Time
	Metadata    map[string]string
}

// Bucket is the metadata record for a bucket.
type Bucket struct {
	Name         string
	ProjectID    string
	Location     string
	StorageClass string
	Created      time.Time
}

// Project is an entry from the project directory.
type Project struct {
	ID             string
	Name           string
	LifecycleState string
}

// Active reports whether the project is usable for bucket enumeration.
func (p *Project) Active() bool {
	return p.LifecycleState == "ACTIVE"
}

// ListQuery configures an object listing request.
type ListQuery struct {
	Prefix     string
	Delimiter  string
	PageToken  string
	MaxResults int
}

// ObjectPage is one page of an object listing. Prefixes carries the common
// prefixes ("folders") grouped by the delimiter, each with a trailing
// separator. A non-empty NextPageToken means the listing was truncated.
type ObjectPage struct {
	Objects       []*Object
	Prefixes      []string
	NextPageToken string
}

// BucketPage is one page of a bucket listing.
type BucketPage struct {
	Buckets       []*Bucket
	NextPageToken string
}

// ProjectPage is one page of a project listing.
type ProjectPage struct {
	Projects      []*Project
	NextPageToken string
}

// BucketSpec describes a bucket to create.
type BucketSpec struct {
	Name                       string
	Location                   string
	StorageClass               string
	PredefinedACL              string
	PredefinedDefaultObjectACL string
}

var (
	// ErrObjectNotExist is returned when a point query names an object
	// that does not exist.
	ErrObjectNotExist = errors.New("gcsclient: object does not exist")

	// ErrBucketNotExist is returned when a bucket query names a bucket
	// that does not exist.
	ErrBucketNotExist = errors.New("gcsclient: bucket does not exist")
)

// IsNotFound reports whether err represents a missing object or bucket.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrObjectNotExist) || errors.Is(err, ErrBucketNotExist) {
		return true
	}
	return hasStatus(err, 404)
}

// IsForbidden reports whether err is a remote 403.
func IsForbidden(err error) bool {
	return hasStatus(err, 403)
}

// IsConflict reports whether err is a remote 409, e.g. deleting a bucket
// whose object deletion has not yet propagated.
func IsConflict(err error) bool {
	return hasStatus(err, 409)
}

func hasStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
