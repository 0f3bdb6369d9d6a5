package provider

import (
	"fmt"
	"strings"
)

// PathType classifies a parsed provider path.
type PathType int

const (
	PathTypeDrive PathType = iota
	PathTypeBucket
	PathTypeObject
)

func (t PathType) String() string {
	switch t {
	case PathTypeDrive:
		return "Drive"
	case PathTypeBucket:
		return "Bucket"
	default:
		return "Object"
	}
}

// Path is a parsed provider path of the form <bucket>[/<objectKey...>].
// Either "/" or "\" separates the bucket from the key; backslashes within
// the key are normalized to forward slashes. Parsing never touches the
// network.
type Path struct {
	Bucket string
	Key    string
}

// ParsePath splits a provider path string on the first separator. An empty
// path names the drive, a path with no separator names a bucket.
func ParsePath(path string) Path {
	trimmed := strings.TrimLeft(path, `/\`)
	if trimmed == "" {
		return Path{}
	}

	idx := strings.IndexAny(trimmed, `/\`)
	if idx < 0 {
		return Path{Bucket: trimmed}
	}
	return Path{
		Bucket: trimmed[:idx],
		Key:    strings.ReplaceAll(trimmed[idx+1:], `\`, "/"),
	}
}

// Type reports whether the path names the drive, a bucket, or an object.
func (p Path) Type() PathType {
	switch {
	case p.Bucket == "":
		return PathTypeDrive
	case p.Key == "":
		return PathTypeBucket
	default:
		return PathTypeObject
	}
}

// String reconstructs the canonical bucket/key form.
func (p Path) String() string {
	if p.Bucket == "" {
		return ""
	}
	if p.Key == "" {
		return p.Bucket
	}
	return p.Bucket + "/" + p.Key
}

// RelativeToChild returns the suffix of childKey after this path's own key.
// childKey must actually start with the key.
func (p Path) RelativeToChild(childKey string) (string, error) {
	if !strings.HasPrefix(childKey, p.Key) {
		return "", fmt.Errorf("key %q is not a child of %q", childKey, p.Key)
	}
	return childKey[len(p.Key):], nil
}

// trimSeparators strips trailing separators so folder markers and their
// prefixes compare equal.
func trimSeparators(key string) string {
	return strings.TrimRight(key, `/\`)
}

// ensureTrailingSeparator forces a key to name a folder prefix.
func ensureTrailingSeparator(key string) string {
	if key == "" || strings.HasSuffix(key, "/") {
		return key
	}
	return key + "/"
}
