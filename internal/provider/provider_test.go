package provider

import (
	"context"
	"sort"
	"testing"

	"github.com/gcsdrive/gcsdrive-go/internal/gcsclient"
)

func newTestProvider(client *gcsclient.MockClient, opts Options) *Provider {
	return New(client, opts)
}

func TestProvider_ItemExists(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")
	client.AddBucket("proj", "data")
	client.PutObject("data", "a/b.txt", "text/plain", []byte("b"))

	p := newTestProvider(client, Options{})

	tests := []struct {
		path   string
		exists bool
	}{
		{"", true},
		{"data", true},
		{"no-such-bucket", false},
		{"data/a", true},
		{"data/a/b.txt", true},
		{"data/a/missing.txt", false},
	}
	for _, tt := range tests {
		exists, err := p.ItemExists(ctx, tt.path)
		if err != nil {
			t.Fatalf("ItemExists(%q) returned error: %v", tt.path, err)
		}
		if exists != tt.exists {
			t.Errorf("ItemExists(%q): expected %v, got %v", tt.path, tt.exists, exists)
		}
	}
}

func TestProvider_GetItem(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")
	client.AddBucket("proj", "data")
	client.PutObject("data", "dir/file.txt", "text/plain", []byte("hello"))

	p := newTestProvider(client, Options{})

	item, err := p.GetItem(ctx, "")
	if err != nil {
		t.Fatalf("GetItem(drive) returned error: %v", err)
	}
	if !item.IsContainer() {
		t.Error("Expected drive root to be a container")
	}

	item, err = p.GetItem(ctx, "data")
	if err != nil {
		t.Fatalf("GetItem(bucket) returned error: %v", err)
	}
	if item.Bucket == nil || item.Bucket.Name != "data" {
		t.Errorf("Expected bucket item for data, got %+v", item)
	}
	if item.Name() != "data" {
		t.Errorf("Expected name %q, got %q", "data", item.Name())
	}

	item, err = p.GetItem(ctx, "data/dir/file.txt")
	if err != nil {
		t.Fatalf("GetItem(object) returned error: %v", err)
	}
	if item.IsContainer() {
		t.Error("Expected file item not to be a container")
	}
	if item.Name() != "file.txt" {
		t.Errorf("Expected name %q, got %q", "file.txt", item.Name())
	}
	if item.Entry.Object.Size != 5 {
		t.Errorf("Expected size 5, got %d", item.Entry.Object.Size)
	}

	item, err = p.GetItem(ctx, "data/dir")
	if err != nil {
		t.Fatalf("GetItem(folder) returned error: %v", err)
	}
	if !item.IsContainer() {
		t.Error("Expected folder item to be a container")
	}

	if _, err := p.GetItem(ctx, "data/nope.txt"); err == nil {
		t.Error("Expected error for a missing object")
	}
}

func TestProvider_ChildItemNames(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")
	client.AddBucket("proj", "data")
	client.PutObject("data", "top.txt", "text/plain", []byte("t"))
	client.PutObject("data", "logs/app.log", "text/plain", []byte("l"))
	client.PutObject("data", "logs/old/app.log", "text/plain", []byte("o"))

	p := newTestProvider(client, Options{})

	names, err := p.ChildItemNames(ctx, "data")
	if err != nil {
		t.Fatalf("ChildItemNames returned error: %v", err)
	}
	sort.Strings(names)
	want := []string{"logs", "top.txt"}
	if len(names) != len(want) {
		t.Fatalf("Expected names %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected names %v, got %v", want, names)
		}
	}

	names, err = p.ChildItemNames(ctx, "data/logs")
	if err != nil {
		t.Fatalf("ChildItemNames(logs) returned error: %v", err)
	}
	sort.Strings(names)
	want = []string{"app.log", "old"}
	for i := range want {
		if i >= len(names) || names[i] != want[i] {
			t.Fatalf("Expected names %v, got %v", want, names)
		}
	}
}

func TestProvider_ChildItems_Recursive(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")
	client.AddBucket("proj", "data")
	client.PutObject("data", "a/1.txt", "text/plain", []byte("1"))
	client.PutObject("data", "a/b/2.txt", "text/plain", []byte("2"))
	client.PutObject("data", "a/b/c/3.txt", "text/plain", []byte("3"))

	p := newTestProvider(client, Options{})

	items, err := p.ChildItems(ctx, "data/a", true)
	if err != nil {
		t.Fatalf("ChildItems returned error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 descendants, got %d", len(items))
	}
	for _, item := range items {
		if item.IsContainer() {
			t.Errorf("Recursive listing should yield objects only, got container %q", item.Path.Key)
		}
	}
}

func TestProvider_NewItem_Object(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")
	client.AddBucket("proj", "data")

	p := newTestProvider(client, Options{})

	item, err := p.NewItem(ctx, "data/notes/hello.txt", NewItemOptions{Content: []byte("hi")})
	if err != nil {
		t.Fatalf("NewItem returned error: %v", err)
	}
	if item.Entry.Object.ContentType != DefaultTextContentType {
		t.Errorf("Expected default content type, got %q", item.Entry.Object.ContentType)
	}

	exists, err := p.ItemExists(ctx, "data/notes/hello.txt")
	if err != nil || !exists {
		t.Errorf("Expected created object to exist, got exists=%v err=%v", exists, err)
	}
	// Its parent folder materializes with it.
	if container, _ := p.IsContainer(ctx, "data/notes"); !container {
		t.Error("Expected parent prefix to be a container")
	}
}

func TestProvider_NewItem_Directory(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")
	client.AddBucket("proj", "data")

	p := newTestProvider(client, Options{})

	item, err := p.NewItem(ctx, "data/archive", NewItemOptions{ItemType: "Directory"})
	if err != nil {
		t.Fatalf("NewItem returned error: %v", err)
	}
	if item.Path.Key != "archive/" {
		t.Errorf("Expected folder marker key %q, got %q", "archive/", item.Path.Key)
	}

	container, err := p.IsContainer(ctx, "data/archive")
	if err != nil || !container {
		t.Errorf("Expected new directory to be a container, got %v err=%v", container, err)
	}
	if has, _ := p.HasChildItems(ctx, "data/archive"); has {
		t.Error("Expected new directory to be empty")
	}
}

func TestProvider_NewItem_Bucket(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")

	p := newTestProvider(client, Options{DefaultProject: "proj"})

	item, err := p.NewItem(ctx, "fresh-bucket", NewItemOptions{Location: "US-EAST1"})
	if err != nil {
		t.Fatalf("NewItem returned error: %v", err)
	}
	if item.Bucket == nil || item.Bucket.Location != "US-EAST1" {
		t.Errorf("Expected bucket with location, got %+v", item.Bucket)
	}

	exists, err := p.ItemExists(ctx, "fresh-bucket")
	if err != nil || !exists {
		t.Errorf("Expected new bucket to exist, got exists=%v err=%v", exists, err)
	}
}

func TestProvider_NewItem_BucketNeedsProject(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)

	p := newTestProvider(client, Options{})

	if _, err := p.NewItem(ctx, "orphan-bucket", NewItemOptions{}); err == nil {
		t.Error("Expected error creating a bucket without a project")
	}
}

func TestProvider_CopyItem(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")
	client.AddBucket("proj", "src")
	client.AddBucket("proj", "dst")
	client.PutObject("src", "one.txt", "text/plain", []byte("one"))

	p := newTestProvider(client, Options{})

	item, err := p.CopyItem(ctx, "src/one.txt", "dst/copied.txt", false)
	if err != nil {
		t.Fatalf("CopyItem returned error: %v", err)
	}
	if item.Entry.Object.Name != "copied.txt" {
		t.Errorf("Expected copied key, got %q", item.Entry.Object.Name)
	}
	if exists, _ := p.ItemExists(ctx, "dst/copied.txt"); !exists {
		t.Error("Expected destination object to exist")
	}
	if exists, _ := p.ItemExists(ctx, "src/one.txt"); !exists {
		t.Error("Expected source object to survive a copy")
	}
}

func TestProvider_CopyItem_Recursive(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")
	client.AddBucket("proj", "data")
	client.PutObject("data", "tree/", FolderContentType, nil)
	client.PutObject("data", "tree/a.txt", "text/plain", []byte("a"))
	client.PutObject("data", "tree/deep/b.txt", "text/plain", []byte("b"))

	p := newTestProvider(client, Options{})

	item, err := p.CopyItem(ctx, "data/tree", "data/mirror", true)
	if err != nil {
		t.Fatalf("CopyItem returned error: %v", err)
	}
	if !item.IsContainer() {
		t.Error("Expected recursive copy to return a container item")
	}

	keys := client.ObjectKeys("data")
	want := map[string]bool{
		"mirror/":           true,
		"mirror/a.txt":      true,
		"mirror/deep/b.txt": true,
	}
	found := 0
	for _, key := range keys {
		if want[key] {
			found++
		}
	}
	if found != len(want) {
		t.Errorf("Expected destination keys %v within %v", want, keys)
	}
}

func TestProvider_RemoveItem_Object(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")
	client.AddBucket("proj", "data")
	client.PutObject("data", "gone.txt", "text/plain", []byte("g"))

	p := newTestProvider(client, Options{})

	if err := p.RemoveItem(ctx, "data/gone.txt", false); err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	if exists, _ := p.ItemExists(ctx, "data/gone.txt"); exists {
		t.Error("Expected object to be gone")
	}
}

func TestProvider_RemoveItem_FolderRecursive(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")
	client.AddBucket("proj", "data")
	client.PutObject("data", "tmp/", FolderContentType, nil)
	client.PutObject("data", "tmp/a.txt", "text/plain", []byte("a"))
	client.PutObject("data", "tmp/deep/b.txt", "text/plain", []byte("b"))
	client.PutObject("data", "keep.txt", "text/plain", []byte("k"))

	p := newTestProvider(client, Options{})

	if err := p.RemoveItem(ctx, "data/tmp", true); err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}

	keys := client.ObjectKeys("data")
	if len(keys) != 1 || keys[0] != "keep.txt" {
		t.Errorf("Expected only keep.txt to remain, got %v", keys)
	}
}

func TestProvider_RemoveItem_BucketRetriesConflictOnce(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")
	client.AddBucket("proj", "doomed")
	client.PutObject("doomed", "a.txt", "text/plain", []byte("a"))
	client.PutObject("doomed", "b.txt", "text/plain", []byte("b"))

	// The backend reports not-empty once even after the objects are gone.
	client.ConflictOnBucketDelete["doomed"] = true

	var reports [][2]int
	p := newTestProvider(client, Options{
		Progress: func(completed, total int) {
			reports = append(reports, [2]int{completed, total})
		},
	})

	if err := p.RemoveItem(ctx, "doomed", true); err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	if exists, err := p.ItemExists(ctx, "doomed"); err != nil || exists {
		t.Errorf("Expected bucket to be gone, got exists=%v err=%v", exists, err)
	}

	if len(reports) == 0 {
		t.Fatal("Expected progress reports during bulk delete")
	}
	last := reports[len(reports)-1]
	if last[0] != last[1] {
		t.Errorf("Expected terminal report completed==total, got %v", last)
	}
	if last[1] != 2 {
		t.Errorf("Expected total of 2 deletions, got %d", last[1])
	}
}

func TestProvider_RemoveItem_BucketConflictSurfacesWhenPersistent(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")
	client.AddBucket("proj", "busy")
	client.PutObject("busy", "a.txt", "text/plain", []byte("a"))

	p := newTestProvider(client, Options{})

	// Non-recursive delete of a non-empty bucket conflicts on both tries.
	err := p.RemoveItem(ctx, "busy", false)
	if !gcsclient.IsConflict(err) {
		t.Errorf("Expected a conflict error, got %v", err)
	}
}

func TestProvider_ClearContent(t *testing.T) {
	ctx := context.Background()
	client := gcsclient.NewMockClient(0)
	client.AddProject("proj", "Project", "ACTIVE")
	client.AddBucket("proj", "data")
	client.PutObject("data", "doc.csv", "text/csv", []byte("a,b,c"))

	p := newTestProvider(client, Options{})

	if err := p.ClearContent(ctx, "data/doc.csv"); err != nil {
		t.Fatalf("ClearContent returned error: %v", err)
	}

	item, err := p.GetItem(ctx, "data/doc.csv")
	if err != nil {
		t.Fatalf("GetItem after clear returned error: %v", err)
	}
	if item.Entry.Object.Size != 0 {
		t.Errorf("Expected size 0 after clear, got %d", item.Entry.Object.Size)
	}
	if item.Entry.Object.ContentType != "text/csv" {
		t.Errorf("Expected content type to survive clear, got %q", item.Entry.Object.ContentType)
	}

	if err := p.ClearContent(ctx, "data"); err == nil {
		t.Error("Expected error clearing a bucket path")
	}
}
