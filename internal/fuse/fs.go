package fuse

import (
	"context"
	"io"
	"log"
	"os"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/gcsdrive/gcsdrive-go/internal/provider"
)

// DriveFS exposes a provider as a FUSE filesystem: the mountpoint is the
// drive root, buckets and folder prefixes are directories, objects are
// files.
type DriveFS struct {
	provider *provider.Provider
}

var _ fs.FS = (*DriveFS)(nil)

// Root returns the drive root directory.
func (d *DriveFS) Root() (fs.Node, error) {
	return &Dir{provider: d.provider, path: ""}, nil
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// Dir is the drive root, a bucket, or a synthesized folder.
type Dir struct {
	provider *provider.Provider
	path     string
}

var _ fs.Node = (*Dir)(nil)
var _ fs.NodeStringLookuper = (*Dir)(nil)
var _ fs.HandleReadDirAller = (*Dir)(nil)
var _ fs.NodeMkdirer = (*Dir)(nil)
var _ fs.NodeCreater = (*Dir)(nil)
var _ fs.NodeRemover = (*Dir)(nil)
var _ fs.NodeRenamer = (*Dir)(nil)

// Attr returns directory attributes.
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0755
	a.Uid = uint32(os.Getuid())
	a.Gid = uint32(os.Getgid())
	return nil
}

// Lookup resolves a child by name.
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	childPath := joinPath(d.path, name)

	container, err := d.provider.IsContainer(ctx, childPath)
	if err != nil {
		return nil, syscall.EIO
	}
	if container {
		return &Dir{provider: d.provider, path: childPath}, nil
	}

	exists, err := d.provider.ItemExists(ctx, childPath)
	if err != nil {
		return nil, syscall.EIO
	}
	if !exists {
		return nil, syscall.ENOENT
	}
	return &File{provider: d.provider, path: childPath}, nil
}

// ReadDirAll lists the directory's children.
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	items, err := d.provider.ChildItems(ctx, d.path, false)
	if err != nil && len(items) == 0 {
		return nil, syscall.EIO
	}
	if err != nil {
		// Partial listings (e.g. an unreachable project during a
		// drive refresh) still render.
		log.Printf("partial listing of %q: %v", d.path, err)
	}

	dirents := make([]fuse.Dirent, 0, len(items))
	for _, item := range items {
		dirent := fuse.Dirent{Name: item.Name()}
		if item.IsContainer() {
			dirent.Type = fuse.DT_Dir
		} else {
			dirent.Type = fuse.DT_File
		}
		dirents = append(dirents, dirent)
	}
	return dirents, nil
}

// Mkdir creates a folder marker (or a bucket at the drive root).
func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	childPath := joinPath(d.path, req.Name)
	if _, err := d.provider.NewItem(ctx, childPath, provider.NewItemOptions{ItemType: "Directory"}); err != nil {
		return nil, syscall.EIO
	}
	return &Dir{provider: d.provider, path: childPath}, nil
}

// Create creates an empty object.
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	childPath := joinPath(d.path, req.Name)
	if _, err := d.provider.NewItem(ctx, childPath, provider.NewItemOptions{}); err != nil {
		return nil, nil, syscall.EIO
	}

	file := &File{provider: d.provider, path: childPath}
	return file, file, nil
}

// Remove removes a file or an empty directory.
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	childPath := joinPath(d.path, req.Name)

	if req.Dir {
		has, err := d.provider.HasChildItems(ctx, childPath)
		if err != nil {
			return syscall.EIO
		}
		if has {
			return syscall.ENOTEMPTY
		}
	}
	if err := d.provider.RemoveItem(ctx, childPath, false); err != nil {
		return syscall.EIO
	}
	return nil
}

// Rename is a copy followed by a delete; the store has no native move.
func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	target, ok := newDir.(*Dir)
	if !ok {
		return syscall.EINVAL
	}

	srcPath := joinPath(d.path, req.OldName)
	dstPath := joinPath(target.path, req.NewName)

	container, err := d.provider.IsContainer(ctx, srcPath)
	if err != nil {
		return syscall.EIO
	}
	if _, err := d.provider.CopyItem(ctx, srcPath, dstPath, container); err != nil {
		return syscall.EIO
	}
	if err := d.provider.RemoveItem(ctx, srcPath, container); err != nil {
		return syscall.EIO
	}
	return nil
}

// File is a stored object. Writes buffer in memory and upload on flush.
type File struct {
	provider *provider.Provider
	path     string
	dirty    []byte
	modified bool
}

var _ fs.Node = (*File)(nil)
var _ fs.NodeOpener = (*File)(nil)
var _ fs.HandleReadAller = (*File)(nil)
var _ fs.HandleWriter = (*File)(nil)
var _ fs.HandleFlusher = (*File)(nil)
var _ fs.HandleReleaser = (*File)(nil)
var _ fs.NodeSetattrer = (*File)(nil)

// Attr returns file attributes.
func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = 0644
	a.Uid = uint32(os.Getuid())
	a.Gid = uint32(os.Getgid())

	if f.modified {
		a.Size = uint64(len(f.dirty))
		return nil
	}

	item, err := f.provider.GetItem(ctx, f.path)
	if err != nil {
		return syscall.ENOENT
	}
	if item.Entry != nil && item.Entry.Object != nil {
		a.Size = uint64(item.Entry.Object.Size)
		a.Mtime = item.Entry.Object.Updated
	}
	return nil
}

// Open opens the file.
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	return f, nil
}

// ReadAll reads the whole object body.
func (f *File) ReadAll(ctx context.Context) ([]byte, error) {
	if f.modified {
		return f.dirty, nil
	}

	r, err := f.provider.OpenReader(ctx, f.path)
	if err != nil {
		return nil, syscall.EIO
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, syscall.EIO
	}
	return data, nil
}

// Write buffers data at the given offset.
func (f *File) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	if !f.modified {
		// First write starts from the current remote content so
		// partial overwrites keep the rest of the object.
		data, err := f.ReadAll(ctx)
		if err != nil {
			data = nil
		}
		f.dirty = data
		f.modified = true
	}

	end := req.Offset + int64(len(req.Data))
	if int64(len(f.dirty)) < end {
		grown := make([]byte, end)
		copy(grown, f.dirty)
		f.dirty = grown
	}
	copy(f.dirty[req.Offset:], req.Data)
	resp.Size = len(req.Data)
	return nil
}

// Setattr handles truncation.
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() {
		if !f.modified {
			f.dirty = nil
			f.modified = true
		}
		if uint64(len(f.dirty)) > req.Size {
			f.dirty = f.dirty[:req.Size]
		} else if uint64(len(f.dirty)) < req.Size {
			grown := make([]byte, req.Size)
			copy(grown, f.dirty)
			f.dirty = grown
		}
	}
	resp.Attr.Mode = 0644
	resp.Attr.Size = uint64(len(f.dirty))
	return nil
}

// Flush uploads buffered writes.
func (f *File) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	return f.upload(ctx)
}

// Release uploads any remaining buffered writes and drops the buffer.
func (f *File) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	err := f.upload(ctx)
	f.dirty = nil
	return err
}

func (f *File) upload(ctx context.Context) error {
	if !f.modified {
		return nil
	}

	w, err := f.provider.OpenWriter(ctx, f.path, "")
	if err != nil {
		return syscall.EIO
	}
	if _, err := w.Write(f.dirty); err != nil {
		w.Close()
		return syscall.EIO
	}
	if err := w.Close(); err != nil {
		return syscall.EIO
	}
	f.modified = false
	return nil
}

// Mount mounts the provider at the given mountpoint and serves until the
// filesystem is unmounted.
func Mount(mountpoint string, p *provider.Provider) error {
	c, err := fuse.Mount(
		mountpoint,
		fuse.FSName("gcsdrive"),
		fuse.Subtype("gcsdrive-go"),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	log.Printf("Mounted drive at %s", mountpoint)

	return fs.Serve(c, &DriveFS{provider: p})
}
