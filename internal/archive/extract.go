package archive

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vk/pyprovision/internal/ctxlog"
	"github.com/vk/pyprovision/internal/fault"
)

// ErrUnsafePath is wrapped by errors for entries whose path or link target
// would land outside the extraction directory.
var ErrUnsafePath = errors.New("entry escapes extraction directory")

// Summary describes what an extraction applied.
type Summary struct {
	Entries int
	Files   int
	Dirs    int
	Links   int
	Skipped int
	// Bytes is the total size of file content written.
	Bytes int64
	// ArchiveBytes and Digest are filled in by Install: the size of the
	// compressed archive and its hex-encoded BLAKE3 digest.
	ArchiveBytes int64
	Digest       string
}

// Extract unpacks the .tar.gz stream r into dir, applying entries strictly in
// the order they appear. Parent directories are created on demand, so an
// archive need not list directories before their content. The first error
// aborts the extraction; whatever was already written stays on disk.
func Extract(ctx context.Context, r io.Reader, dir string) (Summary, error) {
	var sum Summary

	tr, err := NewReader(r)
	if err != nil {
		return sum, err
	}
	defer tr.Close()

	x := &extractor{root: dir, symlinks: make(map[string]struct{})}
	logger := ctxlog.FromContext(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		entry, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return sum, err
		}

		sum.Entries++
		switch entry.Type {
		case TypeDir:
			err = x.dir(entry)
			sum.Dirs++
		case TypeFile:
			var n int64
			n, err = x.file(entry)
			sum.Bytes += n
			sum.Files++
		case TypeSymlink:
			err = x.symlink(entry)
			sum.Links++
		case TypeHardlink:
			err = x.hardlink(entry)
			sum.Links++
		default:
			logger.Debug("Skipping unsupported archive entry.", "entry", entry.Path)
			sum.Skipped++
		}
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// extractor tracks the symlinks it created so later entries cannot be
// written through them.
type extractor struct {
	root     string
	symlinks map[string]struct{}
}

// resolve maps an entry path onto the filesystem, rejecting paths that are
// absolute, climb out of the root, or pass through a symlink from this
// archive.
func (x *extractor) resolve(name string) (string, error) {
	if name == "" || !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fault.ArchiveFormat("resolve", name, ErrUnsafePath)
	}
	for dir := path.Dir(name); dir != "."; dir = path.Dir(dir) {
		if _, ok := x.symlinks[dir]; ok {
			return "", fault.ArchiveFormat("resolve", name, ErrUnsafePath)
		}
	}
	return filepath.Join(x.root, filepath.FromSlash(name)), nil
}

func (x *extractor) dir(e *Entry) error {
	target, err := x.resolve(e.Path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fault.Filesystem("mkdir", target, err)
	}
	return nil
}

func (x *extractor) file(e *Entry) (int64, error) {
	target, err := x.resolve(e.Path)
	if err != nil {
		return 0, err
	}
	if err := x.prepare(e.Path, target); err != nil {
		return 0, err
	}

	perm := e.Mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, fault.Filesystem("create", target, err)
	}

	n, copyErr := io.Copy(f, e)
	closeErr := f.Close()
	if copyErr != nil {
		if errors.Is(copyErr, fault.ErrArchiveFormat) {
			return n, copyErr
		}
		return n, fault.Filesystem("write", target, copyErr)
	}
	if closeErr != nil {
		return n, fault.Filesystem("close", target, closeErr)
	}
	return n, nil
}

func (x *extractor) symlink(e *Entry) error {
	target, err := x.resolve(e.Path)
	if err != nil {
		return err
	}
	// The link must point somewhere inside the root once interpreted
	// relative to its own directory.
	if e.Linkname == "" || path.IsAbs(e.Linkname) || filepath.IsAbs(e.Linkname) ||
		!filepath.IsLocal(filepath.FromSlash(path.Join(path.Dir(e.Path), e.Linkname))) ||
		x.throughSymlink(path.Dir(e.Path), e.Linkname) {
		return fault.ArchiveFormat("symlink", e.Path+" -> "+e.Linkname, ErrUnsafePath)
	}
	if err := x.prepare(e.Path, target); err != nil {
		return err
	}
	if err := os.Symlink(filepath.FromSlash(e.Linkname), target); err != nil {
		return fault.Filesystem("symlink", target, err)
	}
	x.symlinks[e.Path] = struct{}{}
	return nil
}

func (x *extractor) hardlink(e *Entry) error {
	target, err := x.resolve(e.Path)
	if err != nil {
		return err
	}
	source, err := x.resolve(path.Clean(e.Linkname))
	if err != nil {
		return err
	}
	// link(2) does not follow symlinks, so linking to one would create an
	// untracked copy whose relative target means something else here.
	info, err := os.Lstat(source)
	if err != nil {
		return fault.Filesystem("stat", source, err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return fault.ArchiveFormat("link", e.Path+" -> "+e.Linkname, ErrUnsafePath)
	}
	if err := x.prepare(e.Path, target); err != nil {
		return err
	}
	if err := os.Link(source, target); err != nil {
		return fault.Filesystem("link", target, err)
	}
	return nil
}

// prepare creates the parent directory of target and removes a previous
// non-directory entry at the same path, so the new entry replaces it instead
// of writing through a link.
func (x *extractor) prepare(name, target string) error {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fault.Filesystem("mkdir", parent, err)
	}
	info, err := os.Lstat(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fault.Filesystem("stat", target, err)
	case info.IsDir():
		return fault.Filesystem("create", target, errors.New("a directory already exists at this path"))
	case info.Mode()&fs.ModeSymlink != 0:
		delete(x.symlinks, name)
	}
	if err := os.Remove(target); err != nil {
		return fault.Filesystem("remove", target, err)
	}
	return nil
}

// throughSymlink reports whether resolving link from dir walks through one of
// the symlinks created earlier. Lexical checks alone cannot see where such a
// hop lands.
func (x *extractor) throughSymlink(dir, link string) bool {
	parts := strings.Split(link, "/")
	cur := dir
	for _, part := range parts[:len(parts)-1] {
		cur = path.Join(cur, part)
		if _, ok := x.symlinks[cur]; ok {
			return true
		}
	}
	return false
}
