// Package archive unpacks gzip-compressed tar archives as a stream.
//
// Reader turns a byte source into a lazy, single-pass sequence of entries:
// nothing is buffered beyond the current entry, and once the sequence ends
// it cannot be restarted. Extract applies that sequence to a directory in
// stream order, and Install wraps Extract with a staging directory so an
// interrupted extraction never leaves a half-populated target behind.
package archive

import (
	"archive/tar"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/vk/pyprovision/internal/fault"
)

// EntryType classifies an archive entry.
type EntryType int

const (
	// TypeOther covers tar entries that are not applied (devices, fifos,
	// global PAX headers).
	TypeOther EntryType = iota
	TypeFile
	TypeDir
	TypeSymlink
	TypeHardlink
)

func (t EntryType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "directory"
	case TypeSymlink:
		return "symlink"
	case TypeHardlink:
		return "hardlink"
	default:
		return "other"
	}
}

// Entry is one item of the archive. For files, Entry is itself an io.Reader
// over the content; it is only readable until the next call to Reader.Next.
type Entry struct {
	// Path is the slash-separated relative path as recorded in the archive,
	// with any leading "./" removed.
	Path     string
	Type     EntryType
	Mode     fs.FileMode
	Size     int64
	Linkname string

	r io.Reader
}

// Read reads file content. Failures of the underlying stream are archive
// format errors.
func (e *Entry) Read(p []byte) (int, error) {
	if e.r == nil {
		return 0, io.EOF
	}
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF {
		return n, fault.ArchiveFormat("read entry", e.Path, err)
	}
	return n, err
}

// Reader yields the entries of a .tar.gz stream in order.
type Reader struct {
	gz  *gzip.Reader
	tr  *tar.Reader
	err error
}

// NewReader starts decompressing r. The gzip header is read eagerly so a
// source that is not gzip fails here.
func NewReader(r io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fault.ArchiveFormat("gunzip", "", err)
	}
	return &Reader{gz: gz, tr: tar.NewReader(gz)}, nil
}

// Next advances to the next entry. It returns io.EOF when the archive is
// exhausted and keeps returning the same terminal error on later calls.
func (r *Reader) Next() (*Entry, error) {
	if r.err != nil {
		return nil, r.err
	}
	hdr, err := r.tr.Next()
	if errors.Is(err, tar.ErrInsecurePath) {
		// Unsafe names are rejected by Extract with a clearer error.
		err = nil
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.err = io.EOF
		} else {
			r.err = fault.ArchiveFormat("read tar header", "", err)
		}
		return nil, r.err
	}

	e := &Entry{
		Path:     strings.TrimPrefix(hdr.Name, "./"),
		Mode:     hdr.FileInfo().Mode(),
		Size:     hdr.Size,
		Linkname: hdr.Linkname,
	}
	switch hdr.Typeflag {
	case tar.TypeReg:
		e.Type = TypeFile
		e.r = r.tr
	case tar.TypeDir:
		e.Type = TypeDir
	case tar.TypeSymlink:
		e.Type = TypeSymlink
	case tar.TypeLink:
		e.Type = TypeHardlink
		e.Linkname = strings.TrimPrefix(hdr.Linkname, "./")
	default:
		e.Type = TypeOther
	}
	// Some writers emit directories as regular entries with a trailing slash.
	if e.Type == TypeFile && strings.HasSuffix(hdr.Name, "/") {
		e.Type = TypeDir
		e.r = nil
	}
	e.Path = strings.TrimSuffix(e.Path, "/")
	if e.Path == "" {
		e.Path = "."
	}
	e.Path = path.Clean(e.Path)
	return e, nil
}

// Close releases the decompressor. It does not close the underlying source.
func (r *Reader) Close() error {
	return r.gz.Close()
}
