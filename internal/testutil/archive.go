// Package testutil holds helpers shared by package tests: synthetic tar.gz
// archives and an HTTP server that serves them and counts downloads.
package testutil

import (
	"archive/tar"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// TarEntry describes one entry of a synthetic archive. Type defaults to a
// regular file, or a directory when Name ends in "/".
type TarEntry struct {
	Name     string
	Body     string
	Type     byte
	Mode     int64
	Linkname string
}

// Dir returns a directory entry.
func Dir(name string) TarEntry {
	return TarEntry{Name: name, Type: tar.TypeDir, Mode: 0o755}
}

// File returns a regular file entry.
func File(name, body string) TarEntry {
	return TarEntry{Name: name, Body: body, Type: tar.TypeReg, Mode: 0o644}
}

// Symlink returns a symbolic link entry.
func Symlink(name, target string) TarEntry {
	return TarEntry{Name: name, Type: tar.TypeSymlink, Linkname: target, Mode: 0o777}
}

// Hardlink returns a hard link entry pointing at an earlier entry.
func Hardlink(name, target string) TarEntry {
	return TarEntry{Name: name, Type: tar.TypeLink, Linkname: target, Mode: 0o644}
}

// Fifo returns a named pipe entry.
func Fifo(name string) TarEntry {
	return TarEntry{Name: name, Type: tar.TypeFifo, Mode: 0o644}
}

// TarGz builds an in-memory .tar.gz containing entries in the given order.
func TarGz(t testing.TB, entries ...TarEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.Name,
			Typeflag: e.Type,
			Mode:     e.Mode,
			Linkname: e.Linkname,
		}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
		}
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", e.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				t.Fatalf("tar body %s: %v", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}
	return buf.Bytes()
}

// WriteTarGz writes a synthetic archive to path and returns the path.
func WriteTarGz(t testing.TB, path string, entries ...TarEntry) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, TarGz(t, entries...), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

// PythonArchive mimics the layout of an upstream install_only archive.
func PythonArchive(t testing.TB) []byte {
	return TarGz(t,
		Dir("python/"),
		Dir("python/bin/"),
		TarEntry{Name: "python/bin/python3.10", Body: "#!/bin/sh\necho python\n", Mode: 0o755},
		Symlink("python/bin/python3", "python3.10"),
		File("python/lib/python3.10/os.py", "# os\n"),
		File("python/python.exe", "MZ"),
	)
}

// ArchiveServer serves body for every request and counts them.
type ArchiveServer struct {
	*httptest.Server
	hits atomic.Int32
}

// NewArchiveServer starts a server that is closed when the test ends.
func NewArchiveServer(t testing.TB, body []byte) *ArchiveServer {
	t.Helper()
	s := &ArchiveServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "application/gzip")
		w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

// Hits returns the number of requests served so far.
func (s *ArchiveServer) Hits() int {
	return int(s.hits.Load())
}
