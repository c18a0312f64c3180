package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vk/pyprovision/internal/ctxlog"
	"github.com/vk/pyprovision/internal/fault"
	"github.com/zeebo/blake3"
)

// Install extracts the archive at archivePath into target through a staging
// directory next to target. The staging directory is renamed onto target
// only after every entry has been applied and is removed on failure, so
// target either does not exist or holds the complete archive.
//
// The archive bytes are hashed while they are streamed; the digest ends up in
// the returned Summary. A non-nil finish runs on the staging directory before
// it is promoted, and its error aborts the install like an extraction error.
func Install(ctx context.Context, archivePath, target string, finish FinishFunc) (Summary, error) {
	logger := ctxlog.FromContext(ctx).With("archive", archivePath, "target", target)

	f, err := os.Open(archivePath)
	if err != nil {
		return Summary{}, fault.Filesystem("open", archivePath, err)
	}
	defer f.Close()

	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return Summary{}, fault.Filesystem("mkdir", parent, err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(target)+".partial-")
	if err != nil {
		return Summary{}, fault.Filesystem("mkdir", parent, err)
	}
	logger.Debug("Extracting into staging directory.", "staging", staging)

	hasher := blake3.New()
	counter := &countingReader{r: io.TeeReader(f, hasher)}

	sum, err := Extract(ctx, counter, staging)
	if err == nil {
		// gzip may stop before the end of the file; hash the remainder too.
		if _, drainErr := io.Copy(io.Discard, counter); drainErr != nil {
			err = fault.Filesystem("read", archivePath, drainErr)
		}
	}
	if err == nil {
		sum.ArchiveBytes = counter.n
		sum.Digest = hex.EncodeToString(hasher.Sum(nil))
		if finish != nil {
			err = finish(staging, sum)
		}
	}
	if err == nil {
		err = promote(staging, target)
	}
	if err != nil {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			logger.Warn("Failed to remove staging directory.", "staging", staging, "error", rmErr)
		}
		if errors.Is(err, errTargetExists) {
			logger.Warn("Target appeared during extraction, keeping the existing one.")
			return sum, nil
		}
		return sum, err
	}

	return sum, nil
}

// FinishFunc adds files to a fully extracted tree in dir before it is moved
// into place.
type FinishFunc func(dir string, sum Summary) error

var errTargetExists = errors.New("target already exists")

// promote moves the finished staging directory into place. MkdirTemp creates
// 0700 directories, so the mode is widened first.
func promote(staging, target string) error {
	if err := os.Chmod(staging, 0o755); err != nil {
		return fault.Filesystem("chmod", staging, err)
	}
	if err := os.Rename(staging, target); err != nil {
		if _, statErr := os.Stat(target); statErr == nil {
			return errTargetExists
		} else if !errors.Is(statErr, fs.ErrNotExist) {
			return fault.Filesystem("stat", target, statErr)
		}
		return fault.Filesystem("rename", target, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
