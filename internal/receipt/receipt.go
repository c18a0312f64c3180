// Package receipt records what was installed into a cache directory. A
// receipt is a small YAML file written next to the extracted toolchain once
// an installation has completed.
package receipt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vk/pyprovision/internal/fault"
	"gopkg.in/yaml.v3"
)

// FileName is the receipt's name inside an install directory.
const FileName = ".receipt.yaml"

// Receipt describes one installed distribution.
type Receipt struct {
	Identity  string `yaml:"identity"`
	Version   string `yaml:"version"`
	BuildTime string `yaml:"buildTime"`
	Triple    string `yaml:"triple"`
	URL       string `yaml:"url"`
	// ArchiveBytes and Digest describe the archive the tree was extracted
	// from; Digest is the hex BLAKE3 digest of its bytes.
	ArchiveBytes int64     `yaml:"archiveBytes"`
	Digest       string    `yaml:"digest"`
	Entries      int       `yaml:"entries"`
	InstalledAt  time.Time `yaml:"installedAt"`
	// Dir is where the receipt was read from. It is not persisted.
	Dir string `yaml:"-"`
}

// Write stores r in dir, replacing an existing receipt.
func Write(dir string, r Receipt) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding receipt for %s: %w", r.Identity, err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fault.Filesystem("write", path, err)
	}
	return nil
}

// Read loads the receipt stored in dir. A missing receipt yields an error
// matching fs.ErrNotExist.
func Read(dir string) (Receipt, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return Receipt{}, fault.Filesystem("read", path, err)
	}
	var r Receipt
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Receipt{}, fmt.Errorf("decoding receipt %s: %w", path, err)
	}
	r.Dir = dir
	return r, nil
}

// List returns the receipts of every installation under cacheRoot, sorted by
// identity. Directories without a receipt, such as extractions that are still
// in progress, are ignored. A missing cache root is an empty list.
func List(cacheRoot string) ([]Receipt, error) {
	entries, err := os.ReadDir(cacheRoot)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Filesystem("list", cacheRoot, err)
	}

	var out []Receipt
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		r, err := Read(filepath.Join(cacheRoot, e.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}
