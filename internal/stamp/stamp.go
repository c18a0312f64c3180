// Package stamp writes the version stamp that anchors a distribution in the
// build graph. A stamp is a tiny text file whose content is the distribution
// identity; it is rewritten on every run and is useful mostly as a dependency
// anchor and for humans inspecting the cache.
package stamp

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/pyprovision/internal/fault"
)

// Write records identity at path, creating parent directories as needed and
// replacing any previous content.
func Write(path, identity string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fault.Filesystem("mkdir", dir, err)
	}
	if err := os.WriteFile(path, []byte(identity), 0o644); err != nil {
		return fault.Filesystem("write stamp", path, err)
	}
	return nil
}

// Read returns the identity recorded at path.
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fault.Filesystem("read stamp", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
