// Package toolchain derives the identity, download URL and on-disk layout of a
// python-build-standalone distribution from its configuration.
//
// All functions here are pure: they never touch the filesystem or network and
// always return the same output for the same Config.
package toolchain

import (
	"path/filepath"
	"strings"

	"github.com/vk/pyprovision/internal/fault"
)

const (
	// DefaultRepo is the upstream repository publishing the archives.
	DefaultRepo = "https://github.com/astral-sh/python-build-standalone"
	// DefaultDownloadDir is used when Config.DownloadDir is empty.
	DefaultDownloadDir = "tmp"
	// CacheSubdir is the directory under the download dir that holds every
	// distribution.
	CacheSubdir = "nm-static-py"
	// PythonSubdir is where the upstream install_only archives put the
	// interpreter. See
	// https://gregoryszorc.com/docs/python-build-standalone/main/distributions.html#install-only-archive
	PythonSubdir = "python"

	stampSuffix   = ".version-stamp"
	archiveSuffix = ".tar.gz"
)

// Config describes one requested toolchain. It is passed by value and never
// modified after construction.
type Config struct {
	// Version is the CPython version, e.g. "3.10.16".
	Version string
	// BuildTime is the upstream release tag, usually formatted "20241219".
	BuildTime string
	// Triple is the target platform.
	Triple Triple
	// Repo overrides DefaultRepo.
	Repo string
	// DownloadDir overrides DefaultDownloadDir.
	DownloadDir string
}

// Validate reports a configuration error for missing fields or a platform
// triple outside the supported set.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return fault.Configurationf("python version is required")
	}
	if strings.TrimSpace(c.BuildTime) == "" {
		return fault.Configurationf("build time is required")
	}
	if !c.Triple.Valid() {
		return fault.Configurationf("unsupported platform triple %q", c.Triple)
	}
	return nil
}

// DownloadURL returns the release asset URL. The file naming scheme is owned
// by the upstream project and reproduced exactly.
func DownloadURL(c Config) string {
	repo := c.Repo
	if repo == "" {
		repo = DefaultRepo
	}
	repo = strings.TrimSuffix(repo, "/")
	return repo + "/releases/download/" + c.BuildTime + "/" + DistName(c) + "-install_only" + archiveSuffix
}

// CacheRoot returns the directory holding all distributions for c.
func CacheRoot(c Config) string {
	root := c.DownloadDir
	if root == "" {
		root = DefaultDownloadDir
	}
	return filepath.Join(root, CacheSubdir)
}

// DistName returns the distribution identity. Only version, build time and
// triple take part, so overrides never change it.
func DistName(c Config) string {
	return "cpython-" + c.Version + "+" + c.BuildTime + "-" + string(c.Triple)
}

// StampPath returns the path of the version stamp for c.
func StampPath(c Config) string {
	return filepath.Join(CacheRoot(c), DistName(c)+stampSuffix)
}

// ArchivePath returns where the downloaded archive is stored.
func ArchivePath(c Config) string {
	return filepath.Join(CacheRoot(c), DistName(c)+archiveSuffix)
}

// InstallDir returns the directory the archive is extracted into.
func InstallDir(c Config) string {
	return filepath.Join(CacheRoot(c), DistName(c))
}

// PythonDir returns the directory containing the interpreter once the
// distribution is installed.
func PythonDir(c Config) string {
	return filepath.Join(InstallDir(c), PythonSubdir)
}
