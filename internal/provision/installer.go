// Package provision declares the targets that bring a python-build-standalone
// distribution into the local cache and runs them.
//
// Every distribution is four chained targets named after the paths they
// produce:
//
//	<root>/<identity>.version-stamp   real, always
//	<root>/<identity>.tar.gz          real, content-based
//	<root>/<identity>                 real, content-based
//	<root>/<identity>/python          virtual, always
//
// Because the archive and the install directory are content-based, a cache
// that already holds the extracted tree causes neither a download nor an
// extraction.
package provision

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/vk/pyprovision/internal/archive"
	"github.com/vk/pyprovision/internal/ctxlog"
	"github.com/vk/pyprovision/internal/dag"
	"github.com/vk/pyprovision/internal/fault"
	"github.com/vk/pyprovision/internal/fetch"
	"github.com/vk/pyprovision/internal/receipt"
	"github.com/vk/pyprovision/internal/stamp"
	"github.com/vk/pyprovision/internal/toolchain"
)

// ExtractFunc unpacks the archive at archivePath so that target holds its
// complete content. finish must run on the extracted tree before target
// appears; archive.Install is the reference implementation.
type ExtractFunc func(ctx context.Context, archivePath, target string, finish archive.FinishFunc) (archive.Summary, error)

// Installer registers distributions on a graph.
type Installer struct {
	graph   *dag.Graph
	fetcher fetch.Fetcher
	extract ExtractFunc
	now     func() time.Time

	mu    sync.Mutex
	ready map[string]dag.Ref
}

// NewInstaller returns an Installer that downloads with f and extracts with
// extract. A nil extract selects archive.Install.
func NewInstaller(g *dag.Graph, f fetch.Fetcher, extract ExtractFunc) *Installer {
	if extract == nil {
		extract = archive.Install
	}
	return &Installer{
		graph:   g,
		fetcher: f,
		extract: extract,
		now:     time.Now,
		ready:   make(map[string]dag.Ref),
	}
}

// Install validates cfg and registers its targets, returning the ready
// target. Configurations that resolve to the same python directory share
// their targets, so registering one twice is not an error.
func (i *Installer) Install(ctx context.Context, cfg toolchain.Config) (dag.Ref, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	logger := ctxlog.FromContext(ctx).With("identity", toolchain.DistName(cfg))
	pythonDir := toolchain.PythonDir(cfg)
	if ref, ok := i.ready[pythonDir]; ok {
		logger.Debug("Distribution already registered, reusing its targets.")
		return ref, nil
	}

	stampRef, err := i.graph.Register(dag.Spec{
		Name:   toolchain.StampPath(cfg),
		Kind:   dag.Real,
		Policy: dag.Always,
		Action: i.writeStamp(cfg),
	})
	if err != nil {
		return "", err
	}
	archiveRef, err := i.graph.Register(dag.Spec{
		Name:   toolchain.ArchivePath(cfg),
		Kind:   dag.Real,
		Policy: dag.ContentBased,
		Deps:   []dag.Ref{stampRef},
		Action: i.download(cfg),
	})
	if err != nil {
		return "", err
	}
	installRef, err := i.graph.Register(dag.Spec{
		Name:   toolchain.InstallDir(cfg),
		Kind:   dag.Real,
		Policy: dag.ContentBased,
		Deps:   []dag.Ref{archiveRef},
		Action: i.unpack(cfg),
	})
	if err != nil {
		return "", err
	}
	readyRef, err := i.graph.Register(dag.Spec{
		Name:   pythonDir,
		Kind:   dag.Virtual,
		Policy: dag.Always,
		Deps:   []dag.Ref{installRef},
		Action: i.announce(cfg),
	})
	if err != nil {
		return "", err
	}

	logger.Debug("Registered distribution targets.", "ready", readyRef)
	i.ready[pythonDir] = readyRef
	return readyRef, nil
}

func (i *Installer) writeStamp(cfg toolchain.Config) dag.Action {
	return func(ctx context.Context, b *dag.Build) error {
		return stamp.Write(b.Target.Artifact, toolchain.DistName(cfg))
	}
}

func (i *Installer) download(cfg toolchain.Config) dag.Action {
	return func(ctx context.Context, b *dag.Build) error {
		url := toolchain.DownloadURL(cfg)
		logger := ctxlog.FromContext(ctx)
		logger.Info("⬇️ Downloading Python distribution.", "url", url)
		if err := i.fetcher.Fetch(ctx, url, b.Target.Artifact); err != nil {
			return err
		}
		logger.Info("✅ Download finished.", "path", b.Target.Artifact)
		return nil
	}
}

func (i *Installer) unpack(cfg toolchain.Config) dag.Action {
	return func(ctx context.Context, b *dag.Build) error {
		logger := ctxlog.FromContext(ctx)
		archivePath := toolchain.ArchivePath(cfg)
		dir := b.Target.Artifact

		logger.Info("📦 Extracting Python distribution.", "archive", archivePath)
		sum, err := i.extract(ctx, archivePath, dir, func(staging string, sum archive.Summary) error {
			return receipt.Write(staging, i.receipt(cfg, sum))
		})
		if err != nil {
			if errors.Is(err, fault.ErrArchiveFormat) {
				// A content-based archive target would otherwise keep
				// feeding the same broken file to every later run.
				logger.Warn("Removing unreadable archive from the cache.", "archive", archivePath)
				if rmErr := os.Remove(archivePath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
					logger.Warn("Failed to remove archive.", "archive", archivePath, "error", rmErr)
				}
			}
			return err
		}

		logger.Info("✅ Extraction finished.", "entries", sum.Entries, "bytes", sum.Bytes, "digest", sum.Digest)
		return nil
	}
}

func (i *Installer) receipt(cfg toolchain.Config, sum archive.Summary) receipt.Receipt {
	return receipt.Receipt{
		Identity:     toolchain.DistName(cfg),
		Version:      cfg.Version,
		BuildTime:    cfg.BuildTime,
		Triple:       cfg.Triple.String(),
		URL:          toolchain.DownloadURL(cfg),
		ArchiveBytes: sum.ArchiveBytes,
		Digest:       sum.Digest,
		Entries:      sum.Entries,
		InstalledAt:  i.now().UTC(),
	}
}

func (i *Installer) announce(cfg toolchain.Config) dag.Action {
	return func(ctx context.Context, b *dag.Build) error {
		h := toolchain.NewHandle(cfg)
		ctxlog.FromContext(ctx).Info("🐍 Python is ready.", "executable", h.Executable())
		return nil
	}
}
