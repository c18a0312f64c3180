package provision

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/vk/pyprovision/internal/ctxlog"
	"github.com/vk/pyprovision/internal/dag"
	"github.com/vk/pyprovision/internal/fetch"
	"github.com/vk/pyprovision/internal/toolchain"
)

// Options tune a provisioning run. The zero value is usable.
type Options struct {
	// Fetcher downloads archives. When nil an HTTP client with Timeout is
	// created for the run.
	Fetcher fetch.Fetcher
	// Extract unpacks archives; nil selects archive.Install.
	Extract ExtractFunc
	// Workers bounds concurrently running target actions; 0 is unbounded.
	Workers int
	// Observer receives target state transitions.
	Observer dag.Observer
	// Timeout bounds each download when Fetcher is nil.
	Timeout time.Duration
}

// Provision makes the distribution described by cfg available in the cache
// and returns its handle. It either returns a handle whose directory holds
// the complete distribution or an error naming the target that failed.
func Provision(ctx context.Context, cfg toolchain.Config, opts Options) (toolchain.Handle, error) {
	handles, err := ProvisionAll(ctx, []toolchain.Config{cfg}, opts)
	if err != nil {
		if merr, ok := err.(*multierror.Error); ok && len(merr.Errors) == 1 {
			return toolchain.Handle{}, merr.Errors[0]
		}
		return toolchain.Handle{}, err
	}
	return handles[0], nil
}

// ProvisionAll provisions several distributions on one graph. Distributions
// are built concurrently and identical ones only once. On failure the
// returned *multierror.Error holds one error per failing configuration, in
// input order, and no handles are returned.
func ProvisionAll(ctx context.Context, cfgs []toolchain.Config, opts Options) ([]toolchain.Handle, error) {
	logger := ctxlog.FromContext(ctx)

	fetcher := opts.Fetcher
	if fetcher == nil {
		client := fetch.NewClient(opts.Timeout)
		defer client.Close()
		fetcher = client
	}

	var graphOpts []dag.Option
	if opts.Workers > 0 {
		graphOpts = append(graphOpts, dag.WithWorkers(opts.Workers))
	}
	if opts.Observer != nil {
		graphOpts = append(graphOpts, dag.WithObserver(opts.Observer))
	}
	graph := dag.New(graphOpts...)
	installer := NewInstaller(graph, fetcher, opts.Extract)

	var result *multierror.Error
	refs := make([]dag.Ref, len(cfgs))
	for i, cfg := range cfgs {
		ref, err := installer.Install(ctx, cfg)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		refs[i] = ref
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	logger.Debug("Distribution targets registered.", "distributions", len(cfgs), "targets", graph.Len())

	errs := make([]error, len(cfgs))
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = graph.Run(ctx, ref)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	handles := make([]toolchain.Handle, len(cfgs))
	for i, cfg := range cfgs {
		handles[i] = toolchain.NewHandle(cfg)
	}
	return handles, nil
}
