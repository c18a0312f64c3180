package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vk/pyprovision/internal/ctxlog"
	"github.com/vk/pyprovision/internal/events"
	"github.com/vk/pyprovision/internal/hclconfig"
	"github.com/vk/pyprovision/internal/provision"
	"github.com/vk/pyprovision/internal/receipt"
	"github.com/vk/pyprovision/internal/toolchain"
)

// Run provisions every declared distribution, or lists the installed ones
// when Config.List is set. Each run is tagged with a fresh run ID in logs
// and build events.
func (a *App) Run(ctx context.Context) error {
	runID := uuid.NewString()
	logger := a.logger.With("runID", runID)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("App.Run method started.")

	decls, err := a.declarations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if a.config.List {
		return a.list(ctx, decls)
	}
	if len(decls) == 0 {
		logger.Warn("No python declarations found, nothing to provision.")
		return nil
	}

	opts := provision.Options{
		Fetcher: a.fetcher,
		Extract: a.extract,
		Workers: a.config.Workers,
		Timeout: a.config.Timeout,
	}
	sink, err := a.eventSink(ctx)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
		opts.Observer = events.Observer(sink, runID)
	}

	cfgs := make([]toolchain.Config, len(decls))
	for i, d := range decls {
		cfgs[i] = d.Config
	}

	logger.Info("🚀 Provisioning Python distributions...", "count", len(cfgs))
	start := time.Now()
	handles, err := provision.ProvisionAll(ctx, cfgs, opts)
	if err != nil {
		return fmt.Errorf("provisioning failed: %w", err)
	}
	for i, h := range handles {
		fmt.Fprintf(a.outW, "%s\t%s\n", decls[i].Name, h.Dir)
	}
	logger.Info("🏁 Provisioning finished.", "duration", time.Since(start))

	logger.Debug("App.Run method finished.")
	return nil
}

// declarations merges the HCL declarations with the distribution requested
// through flags, which is named after its identity.
func (a *App) declarations(ctx context.Context) ([]hclconfig.Declaration, error) {
	var decls []hclconfig.Declaration
	if len(a.config.ConfigPaths) > 0 {
		loaded, err := hclconfig.Load(ctx, hclconfig.Environ(), a.config.ConfigPaths...)
		if err != nil {
			return nil, err
		}
		decls = append(decls, loaded...)
	}
	if a.config.HasToolchain() {
		decls = append(decls, hclconfig.Declaration{
			Name:   toolchain.DistName(a.config.Toolchain),
			Config: a.config.Toolchain,
		})
	}
	return decls, nil
}

func (a *App) eventSink(ctx context.Context) (events.Sink, error) {
	if a.sink != nil {
		return a.sink, nil
	}
	if a.config.EventsURL == "" {
		return nil, nil
	}
	sink, err := events.DialSocketIO(ctx, a.config.EventsURL, events.SocketIOOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to events endpoint: %w", err)
	}
	return sink, nil
}

// list prints the receipts found in every cache root the declarations use,
// or in the cache root selected by flags when there are none.
func (a *App) list(ctx context.Context, decls []hclconfig.Declaration) error {
	logger := ctxlog.FromContext(ctx)

	var roots []string
	seen := make(map[string]bool)
	for _, d := range decls {
		root := toolchain.CacheRoot(d.Config)
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	if len(roots) == 0 {
		roots = append(roots, toolchain.CacheRoot(a.config.Toolchain))
	}

	for _, root := range roots {
		receipts, err := receipt.List(root)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", root, err)
		}
		logger.Debug("Listed cache root.", "root", root, "installed", len(receipts))
		for _, r := range receipts {
			fmt.Fprintf(a.outW, "%s\t%s\t%s\n", r.Identity, r.Dir, r.InstalledAt.Format(time.RFC3339))
		}
	}
	return nil
}
