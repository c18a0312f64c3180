// Package hclconfig reads toolchain declarations from HCL files:
//
//	python "py310" {
//	  version      = "3.10.16"
//	  build_time   = "20241219"
//	  triple       = "x86_64-pc-windows-msvc"
//	  repo         = "https://mirror.example/python-build-standalone"
//	  download_dir = env.PY_CACHE
//	}
//
// Attribute expressions may refer to the process environment through the
// env object.
package hclconfig

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/pyprovision/internal/ctxlog"
	"github.com/vk/pyprovision/internal/fault"
	"github.com/vk/pyprovision/internal/toolchain"
	"github.com/zclconf/go-cty/cty"
)

// Declaration is one python block.
type Declaration struct {
	Name   string
	File   string
	Config toolchain.Config
}

// fileRoot decodes the top level of a file. Unknown blocks and attributes
// are errors.
type fileRoot struct {
	Pythons []*pythonBlock `hcl:"python,block"`
}

type pythonBlock struct {
	Name        string `hcl:"name,label"`
	Version     string `hcl:"version"`
	BuildTime   string `hcl:"build_time"`
	Triple      string `hcl:"triple"`
	Repo        string `hcl:"repo,optional"`
	DownloadDir string `hcl:"download_dir,optional"`
}

// Load parses every .hcl file found in paths, which may be files or
// directories searched recursively, and returns the declarations in file
// order. env backs the env object available to expressions.
func Load(ctx context.Context, env map[string]string, paths ...string) ([]Declaration, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fault.Configurationf("no .hcl files found in %s", strings.Join(paths, ", "))
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	evalCtx := newEvalContext(env)
	parser := hclparse.NewParser()
	seen := make(map[string]string)
	var decls []Declaration

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fault.Configuration("parse", fmt.Errorf("failed to parse HCL file %s: %w", file, diags))
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
			return nil, fault.Configuration("decode", fmt.Errorf("failed to decode HCL file %s: %w", file, diags))
		}

		for _, b := range root.Pythons {
			if prev, ok := seen[b.Name]; ok {
				return nil, fault.Configurationf("python %q in %s is already declared in %s", b.Name, file, prev)
			}
			seen[b.Name] = file

			cfg := toolchain.Config{
				Version:     b.Version,
				BuildTime:   b.BuildTime,
				Triple:      toolchain.Triple(b.Triple),
				Repo:        b.Repo,
				DownloadDir: b.DownloadDir,
			}
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("%s: python %q: %w", file, b.Name, err)
			}
			decls = append(decls, Declaration{Name: b.Name, File: file, Config: cfg})
		}
	}

	logger.Debug("HCL loading complete.", "declarations", len(decls))
	return decls, nil
}

// Environ returns the process environment as a map for Load.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

func newEvalContext(env map[string]string) *hcl.EvalContext {
	vals := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vals[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vals),
		},
	}
}

// findAllHCLFiles walks all given paths and returns a sorted, de-duplicated
// list of the .hcl files found.
func findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			allFiles = append(allFiles, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fault.Configuration("load", fmt.Errorf("config path %s does not exist", path))
			}
			return nil, fault.Filesystem("stat", path, err)
		}

		if !info.IsDir() {
			add(path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fault.Filesystem("walk", path, err)
		}
	}
	sort.Strings(allFiles)
	return allFiles, nil
}
