package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/vk/pyprovision/internal/app"
	"github.com/vk/pyprovision/internal/fetch"
	"github.com/vk/pyprovision/internal/toolchain"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := pflag.NewFlagSet("pyprovision", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.SortFlags = false

	flagSet.Usage = func() {
		fmt.Fprint(output, `
pyprovision - Provision python-build-standalone distributions into a local cache.

Usage:
  pyprovision [options] [CONFIG_PATH...]
  pyprovision --python-version 3.10.16 --build-time 20241219 --triple x86_64-pc-windows-msvc

Arguments:
  CONFIG_PATH
    Path to a single .hcl file or a directory containing .hcl files with
    python blocks.

Options:
`)
		flagSet.PrintDefaults()
		fmt.Fprintf(output, "\nSupported triples:\n")
		for _, t := range toolchain.Triples {
			fmt.Fprintf(output, "  %s\n", t)
		}
	}

	configFlag := flagSet.StringArrayP("config", "c", nil, "Path to a config file or directory. May be repeated.")
	versionFlag := flagSet.String("python-version", "", "CPython version to provision, e.g. 3.10.16.")
	buildTimeFlag := flagSet.String("build-time", "", "Upstream release tag, e.g. 20241219.")
	tripleFlag := flagSet.String("triple", "", "Target platform triple.")
	repoFlag := flagSet.String("repo", "", "Repository URL to download from (default "+toolchain.DefaultRepo+").")
	downloadDirFlag := flagSet.String("download-dir", "", "Directory holding the cache (default \""+toolchain.DefaultDownloadDir+"\").")
	workersFlag := flagSet.Int("workers", 4, "Maximum number of concurrently running build actions. 0 is unlimited.")
	timeoutFlag := flagSet.Duration("timeout", fetch.DefaultTimeout, "Timeout for each download.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	eventsURLFlag := flagSet.String("events-url", "", "socket.io endpoint that receives build events.")
	listFlag := flagSet.Bool("list", false, "List installed distributions and exit.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	paths := append([]string(nil), *configFlag...)
	paths = append(paths, flagSet.Args()...)
	slog.Debug("Config paths determined.", "paths", paths)

	if *versionFlag == "" && (*buildTimeFlag != "" || *tripleFlag != "") {
		return nil, false, usageError("--build-time and --triple require --python-version")
	}
	if len(paths) == 0 && *versionFlag == "" && !*listFlag {
		slog.Debug("Nothing requested, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	config, err := app.NewConfig(app.Config{
		ConfigPaths: paths,
		Toolchain: toolchain.Config{
			Version:     *versionFlag,
			BuildTime:   *buildTimeFlag,
			Triple:      toolchain.Triple(*tripleFlag),
			Repo:        *repoFlag,
			DownloadDir: *downloadDirFlag,
		},
		LogFormat: strings.ToLower(*logFormatFlag),
		LogLevel:  strings.ToLower(*logLevelFlag),
		Workers:   *workersFlag,
		Timeout:   *timeoutFlag,
		EventsURL: *eventsURLFlag,
		List:      *listFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
