package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pyprovision/internal/events"
	"github.com/vk/pyprovision/internal/fetch"
	"github.com/vk/pyprovision/internal/testutil"
	"github.com/vk/pyprovision/internal/toolchain"
)

type memorySink struct {
	mu     sync.Mutex
	events []events.Event
	closed bool
}

func (s *memorySink) Emit(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func writeDeclarations(t *testing.T, repo, downloadDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "python.hcl")
	content := fmt.Sprintf(`
python "windows" {
  version      = "3.10.16"
  build_time   = "20241219"
  triple       = "x86_64-pc-windows-msvc"
  repo         = %q
  download_dir = %q
}

python "mac" {
  version      = "3.12.8"
  build_time   = "20241219"
  triple       = "aarch64-apple-darwin"
  repo         = %q
  download_dir = %q
}
`, repo, downloadDir, repo, downloadDir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_ProvisionsDeclarationsAndPublishesEvents(t *testing.T) {
	server := testutil.NewArchiveServer(t, testutil.PythonArchive(t))
	downloadDir := t.TempDir()
	sink := &memorySink{}
	cfg := &Config{ConfigPaths: []string{writeDeclarations(t, server.URL, downloadDir)}, Workers: 2}

	a, logs := SetupAppTest(t, cfg, WithFetcher(fetch.NewClientWith(server.Client())), WithEventSink(sink))
	require.NoError(t, a.Run(context.Background()))

	out := logs.String()
	winDir := filepath.Join(downloadDir, "nm-static-py", "cpython-3.10.16+20241219-x86_64-pc-windows-msvc", "python")
	assert.Contains(t, out, "windows\t"+winDir+"\n")
	assert.Contains(t, out, "mac\t")
	assert.Contains(t, out, "runID=")
	assert.Equal(t, 2, server.Hits())

	assert.True(t, sink.closed)
	require.NotEmpty(t, sink.events)
	runID := sink.events[0].RunID
	for _, e := range sink.events {
		assert.Equal(t, runID, e.RunID, "one run ID per run")
	}
}

func TestRun_ListShowsInstalledDistributions(t *testing.T) {
	server := testutil.NewArchiveServer(t, testutil.PythonArchive(t))
	downloadDir := t.TempDir()
	tc := toolchain.Config{
		Version:     "3.10.16",
		BuildTime:   "20241219",
		Triple:      toolchain.X86_64PCWindowsMSVC,
		Repo:        server.URL,
		DownloadDir: downloadDir,
	}

	a, _ := SetupAppTest(t, &Config{Toolchain: tc}, WithFetcher(fetch.NewClientWith(server.Client())))
	require.NoError(t, a.Run(context.Background()))

	lister, logs := SetupAppTest(t, &Config{List: true, Toolchain: toolchain.Config{DownloadDir: downloadDir}})
	require.NoError(t, lister.Run(context.Background()))

	var listed []string
	for _, line := range strings.Split(logs.String(), "\n") {
		if strings.HasPrefix(line, "cpython-") {
			listed = append(listed, strings.Split(line, "\t")[0])
		}
	}
	assert.Equal(t, []string{"cpython-3.10.16+20241219-x86_64-pc-windows-msvc"}, listed)
	assert.Equal(t, 1, server.Hits(), "listing never downloads")
}

func TestRun_AggregatesFailures(t *testing.T) {
	server := testutil.NewArchiveServer(t, []byte("broken"))
	cfg := &Config{ConfigPaths: []string{writeDeclarations(t, server.URL, t.TempDir())}}

	a, _ := SetupAppTest(t, cfg, WithFetcher(fetch.NewClientWith(server.Client())))
	err := a.Run(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "provisioning failed")
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
}

func TestRun_InvalidDeclarations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`python "x" {`), 0o644))

	a, _ := SetupAppTest(t, &Config{ConfigPaths: []string{path}})
	err := a.Run(context.Background())
	assert.ErrorContains(t, err, "failed to load configuration")
}
